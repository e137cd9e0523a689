package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	topic   string
	batches []LogBatch
}

func (p *recordingPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.(LogBatch))
	return nil
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf).With("engine")

	l.Info("evaluated", String("symbol", "BTCUSDT"), Float64("score", 14.5), Int("streak", 2), Error(errors.New("boom")))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "evaluated", line["message"])
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "BTCUSDT", line["symbol"])
	assert.Equal(t, 14.5, line["score"])
	assert.Equal(t, float64(2), line["streak"])
	assert.Equal(t, "boom", line["error"])
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &recordingPublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 50,
		Topic:          "entrygate.logs",
		Service:        "entrygate",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Error("store refresh failed", String("backend", "redis"))
	}
	l.Error("publish failed", String("topic", "entry.decisions"))
	require.Equal(t, 2, l.collector.Pending())

	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "entrygate.logs", pub.topic)
	assert.Equal(t, "entrygate", pub.batches[0].Service)

	counts := map[string]int{}
	for _, e := range pub.batches[0].Entries {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 3, counts["store refresh failed"])
	assert.Equal(t, 1, counts["publish failed"])
}

func TestWarnSkipsCollectorByDefault(t *testing.T) {
	pub := &recordingPublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})
	defer l.RemoveCollector()

	l.Warn("slow request")
	assert.Zero(t, l.collector.Pending())
}
