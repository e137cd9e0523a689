package kafka

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestRunBeforeRecoversPanic(t *testing.T) {
	h := HookFuncs{Before: func(context.Context, kafka.Message) (context.Context, []byte, error) {
		panic("boom")
	}}
	_, data, err := runBefore(h, context.Background(), kafka.Message{Value: []byte("x")})

	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, "x", string(data))
}

func TestHookFuncsDefaults(t *testing.T) {
	ctx, data, err := HookFuncs{}.BeforeHandle(context.Background(), kafka.Message{Value: []byte("v")})
	require.NoError(t, err)
	assert.NotNil(t, ctx)
	assert.Equal(t, "v", string(data))

	called := false
	HookFuncs{Err: func(context.Context, kafka.Message, error) { called = true }}.
		OnError(context.Background(), kafka.Message{}, errors.New("x"))
	assert.True(t, called)
}

func TestMessageKey(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxMessageKey, "BTCUSDT")
	assert.Equal(t, "BTCUSDT", MessageKey(ctx))
	assert.Equal(t, "", MessageKey(context.Background()))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer()
	assert.Error(t, err)
}

type recordingHandler struct {
	mu   sync.Mutex
	seen map[int][]int
}

func (h *recordingHandler) Topic() string { return "snapshots" }

func (h *recordingHandler) Handle(ctx context.Context, b []byte) error {
	// Uneven handling time lets a shared queue reorder messages.
	time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
	part, _ := strconv.Atoi(MessageKey(ctx))
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.seen[part] = append(h.seen[part], n)
	h.mu.Unlock()
	return nil
}

func TestConsumerKeepsPartitionOrder(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerWorkers(4),
		WithConsumerBufferSize(16),
	)
	require.NoError(t, err)
	h := &recordingHandler{seen: map[int][]int{}}
	c.RegisterHandler(h)
	c.startWorkers()

	const perPartition = 500
	for i := 0; i < perPartition; i++ {
		for part := 0; part < 3; part++ {
			km := kafka.Message{
				Partition: part,
				Key:       []byte(strconv.Itoa(part)),
				Value:     []byte(strconv.Itoa(i)),
			}
			require.True(t, c.dispatch(&message{topic: h.Topic(), km: km}))
		}
	}
	c.closeQueues()
	c.wg.Wait()

	want := make([]int, perPartition)
	for i := range want {
		want[i] = i
	}
	for part := 0; part < 3; part++ {
		assert.Equal(t, want, h.seen[part], "partition %d", part)
	}
}

func TestQueueForIsStable(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerWorkers(8))
	require.NoError(t, err)
	for part := 0; part < 16; part++ {
		assert.Equal(t, c.queueFor("snapshots", part), c.queueFor("snapshots", part))
	}
}
