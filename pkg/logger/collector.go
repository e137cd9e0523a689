package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated logs. The Kafka producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force a flush
	Topic          string
	Service        string
	IncludeWarn    bool
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogBatch is the payload published on each flush.
type LogBatch struct {
	Service string               `json:"service,omitempty"`
	SentAt  time.Time            `json:"sent_at"`
	Entries []AggregatedLogEntry `json:"entries"`
}

// LogCollector folds repeated log lines into counted entries so a noisy
// failure loop produces one message per flush.
type LogCollector struct {
	config  *CollectionConfig
	entries map[uint64]*AggregatedLogEntry
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		config:  cfg,
		entries: make(map[uint64]*AggregatedLogEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.periodicFlush()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	if len(c.entries) >= c.config.CountThreshold {
		c.flushLocked(true)
	}
}

// Pending returns the number of distinct entries waiting for a flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func entryKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", level, message, caller)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := json.Marshal(fields[k])
		fmt.Fprintf(h, "|%s=%s", k, v)
	}
	return h.Sum64()
}

func (c *LogCollector) periodicFlush() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked(true)
			c.mu.Unlock()
		case <-c.ctx.Done():
			c.mu.Lock()
			c.flushLocked(false)
			c.mu.Unlock()
			return
		}
	}
}

// flushLocked must be called with c.mu held.
func (c *LogCollector) flushLocked(async bool) {
	if len(c.entries) == 0 || c.config.Publisher == nil {
		return
	}
	batch := LogBatch{
		Service: c.config.Service,
		SentAt:  time.Now().UTC(),
		Entries: make([]AggregatedLogEntry, 0, len(c.entries)),
	}
	for _, e := range c.entries {
		batch.Entries = append(batch.Entries, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)

	send := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch.Entries), err)
		}
	}
	if async {
		go send()
		return
	}
	send()
}

// Close flushes synchronously and stops the flush loop.
func (c *LogCollector) Close() {
	c.cancel()
	c.wg.Wait()
}
