package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"EntryGate/internal/domain/models"
	"EntryGate/internal/domain/repository"
	"EntryGate/pkg/logger"
)

// batchWriter is the part of the ClickHouse client the decision log needs.
type batchWriter interface {
	InitSchema(ctx context.Context, stmts []string) error
	InsertBatch(ctx context.Context, query string, rows [][]any) error
}

const decisionTable = "entry_decisions"

var decisionSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + decisionTable + ` (
		id             String,
		ts             DateTime64(3, 'UTC'),
		symbol         LowCardinality(String),
		version        UInt64,
		engine         LowCardinality(String),
		decision       LowCardinality(String),
		deferred       UInt8,
		fallback       LowCardinality(String),
		margin         Float64,
		regime         LowCardinality(String),
		reason         String,
		long_score     Float64,
		short_score    Float64,
		long_adjusted  Float64,
		short_adjusted Float64,
		long_phase     LowCardinality(String),
		short_phase    LowCardinality(String),
		long_block     LowCardinality(String),
		short_block    LowCardinality(String),
		long_bypassed  UInt8,
		short_bypassed UInt8,
		payload        String
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(ts)
	ORDER BY (symbol, ts)`,
}

const insertDecision = `INSERT INTO ` + decisionTable + ` (
	id, ts, symbol, version, engine, decision, deferred, fallback, margin, regime, reason,
	long_score, short_score, long_adjusted, short_adjusted, long_phase, short_phase,
	long_block, short_block, long_bypassed, short_bypassed, payload
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ClickHouseDecisionLog buffers evaluations and inserts them in batches,
// either when the buffer fills or on the flush interval.
type ClickHouseDecisionLog struct {
	db        batchWriter
	cb        *gobreaker.CircuitBreaker
	log       *logger.Logger
	batchSize int
	interval  time.Duration

	mu   sync.Mutex
	buf  [][]any
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewClickHouseDecisionLog(db batchWriter, l *logger.Logger) *ClickHouseDecisionLog {
	if l == nil {
		l = logger.Nop()
	}
	l = l.With("decision_log")
	return &ClickHouseDecisionLog{
		db:        db,
		cb:        newBreaker("clickhouse_decisions", 30*time.Second, l),
		log:       l,
		batchSize: 500,
		interval:  2 * time.Second,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Init creates the table and starts the periodic flush.
func (d *ClickHouseDecisionLog) Init(ctx context.Context) error {
	if err := d.db.InitSchema(ctx, decisionSchema); err != nil {
		return err
	}
	go d.loop()
	return nil
}

func (d *ClickHouseDecisionLog) Store(ctx context.Context, ev *models.Evaluation) error {
	row, err := decisionRow(ev)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.buf = append(d.buf, row)
	full := len(d.buf) >= d.batchSize
	d.mu.Unlock()

	if full {
		return d.flush(ctx)
	}
	return nil
}

func (d *ClickHouseDecisionLog) loop() {
	defer close(d.done)
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := d.flush(context.Background()); err != nil {
				d.log.Warn("flush decisions", logger.Error(err))
			}
		case <-d.stop:
			return
		}
	}
}

// flush writes the buffer. Rows stay buffered when the insert fails, up to
// ten batches; older rows are dropped past that.
func (d *ClickHouseDecisionLog) flush(ctx context.Context) error {
	d.mu.Lock()
	rows := d.buf
	d.buf = nil
	d.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.db.InsertBatch(ctx, insertDecision, rows)
	})
	if err != nil {
		d.mu.Lock()
		d.buf = append(rows, d.buf...)
		if over := len(d.buf) - 10*d.batchSize; over > 0 {
			d.buf = d.buf[over:]
		}
		d.mu.Unlock()
		return fmt.Errorf("insert %d decisions: %w", len(rows), err)
	}
	return nil
}

// Close stops the flush loop and writes what is left.
func (d *ClickHouseDecisionLog) Close() error {
	var err error
	d.once.Do(func() {
		close(d.stop)
		select {
		case <-d.done:
		case <-time.After(d.interval):
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = d.flush(ctx)
	})
	return err
}

// Pending reports buffered rows.
func (d *ClickHouseDecisionLog) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

func decisionRow(ev *models.Evaluation) ([]any, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation: %w", err)
	}
	return []any{
		ev.ID,
		ev.Timestamp.UTC(),
		ev.Symbol,
		uint64(max(ev.Version, 0)),
		ev.Engine,
		string(ev.Decision),
		boolToUInt8(ev.Deferred),
		ev.Fallback,
		ev.Margin,
		string(ev.Regime),
		ev.Reason,
		ev.Long.Score,
		ev.Short.Score,
		ev.Long.AdjustedScore,
		ev.Short.AdjustedScore,
		string(ev.Long.Phase),
		string(ev.Short.Phase),
		string(ev.Long.BlockReason),
		string(ev.Short.BlockReason),
		boolToUInt8(ev.Long.Bypassed),
		boolToUInt8(ev.Short.Bypassed),
		string(payload),
	}, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

var _ repository.DecisionLog = (*ClickHouseDecisionLog)(nil)
