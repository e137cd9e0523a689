package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"EntryGate/internal/domain/models"
	pkgkafka "EntryGate/pkg/kafka"
	"EntryGate/pkg/logger"
	"EntryGate/pkg/util"
)

// SnapshotProcessor is the stage the Kafka handler feeds.
type SnapshotProcessor interface {
	Process(ctx context.Context, snap *models.IndicatorSnapshot) error
}

// KafkaSnapshotHandler decodes market snapshots from Kafka.
type KafkaSnapshotHandler struct {
	topic string
	next  SnapshotProcessor
	log   *logger.Logger
}

func NewKafkaSnapshotHandler(topic string, next SnapshotProcessor) *KafkaSnapshotHandler {
	return &KafkaSnapshotHandler{topic: topic, next: next, log: logger.Nop()}
}

func (h *KafkaSnapshotHandler) SetLogger(l *logger.Logger) {
	if l != nil {
		h.log = l.With("snapshot_handler")
	}
}

func (h *KafkaSnapshotHandler) Topic() string { return h.topic }

// snapshotMessage accepts ts as RFC3339, unix seconds or unix milliseconds.
type snapshotMessage struct {
	Symbol       string             `json:"symbol"`
	TS           json.RawMessage    `json:"ts"`
	CandleClosed bool               `json:"candle_closed"`
	Regime       string             `json:"regime"`
	States       map[string]string  `json:"states"`
	Metrics      map[string]float64 `json:"metrics"`
	Raw          map[string]any     `json:"raw"`
}

// Handle returns nil for duplicates and malformed payloads so that they are
// committed rather than retried.
func (h *KafkaSnapshotHandler) Handle(ctx context.Context, b []byte) error {
	snap, err := DecodeSnapshot(b)
	if err != nil {
		h.log.Warn("dropping undecodable snapshot", logger.Int("bytes", len(b)), logger.Error(err))
		return nil
	}
	if snap.Symbol == "" {
		snap.Symbol = pkgkafka.MessageKey(ctx)
	}
	err = h.next.Process(ctx, snap)
	if errors.Is(err, models.ErrDuplicateTick) {
		return nil
	}
	if se, ok := models.AsSchemaError(err); ok {
		h.log.Warn("dropping invalid snapshot", logger.String("symbol", snap.Symbol), logger.Error(se))
		return nil
	}
	return err
}

// DecodeSnapshot parses the wire form of a snapshot.
func DecodeSnapshot(b []byte) (*models.IndicatorSnapshot, error) {
	var m snapshotMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap := &models.IndicatorSnapshot{
		Symbol:       m.Symbol,
		CandleClosed: m.CandleClosed,
		Regime:       models.ParseRegime(m.Regime),
		States:       m.States,
		Metrics:      m.Metrics,
		Raw:          m.Raw,
	}
	if ts, ok := util.ParseJSONTime(m.TS); ok {
		snap.Timestamp = ts
	}
	return snap, nil
}

var _ pkgkafka.MessageHandler = (*KafkaSnapshotHandler)(nil)
