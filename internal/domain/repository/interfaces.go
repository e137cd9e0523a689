package repository

import (
	"context"

	"EntryGate/internal/domain/models"
)

// ConditionStore persists versioned condition documents. Version numbers are
// assigned by the store and increase monotonically. An empty store reports
// version 0 with the empty document.
type ConditionStore interface {
	Current(ctx context.Context) (*models.VersionedConditions, error)
	Save(ctx context.Context, doc *models.TradeConditions) (*models.VersionedConditions, error)
	Get(ctx context.Context, version int64) (*models.VersionedConditions, error)
	History(ctx context.Context, limit int) ([]models.VersionMeta, error)
	Close() error
}

// DecisionLog keeps an append-only audit trail of evaluations.
type DecisionLog interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, ev *models.Evaluation) error
	Close() error
}

// DecisionPublisher fans decisions out to downstream consumers.
type DecisionPublisher interface {
	Publish(ctx context.Context, ev *models.Evaluation) error
	Close() error
}

type Metrics interface {
	RecordDecision(symbol string, d models.Decision, engine string)
	RecordBlocked(side models.Side, reason models.BlockReason)
	RecordBypass(side models.Side)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
