package models

import "time"

// Requests for the conditions and evaluation HTTP endpoints.

type ToggleCoreRequest struct {
	Side      string `param:"side" json:"-" validate:"required,side"`
	Indicator string `json:"indicator" validate:"required"`
	State     string `json:"state" validate:"required"`
}

type AddPairRequest struct {
	Side string        `param:"side" json:"-" validate:"required,side"`
	Pair IndicatorPair `json:"pair"`
}

type RemovePairRequest struct {
	Side  string `param:"side" json:"-" validate:"required,side"`
	Index int    `param:"index" json:"-" validate:"gte=0"`
}

type HistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type VersionRequest struct {
	Version int64 `param:"version" json:"-" validate:"gte=1"`
}

type LatestDecisionRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

// EvaluateRequest runs one snapshot against the current document without
// touching live per-symbol state. Streaks seed the state as of the prior tick.
type EvaluateRequest struct {
	Snapshot    IndicatorSnapshot `json:"snapshot"`
	LongStreak  int               `json:"long_streak" validate:"gte=0"`
	ShortStreak int               `json:"short_streak" validate:"gte=0"`
}

// VersionedConditions is a stored document with its version stamp.
type VersionedConditions struct {
	Version  int64            `json:"version"`
	SavedAt  time.Time        `json:"saved_at"`
	Document *TradeConditions `json:"document"`
}

// VersionMeta summarises one history entry.
type VersionMeta struct {
	Version int64     `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Mode    string    `json:"mode"`
	Empty   bool      `json:"empty"`
}

// Meta summarises v.
func (v *VersionedConditions) Meta() VersionMeta {
	return VersionMeta{
		Version: v.Version,
		SavedAt: v.SavedAt,
		Mode:    v.Document.Mode,
		Empty:   v.Document.IsEmpty(),
	}
}
