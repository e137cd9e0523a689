package engine

import (
	"errors"
	"fmt"

	"EntryGate/internal/domain/models"
)

// Bypass is the fast-track verdict for one side on one tick.
type Bypass struct {
	OK   bool
	Note string
	Err  error
}

func noBypass(format string, a ...interface{}) Bypass {
	return Bypass{Note: fmt.Sprintf(format, a...)}
}

// TryBypass checks whether side may skip the anti-filters this tick.
// The still-open candle counts toward bars in state only when
// AllowOpenCandle is set.
// Metric thresholds set to zero are not checked. A required metric that is
// absent yields a *models.PreconditionError in Err and no bypass.
func TryBypass(side models.Side, snap *models.IndicatorSnapshot, set *models.ConditionSet, sc ScoreResult, ft *models.FastTrackConfig, streak int) Bypass {
	if ft == nil || !ft.Enable || set == nil {
		return Bypass{}
	}
	if sc.CoreHits < ft.MinCores {
		return noBypass("core hits %d < %d", sc.CoreHits, ft.MinCores)
	}
	if sc.PairHits < ft.MinPairs {
		return noBypass("pair hits %d < %d", sc.PairHits, ft.MinPairs)
	}
	bars := streak
	if !snap.CandleClosed && !ft.AllowOpenCandle && bars > 0 {
		bars--
	}
	if bars < ft.MinBarsInState {
		return noBypass("bars in state %d < %d", bars, ft.MinBarsInState)
	}

	if ft.MinBBWidth > 0 {
		width, err := requireMetric(snap, models.MetricBBWidth)
		if err != nil {
			return Bypass{Note: err.Error(), Err: err}
		}
		if width < ft.MinBBWidth {
			return noBypass("bb_width %.4f < %.4f", width, ft.MinBBWidth)
		}
	}

	metric, floor := models.MetricProxLo, ft.ProxLo
	if side == models.SideShort {
		metric, floor = models.MetricProxHi, ft.ProxHi
	}
	if floor > 0 {
		prox, err := requireMetric(snap, metric)
		if err != nil {
			return Bypass{Note: err.Error(), Err: err}
		}
		if prox < floor {
			return noBypass("%s %.4f < %.4f", metric, prox, floor)
		}
	}
	return Bypass{OK: true, Note: "fast track"}
}

func requireMetric(snap *models.IndicatorSnapshot, name string) (float64, error) {
	v, ok := snap.Metric(name)
	if !ok {
		return 0, &models.PreconditionError{Metric: name}
	}
	return v, nil
}

// IsPrecondition reports whether err is a missing-metric failure.
func IsPrecondition(err error) bool {
	var pe *models.PreconditionError
	return errors.As(err, &pe)
}
