package engine

import (
	"EntryGate/internal/domain/models"
	domsvc "EntryGate/internal/domain/service"
)

const defaultThreshold = 4.0

var defaultWeights = models.Weights{Core: 1, Pair: 2}

// DefaultEngine is the built-in rule set used when no custom document is
// active and as the "default" tie-break. It has no gates and keeps no state.
type DefaultEngine struct {
	long  *models.ConditionSet
	short *models.ConditionSet
}

func NewDefaultEngine() *DefaultEngine {
	c := models.Cond
	p := models.Pair
	return &DefaultEngine{
		long: &models.ConditionSet{
			Core: models.NewCoreSet(
				c("boll_bucket", "<=30"),
				c("rsi_bucket", "<=30"),
				c("stoch_d_bucket", "<=20"),
				c("macd_hist_direction", "down"),
				c("macd_crossed", "none"),
				c("rsi_trend", "down"),
				c("microtrend_1m", "bearish"),
				c("microtrend_5m", "strong_bearish"),
				c("support_position", "near_support"),
			),
			Pairs: []models.IndicatorPair{
				p(c("boll_bucket", "<=30"), c("macd_hist_direction", "down")),
				p(c("boll_bucket", "<=30"), c("rsi_trend", "down")),
				p(c("macd_hist_direction", "down"), c("rsi_trend", "down")),
				p(c("microtrend_1m", "bearish"), c("stoch_d_bucket", "<=20")),
				p(c("rsi_bucket", "<=30"), c("stoch_d_bucket", "<=20")),
				p(c("rsi_bucket", "<=30"), c("support_position", "near_support")),
				p(c("pat_hammer", "yes"), c("rsi_bucket", "<=30")),
			},
			Threshold: defaultThreshold,
		},
		short: &models.ConditionSet{
			Core: models.NewCoreSet(
				c("boll_bucket", ">70"),
				c("rsi_bucket", ">70"),
				c("stoch_d_bucket", ">80"),
				c("stoch_k_bucket", ">80"),
				c("macd_hist_direction", "up"),
				c("macd_crossed", "bullish_cross"),
				c("rsi_trend", "up"),
				c("microtrend_1m", "bullish"),
				c("microtrend_5m", "strong_bullish"),
				c("support_position", "near_resistance"),
				c("bollinger_signal", "bullish_momentum"),
			),
			Pairs: []models.IndicatorPair{
				p(c("boll_bucket", ">70"), c("macd_hist_direction", "up")),
				p(c("boll_bucket", ">70"), c("rsi_trend", "up")),
				p(c("boll_bucket", ">70"), c("microtrend_5m", "strong_bullish")),
				p(c("bollinger_signal", "bullish_momentum"), c("rsi_trend", "up")),
				p(c("macd_crossed", "bullish_cross"), c("stoch_k_bucket", ">80")),
				p(c("global_trend", "bearish"), c("microtrend_5m", "strong_bullish")),
				p(c("boll_bucket", ">70"), c("support_position", "near_resistance")),
			},
			Threshold: defaultThreshold,
		},
	}
}

func (e *DefaultEngine) Name() string { return models.EngineDefault }

// Document renders the built-in rules as a conditions document.
func (e *DefaultEngine) Document() *models.TradeConditions {
	w := defaultWeights
	return &models.TradeConditions{
		Mode:     models.ModeDefault,
		Long:     e.long.Clone(),
		Short:    e.short.Clone(),
		Weights:  &w,
		Fallback: models.FallbackHigherScore,
	}
}

// Evaluate admits every side at or above the threshold and, when both are
// admitted, takes the higher score with ties going LONG.
func (e *DefaultEngine) Evaluate(snap *models.IndicatorSnapshot, _ *models.MarketState) models.Evaluation {
	ev := models.Evaluation{
		Symbol:    snap.Symbol,
		Timestamp: snap.Timestamp,
		Engine:    models.EngineDefault,
		Regime:    snap.Regime,
		Long:      e.side(models.SideLong, e.long, snap),
		Short:     e.side(models.SideShort, e.short, snap),
	}
	ev.Margin = round3(abs(ev.Long.Score - ev.Short.Score))

	switch {
	case ev.Long.Eligible && ev.Short.Eligible:
		ev.Decision = higher(ev.Long.Score, ev.Short.Score)
		ev.Reason = "both sides allowed, higher score taken"
	case ev.Long.Eligible:
		ev.Decision = models.DecisionLong
		ev.Reason = "long allowed"
	case ev.Short.Eligible:
		ev.Decision = models.DecisionShort
		ev.Reason = "short allowed"
	default:
		ev.Decision = models.DecisionNone
		ev.Reason = "no side reached threshold"
	}
	return ev
}

func (e *DefaultEngine) side(side models.Side, set *models.ConditionSet, snap *models.IndicatorSnapshot) models.SideResult {
	sc := Score(snap, set, defaultWeights)
	res := models.SideResult{
		Side:          side,
		Score:         round3(sc.Value),
		AdjustedScore: round3(sc.Value),
		Threshold:     set.Threshold,
		CoreHits:      sc.CoreHits,
		PairHits:      sc.PairHits,
		Matched:       sc.Matched,
		Eligible:      atLeast(sc.Value, set.Threshold),
		Phase:         models.PhaseBelowThreshold,
	}
	if res.Eligible {
		res.Phase = models.PhaseAdmitted
	} else {
		res.BlockReason = models.BlockBelowThreshold
	}
	return res
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var _ domsvc.Evaluator = (*DefaultEngine)(nil)
