package features

import (
	"math"
	"strconv"
	"strings"

	"EntryGate/internal/domain/models"
	domsvc "EntryGate/internal/domain/service"
)

type bucketEdge struct {
	label  string
	lo, hi *float64
}

func f(v float64) *float64 { return &v }

// First matching edge wins; both ends inclusive.
var (
	rsiEdges = []bucketEdge{
		{"<=30", nil, f(30)},
		{"30-40", f(30), f(40)},
		{"40-50", f(40), f(50)},
		{"50-60", f(50), f(60)},
		{"60-70", f(60), f(70)},
		{">70", f(70), nil},
	}
	stochEdges = []bucketEdge{
		{"<=20", nil, f(20)},
		{"20-40", f(20), f(40)},
		{"40-60", f(40), f(60)},
		{"60-80", f(60), f(80)},
		{">80", f(80), nil},
	}
	bollEdges = []bucketEdge{
		{"<=30", nil, f(30)},
		{"30-45", f(30), f(45)},
		{"45-55", f(45), f(55)},
		{"55-70", f(55), f(70)},
		{">70", f(70), nil},
	}
)

var lowerCased = []string{
	"support_position", "global_trend", "volume_category",
	"macd_trend", "macd_hist_direction", "macd_crossed",
	"rsi_trend", "rsi_signal",
	"stoch_signal", "bollinger_signal", "cci_signal",
	"microtrend_1m", "microtrend_5m",
}

var patterns = []string{
	"bullish_engulfing", "bearish_engulfing", "hammer", "shooting_star",
	"morning_star", "evening_star", "doji",
}

// Deriver fills bucket, pattern and normalised states from raw readings.
type Deriver struct{}

func NewDeriver() *Deriver { return &Deriver{} }

// Derive returns a new snapshot; snap is not modified. The regime is
// normalised. Explicit states win over raw strings, but numeric readings
// always recompute their buckets.
func (Deriver) Derive(snap *models.IndicatorSnapshot) *models.IndicatorSnapshot {
	out := *snap
	out.Regime = models.ParseRegime(string(snap.Regime))
	out.States = make(map[string]string, len(snap.States)+24)
	for k, v := range snap.States {
		out.States[k] = v
	}
	if snap.Metrics != nil {
		out.Metrics = make(map[string]float64, len(snap.Metrics)+1)
		for k, v := range snap.Metrics {
			out.Metrics[k] = v
		}
	}

	for k, v := range snap.Raw {
		if s, ok := v.(string); ok {
			if _, set := out.States[k]; !set {
				out.States[k] = s
			}
		}
	}

	if v, ok := number(snap, "rsi_value"); ok {
		setBucket(out.States, "rsi_bucket", v, rsiEdges)
	}
	if v, ok := number(snap, "stoch_k"); ok {
		setBucket(out.States, "stoch_k_bucket", v, stochEdges)
	}
	if v, ok := number(snap, "stoch_d"); ok {
		setBucket(out.States, "stoch_d_bucket", v, stochEdges)
	}
	if v, ok := number(snap, "bollinger_position"); ok {
		if v >= 0 && v <= 1 {
			v = math.Round(v*10000) / 100
		}
		setBucket(out.States, "boll_bucket", v, bollEdges)
	}
	if v, ok := number(snap, "cci_value"); ok {
		out.States["cci_bucket"] = cciBucket(v)
	}

	for _, k := range lowerCased {
		if s, ok := out.States[k]; ok {
			out.States[k] = strings.ToLower(strings.TrimSpace(s))
		}
	}

	rawPatterns, hasPatterns := snap.Raw["patterns"]
	seen := patternSet(rawPatterns)
	for _, p := range patterns {
		key := "pat_" + p
		if _, set := out.States[key]; set && !hasPatterns {
			continue
		}
		out.States[key] = "no"
		if seen[p] {
			out.States[key] = "yes"
		}
	}

	switch out.States["macd_crossed"] {
	case "bullish_cross", "bearish_cross":
	default:
		out.States["macd_crossed"] = "none"
	}
	for _, k := range []string{"microtrend_1m", "microtrend_5m"} {
		if _, ok := out.States[k]; !ok {
			out.States[k] = "neutral"
		}
	}

	if _, ok := out.Metrics[models.MetricBBWidth]; !ok {
		if v, ok := rawNumber(snap.Raw["bb_width_pct"]); ok {
			if out.Metrics == nil {
				out.Metrics = make(map[string]float64, 1)
			}
			out.Metrics[models.MetricBBWidth] = v
		}
	}
	return &out
}

// Derive uses the zero Deriver.
func Derive(snap *models.IndicatorSnapshot) *models.IndicatorSnapshot {
	return Deriver{}.Derive(snap)
}

func setBucket(states map[string]string, key string, v float64, edges []bucketEdge) {
	for _, e := range edges {
		if (e.lo == nil || v >= *e.lo) && (e.hi == nil || v <= *e.hi) {
			states[key] = e.label
			return
		}
	}
}

func cciBucket(v float64) string {
	switch {
	case v <= -100:
		return "<=-100"
	case v <= 0:
		return "-100-0"
	case v <= 100:
		return "0-100"
	default:
		return ">100"
	}
}

func number(snap *models.IndicatorSnapshot, key string) (float64, bool) {
	if v, ok := rawNumber(snap.Raw[key]); ok {
		return v, true
	}
	v, ok := snap.Metrics[key]
	return v, ok
}

func rawNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return p, err == nil && !math.IsNaN(p)
	}
	return 0, false
}

func patternSet(v any) map[string]bool {
	out := make(map[string]bool)
	switch list := v.(type) {
	case []any:
		for _, p := range list {
			if s, ok := p.(string); ok {
				out[strings.ToLower(strings.TrimSpace(s))] = true
			}
		}
	case []string:
		for _, s := range list {
			out[strings.ToLower(strings.TrimSpace(s))] = true
		}
	}
	return out
}

var _ domsvc.SnapshotDeriver = (*Deriver)(nil)
