package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"EntryGate/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions *prometheus.CounterVec
	blocked   *prometheus.CounterVec
	bypasses  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

var (
	recorder     *Recorder
	recorderOnce sync.Once
)

// New returns the process-wide recorder. Collectors register with the default
// registry once, so repeated calls (tests, wire graphs) share them.
func New() *Recorder {
	recorderOnce.Do(func() {
		recorder = &Recorder{
			decisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "entrygate_decisions_total",
					Help: "Evaluated ticks by decision and engine",
				},
				[]string{"symbol", "decision", "engine"},
			),
			blocked: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "entrygate_side_blocked_total",
					Help: "Sides refused by an anti-filter gate",
				},
				[]string{"side", "reason"},
			),
			bypasses: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "entrygate_fasttrack_bypass_total",
					Help: "Sides admitted through fast track",
				},
				[]string{"side"},
			),
			errors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "entrygate_errors_total",
					Help: "Total number of errors encountered",
				},
				[]string{"type"},
			),
			latency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "entrygate_operation_duration_seconds",
					Help:    "Duration of operations in seconds",
					Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
				},
				[]string{"operation"},
			),
		}
	})
	return recorder
}

func (r *Recorder) RecordDecision(symbol string, d models.Decision, engine string) {
	r.decisions.WithLabelValues(symbol, string(d), engine).Inc()
}

func (r *Recorder) RecordBlocked(side models.Side, reason models.BlockReason) {
	r.blocked.WithLabelValues(string(side), string(reason)).Inc()
}

func (r *Recorder) RecordBypass(side models.Side) {
	r.bypasses.WithLabelValues(string(side)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used where metrics are optional.
type Nop struct{}

func (Nop) RecordDecision(string, models.Decision, string) {}

func (Nop) RecordBlocked(models.Side, models.BlockReason) {}

func (Nop) RecordBypass(models.Side) {}

func (Nop) RecordError(string) {}

func (Nop) RecordLatency(string, float64) {}
