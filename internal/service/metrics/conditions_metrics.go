package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ConditionSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entrygate",
			Subsystem: "conditions",
			Name:      "saves_total",
			Help:      "Condition document writes by operation and result",
		},
		[]string{"op", "result"},
	)

	ConditionVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "entrygate",
			Subsystem: "conditions",
			Name:      "active_version",
			Help:      "Version of the conditions document in use",
		},
	)

	RefreshErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "entrygate",
			Subsystem: "conditions",
			Name:      "refresh_errors_total",
			Help:      "Failed polls of the condition store",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ConditionSaves, ConditionVersion, RefreshErrors)
	})
}
