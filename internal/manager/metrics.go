package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_sessions_active",
		Help: "Number of sessions currently in the active state.",
	})
	metricSessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_sessions_started_total",
		Help: "Total sessions started since server start.",
	})
	metricRecyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_backend_recycles_total",
		Help: "Total backend processes recycled after cleanup alerts.",
	})
	metricPromptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_prompts_total",
		Help: "Total prompt exchanges served.",
	})
)

func init() {
	prometheus.MustRegister(
		metricSessionsActive,
		metricSessionsStarted,
		metricRecyclesTotal,
		metricPromptsTotal,
	)
}
