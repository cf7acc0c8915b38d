package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks engine throughput for the /metrics endpoint.
type Metrics struct {
	ExecutionsTotal  *prometheus.CounterVec
	ActiveExecutions prometheus.Gauge
	NodeDuration     *prometheus.HistogramVec
	NodeFailures     *prometheus.CounterVec
}

// NewMetrics creates and registers engine metrics on the given registerer.
// A nil registerer leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workscript",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Workflow executions by terminal status",
		}, []string{"status"}),
		ActiveExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workscript",
			Subsystem: "engine",
			Name:      "active_executions",
			Help:      "Executions currently running",
		}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workscript",
			Subsystem: "engine",
			Name:      "node_duration_seconds",
			Help:      "Node body execution time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_id"}),
		NodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workscript",
			Subsystem: "engine",
			Name:      "node_failures_total",
			Help:      "Node body failures by node id",
		}, []string{"node_id"}),
	}

	if reg != nil {
		reg.MustRegister(m.ExecutionsTotal, m.ActiveExecutions, m.NodeDuration, m.NodeFailures)
	}

	return m
}
