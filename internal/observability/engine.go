package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records query engine and snapshot cache activity.
type EngineMetrics struct {
	queryDuration  *prometheus.HistogramVec
	unresolved     prometheus.Counter
	snapshotWrites *prometheus.CounterVec
}

// NewEngineMetrics registers the engine collectors. A nil registerer uses the
// default Prometheus registerer.
func NewEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agencyhub_metrics_query_duration_seconds",
		Help:    "Duration of metric queries partitioned by outcome.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})
	unresolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agencyhub_formula_unresolved_total",
		Help: "Calculated metrics left unresolved after fixpoint evaluation.",
	})
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agencyhub_snapshot_writes_total",
		Help: "Widget snapshot writes partitioned by status.",
	}, []string{"status"})
	registerer.MustRegister(duration, unresolved, writes)
	return &EngineMetrics{queryDuration: duration, unresolved: unresolved, snapshotWrites: writes}
}

// ObserveQuery records one metric query.
func (m *EngineMetrics) ObserveQuery(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveUnresolved adds count unresolved formulas.
func (m *EngineMetrics) ObserveUnresolved(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.unresolved.Add(float64(count))
}

// ObserveSnapshotWrite counts one snapshot write ("ok" or "error").
func (m *EngineMetrics) ObserveSnapshotWrite(status string) {
	if m == nil {
		return
	}
	m.snapshotWrites.WithLabelValues(status).Inc()
}
