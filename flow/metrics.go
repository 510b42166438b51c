package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for graph execution.
//
// Exposed metrics, all namespaced "taskgraph":
//
//   - inflight_atoms (gauge): futures currently unresolved.
//   - wait_duration_seconds (histogram): time spent in each wait step.
//   - scheduled_total (counter, kind/intention): atoms scheduled.
//   - failures_total (counter, event): atom failures observed.
//   - retries_total (counter): subflow retries triggered by controllers.
//
// All methods are nil-safe: a nil *Metrics records nothing, so callers
// never guard their calls.
type Metrics struct {
	inflight     prometheus.Gauge
	waitDuration prometheus.Histogram
	scheduled    *prometheus.CounterVec
	failures     *prometheus.CounterVec
	retries      prometheus.Counter
}

// NewMetrics creates and registers the execution metrics with the given
// registry. Use prometheus.DefaultRegisterer for the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskgraph",
			Name:      "inflight_atoms",
			Help:      "Number of atoms with an unresolved future.",
		}),
		waitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskgraph",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for any in-flight future to resolve.",
			Buckets:   prometheus.DefBuckets,
		}),
		scheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "scheduled_total",
			Help:      "Atoms scheduled, by kind and intention.",
		}, []string{"kind", "intention"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "failures_total",
			Help:      "Atom failures observed, by event.",
		}, []string{"event"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "retries_total",
			Help:      "Subflow retries triggered by retry controllers.",
		}),
	}
}

func (m *Metrics) setInflight(n int) {
	if m == nil {
		return
	}
	m.inflight.Set(float64(n))
}

func (m *Metrics) observeWait(d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.Observe(d.Seconds())
}

func (m *Metrics) recordScheduled(kind Kind, intention Intention) {
	if m == nil {
		return
	}
	m.scheduled.WithLabelValues(string(kind), string(intention)).Inc()
}

func (m *Metrics) recordFailure(event Event) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(event)).Inc()
}

func (m *Metrics) recordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
