package retrieval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics owned by the orchestrator. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// buildDuration records the wall-clock time of the build phase.
	buildDuration *prometheus.HistogramVec
	// fragments records the number of fragments produced per build.
	fragments *prometheus.HistogramVec
	// queryDuration records the time to answer one query, by mode.
	queryDuration *prometheus.HistogramVec
	// batches counts finished invocations by mode and outcome (ok, error).
	batches *prometheus.CounterVec
}

// NewMetrics registers the orchestrator metrics against reg. promauto.With(reg)
// keeps tests hermetic when they pass a fresh prometheus.Registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "build_duration_seconds",
			Help:      "Duration of the extract, chunk, embed and index build phase.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"strategy"}),

		fragments: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "fragments",
			Help:      "Number of fragments produced per build phase.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"strategy"}),

		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "query_duration_seconds",
			Help:      "Duration of answering one query, partitioned by mode.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),

		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "batches_total",
			Help:      "Total number of retrieval invocations, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),
	}
}

func (m *Metrics) observeBuild(strategy string, d time.Duration, fragments int) {
	if m == nil {
		return
	}
	m.buildDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.fragments.WithLabelValues(strategy).Observe(float64(fragments))
}

func (m *Metrics) observeQuery(mode Mode, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
}

func (m *Metrics) countBatch(mode Mode, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.batches.WithLabelValues(string(mode), outcome).Inc()
}
