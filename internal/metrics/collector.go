package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the arena's prometheus metrics.
type Collector struct {
	SubmissionsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	QueueDepth         prometheus.Gauge
	WorkersBusy        prometheus.Gauge
}

// NewCollector registers the arena metrics on the default registry.
func NewCollector() *Collector {
	return NewCollectorFor(prometheus.DefaultRegisterer)
}

// NewCollectorFor registers the arena metrics on the given registerer.
// Tests pass a fresh prometheus.NewRegistry to avoid duplicate
// registration panics.
func NewCollectorFor(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_submissions_total",
				Help: "Submissions by challenge and terminal status",
			},
			[]string{"challenge_id", "status"},
		),
		EvaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arena_evaluation_seconds",
				Help:    "Wall-clock duration of submission evaluations",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "arena_queue_depth",
				Help: "Evaluations waiting in the scheduler queue",
			},
		),
		WorkersBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "arena_workers_busy",
				Help: "Workers currently evaluating a submission",
			},
		),
	}
}

// Handler exposes the default registry for GET /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}
