package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the ingestion pipeline and search layer.
var (
	IngestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvsearch",
			Name:      "ingestions_total",
			Help:      "Completed ingestion pipelines by final status",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvsearch",
			Name:      "ingestion_stage_duration_seconds",
			Help:      "Duration of each ingestion pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	SearchHistoryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cvsearch",
			Name:      "search_history_failures_total",
			Help:      "Search history records dropped or failed to persist",
		},
	)

	IndexWriteRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cvsearch",
			Name:      "index_write_retries_total",
			Help:      "Retries of index writes after a write conflict",
		},
	)

	DroppedJobsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cvsearch",
			Name:      "dropped_jobs_total",
			Help:      "Ingestion jobs rejected because the queue was full",
		},
	)
)

var registered bool

// Register registers all metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(IngestionsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(SearchHistoryFailuresTotal)
	prometheus.MustRegister(IndexWriteRetriesTotal)
	prometheus.MustRegister(DroppedJobsTotal)
	registered = true
}
