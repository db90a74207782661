package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index client Prometheus metrics.
var (
	IndexRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geodex",
			Name:      "index_requests_total",
			Help:      "Total number of index requests",
		},
		[]string{"op", "status"},
	)

	IndexRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "geodex",
			Name:      "index_request_duration_seconds",
			Help:      "Index request duration in seconds, retries included",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op"},
	)

	IndexRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geodex",
			Name:      "index_retries_total",
			Help:      "Total number of retried index requests",
		},
		[]string{"op"},
	)

	CandidatesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geodex",
			Name:      "candidates_dropped_total",
			Help:      "Candidates dropped for failing the document schema",
		},
		[]string{"reason"},
	)
)

var indexMetricsRegistered bool

// RegisterIndexMetrics registers index client metrics. Must be called once from main.
func RegisterIndexMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(IndexRequestsTotal)
	prometheus.MustRegister(IndexRequestDuration)
	prometheus.MustRegister(IndexRetriesTotal)
	prometheus.MustRegister(CandidatesDroppedTotal)
	indexMetricsRegistered = true
}
