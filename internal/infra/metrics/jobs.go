package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, jobAttemptsTotal, queueDepth) }

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_jobs_processed_total",
			Help: "Generation job attempts by outcome.",
		},
		[]string{"outcome"}, // success, blocked, exceeded, retry, dead, void, lease_lost
	)

	jobAttemptsTotal = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "suggestion_job_attempts",
			Help:    "Attempt number at which a job reached a terminal state.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "suggestion_queue_jobs",
			Help: "Jobs in the durable queue by status.",
		},
		[]string{"status"},
	)
)

func IncJobOutcome(outcome string) {
	jobsProcessedTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveTerminalAttempt(attempt int) {
	jobAttemptsTotal.Observe(float64(attempt))
}

func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(norm(status)).Set(float64(n))
}
