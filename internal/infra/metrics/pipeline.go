package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(guardrailVerdicts, injectionDetections, deliveryOutcomes, usageLevels, ingestTotal)
}

var (
	guardrailVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardrail_verdicts_total",
			Help: "Guardrail verdicts by verdict and matched category.",
		},
		[]string{"verdict", "category"},
	)

	injectionDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "injection_detections_total",
			Help: "Inbound fields flagged by the injection detector, by pattern.",
		},
		[]string{"pattern"},
	)

	deliveryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_outcomes_total",
			Help: "Delivery attempts by channel and result.",
		},
		[]string{"channel", "success"},
	)

	usageLevels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_reservations_total",
			Help: "Usage reservations by resulting warning level.",
		},
		[]string{"level"},
	)

	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trigger_ingest_total",
			Help: "Trigger events received by kind and result.",
		},
		[]string{"kind", "result"}, // result: enqueued, duplicate, invalid, rate_limited, error
	)
)

func IncGuardrail(verdict, category string) {
	guardrailVerdicts.WithLabelValues(norm(verdict), norm(category)).Inc()
}

func IncInjection(pattern string) {
	injectionDetections.WithLabelValues(norm(pattern)).Inc()
}

func IncDelivery(channel string, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	deliveryOutcomes.WithLabelValues(norm(channel), s).Inc()
}

func IncUsageLevel(level string) {
	usageLevels.WithLabelValues(norm(level)).Inc()
}

func IncIngest(kind, result string) {
	ingestTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
