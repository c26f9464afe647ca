package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. Label values are drawn from small closed sets (channels,
// statuses, rule ids, notifier names) to keep cardinality bounded.
var (
	// TurnsTotal counts submitted turns by channel and outcome status.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_turns_total",
			Help: "Customer turns processed by the router.",
		},
		[]string{"channel", "status"},
	)

	// EscalationsTotal counts handovers opened, by rule and trigger source
	// (rules, second_pass, ai_suggested, agent).
	EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_escalations_total",
			Help: "Handovers opened by rule id and source.",
		},
		[]string{"rule_id", "source"},
	)

	// GeneratorFailuresTotal counts generator calls replaced by fallback text.
	GeneratorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_generator_failures_total",
			Help: "Response generator failures by reason.",
		},
		[]string{"reason"},
	)

	// NotificationsTotal counts escalation alerts by notifier and result.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_notifications_total",
			Help: "Escalation alerts delivered by notifier and result.",
		},
		[]string{"notifier", "result"},
	)

	// FeedbackTotal counts customer ratings of bot replies ("up" or "down").
	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_feedback_total",
			Help: "Customer ratings of bot replies.",
		},
		[]string{"rating"},
	)
)

func init() {
	prometheus.MustRegister(TurnsTotal, EscalationsTotal, GeneratorFailuresTotal, NotificationsTotal, FeedbackTotal)
}
