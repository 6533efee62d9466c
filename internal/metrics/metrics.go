package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "relay"

var (
	MessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total number of broker messages delivered to a handler.",
		},
		[]string{"queue"},
	)

	MessagesSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_settled_total",
			Help:      "Total number of broker messages settled, labeled by verdict.",
		},
		[]string{"queue", "verdict"},
	)

	PeerSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_submissions_total",
			Help:      "Total number of peer submission calls, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	StatusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_total",
			Help:      "Total number of system-of-record status updates, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	MessageProcessingSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_processing_seconds",
			Help:      "Time spent handling one broker message (seconds).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"queue"},
	)

	PeerDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_decisions_total",
			Help:      "Total number of mock peer decisions, labeled by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesConsumedTotal,
		MessagesSettledTotal,
		PeerSubmissionsTotal,
		StatusUpdatesTotal,
		MessageProcessingSeconds,
		PeerDecisionsTotal,
	)
}
