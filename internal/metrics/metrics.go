package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chloe_messages_received_total",
			Help: "Inbound messages by emotion",
		},
		[]string{"emotion"},
	)

	RepliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chloe_replies_sent_total",
			Help: "Replies delivered by channel",
		},
		[]string{"channel"},
	)

	ModelFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chloe_model_failures_total",
			Help: "Model calls that fell back to the apology or were dropped",
		},
	)

	VoiceFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chloe_voice_fallbacks_total",
			Help: "Voice replies that were sent as text instead",
		},
	)

	InitiativesFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chloe_initiatives_fired_total",
			Help: "Unprompted messages sent",
		},
	)

	SupersededReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chloe_superseded_replies_total",
			Help: "Pending replies cancelled by a newer message from the same user",
		},
	)

	ModelLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "chloe_model_latency_seconds",
			Help: "Model call latency in seconds",
		},
	)
)
