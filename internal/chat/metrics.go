package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cognify_turns_started_total",
		Help: "Turns that entered the AwaitingModel state.",
	}, []string{"kind"})

	turnsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cognify_turns_completed_total",
		Help: "Turns that committed an assistant message.",
	}, []string{"kind"})

	turnsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cognify_turns_failed_total",
		Help: "Turns that ended with a terminal error event.",
	}, []string{"kind"})

	turnsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cognify_turns_rejected_total",
		Help: "Turns rejected because one was already in flight for the entity.",
	})

	fragmentsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cognify_stream_fragments_total",
		Help: "Model output fragments forwarded to callers.",
	})
)
