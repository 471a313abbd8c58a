package overlay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run counters, exposed on /metrics alongside the caption routes.
var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aituberduel_sessions_started_total",
		Help: "Number of conversation sessions started.",
	})

	Restarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aituberduel_session_restarts_total",
		Help: "Number of session restarts after a stall or error.",
	})

	Turns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aituberduel_turns_total",
		Help: "Number of completed conversation turns.",
	})

	TopicChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aituberduel_topic_changes_total",
		Help: "Number of topic changes by source.",
	}, []string{"source"})

	CommentInjections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aituberduel_comment_injections_total",
		Help: "Number of viewer comments injected into the conversation.",
	})
)
