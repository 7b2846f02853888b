package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level counters exposed on /metrics.
var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exam",
		Subsystem: "session",
		Name:      "submissions_total",
		Help:      "Locked attempts by test kind and trigger (manual or expiry).",
	}, []string{"kind", "trigger"})

	SyncRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "exam",
		Subsystem: "session",
		Name:      "sync_retries_total",
		Help:      "Answer persistence attempts that needed a retry.",
	})

	SyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "exam",
		Subsystem: "session",
		Name:      "sync_failures_total",
		Help:      "Answer persistence calls that exhausted all retries.",
	})

	StaleSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "exam",
		Subsystem: "session",
		Name:      "stale_submissions_total",
		Help:      "Duplicate lock calls rejected for carrying a different payload.",
	})

	ChallengesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exam",
		Subsystem: "challenge",
		Name:      "resolved_total",
		Help:      "Challenges resolved by outcome (win or tie).",
	}, []string{"outcome"})

	CoinTransferFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "exam",
		Subsystem: "challenge",
		Name:      "coin_transfer_failures_total",
		Help:      "Stake transfers that failed and left the challenge retryable.",
	})
)
