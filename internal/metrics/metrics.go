package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "baraza"

// Metrics holds the collectors for the vote ledger, counter projection and
// karma aggregator.
type Metrics struct {
	VotesCast           *prometheus.CounterVec
	VoteFailures        *prometheus.CounterVec
	Retries             *prometheus.CounterVec
	ConsistencyWarnings *prometheus.CounterVec
	KarmaComputed       prometheus.Counter
	KarmaFailures       prometheus.Counter
	RecomputeDuration   prometheus.Histogram
	SchedulerQueued     prometheus.Counter
	SchedulerDropped    prometheus.Counter
}

// New registers the collectors on reg. A nil reg gets a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		VotesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "votes recorded, by target kind and resulting action",
		}, []string{"kind", "action"}),
		VoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_failures_total",
			Help:      "vote casts that were not recorded, by reason",
		}, []string{"reason"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "retried store operations, by reason",
		}, []string{"reason"}),
		ConsistencyWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_warnings_total",
			Help:      "counter clamps and reconciliation drift",
		}, []string{"kind", "reason"}),
		KarmaComputed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "karma_computed_total",
			Help:      "successful karma computations",
		}),
		KarmaFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "karma_failures_total",
			Help:      "failed karma computations",
		}),
		RecomputeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "karma_recompute_all_seconds",
			Help:      "duration of full karma reconciliation passes",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		SchedulerQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "karma_scheduler_queued_total",
			Help:      "users queued for karma recomputation",
		}),
		SchedulerDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "karma_scheduler_dropped_total",
			Help:      "users dropped because the queue was full",
		}),
	}
}

// OrNew returns m, or a fresh set on a private registry when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m == nil {
		return New(nil)
	}
	return m
}
