// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the CraftLink core.
var (
	// Counters.
	PaymentCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Total payment provider callbacks received",
		},
		[]string{"outcome"},
	)

	ReviewDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_decisions_total",
			Help: "Total review decisions processed",
		},
		[]string{"decision"},
	)

	ScoreRecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_recomputes_total",
			Help: "Total seller reputation recomputations",
		},
		[]string{"status"},
	)

	CascadeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_runs_total",
			Help: "Total verification cascade executions",
		},
		[]string{"status"},
	)

	NotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total failed notification deliveries",
		},
		[]string{"kind"},
	)

	TierUnlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tier_unlocks_total",
			Help: "Total learner tier unlocks",
		},
		[]string{"tier"},
	)

	// Histograms.
	CascadeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cascade_duration_seconds",
			Help:    "Time taken to run the verification cascade",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
	)

	CompositeScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seller_composite_score",
			Help:    "Distribution of recomputed seller composite scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 to 100
		},
	)
)

// RecordPaymentCallback records a payment callback by outcome.
func RecordPaymentCallback(outcome string) {
	PaymentCallbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordReviewDecision records a processed review decision.
func RecordReviewDecision(decision string) {
	ReviewDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordScoreRecompute records a reputation recomputation attempt.
func RecordScoreRecompute(status string) {
	ScoreRecomputesTotal.WithLabelValues(status).Inc()
}

// RecordCascadeRun records a cascade execution.
func RecordCascadeRun(status string) {
	CascadeRunsTotal.WithLabelValues(status).Inc()
}

// RecordNotificationFailed records a failed notification delivery.
func RecordNotificationFailed(kind string) {
	NotificationsFailedTotal.WithLabelValues(kind).Inc()
}

// RecordTierUnlock records a learner tier unlock.
func RecordTierUnlock(tier string) {
	TierUnlocksTotal.WithLabelValues(tier).Inc()
}

// ObserveCascadeDuration observes the duration of a cascade run.
func ObserveCascadeDuration(seconds float64) {
	CascadeDurationSeconds.Observe(seconds)
}

// ObserveCompositeScore observes a recomputed composite score.
func ObserveCompositeScore(score float64) {
	CompositeScore.Observe(score)
}
