// Package metrics defines the Prometheus collectors of the progression service.
// They are registered on the metrics server registry at startup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	XPAwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_xp_awarded_total",
			Help: "Total XP awarded, by event type",
		},
		[]string{"event_type"},
	)

	DuplicateEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_duplicate_events_total",
			Help: "Awards absorbed as no-ops because the milestone was already recorded",
		},
		[]string{"event_type"},
	)

	RankUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_rank_ups_total",
			Help: "Total rank promotions, by new rank",
		},
		[]string{"rank"},
	)

	RankDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_rank_denials_total",
			Help: "Total denied rank advancements, by reason",
		},
		[]string{"reason"},
	)

	ChallengesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_challenges_completed_total",
			Help: "Total weekly challenges completed",
		},
		[]string{"challenge_id"},
	)

	HTTPRequestsThrottledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_http_requests_throttled_total",
			Help: "Requests rejected by the per-seller rate limiter",
		},
	)
)

// Collectors returns every collector defined here.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		XPAwardedTotal,
		DuplicateEventsTotal,
		RankUpsTotal,
		RankDenialsTotal,
		ChallengesCompletedTotal,
		HTTPRequestsThrottledTotal,
	}
}
