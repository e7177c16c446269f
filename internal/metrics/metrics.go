package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCDuration tracks the latency of every connect procedure
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "referral_rpc_duration_seconds",
			Help: "Duration of referral RPC requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
		[]string{"procedure", "code"},
	)

	// RedemptionDuration tracks the settlement transaction of completeRedemption
	RedemptionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "referral_redemption_duration_seconds",
			Help:    "Duration of redemption settlement in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"result"},
	)

	// Redemptions counts completeRedemption outcomes
	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_redemptions_total",
			Help: "Redemption attempts by result",
		},
		[]string{"result"}, // success, replayed, already_completed, usage_exceeded, closed, expired, failed
	)

	// ReferralsMinted counts referral codes handed out
	ReferralsMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_codes_minted_total",
			Help: "Referral codes successfully minted",
		},
	)

	// CodeCollisions counts generated codes rejected by the live code index
	CodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_code_collisions_total",
			Help: "Generated referral codes that collided with a live code",
		},
	)

	// ReferralsExpired counts referrals moved to expired by the sweep
	ReferralsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_codes_expired_total",
			Help: "Referrals expired by the background sweep",
		},
	)

	// EventsPublished counts domain events by type and outcome
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_events_published_total",
			Help: "Domain events handed to the broker",
		},
		[]string{"type", "status"},
	)
)

// RecordRPCDuration records the duration of an RPC
func RecordRPCDuration(procedure, code string, duration float64) {
	RPCDuration.WithLabelValues(procedure, code).Observe(duration)
}

// RecordRedemption records the outcome and duration of a redemption
func RecordRedemption(result string, duration float64) {
	Redemptions.WithLabelValues(result).Inc()
	RedemptionDuration.WithLabelValues(result).Observe(duration)
}

// RecordEvent records a publish attempt
func RecordEvent(eventType, status string) {
	EventsPublished.WithLabelValues(eventType, status).Inc()
}
