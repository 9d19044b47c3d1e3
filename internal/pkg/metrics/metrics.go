package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_deposits_total",
		Help: "The total number of deposit operations processed",
	}, []string{"status"})

	UnstakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_unstakes_total",
		Help: "Unstake request lifecycle transitions",
	}, []string{"event"})

	LimitRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_limit_rejects_total",
		Help: "Total rejections by the rate limiter and flash-loan guards",
	}, []string{"reason"})

	LiquidityAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_liquidity_alerts_total",
		Help: "Silo liquidity guard trips and recoveries",
	}, []string{"state"})

	EmergencyTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_emergency_transitions_total",
		Help: "Emergency state machine transitions",
	}, []string{"to"})

	ExchangeRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaultgate_exchange_rate",
		Help: "Current vested exchange rate (underlying per receipt)",
	})

	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaultgate_queue_length",
		Help: "Outstanding unstake requests (queued + processing)",
	})

	PendingClaims = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaultgate_silo_pending_claims",
		Help: "Total underlying owed to users in the settlement silo",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
