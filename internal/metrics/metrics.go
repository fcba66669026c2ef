package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationsTotal counts pre-flight validations by result status
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_validations_total",
			Help: "Total number of pre-flight transfer validations",
		},
		[]string{"status"},
	)

	// RateLimitedTotal counts requests rejected by the per-address rate limiter
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		},
	)

	// TransfersTotal counts transfers reaching a status
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfers_total",
			Help: "Total number of bridge transfers by status reached",
		},
		[]string{"status"},
	)

	// TransferTransitions counts state machine transitions
	TransferTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfer_transitions_total",
			Help: "Total number of transfer state transitions",
		},
		[]string{"from", "to"},
	)

	// TransferDuration tracks time from submission to a terminal state
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_transfer_duration_seconds",
			Help:    "Transfer settlement duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// TransferAmount tracks the amount of tokens settled
	TransferAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_transfer_amount",
			Help:    "Amount of tokens settled",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 100, 1000, 10000, 100000, 1000000},
		},
		[]string{"asset"},
	)

	// TransfersByStatus tracks the number of transfers currently in each status
	TransfersByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_transfers_by_status",
			Help: "Number of known transfers by current status",
		},
		[]string{"status"},
	)

	// PoolLiquidity tracks pool balances
	PoolLiquidity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_pool_liquidity",
			Help: "Liquidity per pool, split into total, reserved and available",
		},
		[]string{"pool", "kind"},
	)

	// ReservationsTotal counts liquidity reservation operations
	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_reservations_total",
			Help: "Total number of liquidity reservation operations",
		},
		[]string{"op"},
	)

	// AdapterCalls counts chain adapter calls
	AdapterCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_adapter_calls_total",
			Help: "Total number of chain adapter calls",
		},
		[]string{"chain", "op", "result"},
	)

	// EscalationsTotal counts transfers escalated for manual resolution
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_escalations_total",
			Help: "Total number of transfers escalated for manual resolution",
		},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
