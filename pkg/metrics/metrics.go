package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersProcessed counts settled orders by type (buy/sell) and final status
var OrdersProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "talabin_orders_processed_total",
		Help: "Total number of gold orders that reached a terminal status",
	},
	[]string{"type", "status"},
)

// SettlementLatency records how long order settlement holds the wallet lock
var SettlementLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "talabin_order_settlement_latency_seconds",
		Help:    "Latency in seconds of order settlement transactions",
		Buckets: prometheus.DefBuckets,
	},
)

// LedgerOperations counts wallet primitives by operation and outcome
var LedgerOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "talabin_ledger_operations_total",
		Help: "Wallet ledger primitives applied, by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

// LedgerRetries counts wallet transactions retried after a serialization failure
var LedgerRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "talabin_ledger_retries_total",
		Help: "Wallet transactions retried after serialization or deadlock failures",
	},
)

// PricePublishes counts published gold prices by source
var PricePublishes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "talabin_price_publishes_total",
		Help: "Number of gold prices published",
	},
	[]string{"source"},
)

// Transfer request transitions
var (
	DepositTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talabin_deposit_transitions_total",
			Help: "Deposit request status transitions",
		},
		[]string{"status"},
	)

	WithdrawalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talabin_withdrawal_transitions_total",
			Help: "Withdrawal request status transitions",
		},
		[]string{"status"},
	)

	InstallmentPayments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talabin_installment_payments_total",
			Help: "Installment payments settled",
		},
	)
)

// HTTP request metrics
var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talabin_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "talabin_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "talabin_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
	)

	DBInUseConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "talabin_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersProcessed, SettlementLatency, LedgerOperations, LedgerRetries, PricePublishes)
	prometheus.MustRegister(DepositTransitions, WithdrawalTransitions, InstallmentPayments)
	prometheus.MustRegister(HTTPRequests, HTTPLatency)
	prometheus.MustRegister(DBOpenConns, DBInUseConns)
}
