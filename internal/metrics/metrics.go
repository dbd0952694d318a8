package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay transaction metrics
var (
	RelayTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_transactions_total",
		Help: "Total relayed transactions by kind and status",
	}, []string{"kind", "status"})

	RelayTransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_transaction_duration_seconds",
		Help:    "Time from request to broadcast by transaction kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	RelayerBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relayer_balance_wei",
		Help: "Current relayer account balance in wei",
	}, []string{"address"})
)

// Security metrics
var (
	RateLimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "security_rate_limit_hits_total",
		Help: "Requests rejected by the rate limiter per class",
	}, []string{"class"})

	BlocklistSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "security_blocklist_size",
		Help: "Active blocklist entries per namespace",
	}, []string{"namespace"})

	AbuseEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "security_abuse_events_total",
		Help: "Abuse pattern reports by pattern",
	}, []string{"pattern"})

	IdentityBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "security_identity_blocks_total",
		Help: "Identities blocked by the abuse detector per pattern",
	}, []string{"pattern"})

	IdempotencyEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "security_idempotency_entries",
		Help: "Entries currently held in the idempotency store",
	})

	SignatureFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "security_signature_failures_total",
		Help: "HMAC signature verification failures",
	})
)

// User operation metrics
var (
	UserOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userops_total",
		Help: "Submitted user operations by terminal status",
	}, []string{"status"})

	UserOpStatusQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "userop_status_queries_total",
		Help: "Status queries served for user operations",
	})
)

// Health and infrastructure metrics
var (
	HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_service_status",
		Help: "Per dependency health (1 healthy, 0 unhealthy)",
	}, []string{"service"})

	DBConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_open",
		Help: "Open database connections",
	})

	DBConnectionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_in_use",
		Help: "Database connections currently in use",
	})

	DBConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_idle",
		Help: "Idle database connections",
	})

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nats_connection_status",
		Help: "NATS connection state (1 connected, 0 disconnected)",
	})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections",
		Help: "Active WebSocket push connections",
	})
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by path",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
