package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_provider_requests_total",
			Help: "Outbound provider API calls by outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_provider_request_duration_seconds",
			Help:    "Outbound provider API latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	CurrencyFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_currency_fallback_total",
			Help: "Composite tickers that matched no parser table",
		},
		[]string{"provider"},
	)

	AmountHintScrapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_amount_hint_scraped_total",
			Help: "Min/max amount hints recovered from provider error text",
		},
		[]string{"provider"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhooks_total",
			Help: "Provider webhooks by reconciliation outcome",
		},
		[]string{"provider", "outcome"},
	)

	UnverifiedWebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhooks_unverified_total",
			Help: "Webhooks accepted without signature verification",
		},
		[]string{"provider"},
	)

	ReconciliationFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_reconciliation_fallback_total",
			Help: "Correlation fallbacks taken while reconciling",
		},
		[]string{"provider", "kind"},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_status_transitions_total",
			Help: "Transaction status transitions applied",
		},
		[]string{"provider", "status"},
	)

	DatabaseConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_database_connections",
			Help: "Database connection pool state",
		},
		[]string{"state"},
	)
)
