// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Purchase metrics
	PurchasesTotal prometheus.Counter
	PurchasesByKind *prometheus.CounterVec
	UnitsMinted     prometheus.Counter
	PurchaseErrors  *prometheus.CounterVec

	// Burn metrics
	BurnsTotal       prometheus.Counter
	UnitsBurned      prometheus.Counter
	BurnErrors       *prometheus.CounterVec
	EligibilityChecks prometheus.Counter

	// Transfer metrics
	TransfersTotal prometheus.Counter
	UnitsMoved     prometheus.Counter

	// Role metrics
	RoleGrants  prometheus.Counter
	RoleRevokes prometheus.Counter

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec
	WSSubscribers       prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_forge"
	}

	return &Metrics{
		PurchasesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "purchases_total",
			Help:      "Total number of successful purchases",
		}),
		PurchasesByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "purchases_by_kind_total",
			Help:      "Total number of successful purchases by payment kind",
		}, []string{"kind"}),
		UnitsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "units_minted_total",
			Help:      "Total token units minted across all token ids",
		}),
		PurchaseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "purchase_errors_total",
			Help:      "Total number of rejected purchases by error kind",
		}, []string{"error"}),

		BurnsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "burns_total",
			Help:      "Total number of successful burn calls",
		}),
		UnitsBurned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "units_burned_total",
			Help:      "Total token units destroyed",
		}),
		BurnErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "burn_errors_total",
			Help:      "Total number of rejected burns by error kind",
		}, []string{"error"}),
		EligibilityChecks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "eligibility_checks_total",
			Help:      "Total number of burn eligibility queries",
		}),

		TransfersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "transfers_total",
			Help:      "Total number of successful transfers",
		}),
		UnitsMoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forge",
			Name:      "units_moved_total",
			Help:      "Total token units moved between holders",
		}),

		RoleGrants: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roles",
			Name:      "grants_total",
			Help:      "Total number of role grants",
		}),
		RoleRevokes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roles",
			Name:      "revokes_total",
			Help:      "Total number of role revocations",
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		WSSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "ws_subscribers",
			Help:      "Current number of websocket event-feed subscribers",
		}),
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
