// Package metrics provides Prometheus metrics for the marketplace ledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for operation counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Manager owns every collector. A nil *Manager is valid and records nothing,
// so services can be built without metrics in tests.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	walletOps         *prometheus.CounterVec
	walletAmount      *prometheus.CounterVec
	lifecycleOps      *prometheus.CounterVec
	intelRecomputes   prometheus.Counter
	notifications     *prometheus.CounterVec
	reconcileFindings *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager on its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "marketplace",
		subsystem:        "ledger",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.walletOps = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "wallet_operations_total",
		Help:      "Wallet debit/credit attempts by kind and result",
	}, []string{"kind", "result"})

	m.walletAmount = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "wallet_amount_minor_units_total",
		Help:      "Absolute minor-unit volume moved through wallets by kind",
	}, []string{"kind"})

	m.lifecycleOps = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "lifecycle_operations_total",
		Help:      "Request lifecycle operations by operation and error kind",
	}, []string{"operation", "outcome"})

	m.intelRecomputes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "intelligence_recomputes_total",
		Help:      "Number of request intelligence rebuilds",
	})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_total",
		Help:      "Notification dispatch outcomes",
	}, []string{"result"})

	m.reconcileFindings = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_findings_total",
		Help:      "Inconsistencies detected by ledger reconciliation",
	}, []string{"type"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by route, method and status",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method", "status_code"})
}

// Registry exposes the underlying registry (for tests and custom collectors).
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWalletOp counts a wallet operation. amount is only added on success.
func (m *Manager) RecordWalletOp(kind, result string, amount int64) {
	if m == nil {
		return
	}
	m.walletOps.WithLabelValues(kind, result).Inc()
	if result == ResultSuccess {
		if amount < 0 {
			amount = -amount
		}
		m.walletAmount.WithLabelValues(kind).Add(float64(amount))
	}
}

// RecordLifecycleOp counts a lifecycle operation; outcome is "success" or an
// error kind.
func (m *Manager) RecordLifecycleOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.lifecycleOps.WithLabelValues(operation, outcome).Inc()
}

// RecordIntelligenceRecompute counts a rebuild.
func (m *Manager) RecordIntelligenceRecompute() {
	if m == nil {
		return
	}
	m.intelRecomputes.Inc()
}

// RecordNotification counts a final dispatch outcome.
func (m *Manager) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// RecordReconcileFinding counts an inconsistency found by reconciliation.
func (m *Manager) RecordReconcileFinding(findingType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcileFindings.WithLabelValues(findingType).Add(float64(n))
}

// RecordHTTPRequest records count and latency for one request.
func (m *Manager) RecordHTTPRequest(route, method, statusCode string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusCode).Observe(seconds)
}
