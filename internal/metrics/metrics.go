// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pharmacy"

// Metrics groups the collectors shared by the storage and service layers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
	auditEntries    *prometheus.CounterVec
	auditFailures   prometheus.Counter
	purgedEntries   prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		storeOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Backing store operations by collection, operation and outcome.",
		}, []string{"collection", "operation", "outcome"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Backing store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "operation"}),
		auditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Audit entries appended by action.",
		}, []string{"action"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "append_failures_total",
			Help:      "Audit entries that could not be appended after a successful mutation.",
		}),
		purgedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "purged_entries_total",
			Help:      "Audit entries removed by retention purges.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
	}

	for _, c := range []prometheus.Collector{m.storeOperations, m.storeLatency, m.auditEntries, m.auditFailures, m.purgedEntries, m.httpRequests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveStore records one backing store call.
func (m *Metrics) ObserveStore(collection, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.storeOperations.WithLabelValues(collection, operation, outcome).Inc()
	m.storeLatency.WithLabelValues(collection, operation).Observe(time.Since(started).Seconds())
}

// AuditAppended counts an appended audit entry.
func (m *Metrics) AuditAppended(action string) {
	if m == nil {
		return
	}
	m.auditEntries.WithLabelValues(action).Inc()
}

// AuditFailed counts an audit entry lost after its mutation committed.
func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// Purged counts entries removed by a retention purge.
func (m *Metrics) Purged(n int) {
	if m == nil {
		return
	}
	m.purgedEntries.Add(float64(n))
}

// ObserveRequest counts one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
