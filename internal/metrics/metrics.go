package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry           *prometheus.Registry
	tickRuns           *prometheus.CounterVec // total ticks
	tickDuration       prometheus.Histogram   // time to reconcile
	resolutions        *prometheus.CounterVec // entry resolutions
	dnsQueries         *prometheus.CounterVec // raw dns queries
	exports            *prometheus.CounterVec // whitelist exports
	entriesTracked     prometheus.Gauge       // entries known to the store
	storeRequests      *prometheus.CounterVec // badgerdb requests
	caddyRequests      *prometheus.CounterVec // caddy admin requests
	cloudflareRequests *prometheus.CounterVec // cloudflare api requests
}

// Public interface for metrics operations
func (m *Metrics) IncTick(status string) {
	if !isValidTickStatus(status) {
		return
	}
	m.tickRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) SetTickDuration(duration time.Duration) {
	m.tickDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncResolution(success bool) {
	m.resolutions.WithLabelValues(boolToResult(success)).Inc()
}

func (m *Metrics) IncDNSQuery(qtype string, success bool) {
	if !isValidQueryType(qtype) {
		return
	}
	m.dnsQueries.WithLabelValues(qtype, boolToResult(success)).Inc()
}

func (m *Metrics) IncExport(schema string, success bool) {
	if schema == "" {
		return
	}
	m.exports.WithLabelValues(schema, boolToResult(success)).Inc()
}

func (m *Metrics) SetEntriesTracked(count int) {
	m.entriesTracked.Set(float64(count))
}

func (m *Metrics) IncStoreRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	m.storeRequests.WithLabelValues(operation, boolToResult(success)).Inc()
}

func (m *Metrics) IncCaddyRequest(success bool, code int) {
	m.caddyRequests.WithLabelValues(boolToResult(success), strconv.Itoa(code)).Inc()
}

func (m *Metrics) IncCloudflareRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	m.cloudflareRequests.WithLabelValues(operation, boolToResult(success)).Inc()
}

// Validation helpers
func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidTickStatus(status string) bool {
	switch status {
	case "success", "failure", "skipped":
		return true
	}
	return false
}

func isValidOperation(op string) bool {
	switch op {
	case "create", "read", "update", "delete", "replace":
		return true
	}
	return false
}

func isValidQueryType(qtype string) bool {
	switch qtype {
	case "A", "AAAA":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "dns_whitelist_sync"

	m := &Metrics{
		registry: registry,

		tickRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_runs_total",
			Help:      "Total number of reconciliation ticks",
		}, []string{"status"}),

		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of reconciliation ticks in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total entry resolutions",
		}, []string{"status"}),

		dnsQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_queries_total",
			Help:      "Total DNS queries sent to nameservers",
		}, []string{"type", "status"}),

		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Total whitelist exports",
		}, []string{"schema", "status"}),

		entriesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries_tracked",
			Help:      "Entries configured for resolution",
		}),

		storeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badgerdb_requests_total",
			Help:      "Total badgerdb requests",
		}, []string{"operation", "status"}),

		caddyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caddy_requests_total",
			Help:      "Total caddy admin requests",
		}, []string{"status", "code"}),

		cloudflareRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cloudflare_requests_total",
			Help:      "Total cloudflare api requests",
		}, []string{"operation", "status"}),
	}

	if register {
		registry.MustRegister(
			m.tickRuns,
			m.tickDuration,
			m.resolutions,
			m.dnsQueries,
			m.exports,
			m.entriesTracked,
			m.storeRequests,
			m.caddyRequests,
			m.cloudflareRequests,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
