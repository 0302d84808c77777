package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Workflow outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "rejected"
	OutcomeConflict    = "conflict"
	OutcomeCompensated = "compensated"
	OutcomeError       = "error"
)

// MetricsSnapshot is a compact view of runtime counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	WorkflowsTotal           uint64    `json:"workflows_total"`
	WorkflowsCompensated     uint64    `json:"workflows_compensated"`
	LedgerEntriesTotal       uint64    `json:"ledger_entries_total"`
	EventsPublished          uint64    `json:"events_published"`
	EventsFailed             uint64    `json:"events_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic and marketplace workflows.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	workflows       *prometheus.CounterVec
	workflowLatency *prometheus.HistogramVec
	ledgerVolume    *prometheus.CounterVec
	ledgerEntries   *prometheus.CounterVec
	events          *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	workflowCount        uint64
	compensatedCount     uint64
	ledgerEntryCount     uint64
	eventsPublished      uint64
	eventsFailed         uint64
}

// NewMetricsService registers the service collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	workflows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_workflows_total",
		Help: "Marketplace workflows by outcome",
	}, []string{"workflow", "outcome"})

	workflowLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_workflow_duration_seconds",
		Help:    "Duration of marketplace workflows",
		Buckets: prometheus.DefBuckets,
	}, []string{"workflow"})

	ledgerVolume := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_volume_total",
		Help: "Absolute amount moved through the ledger, by entry kind",
	}, []string{"kind"})

	ledgerEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Ledger entries appended, by entry kind",
	}, []string{"kind"})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_events_total",
		Help: "Domain events handed to the publisher, by outcome",
	}, []string{"type", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses, workflows, workflowLatency, ledgerVolume, ledgerEntries, events, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		workflows:       workflows,
		workflowLatency: workflowLatency,
		ledgerVolume:    ledgerVolume,
		ledgerEntries:   ledgerEntries,
		events:          events,
	}
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveWorkflow records the outcome and duration of a marketplace workflow.
func (m *MetricsService) ObserveWorkflow(workflow, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(workflow, outcome).Inc()
	m.workflowLatency.WithLabelValues(workflow).Observe(duration.Seconds())
	atomic.AddUint64(&m.workflowCount, 1)
	if outcome == OutcomeCompensated {
		atomic.AddUint64(&m.compensatedCount, 1)
	}
}

// RecordLedgerEntry tracks an appended entry.
func (m *MetricsService) RecordLedgerEntry(kind string, amount int64) {
	if m == nil {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.ledgerVolume.WithLabelValues(kind).Add(float64(amount))
	m.ledgerEntries.WithLabelValues(kind).Inc()
	atomic.AddUint64(&m.ledgerEntryCount, 1)
}

// RecordEvent tracks a publish attempt.
func (m *MetricsService) RecordEvent(eventType string, ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeError
		atomic.AddUint64(&m.eventsFailed, 1)
	} else {
		atomic.AddUint64(&m.eventsPublished, 1)
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		WorkflowsTotal:           atomic.LoadUint64(&m.workflowCount),
		WorkflowsCompensated:     atomic.LoadUint64(&m.compensatedCount),
		LedgerEntriesTotal:       atomic.LoadUint64(&m.ledgerEntryCount),
		EventsPublished:          atomic.LoadUint64(&m.eventsPublished),
		EventsFailed:             atomic.LoadUint64(&m.eventsFailed),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
