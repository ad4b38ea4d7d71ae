// Package metrics provides Prometheus metrics collection for the data
// plane, grounded on infrastructure/metrics/metrics.go's CounterVec/
// HistogramVec/GaugeVec-registered-against-a-Registerer pattern.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the data plane exposes.
type Metrics struct {
	EventsIngestedTotal  *prometheus.CounterVec
	EventsProcessedTotal *prometheus.CounterVec
	EventsFailedTotal    *prometheus.CounterVec
	EventsDroppedTotal   *prometheus.CounterVec
	ProcessingLatencyUs  *prometheus.HistogramVec
	QueueDepth           *prometheus.GaugeVec

	StreamMatchesTotal    *prometheus.CounterVec
	StreamAcksTotal       *prometheus.CounterVec
	StreamEvalErrorsTotal *prometheus.CounterVec
	StreamLagMs           *prometheus.GaugeVec

	RulesRunTotal     *prometheus.CounterVec
	AlertsEmittedTotal *prometheus.CounterVec
	CompileTotal      *prometheus.CounterVec

	registerer prometheus.Registerer
	lastSeen   sync.Map // map[string]time.Time, key = gauge vec name + label values
}

// NewWithRegistry creates a Metrics instance and registers every collector
// against registerer. A nil registerer skips registration; New registers
// against prometheus.DefaultRegisterer.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsIngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_ingested_total",
			Help: "Total number of raw records accepted by the sink.",
		}, []string{"tenant", "source_type"}),
		EventsProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Total number of events parsed and normalized successfully.",
		}, []string{"tenant", "source_type"}),
		EventsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_failed_total",
			Help: "Total number of records that failed parsing irrecoverably.",
		}, []string{"tenant", "source_type", "reason"}),
		EventsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of records dropped by the sink (retries exhausted, or shed under backpressure).",
		}, []string{"tenant", "reason"}),
		ProcessingLatencyUs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "processing_latency_us",
			Help:    "End-to-end parse+normalize+sink latency in microseconds.",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
		}, []string{"tenant"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current depth of the sink's internal worker queue.",
		}, []string{"tenant"}),

		StreamMatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_matches_total",
			Help: "Total number of streaming rule matches.",
		}, []string{"rule", "tenant"}),
		StreamAcksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_acks_total",
			Help: "Total number of stream entries acknowledged.",
		}, []string{"tenant"}),
		StreamEvalErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_eval_errors_total",
			Help: "Total number of errors evaluating a streaming rule against an entry.",
		}, []string{"rule", "tenant"}),
		StreamLagMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stream_lag_ms",
			Help: "Wall-clock delta between now and the stream's last-generated-id timestamp.",
		}, []string{"tenant"}),

		RulesRunTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rules_run_total",
			Help: "Total number of rule evaluation runs.",
		}, []string{"rule", "tenant", "status", "reason"}),
		AlertsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_emitted_total",
			Help: "Total number of alerts inserted (idempotent re-emissions that insert no row are not counted).",
		}, []string{"rule", "tenant"}),
		CompileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compile_total",
			Help: "Total number of DSL/Sigma compile attempts.",
		}, []string{"kind", "result"}),

		registerer: registerer,
	}

	if registerer != nil {
		registerer.MustRegister(
			m.EventsIngestedTotal, m.EventsProcessedTotal, m.EventsFailedTotal, m.EventsDroppedTotal,
			m.ProcessingLatencyUs, m.QueueDepth,
			m.StreamMatchesTotal, m.StreamAcksTotal, m.StreamEvalErrorsTotal, m.StreamLagMs,
			m.RulesRunTotal, m.AlertsEmittedTotal, m.CompileTotal,
		)
	}

	return m
}

// New creates a Metrics instance registered against the default registerer.
func New() *Metrics { return NewWithRegistry(prometheus.DefaultRegisterer) }

// SetQueueDepth records a per-tenant queue depth gauge and marks it seen for
// the reaper.
func (m *Metrics) SetQueueDepth(tenant string, depth int) {
	m.QueueDepth.WithLabelValues(tenant).Set(float64(depth))
	m.touch("queue_depth", tenant)
}

// SetStreamLag records a per-tenant stream lag gauge and marks it seen.
func (m *Metrics) SetStreamLag(tenant string, lagMs float64) {
	m.StreamLagMs.WithLabelValues(tenant).Set(lagMs)
	m.touch("stream_lag_ms", tenant)
}

func (m *Metrics) touch(metric, tenant string) {
	m.lastSeen.Store(metric+"|"+tenant, time.Now())
}

// ReapInactive drops gauge label combinations that have not been touched in
// over maxAge, so long-departed tenants don't accumulate dead series
// (spec.md's per-tenant gauge reaping requirement; built fresh in the
// teacher's ticker-loop idiom since the teacher has no analogous reaper).
func (m *Metrics) ReapInactive(maxAge time.Duration) {
	now := time.Now()
	m.lastSeen.Range(func(key, value interface{}) bool {
		k := key.(string)
		lastSeen := value.(time.Time)
		if now.Sub(lastSeen) <= maxAge {
			return true
		}
		metric, tenant, ok := splitReapKey(k)
		if !ok {
			return true
		}
		switch metric {
		case "queue_depth":
			m.QueueDepth.DeleteLabelValues(tenant)
		case "stream_lag_ms":
			m.StreamLagMs.DeleteLabelValues(tenant)
		}
		m.lastSeen.Delete(key)
		return true
	})
}

func splitReapKey(key string) (metric, tenant string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

// RunReaper starts a ticker loop that calls ReapInactive every interval
// until stop is closed.
func (m *Metrics) RunReaper(stop <-chan struct{}, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.ReapInactive(maxAge)
		}
	}
}

// Handler returns a chi router exposing Prometheus's /metrics endpoint, the
// one HTTP surface this package owns.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}
