package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics covers the session lifecycle and the persistence worker.
// All methods are safe on a nil receiver.
type SessionMetrics struct {
	started          prometheus.Counter
	active           prometheus.Gauge
	orphansRecovered prometheus.Counter
	persisted        prometheus.Counter
	persistFailures  prometheus.Counter
	evicted          prometheus.Counter
	persistDuration  prometheus.Histogram
	queueDepth       prometheus.Gauge

	collectors []prometheus.Collector
}

// NewSessionMetrics creates and registers session metrics.
func NewSessionMetrics(registry prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SessionMetrics) initMetrics() {
	m.started = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sessions_started_total",
		Help:      "Sessions started",
	})
	m.active = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "session_active",
		Help:      "1 while a session is open",
	})
	m.orphansRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sessions_recovered_total",
		Help:      "Orphaned sessions closed by crash recovery",
	})
	m.persisted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "snippets_persisted_total",
		Help:      "Snippet records written to the database",
	})
	m.persistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "snippet_persist_failures_total",
		Help:      "Snippets dropped after persistence retries ran out",
	})
	m.evicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "snippets_evicted_total",
		Help:      "Snippets removed by per-session retention",
	})
	m.persistDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "snippet_persist_duration_seconds",
		Help:      "Time to persist one snippet including retries",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})
	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "persist_queue_depth",
		Help:      "Snippets waiting for the persistence worker",
	})

	m.collectors = []prometheus.Collector{
		m.started,
		m.active,
		m.orphansRecovered,
		m.persisted,
		m.persistFailures,
		m.evicted,
		m.persistDuration,
		m.queueDepth,
	}
}

// Describe implements the Collector interface
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// SessionStarted marks a session as open.
func (m *SessionMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.active.Set(1)
}

// SessionStopped marks the session as closed.
func (m *SessionMetrics) SessionStopped() {
	if m == nil {
		return
	}
	m.active.Set(0)
}

// OrphansRecovered counts sessions closed by recovery.
func (m *SessionMetrics) OrphansRecovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphansRecovered.Add(float64(n))
}

// SnippetPersisted records a successful write and how long it took.
func (m *SessionMetrics) SnippetPersisted(d time.Duration) {
	if m == nil {
		return
	}
	m.persisted.Inc()
	m.persistDuration.Observe(d.Seconds())
}

// SnippetFailed counts a snippet that could not be persisted.
func (m *SessionMetrics) SnippetFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// SnippetsEvicted counts retention evictions.
func (m *SessionMetrics) SnippetsEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(float64(n))
}

// SetQueueDepth publishes the persistence backlog.
func (m *SessionMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
