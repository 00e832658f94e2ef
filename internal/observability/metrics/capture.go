package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics covers the capture path: frames, gate events and snippet
// writes. All methods are safe on a nil receiver so callers can run
// without metrics.
type CaptureMetrics struct {
	frames         *prometheus.CounterVec
	framesDropped  prometheus.Counter
	events         *prometheus.CounterVec
	writeFailures  prometheus.Counter
	snippetSeconds prometheus.Histogram
	level          prometheus.Gauge
	capturing      prometheus.Gauge

	collectors []prometheus.Collector
}

// NewCaptureMetrics creates and registers capture metrics.
func NewCaptureMetrics(registry prometheus.Registerer) (*CaptureMetrics, error) {
	m := &CaptureMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CaptureMetrics) initMetrics() {
	m.frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_total",
			Help:      "Frames handled by the capture loop, by outcome",
		},
		[]string{"outcome"},
	)
	m.framesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "frames_dropped_total",
		Help:      "Frames dropped by the source because the queue was full",
	})
	m.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "gate_events_total",
			Help:      "Detection gate transitions, by event type",
		},
		[]string{"event"},
	)
	m.writeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "snippet_write_failures_total",
		Help:      "Snippets abandoned because the blob sink failed",
	})
	m.snippetSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "snippet_duration_seconds",
		Help:      "Length of committed snippets",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})
	m.level = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "input_level_dbfs",
		Help:      "RMS level of the most recent frame in dBFS",
	})
	m.capturing = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "gate_capturing",
		Help:      "1 while the detection gate is capturing an event",
	})

	m.collectors = []prometheus.Collector{
		m.frames,
		m.framesDropped,
		m.events,
		m.writeFailures,
		m.snippetSeconds,
		m.level,
		m.capturing,
	}
}

// Describe implements the Collector interface
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordFrame counts a frame by outcome.
func (m *CaptureMetrics) RecordFrame(outcome string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(outcome).Inc()
}

// AddDropped adds newly observed source drops. The source keeps a
// monotonic total, so callers pass the delta since the last call.
func (m *CaptureMetrics) AddDropped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.framesDropped.Add(float64(n))
}

// RecordEvent counts a gate event and tracks the capturing state.
func (m *CaptureMetrics) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
	switch event {
	case EventStarted:
		m.capturing.Set(1)
	case EventClosed, EventDiscarded:
		m.capturing.Set(0)
	}
}

// RecordWriteFailure counts an abandoned snippet.
func (m *CaptureMetrics) RecordWriteFailure() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

// ObserveSnippet records the length of a committed snippet.
func (m *CaptureMetrics) ObserveSnippet(seconds float64) {
	if m == nil {
		return
	}
	m.snippetSeconds.Observe(seconds)
}

// SetLevel publishes the latest input level.
func (m *CaptureMetrics) SetLevel(dbfs float64) {
	if m == nil {
		return
	}
	m.level.Set(dbfs)
}
