package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewCaptureMetrics(registry)
	require.NoError(t, err)

	m.RecordFrame(FrameProcessed)
	m.RecordFrame(FrameProcessed)
	m.RecordFrame(FrameInvalid)
	m.AddDropped(3)
	m.AddDropped(0)
	m.RecordEvent(EventStarted)
	m.RecordWriteFailure()
	m.ObserveSnippet(1.5)
	m.SetLevel(-42)

	assert.InDelta(t, 2, testutil.ToFloat64(m.frames.WithLabelValues(FrameProcessed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.frames.WithLabelValues(FrameInvalid)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.framesDropped), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.capturing), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.writeFailures), 0)
	assert.InDelta(t, -42, testutil.ToFloat64(m.level), 0)

	m.RecordEvent(EventClosed)
	assert.InDelta(t, 0, testutil.ToFloat64(m.capturing), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.snippetSeconds))

	// Registering twice fails
	_, err = NewCaptureMetrics(registry)
	assert.Error(t, err)
}

func TestSessionMetrics(t *testing.T) {
	m, err := NewSessionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SessionStarted()
	m.SnippetPersisted(20 * time.Millisecond)
	m.SnippetFailed()
	m.SnippetsEvicted(2)
	m.OrphansRecovered(1)
	m.SetQueueDepth(4)

	assert.InDelta(t, 1, testutil.ToFloat64(m.active), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.persisted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.persistFailures), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.evicted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.orphansRecovered), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.queueDepth), 0)

	m.SessionStopped()
	assert.InDelta(t, 0, testutil.ToFloat64(m.active), 0)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var c *CaptureMetrics
	var s *SessionMetrics
	assert.NotPanics(t, func() {
		c.RecordFrame(FrameProcessed)
		c.AddDropped(1)
		c.RecordEvent(EventStarted)
		c.RecordWriteFailure()
		c.ObserveSnippet(1)
		c.SetLevel(0)
		s.SessionStarted()
		s.SessionStopped()
		s.SnippetPersisted(time.Second)
		s.SnippetFailed()
		s.SnippetsEvicted(1)
		s.OrphansRecovered(1)
		s.SetQueueDepth(1)
	})
}
