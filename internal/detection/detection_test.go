package detection

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightsound/nightsound-go/internal/errors"
)

var t0 = time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)

const cadence = 100 * time.Millisecond

func at(i int) time.Time {
	return t0.Add(time.Duration(i) * cadence)
}

// feed runs levels through g at the test cadence and returns every event
// that was not EventNone.
func feed(g *Gate, levels ...float64) []Event {
	var events []Event
	for i, rms := range levels {
		if ev := g.Update(at(i), rms); ev.Type != EventNone {
			events = append(events, ev)
		}
	}
	return events
}

func scenarioGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(Config{
		Threshold:   0.1,
		MinDuration: 500 * time.Millisecond,
		HangTime:    300 * time.Millisecond,
		PreRoll:     100 * time.Millisecond,
	})
	require.NoError(t, err)
	return g
}

func TestAnalyzerRMS(t *testing.T) {
	a, err := NewAnalyzer(4)
	require.NoError(t, err)

	rms, err := a.Analyze([]int16{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Zero(t, rms)

	rms, err = a.Analyze([]int16{-32768, -32768, -32768, -32768})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rms, 1e-12)

	// Square wave at half scale
	rms, err = a.Analyze([]int16{16384, -16384, 16384, -16384})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rms, 1e-12)
}

func TestAnalyzerRejectsWrongLength(t *testing.T) {
	a, err := NewAnalyzer(4)
	require.NoError(t, err)

	for _, samples := range [][]int16{nil, {1, 2, 3}, {1, 2, 3, 4, 5}} {
		_, err := a.Analyze(samples)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidFrame), "len %d", len(samples))
	}

	_, err = NewAnalyzer(0)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestAnalyzerDeterministicAndNonNegative(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	a, err := NewAnalyzer(256)
	require.NoError(t, err)

	for range 200 {
		frame := make([]int16, 256)
		for i := range frame {
			frame[i] = int16(r.IntN(65536) - 32768)
		}
		first, err := a.Analyze(frame)
		require.NoError(t, err)
		second, err := a.Analyze(frame)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, first, 0.0)
		assert.LessOrEqual(t, first, 1.0)
		assert.Equal(t, first, second)
	}
}

func TestRMSFloat32AndDecibels(t *testing.T) {
	assert.InDelta(t, 0.5, RMSFloat32([]float32{0.5, -0.5}), 1e-9)
	assert.Zero(t, RMSFloat32(nil))

	assert.InDelta(t, 0.0, ToDecibels(1.0), 1e-9)
	assert.InDelta(t, -20.0, ToDecibels(0.1), 1e-9)
	assert.Equal(t, MinDB, ToDecibels(0))
	assert.Equal(t, MinDB, ToDecibels(1e-9))
}

func TestGateSingleEvent(t *testing.T) {
	g := scenarioGate(t)

	events := feed(g, 0.05, 0.05, 0.2, 0.3, 0.25, 0.05, 0.05, 0.05, 0.05, 0.05)

	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, at(2), events[0].TriggerTs)
	assert.Equal(t, at(1), events[0].StartTs)

	closed := events[1]
	assert.Equal(t, EventClosed, closed.Type)
	assert.False(t, closed.Forced)
	// Last loud sample at 400ms plus 300ms hang time
	assert.Equal(t, at(7), closed.EndTs)
	assert.GreaterOrEqual(t, closed.Duration(), 500*time.Millisecond)
	assert.InDelta(t, 0.3, closed.PeakRMS, 1e-9)
	assert.InDelta(t, (0.2+0.3+0.25+0.05+0.05)/5, closed.AvgRMS, 1e-9)
	assert.Equal(t, StateIdle, g.State())
}

func TestGateMergesIsolatedPeaks(t *testing.T) {
	g := scenarioGate(t)

	// Trailing quiet samples let the hang time expire
	events := feed(g, 0.05, 0.2, 0.05, 0.2, 0.05, 0.05, 0.05)

	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventClosed, events[1].Type)
	assert.Equal(t, at(1), events[1].TriggerTs)
	assert.Equal(t, at(6), events[1].EndTs)
}

func TestGateDiscardsShortEvent(t *testing.T) {
	g := scenarioGate(t)

	events := feed(g, 0.5, 0.05, 0.05, 0.05)

	require.Len(t, events, 2)
	assert.Equal(t, EventDiscarded, events[1].Type)
	assert.Equal(t, at(3), events[1].EndTs)
	assert.Equal(t, StateIdle, g.State())
}

func TestGateThresholdInclusive(t *testing.T) {
	g := scenarioGate(t)
	ev := g.Update(t0, 0.1)
	assert.Equal(t, EventStarted, ev.Type)
}

func TestGatePreRollFloor(t *testing.T) {
	g, err := NewGate(Config{Threshold: 0.1, HangTime: 200 * time.Millisecond, PreRoll: time.Second})
	require.NoError(t, err)

	// Pre-roll cannot reach before the first sample
	events := feed(g, 0.05, 0.5, 0.05, 0.05, 0.05, 0.05, 0.5)
	require.Len(t, events, 3)
	assert.Equal(t, at(0), events[0].StartTs)

	// Nor into the previous event
	assert.Equal(t, EventClosed, events[1].Type)
	assert.Equal(t, at(3), events[1].EndTs)
	assert.Equal(t, EventStarted, events[2].Type)
	assert.Equal(t, at(3), events[2].StartTs)
}

func TestGateMaxDurationForcesClose(t *testing.T) {
	g, err := NewGate(Config{
		Threshold:   0.1,
		MinDuration: 400 * time.Millisecond,
		HangTime:    300 * time.Millisecond,
		MaxDuration: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	levels := make([]float64, 12)
	for i := range levels {
		levels[i] = 0.9
	}
	events := feed(g, levels...)

	require.Len(t, events, 4)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventClosed, events[1].Type)
	assert.True(t, events[1].Forced)
	assert.Equal(t, at(5), events[1].EndTs)

	// Continuous noise starts a new event on the next sample
	assert.Equal(t, EventStarted, events[2].Type)
	assert.Equal(t, at(6), events[2].TriggerTs)
	assert.Equal(t, EventClosed, events[3].Type)
}

func TestGateFlush(t *testing.T) {
	g := scenarioGate(t)
	assert.Equal(t, EventNone, g.Flush(t0).Type)

	feed(g, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5)
	ev := g.Flush(at(6))
	assert.Equal(t, EventClosed, ev.Type)
	assert.True(t, ev.Forced)
	assert.Equal(t, at(6), ev.EndTs)
	assert.Equal(t, StateIdle, g.State())

	// A short event flushed on stop is discarded
	g.Reset()
	feed(g, 0.5)
	assert.Equal(t, EventDiscarded, g.Flush(at(1)).Type)
}

func TestGateConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero threshold", Config{HangTime: time.Second}},
		{"threshold above one", Config{Threshold: 1.5, HangTime: time.Second}},
		{"zero hang time", Config{Threshold: 0.1}},
		{"negative pre-roll", Config{Threshold: 0.1, HangTime: time.Second, PreRoll: -time.Second}},
		{"min not above hang", Config{Threshold: 0.1, HangTime: time.Second, MinDuration: time.Second}},
		{"max below min", Config{Threshold: 0.1, HangTime: time.Second, MinDuration: 2 * time.Second, MaxDuration: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGate(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}

	_, err := NewGate(DefaultConfig())
	assert.NoError(t, err)

	_, err = NewGate(Config{Threshold: 0.1, HangTime: time.Second})
	assert.NoError(t, err, "zero min duration keeps every event")
}

func TestDefaultConfigDiscardsClick(t *testing.T) {
	g, err := NewGate(DefaultConfig())
	require.NoError(t, err)

	levels := make([]float64, 21)
	levels[0] = 0.5
	events := feed(g, levels...)

	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventDiscarded, events[1].Type, "one loud frame is a click")

	// A sustained sound still passes
	g.Reset()
	events = feed(g, 0.5, 0.5, 0.5, 0.5, 0, 0, 0, 0, 0)
	require.Len(t, events, 2)
	assert.Equal(t, EventClosed, events[1].Type)
}

func TestGateNeverClosesShortEvents(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	cfg := Config{
		Threshold:   0.1,
		MinDuration: 500 * time.Millisecond,
		HangTime:    300 * time.Millisecond,
		PreRoll:     200 * time.Millisecond,
		MaxDuration: 3 * time.Second,
	}

	for range 500 {
		g, err := NewGate(cfg)
		require.NoError(t, err)

		levels := make([]float64, 10+r.IntN(80))
		for i := range levels {
			levels[i] = r.Float64() * 0.3
		}
		events := feed(g, levels...)
		if ev := g.Flush(at(len(levels))); ev.Type != EventNone {
			events = append(events, ev)
		}

		for _, ev := range events {
			if ev.Type == EventClosed {
				assert.GreaterOrEqual(t, ev.EndTs.Sub(ev.TriggerTs), cfg.MinDuration)
			}
			if ev.Type == EventDiscarded {
				assert.Less(t, ev.EndTs.Sub(ev.TriggerTs), cfg.MinDuration)
			}
		}
	}
}

func TestGateDoesNotSplitOnBriefDip(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 9))
	g := scenarioGate(t)

	for range 300 {
		g.Reset()

		var levels []float64
		loud := func(n int) {
			for range n {
				levels = append(levels, 0.1+r.Float64()*0.5)
			}
		}
		loud(1 + r.IntN(10))
		// Two samples at 100ms cadence stay under the 300ms hang time
		dip := 1 + r.IntN(2)
		for range dip {
			levels = append(levels, r.Float64()*0.099)
		}
		loud(1 + r.IntN(10))

		events := feed(g, levels...)
		require.Len(t, events, 1)
		assert.Equal(t, EventStarted, events[0].Type)
		assert.Equal(t, StateCapturing, g.State())
	}
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "closed", EventClosed.String())
	assert.Equal(t, "capturing", StateCapturing.String())
	assert.Equal(t, "event(9)", EventType(9).String())
	assert.False(t, math.IsNaN(ToDecibels(0.5)))
}
