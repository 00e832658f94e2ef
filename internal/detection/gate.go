package detection

import (
	"fmt"
	"time"

	"github.com/nightsound/nightsound-go/internal/errors"
)

// State is the gate state.
type State int

const (
	StateIdle State = iota
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventType tells the caller what a sample did to the gate.
type EventType int

const (
	// EventNone means the state did not change.
	EventNone EventType = iota
	// EventStarted opens a new event.
	EventStarted
	// EventClosed closes an event that met the minimum duration.
	EventClosed
	// EventDiscarded closes an event that was too short to keep.
	EventDiscarded
)

func (t EventType) String() string {
	switch t {
	case EventNone:
		return "none"
	case EventStarted:
		return "started"
	case EventClosed:
		return "closed"
	case EventDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is returned by Update and Flush. Only the fields relevant to Type
// are set: StartTs and TriggerTs for EventStarted, everything for
// EventClosed and EventDiscarded.
type Event struct {
	Type      EventType
	StartTs   time.Time // trigger minus pre-roll
	TriggerTs time.Time // first sample at or above threshold
	EndTs     time.Time
	PeakRMS   float64
	AvgRMS    float64
	// Forced is set when the event was closed by MaxDuration or Flush
	// rather than by the hang time running out.
	Forced bool
}

// Duration returns EndTs - StartTs.
func (e Event) Duration() time.Duration {
	if e.EndTs.IsZero() {
		return 0
	}
	return e.EndTs.Sub(e.StartTs)
}

// Config holds the gate parameters.
type Config struct {
	Threshold   float64
	MinDuration time.Duration
	HangTime    time.Duration
	PreRoll     time.Duration
	MaxDuration time.Duration // 0 disables the limit
}

// DefaultConfig returns the stock gate settings.
func DefaultConfig() Config {
	return Config{
		Threshold:   0.05,
		MinDuration: 500 * time.Millisecond,
		HangTime:    300 * time.Millisecond,
		PreRoll:     500 * time.Millisecond,
		MaxDuration: 60 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var msg string
	switch {
	case c.Threshold <= 0 || c.Threshold > 1:
		msg = "threshold must be in (0, 1]"
	case c.HangTime <= 0:
		msg = "hang time must be positive"
	case c.MinDuration < 0 || c.PreRoll < 0 || c.MaxDuration < 0:
		msg = "durations must not be negative"
	case c.MinDuration > 0 && c.MinDuration <= c.HangTime:
		// every event lasts at least HangTime from its trigger
		msg = "min duration must exceed hang time"
	case c.MaxDuration > 0 && c.MaxDuration < c.MinDuration:
		msg = "max duration must not be shorter than min duration"
	default:
		return nil
	}
	return errors.New(ErrInvalidConfig).
		Component(ComponentDetection).
		Context("reason", msg).
		Build()
}

// Gate is the Idle/Capturing state machine. It is not safe for concurrent
// use; the capture goroutine owns it.
type Gate struct {
	cfg   Config
	state State

	// floor is the earliest time an event may start: the first sample seen
	// or the end of the previous event, so pre-roll never reaches back into
	// audio that does not exist or was already used.
	floor time.Time

	start     time.Time
	trigger   time.Time
	lastAbove time.Time
	peak      float64
	sum       float64
	count     int
}

// NewGate creates a gate in the Idle state.
func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

// Config returns the gate configuration.
func (g *Gate) Config() Config {
	return g.cfg
}

// State returns the current state.
func (g *Gate) State() State {
	return g.state
}

// Update feeds one RMS sample taken at ts. Samples must arrive in time order.
func (g *Gate) Update(ts time.Time, rms float64) Event {
	if g.floor.IsZero() {
		g.floor = ts
	}
	above := rms >= g.cfg.Threshold

	if g.state == StateIdle {
		if !above {
			return Event{Type: EventNone}
		}
		g.open(ts, rms)
		return Event{Type: EventStarted, StartTs: g.start, TriggerTs: g.trigger}
	}

	if above {
		g.lastAbove = ts
	}
	if ts.Sub(g.lastAbove) >= g.cfg.HangTime {
		return g.close(ts, false)
	}

	g.accumulate(rms)
	if g.cfg.MaxDuration > 0 && ts.Sub(g.trigger) >= g.cfg.MaxDuration {
		return g.close(ts, true)
	}
	return Event{Type: EventNone}
}

// Flush closes an open event at ts, typically when capture stops. It
// returns EventNone when the gate is idle.
func (g *Gate) Flush(ts time.Time) Event {
	if g.state != StateCapturing {
		return Event{Type: EventNone}
	}
	if ts.Before(g.lastAbove) {
		ts = g.lastAbove
	}
	return g.close(ts, true)
}

// Reset drops any open event and forgets the pre-roll floor.
func (g *Gate) Reset() {
	*g = Gate{cfg: g.cfg}
}

func (g *Gate) open(ts time.Time, rms float64) {
	g.state = StateCapturing
	g.trigger = ts
	g.lastAbove = ts
	g.start = ts.Add(-g.cfg.PreRoll)
	if g.start.Before(g.floor) {
		g.start = g.floor
	}
	g.peak = 0
	g.sum = 0
	g.count = 0
	g.accumulate(rms)
}

func (g *Gate) accumulate(rms float64) {
	if rms > g.peak {
		g.peak = rms
	}
	g.sum += rms
	g.count++
}

func (g *Gate) close(ts time.Time, forced bool) Event {
	ev := Event{
		Type:      EventClosed,
		StartTs:   g.start,
		TriggerTs: g.trigger,
		EndTs:     ts,
		PeakRMS:   g.peak,
		Forced:    forced,
	}
	if g.count > 0 {
		ev.AvgRMS = g.sum / float64(g.count)
	}
	if ts.Sub(g.trigger) < g.cfg.MinDuration {
		ev.Type = EventDiscarded
	}

	g.state = StateIdle
	g.floor = ts
	return ev
}
