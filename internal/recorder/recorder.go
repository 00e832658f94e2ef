// Package recorder runs one capture session end to end: it starts the
// source, feeds frames through the analyzer, the detection gate and the
// snippet writer on a single goroutine, and hands committed snippets to the
// session coordinator.
package recorder

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/detection"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/observability/metrics"
	"github.com/nightsound/nightsound-go/internal/session"
	"github.com/nightsound/nightsound-go/internal/snippet"
)

// DefaultStopTimeout bounds how long Run waits for queued snippets to be
// persisted when the session stops.
const DefaultStopTimeout = 30 * time.Second

// State is the recorder lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config is the part of the settings a recorder reads when a session
// starts.
type Config struct {
	Detection   detection.Config
	FrameSize   int
	PreRoll     time.Duration
	RMSValue    snippet.RMSMode
	StartDelay  time.Duration
	AutoStop    string // "HH:MM", empty disables
	StopTimeout time.Duration
}

// ConfigFromSettings extracts the recorder config from settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	d := settings.Detection
	return Config{
		Detection: detection.Config{
			Threshold:   d.Threshold,
			MinDuration: d.MinDuration,
			HangTime:    d.HangTime,
			PreRoll:     d.PreRoll,
			MaxDuration: d.MaxDuration,
		},
		FrameSize:   settings.Capture.FrameSize(),
		PreRoll:     d.PreRoll,
		RMSValue:    snippet.RMSMode(d.RMSValue),
		StartDelay:  settings.Session.StartDelay,
		AutoStop:    settings.Session.AutoStop,
		StopTimeout: DefaultStopTimeout,
	}
}

// Status is a snapshot of a running recorder.
type Status struct {
	State            string         `json:"state"`
	Source           string         `json:"source,omitempty"`
	FramesProcessed  uint64         `json:"framesProcessed"`
	FramesDropped    uint64         `json:"framesDropped"`
	FramesInvalid    uint64         `json:"framesInvalid"`
	WriteFailures    uint64         `json:"writeFailures"`
	SnippetsRecorded uint64         `json:"snippetsRecorded"`
	LevelDBFS        float64        `json:"levelDbfs"`
	Capturing        bool           `json:"capturing"`
	AutoStopAt       time.Time      `json:"autoStopAt,omitzero"`
	Session          session.Status `json:"session"`
}

// Recorder owns one source and drives sessions on it.
type Recorder struct {
	source  audiocore.Source
	coord   *session.Coordinator
	sink    snippet.BlobSink
	config  Config
	metrics *metrics.CaptureMetrics
	now     func() time.Time
	log     logger.Logger

	running atomic.Bool
	state   atomic.Int32

	processed     atomic.Uint64
	invalid       atomic.Uint64
	writeFailures atomic.Uint64
	snippets      atomic.Uint64
	levelBits     atomic.Uint64
	capturing     atomic.Bool

	mu         sync.Mutex
	autoStopAt time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMetrics publishes capture metrics.
func WithMetrics(m *metrics.CaptureMetrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock replaces time.Now for scheduling.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates a recorder. The gate config is validated here so a bad
// config fails before any session is opened.
func New(source audiocore.Source, coord *session.Coordinator, sink snippet.BlobSink, config Config, opts ...Option) (*Recorder, error) {
	if source == nil || coord == nil || sink == nil {
		return nil, errors.Newf("recorder needs a source, a coordinator and a sink").
			Component(ComponentRecorder).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := config.Detection.Validate(); err != nil {
		return nil, err
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}

	r := &Recorder{
		source: source,
		coord:  coord,
		sink:   sink,
		config: config,
		now:    time.Now,
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.levelBits.Store(math.Float64bits(detection.MinDB))
	return r, nil
}

// Run waits for the configured start delay, records one session and
// returns when ctx is cancelled, the auto-stop time is reached or the
// source runs out of input. The session is always closed before Run
// returns, after every captured frame has been processed.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer r.running.Store(false)
	defer r.setState(StateIdle)

	if !r.waitStartDelay(ctx) {
		return nil
	}

	p, err := newPipeline(r)
	if err != nil {
		return err
	}

	id, err := r.coord.StartSession(ctx)
	if err != nil {
		return err
	}

	// The source must outlive ctx so the stop sequence below stays ordered.
	if err := r.source.Start(context.WithoutCancel(ctx)); err != nil {
		if stopErr := r.stopSession(); stopErr != nil {
			r.log.Error("failed to close session after source error", logger.Error(stopErr))
		}
		return errors.New(err).
			Component(ComponentRecorder).
			Category(errors.CategoryAudioSource).
			Context("source", r.source.Name()).
			Build()
	}
	r.setState(StateRecording)
	r.log.Info("recording",
		logger.Uint64("session_id", uint64(id)),
		logger.String("source", r.source.Name()),
		logger.Int("sample_rate", r.source.Format().SampleRate))

	deadline, stopTimer := r.scheduleAutoStop()
	defer stopTimer()

	captureDone := make(chan struct{})
	stopped := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		defer close(captureDone)
		p.run(r.source.Frames(), stopped)
		return nil
	})
	g.Go(func() error {
		r.watchSourceErrors(captureDone)
		return nil
	})
	g.Go(func() error {
		defer close(stopped)
		var reason string
		select {
		case <-ctx.Done():
			reason = "shutdown"
		case <-deadline:
			reason = "auto-stop"
		case <-captureDone:
			reason = "end of input"
		}
		r.setState(StateStopping)
		r.log.Info("stopping capture", logger.String("reason", reason))
		if err := r.source.Stop(); err != nil && !errors.Is(err, audiocore.ErrSourceNotRunning) {
			return errors.New(err).
				Component(ComponentRecorder).
				Category(errors.CategoryAudioSource).
				Context("operation", "stop_source").
				Build()
		}
		return nil
	})

	runErr := g.Wait()
	stopErr := r.stopSession()
	if runErr != nil {
		return runErr
	}
	return stopErr
}

// waitStartDelay reports false when ctx ended before the delay elapsed.
func (r *Recorder) waitStartDelay(ctx context.Context) bool {
	delay := r.config.StartDelay
	if delay <= 0 {
		return ctx.Err() == nil
	}

	r.setState(StateWaiting)
	r.log.Info("delaying session start", logger.Duration("delay", delay))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		r.log.Info("cancelled before session start")
		return false
	}
}

func (r *Recorder) scheduleAutoStop() (<-chan time.Time, func()) {
	if r.config.AutoStop == "" {
		return nil, func() {}
	}
	at, err := conf.NextClockTime(r.now(), r.config.AutoStop)
	if err != nil {
		r.log.Warn("ignoring invalid auto-stop time",
			logger.String("autostop", r.config.AutoStop),
			logger.Error(err))
		return nil, func() {}
	}

	r.mu.Lock()
	r.autoStopAt = at
	r.mu.Unlock()
	r.log.Info("auto-stop scheduled", logger.Time("at", at))

	timer := time.NewTimer(at.Sub(r.now()))
	return timer.C, func() {
		timer.Stop()
		r.mu.Lock()
		r.autoStopAt = time.Time{}
		r.mu.Unlock()
	}
}

func (r *Recorder) watchSourceErrors(done <-chan struct{}) {
	for {
		select {
		case err := <-r.source.Errors():
			if err != nil {
				r.log.Warn("source error",
					logger.String("source", r.source.Name()),
					logger.Error(err))
			}
		case <-done:
			return
		}
	}
}

func (r *Recorder) stopSession() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.StopTimeout)
	defer cancel()
	if err := r.coord.StopSession(ctx); err != nil {
		r.log.Error("session did not stop cleanly", logger.Error(err))
		return err
	}
	return nil
}

// recordSnippet hands a committed snippet to the coordinator. A snippet
// that cannot be recorded has its blob removed.
func (r *Recorder) recordSnippet(desc *snippet.Descriptor) {
	if err := r.coord.RecordSnippet(desc); err != nil {
		r.log.Error("snippet not recorded",
			logger.String("file", desc.FileName),
			logger.Error(err))
		if rmErr := r.sink.Remove(desc.FileName); rmErr != nil {
			r.log.Warn("failed to remove unrecorded snippet",
				logger.String("file", desc.FileName),
				logger.Error(rmErr))
		}
		return
	}
	r.snippets.Add(1)
	r.metrics.ObserveSnippet(desc.Duration().Seconds())
	r.log.Info("snippet recorded",
		logger.String("file", desc.FileName),
		logger.Time("start", desc.Timestamp),
		logger.Duration("duration", desc.Duration()),
		logger.Float64("rms", desc.RMSValue),
		logger.Float64("db", detection.ToDecibels(desc.RMSValue)))
}

func (r *Recorder) setState(s State) {
	r.state.Store(int32(s))
}

// State returns the lifecycle state.
func (r *Recorder) State() State {
	return State(r.state.Load())
}

// Status returns a snapshot of the recorder and its session.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	autoStopAt := r.autoStopAt
	r.mu.Unlock()

	return Status{
		State:            r.State().String(),
		Source:           r.source.Name(),
		FramesProcessed:  r.processed.Load(),
		FramesDropped:    r.source.Dropped(),
		FramesInvalid:    r.invalid.Load(),
		WriteFailures:    r.writeFailures.Load(),
		SnippetsRecorded: r.snippets.Load(),
		LevelDBFS:        math.Float64frombits(r.levelBits.Load()),
		Capturing:        r.capturing.Load(),
		AutoStopAt:       autoStopAt,
		Session:          r.coord.Status(),
	}
}
