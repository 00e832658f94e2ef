// Package session owns the capture session lifecycle and the single writer
// that persists snippet records.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/observability/metrics"
	"github.com/nightsound/nightsound-go/internal/snippet"
)

const (
	defaultRetryInitial    = 100 * time.Millisecond
	defaultRetryMaxElapsed = 30 * time.Second
)

// Config tunes the coordinator.
type Config struct {
	// CheckpointInterval is the liveness checkpoint period; 0 disables it.
	CheckpointInterval time.Duration
	// MaxSnippets keeps only the N loudest snippets per session; 0 keeps
	// everything.
	MaxSnippets int
	// RetryInitial and RetryMaxElapsed bound the persistence retries.
	RetryInitial    time.Duration
	RetryMaxElapsed time.Duration
}

// Status is a snapshot of the coordinator.
type Status struct {
	Active    bool      `json:"active"`
	SessionID uint      `json:"sessionId,omitempty"`
	StartTime time.Time `json:"startTime,omitzero"`
	Pending   int       `json:"pending"`
	Persisted uint64    `json:"persisted"`
	Failed    uint64    `json:"failed"`
	Evicted   uint64    `json:"evicted"`
}

// Coordinator starts and stops sessions and serializes every write that
// belongs to the open session through one worker goroutine.
type Coordinator struct {
	store   datastore.Interface
	sink    snippet.BlobSink
	config  Config
	metrics *metrics.SessionMetrics
	now     func() time.Time
	log     logger.Logger

	// lifecycle serializes StartSession, StopSession and Recover
	lifecycle sync.Mutex

	mu     sync.Mutex
	active *worker
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics publishes session metrics.
func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator. sink is used to remove blobs that
// are evicted or cannot be persisted and may be nil.
func NewCoordinator(store datastore.Interface, sink snippet.BlobSink, config Config, opts ...Option) *Coordinator {
	if config.RetryInitial <= 0 {
		config.RetryInitial = defaultRetryInitial
	}
	if config.RetryMaxElapsed <= 0 {
		config.RetryMaxElapsed = defaultRetryMaxElapsed
	}
	c := &Coordinator{
		store:  store,
		sink:   sink,
		config: config,
		now:    time.Now,
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) current() *worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// StartSession recovers any orphaned session and opens a new one.
func (c *Coordinator) StartSession(ctx context.Context) (uint, error) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if w := c.current(); w != nil {
		return 0, errors.New(ErrAlreadyActive).
			Component(ComponentSession).
			Context("session_id", w.id).
			Build()
	}

	if _, err := c.recover(ctx); err != nil && !errors.Is(err, ErrOrphanedSessionRecovered) {
		return 0, err
	}

	s, err := c.store.CreateSession(c.now())
	if err != nil {
		return 0, err
	}

	w := newWorker(c, s)
	c.mu.Lock()
	c.active = w
	c.mu.Unlock()
	go w.run()

	c.metrics.SessionStarted()
	c.log.Info("session started",
		logger.Uint64("session_id", uint64(s.ID)),
		logger.Time("start", s.StartTime))
	return s.ID, nil
}

// RecordSnippet queues a committed snippet for persistence. It never
// blocks on the database.
func (c *Coordinator) RecordSnippet(desc *snippet.Descriptor) error {
	w := c.current()
	if w == nil || !w.enqueue(desc) {
		return ErrNoActiveSession
	}
	return nil
}

// StopSession waits for queued snippets to be persisted and closes the
// session. If ctx ends first, outstanding retries are abandoned and the
// session is still closed.
func (c *Coordinator) StopSession(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	w := c.active
	c.active = nil
	c.mu.Unlock()
	if w == nil {
		return ErrNotActive
	}

	w.seal()
	close(w.stop)

	var ctxErr error
	select {
	case <-w.done:
	case <-ctx.Done():
		ctxErr = ctx.Err()
		w.cancel()
		<-w.done
	}
	c.metrics.SessionStopped()

	if w.closeErr != nil {
		c.log.Error("failed to close session",
			logger.Uint64("session_id", uint64(w.id)),
			logger.Error(w.closeErr))
		return w.closeErr
	}
	c.log.Info("session stopped",
		logger.Uint64("session_id", uint64(w.id)),
		logger.Uint64("snippets_persisted", w.persisted.Load()),
		logger.Uint64("snippets_failed", w.failed.Load()))
	return ctxErr
}

// Recover closes every session left open by a previous run. When it closes
// any, it returns the latest one together with an error wrapping
// ErrOrphanedSessionRecovered.
func (c *Coordinator) Recover(ctx context.Context) (*datastore.Session, error) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.recover(ctx)
}

func (c *Coordinator) recover(ctx context.Context) (*datastore.Session, error) {
	open, err := c.store.OpenSessions()
	if err != nil {
		return nil, err
	}

	var skip uint
	if w := c.current(); w != nil {
		skip = w.id
	}

	var last *datastore.Session
	recovered := 0
	for i := range open {
		s := &open[i]
		if s.ID == skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return last, err
		}

		end := c.inferEnd(s)
		if err := c.store.CloseSession(s.ID, end, true); err != nil {
			if errors.Is(err, datastore.ErrSessionClosed) {
				continue
			}
			return last, err
		}
		s.EndTime = &end
		s.Recovered = true
		last = s
		recovered++

		c.log.Info("recovered orphaned session",
			logger.Uint64("session_id", uint64(s.ID)),
			logger.Time("start", s.StartTime),
			logger.Time("inferred_end", end),
			logger.Int("snippets", s.SnippetCount))
	}
	if recovered == 0 {
		return nil, nil
	}

	c.metrics.OrphansRecovered(recovered)
	return last, errors.New(ErrOrphanedSessionRecovered).
		Component(ComponentSession).
		Category(errors.CategorySession).
		Context("session_id", last.ID).
		Context("count", recovered).
		Build()
}

// inferEnd picks the latest of the last snippet's end and the last
// checkpoint, falling back to now.
func (c *Coordinator) inferEnd(s *datastore.Session) time.Time {
	var end time.Time
	if last, err := c.store.LastSnippet(s.ID); err == nil && last != nil {
		end = last.EndTime
	}
	if s.LastCheckpoint != nil && s.LastCheckpoint.After(end) {
		end = *s.LastCheckpoint
	}
	if end.IsZero() {
		end = c.now()
	}
	if end.Before(s.StartTime) {
		end = s.StartTime
	}
	return end
}

// ActiveSessionID returns the id of the open session.
func (c *Coordinator) ActiveSessionID() (uint, bool) {
	if w := c.current(); w != nil {
		return w.id, true
	}
	return 0, false
}

// Status returns a snapshot of the open session's worker.
func (c *Coordinator) Status() Status {
	w := c.current()
	if w == nil {
		return Status{}
	}
	return Status{
		Active:    true,
		SessionID: w.id,
		StartTime: w.start,
		Pending:   w.pending(),
		Persisted: w.persisted.Load(),
		Failed:    w.failed.Load(),
		Evicted:   w.evicted.Load(),
	}
}

func (c *Coordinator) removeBlob(name string) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Remove(name); err != nil {
		c.log.Warn("failed to remove snippet file",
			logger.String("file", name),
			logger.Error(err))
	}
}
