package session

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/snippet"
)

// worker is the single writer of one session. Snippet saves, checkpoints
// and the final close all run on its goroutine.
type worker struct {
	c     *Coordinator
	id    uint
	start time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []*snippet.Descriptor
	sealed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	// kept is the number of rows the session holds, touched only by run
	kept     int
	closeErr error

	persisted atomic.Uint64
	failed    atomic.Uint64
	evicted   atomic.Uint64
}

func newWorker(c *Coordinator, s *datastore.Session) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		c:      c,
		id:     s.ID,
		start:  s.StartTime,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// enqueue appends to the FIFO. It reports false once the worker is sealed.
func (w *worker) enqueue(desc *snippet.Descriptor) bool {
	w.mu.Lock()
	if w.sealed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, desc)
	depth := len(w.queue)
	w.mu.Unlock()

	w.c.metrics.SetQueueDepth(depth)
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// seal rejects further snippets. Everything queued before is still saved.
func (w *worker) seal() {
	w.mu.Lock()
	w.sealed = true
	w.mu.Unlock()
}

func (w *worker) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *worker) take() []*snippet.Descriptor {
	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()
	w.c.metrics.SetQueueDepth(0)
	return batch
}

func (w *worker) run() {
	defer close(w.done)
	defer w.cancel()

	var tick <-chan time.Time
	if interval := w.c.config.CheckpointInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-w.wake:
			w.drain()
		case <-tick:
			w.checkpoint()
		case <-w.stop:
			w.drain()
			w.closeErr = w.c.store.CloseSession(w.id, w.c.now(), false)
			return
		}
	}
}

// drain persists batches until the queue is empty. Each batch is written
// in timestamp order.
func (w *worker) drain() {
	for {
		batch := w.take()
		if len(batch) == 0 {
			return
		}
		slices.SortStableFunc(batch, func(a, b *snippet.Descriptor) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		for _, desc := range batch {
			w.persist(desc)
		}
	}
}

func (w *worker) persist(desc *snippet.Descriptor) {
	log := w.c.log
	started := time.Now()
	rec := datastore.Snippet{
		SessionID:  w.id,
		FileName:   desc.FileName,
		Timestamp:  desc.Timestamp,
		EndTime:    desc.EndTime,
		DurationMs: desc.Duration().Milliseconds(),
		RMSValue:   desc.RMSValue,
		PeakRMS:    desc.PeakRMS,
		AvgRMS:     desc.AvgRMS,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.c.config.RetryInitial
	b.MaxElapsedTime = w.c.config.RetryMaxElapsed

	op := func() error {
		rec.ID = 0
		err := w.c.store.SaveSnippet(&rec)
		if err != nil && (errors.Is(err, datastore.ErrSessionClosed) || errors.Is(err, datastore.ErrNotOpen)) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn("snippet save failed, retrying",
			logger.String("file", desc.FileName),
			logger.Duration("retry_in", next),
			logger.Error(err))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, w.ctx), notify); err != nil {
		w.failed.Add(1)
		w.c.metrics.SnippetFailed()
		log.Error("dropping snippet after failed save",
			logger.Uint64("session_id", uint64(w.id)),
			logger.String("file", desc.FileName),
			logger.Error(err))
		w.c.removeBlob(desc.FileName)
		return
	}

	w.persisted.Add(1)
	w.kept++
	w.c.metrics.SnippetPersisted(time.Since(started))
	log.Debug("snippet persisted",
		logger.Uint64("session_id", uint64(w.id)),
		logger.String("file", desc.FileName),
		logger.Float64("rms", desc.RMSValue))

	w.enforceRetention()
}

// enforceRetention keeps the N loudest snippets of the session and
// deletes the rest together with their files.
func (w *worker) enforceRetention() {
	limit := w.c.config.MaxSnippets
	if limit <= 0 || w.kept <= limit {
		return
	}

	ranked, err := w.c.store.SnippetsBySessionLoudest(w.id, 0)
	if err != nil {
		w.c.log.Warn("retention query failed", logger.Error(err))
		return
	}
	w.kept = len(ranked)
	if len(ranked) <= limit {
		return
	}

	evicted := 0
	for _, s := range ranked[limit:] {
		if err := w.c.store.DeleteSnippet(s.ID); err != nil && !errors.Is(err, datastore.ErrSnippetNotFound) {
			w.c.log.Warn("failed to evict snippet",
				logger.String("file", s.FileName),
				logger.Error(err))
			continue
		}
		w.c.removeBlob(s.FileName)
		evicted++
	}
	w.kept -= evicted
	w.evicted.Add(uint64(evicted))
	w.c.metrics.SnippetsEvicted(evicted)
	w.c.log.Debug("retention applied",
		logger.Uint64("session_id", uint64(w.id)),
		logger.Int("evicted", evicted),
		logger.Int("kept", w.kept))
}

func (w *worker) checkpoint() {
	if err := w.c.store.TouchSession(w.id, w.c.now()); err != nil {
		w.c.log.Warn("session checkpoint failed",
			logger.Uint64("session_id", uint64(w.id)),
			logger.Error(err))
	}
}
