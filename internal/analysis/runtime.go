// Package analysis wires the capture engine together for the command line:
// live recording, offline replay and the playback server.
package analysis

import (
	"context"

	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/library"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/observability"
	"github.com/nightsound/nightsound-go/internal/session"
	"github.com/nightsound/nightsound-go/internal/snippet"
)

// ComponentAnalysis tags errors raised while wiring the engine.
const ComponentAnalysis = "analysis"

// GetLogger returns the analysis logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// Runtime holds the long-lived components shared by every command that
// touches the snippet library.
type Runtime struct {
	Settings    *conf.Settings
	Store       datastore.Interface
	Sink        *snippet.FileSink
	Metrics     *observability.Metrics
	Coordinator *session.Coordinator
	Library     *library.Library
}

// NewRuntime opens the datastore and the snippet directory. Close releases
// them.
func NewRuntime(settings *conf.Settings) (*Runtime, error) {
	dir, err := conf.GetBasePath(settings.Snippets.Path)
	if err != nil {
		return nil, err
	}
	sink, err := snippet.NewFileSink(dir, settings.Capture.SampleRate)
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentAnalysis).
			Category(errors.CategorySystem).
			Context("operation", "init_metrics").
			Build()
	}

	store, err := datastore.New(settings)
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	coord := session.NewCoordinator(store, sink, session.Config{
		CheckpointInterval: settings.Session.CheckpointInterval,
		MaxSnippets:        settings.Snippets.Retention.MaxSnippets,
	}, session.WithMetrics(metrics.Session))

	return &Runtime{
		Settings:    settings,
		Store:       store,
		Sink:        sink,
		Metrics:     metrics,
		Coordinator: coord,
		Library:     library.New(store, sink),
	}, nil
}

// Close closes the datastore.
func (r *Runtime) Close() {
	if err := r.Store.Close(); err != nil {
		GetLogger().Error("failed to close datastore", logger.Error(err))
	}
}

// LockRecording takes the snippet directory's recording lock. The returned
// func releases it.
func (r *Runtime) LockRecording() (func(), error) {
	lock, err := r.Sink.LockRecording()
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(); err != nil {
			GetLogger().Warn("failed to release recording lock", logger.Error(err))
		}
	}, nil
}

// RecoverSessions closes sessions left open by a crashed recorder. It
// refuses while another process records into the same snippet directory,
// since that process's open session is live, not orphaned.
func (r *Runtime) RecoverSessions(ctx context.Context) (*datastore.Session, error) {
	unlock, err := r.LockRecording()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.Coordinator.Recover(ctx)
}
