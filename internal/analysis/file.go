package analysis

import (
	"context"
	"os"
	"path/filepath"

	"github.com/nightsound/nightsound-go/internal/audiocore/sources"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/recorder"
)

// ReplayResult summarizes an offline replay.
type ReplayResult struct {
	Session  *datastore.Session
	Snippets []datastore.Snippet
	Status   recorder.Status
}

// FileAnalysis replays a WAV recording through the detection pipeline as
// one session. Start delay and auto-stop do not apply.
func FileAnalysis(ctx context.Context, settings *conf.Settings, path string) (*ReplayResult, error) {
	if err := validateAudioFile(path); err != nil {
		return nil, err
	}

	rt, err := NewRuntime(settings)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	lock, err := rt.LockRecording()
	if err != nil {
		return nil, err
	}
	defer lock()

	capture := settings.Capture
	capture.Source = "file"
	capture.Input = path
	source, err := sources.CreateSource(&capture)
	if err != nil {
		return nil, err
	}

	cfg := recorder.ConfigFromSettings(settings)
	cfg.StartDelay = 0
	cfg.AutoStop = ""
	rec, err := recorder.New(source, rt.Coordinator, rt.Sink, cfg,
		recorder.WithMetrics(rt.Metrics.Capture))
	if err != nil {
		return nil, err
	}

	GetLogger().Info("replaying file", logger.String("path", path))
	if err := rec.Run(ctx); err != nil {
		return nil, err
	}

	latest, err := rt.Store.ListSessions(1, 0)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, errors.Newf("replay produced no session").
			Component(ComponentAnalysis).
			Category(errors.CategoryState).
			Context("path", path).
			Build()
	}
	snippets, err := rt.Store.SnippetsBySession(latest[0].ID)
	if err != nil {
		return nil, err
	}
	return &ReplayResult{Session: &latest[0], Snippets: snippets, Status: rec.Status()}, nil
}

// validateAudioFile checks that path names a non-empty regular file.
func validateAudioFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.New(err).
			Component(ComponentAnalysis).
			Category(errors.CategoryFileIO).
			Context("file", filepath.Base(path)).
			Build()
	}
	if info.IsDir() || info.Size() == 0 {
		return errors.Newf("%s is not a non-empty audio file", filepath.Base(path)).
			Component(ComponentAnalysis).
			Category(errors.CategoryValidation).
			Context("file", filepath.Base(path)).
			Build()
	}
	return nil
}
