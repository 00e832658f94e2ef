package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nightsound/nightsound-go/internal/api"
	"github.com/nightsound/nightsound-go/internal/audiocore/sources"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/detection"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/observability"
	"github.com/nightsound/nightsound-go/internal/recorder"
)

// RealtimeAnalysis records one session from the configured source until
// ctx is cancelled, the auto-stop time is reached or the source ends. The
// telemetry endpoint and the playback server run alongside when enabled
// and stop with the recorder.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings) error {
	log := GetLogger()

	rt, err := NewRuntime(settings)
	if err != nil {
		return err
	}
	defer rt.Close()

	lock, err := rt.LockRecording()
	if err != nil {
		return err
	}
	defer lock()

	source, err := sources.CreateSource(&settings.Capture)
	if err != nil {
		return err
	}

	rec, err := recorder.New(source, rt.Coordinator, rt.Sink,
		recorder.ConfigFromSettings(settings),
		recorder.WithMetrics(rt.Metrics.Capture))
	if err != nil {
		return err
	}

	log.Info("starting realtime capture",
		logger.String("node", settings.Main.Name),
		logger.String("source", source.Name()),
		logger.Float64("threshold", settings.Detection.Threshold),
		logger.Float64("threshold_db", detection.ToDecibels(settings.Detection.Threshold)),
		logger.Duration("start_delay", settings.Session.StartDelay),
		logger.String("auto_stop", settings.Session.AutoStop))

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, rt.Metrics)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(runCtx) })
	}

	if settings.Server.Enabled {
		srv, err := api.New(settings, rt.Library, api.WithStatusProvider(rec))
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(runCtx) })
	}

	g.Go(func() error {
		// the recorder ending for any reason ends the run
		defer cancel()
		return rec.Run(runCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("realtime capture finished")
	return nil
}
