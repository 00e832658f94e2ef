package analysis

import (
	"context"

	"github.com/nightsound/nightsound-go/internal/api"
	"github.com/nightsound/nightsound-go/internal/conf"
)

// Serve runs the playback server over the snippet library without
// recording.
func Serve(ctx context.Context, settings *conf.Settings) error {
	rt, err := NewRuntime(settings)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, err := api.New(settings, rt.Library)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
