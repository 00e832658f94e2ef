package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/observability/metrics"
	"github.com/nightsound/nightsound-go/internal/testutil"
)

func TestNewMetricsIsIndependent(t *testing.T) {
	// Each call uses its own registry so repeated construction works
	for range 3 {
		m, err := NewMetrics()
		require.NoError(t, err)
		require.NotNil(t, m.Capture)
		require.NotNil(t, m.Session)
	}
}

func TestEndpointServesMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Capture.RecordFrame(metrics.FrameProcessed)

	settings := &conf.Settings{}
	_, err = NewEndpoint(settings, m)
	require.Error(t, err)

	settings.Telemetry.Enabled = true
	settings.Telemetry.Listen = "127.0.0.1:0"
	ep, err := NewEndpoint(settings, m)
	require.NoError(t, err)
	assert.Same(t, m, ep.GetMetrics())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- ep.Serve(ctx, ln) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(body), `nightsound_frames_total{outcome="processed"} 1`)

	cancel()
	assert.NoError(t, testutil.WaitForError(t, done, metrics.ShutdownTimeout+time.Second, "endpoint did not stop"))
}
