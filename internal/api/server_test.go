package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/library"
	"github.com/nightsound/nightsound-go/internal/recorder"
	"github.com/nightsound/nightsound-go/internal/snippet"
	"github.com/nightsound/nightsound-go/internal/testutil"
)

type staticStatus struct{}

func (staticStatus) Status() recorder.Status {
	return recorder.Status{State: recorder.StateRecording.String(), Source: "mic"}
}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	settings := &conf.Settings{Version: "test"}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "server.db")
	settings.Server.Listen = "127.0.0.1:0"

	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	sink, err := snippet.NewFileSink(t.TempDir(), 16000)
	require.NoError(t, err)

	s, err := New(settings, library.New(store, sink), opts...)
	require.NoError(t, err)
	return s
}

func TestConfigFromSettings(t *testing.T) {
	settings := &conf.Settings{Debug: true}
	cfg := ConfigFromSettings(settings)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.True(t, cfg.Debug)

	settings.Server.Listen = ":9090"
	assert.Equal(t, ":9090", ConfigFromSettings(settings).Listen)

	cfg.Listen = ""
	assert.Error(t, cfg.Validate())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := DefaultConfig()
	bad.ReadTimeout = 0

	settings := &conf.Settings{}
	_, err := New(settings, nil, WithConfig(bad))
	assert.Error(t, err)
}

func TestServerRoutesAndHeaders(t *testing.T) {
	s := newTestServer(t, WithStatusProvider(staticStatus{}))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var st recorder.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "recording", st.State)
	assert.Equal(t, "mic", st.Source)

	assert.NotNil(t, s.APIController())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/sessions")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, testutil.WaitForError(t, done, DefaultShutdownTimeout+time.Second, "server did not stop"))
}
