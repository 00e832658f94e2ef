package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/session"
	"github.com/nightsound/nightsound-go/internal/snippet"
	"github.com/nightsound/nightsound-go/internal/testutil"
)

const testRate = 8000

// writeWAV writes quiet, loud, quiet runs of the given lengths in 10ms
// frames.
func writeWAV(t *testing.T, quiet, loud, tail int) string {
	t.Helper()
	frame := testRate / 100
	return testutil.WriteMonoWAV(t, testRate,
		testutil.Run{Samples: quiet * frame},
		testutil.Run{Samples: loud * frame, Value: 8000},
		testutil.Run{Samples: tail * frame})
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Main.Name = "test"
	s.Capture = conf.CaptureSettings{
		Source:     "file",
		SampleRate: testRate,
		FrameMs:    10,
		QueueSize:  8,
		Gain:       1,
	}
	s.Detection = conf.DetectionSettings{
		Threshold:   0.1,
		MinDuration: 300 * time.Millisecond,
		HangTime:    200 * time.Millisecond,
		PreRoll:     100 * time.Millisecond,
		RMSValue:    "peak",
	}
	s.Snippets.Path = filepath.Join(t.TempDir(), "snippets")
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = filepath.Join(t.TempDir(), "nightsound.db")
	return s
}

func TestFileAnalysisRecordsOneSession(t *testing.T) {
	settings := testSettings(t)
	path := writeWAV(t, 50, 60, 100)

	res, err := FileAnalysis(t.Context(), settings, path)
	require.NoError(t, err)

	require.NotNil(t, res.Session.EndTime)
	assert.Equal(t, 1, res.Session.SnippetCount)
	require.Len(t, res.Snippets, 1)
	assert.Greater(t, res.Snippets[0].RMSValue, 0.1)
	assert.Equal(t, uint64(210), res.Status.FramesProcessed)

	_, err = os.Stat(filepath.Join(settings.Snippets.Path, res.Snippets[0].FileName))
	assert.NoError(t, err)
}

func TestFileAnalysisRejectsMissingFile(t *testing.T) {
	settings := testSettings(t)
	_, err := FileAnalysis(t.Context(), settings, filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = FileAnalysis(t.Context(), settings, empty)
	assert.Error(t, err)
}

func TestRealtimeAnalysisStopsWithSource(t *testing.T) {
	settings := testSettings(t)
	settings.Capture.Input = writeWAV(t, 20, 60, 40)
	settings.Server.Enabled = true
	settings.Server.Listen = "127.0.0.1:0"
	settings.Telemetry.Enabled = true
	settings.Telemetry.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, RealtimeAnalysis(ctx, settings))

	rt, err := NewRuntime(settings)
	require.NoError(t, err)
	defer rt.Close()

	sessions, err := rt.Library.Sessions(0, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Active())
	assert.Equal(t, 1, sessions[0].SnippetCount)
}

func TestRecoverSessionsRefusedWhileRecording(t *testing.T) {
	settings := testSettings(t)

	recording, err := NewRuntime(settings)
	require.NoError(t, err)
	defer recording.Close()
	unlock, err := recording.LockRecording()
	require.NoError(t, err)
	id, err := recording.Coordinator.StartSession(t.Context())
	require.NoError(t, err)

	// a second process against the same directory and database
	other, err := NewRuntime(settings)
	require.NoError(t, err)
	defer other.Close()

	_, err = other.RecoverSessions(t.Context())
	require.Error(t, err)
	assert.True(t, errors.Is(err, snippet.ErrRecordingActive))

	live, err := other.Library.Session(id)
	require.NoError(t, err)
	assert.True(t, live.Active(), "live session must stay open")

	_, err = FileAnalysis(t.Context(), settings, writeWAV(t, 10, 60, 40))
	assert.True(t, errors.Is(err, snippet.ErrRecordingActive))

	require.NoError(t, recording.Coordinator.StopSession(t.Context()))
	unlock()

	s, err := other.RecoverSessions(t.Context())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestRecoverSessionsClosesOrphan(t *testing.T) {
	settings := testSettings(t)

	crashed, err := NewRuntime(settings)
	require.NoError(t, err)
	defer crashed.Close()
	orphan, err := crashed.Store.CreateSession(time.Now().Add(-time.Hour))
	require.NoError(t, err)

	rt, err := NewRuntime(settings)
	require.NoError(t, err)
	defer rt.Close()

	s, err := rt.RecoverSessions(t.Context())
	require.True(t, errors.Is(err, session.ErrOrphanedSessionRecovered))
	require.NotNil(t, s)
	assert.Equal(t, orphan.ID, s.ID)
	assert.True(t, s.Recovered)
}
