package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes body to a config.yaml in a temp dir and resets viper.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "main:\n  name: test-node\n")

	settings, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test-node", settings.Main.Name)
	assert.Equal(t, "device", settings.Capture.Source)
	assert.Equal(t, 16000, settings.Capture.SampleRate)
	assert.Equal(t, 1600, settings.Capture.FrameSize())
	assert.InDelta(t, 0.05, settings.Detection.Threshold, 1e-9)
	assert.Equal(t, 500*time.Millisecond, settings.Detection.MinDuration)
	assert.Equal(t, 300*time.Millisecond, settings.Detection.HangTime)
	assert.Equal(t, 500*time.Millisecond, settings.Detection.PreRoll)
	assert.Equal(t, 60*time.Second, settings.Detection.MaxDuration)
	assert.Equal(t, "peak", settings.Detection.RMSValue)
	assert.Equal(t, 10, settings.Snippets.Retention.MaxSnippets)
	assert.Equal(t, time.Minute, settings.Session.CheckpointInterval)
	assert.True(t, settings.Output.SQLite.Enabled)
	assert.False(t, settings.Sentry.Enabled)

	assert.Same(t, settings, GetSettings())
}

func TestEmbeddedDefaultConfigIsValid(t *testing.T) {
	path := writeConfig(t, getDefaultConfig())

	settings, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "nightsound", settings.Main.Name)
	assert.Equal(t, 64, settings.Capture.QueueSize)
}

func TestLoadFileParsesDurations(t *testing.T) {
	path := writeConfig(t, `
detection:
  threshold: 0.2
  minduration: 2500ms
  hangtime: 2s
  preroll: 0s
  rmsvalue: average
session:
  autostop: "05:30"
`)

	settings, err := LoadFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, settings.Detection.Threshold, 1e-9)
	assert.Equal(t, 2500*time.Millisecond, settings.Detection.MinDuration)
	assert.Equal(t, 2*time.Second, settings.Detection.HangTime)
	assert.Zero(t, settings.Detection.PreRoll)
	assert.Equal(t, "average", settings.Detection.RMSValue)
	assert.Equal(t, "05:30", settings.Session.AutoStop)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "detection:\n  threshold: 0.1\n")
	t.Setenv("NIGHTSOUND_THRESHOLD", "0.3")
	t.Setenv("NIGHTSOUND_HANG_TIME", "3s")
	t.Setenv("NIGHTSOUND_MIN_DURATION", "4s")

	settings, err := LoadFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, settings.Detection.Threshold, 1e-9)
	assert.Equal(t, 3*time.Second, settings.Detection.HangTime)
	assert.Equal(t, 4*time.Second, settings.Detection.MinDuration)
}

func TestLoadFileRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "detection:\n  threshold: 1.5\n  rmsvalue: median\n")

	_, err := LoadFile(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	path := writeConfig(t, "main:\n  name: before\n")
	settings, err := LoadFile(path)
	require.NoError(t, err)

	settings.Main.Name = "after"
	settings.Detection.HangTime = 400 * time.Millisecond
	settings.Snippets.Retention.MaxSnippets = 3
	require.NoError(t, SaveYAMLConfig(path, settings))

	viper.Reset()
	reloaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after", reloaded.Main.Name)
	assert.Equal(t, 400*time.Millisecond, reloaded.Detection.HangTime)
	assert.Equal(t, 3, reloaded.Snippets.Retention.MaxSnippets)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveSettingsDefaultsToActiveConfig(t *testing.T) {
	path := writeConfig(t, "main:\n  name: before\n")
	settings, err := LoadFile(path)
	require.NoError(t, err)

	settings.Snippets.Retention.MaxSnippets = 7
	written, err := SaveSettings(settings, "")
	require.NoError(t, err)
	assert.Equal(t, path, written)

	exported := filepath.Join(t.TempDir(), "export.yaml")
	written, err = SaveSettings(settings, exported)
	require.NoError(t, err)
	assert.Equal(t, exported, written)

	for _, p := range []string{path, exported} {
		viper.Reset()
		reloaded, err := LoadFile(p)
		require.NoError(t, err)
		assert.Equal(t, 7, reloaded.Snippets.Retention.MaxSnippets, p)
	}

	_, err = SaveSettings(nil, exported)
	assert.Error(t, err)
}

func TestLogSettingsLoggingConfig(t *testing.T) {
	ls := LogSettings{Level: "debug", File: true, Path: "x.log", MaxBackups: 2, Modules: map[string]string{"session": "trace"}}
	cfg := ls.LoggingConfig()

	assert.Equal(t, "debug", cfg.DefaultLevel)
	assert.True(t, cfg.FileOutput.Enabled)
	assert.Equal(t, 2, cfg.FileOutput.MaxRotatedFiles)
	assert.Equal(t, "trace", cfg.ModuleLevels["session"])
}
