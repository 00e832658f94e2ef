package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Main: MainSettings{Name: "test", Log: LogSettings{Level: "info"}},
		Capture: CaptureSettings{
			Source: "device", SampleRate: 16000, FrameMs: 100, QueueSize: 8, Gain: 1,
		},
		Detection: DetectionSettings{
			Threshold:   0.05,
			MinDuration: 500 * time.Millisecond,
			HangTime:    300 * time.Millisecond,
			PreRoll:     500 * time.Millisecond,
			MaxDuration: time.Minute,
			RMSValue:    "peak",
		},
		Snippets: SnippetSettings{Path: "snippets", Retention: RetentionSettings{MaxSnippets: 10}},
		Session:  SessionSettings{CheckpointInterval: time.Minute},
		Output:   OutputSettings{SQLite: SQLiteSettings{Enabled: true, Path: "test.db"}},
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"threshold zero", func(s *Settings) { s.Detection.Threshold = 0 }, "detection.threshold"},
		{"threshold above one", func(s *Settings) { s.Detection.Threshold = 1.1 }, "detection.threshold"},
		{"bad source", func(s *Settings) { s.Capture.Source = "network" }, "capture.source"},
		{"file source without input", func(s *Settings) { s.Capture.Source = "file" }, "no input file"},
		{"negative pre-roll", func(s *Settings) { s.Detection.PreRoll = -time.Second }, "preroll"},
		{"zero hang time", func(s *Settings) { s.Detection.HangTime = 0 }, "hangtime"},
		{"min not above hang", func(s *Settings) { s.Detection.HangTime = s.Detection.MinDuration }, "minduration must exceed hangtime"},
		{"min disabled", func(s *Settings) { s.Detection.MinDuration = 0; s.Detection.MaxDuration = 0 }, ""},
		{"max below min", func(s *Settings) { s.Detection.MaxDuration = 100 * time.Millisecond }, "maxduration"},
		{"bad rms value", func(s *Settings) { s.Detection.RMSValue = "median" }, "detection.rmsvalue"},
		{"bad autostop", func(s *Settings) { s.Session.AutoStop = "25:00" }, "autostop"},
		{"tiny checkpoint", func(s *Settings) { s.Session.CheckpointInterval = time.Millisecond }, "checkpointinterval"},
		{"two databases", func(s *Settings) { s.Output.MySQL = MySQLSettings{Enabled: true, Host: "h", Database: "d"} }, "only one"},
		{"no database", func(s *Settings) { s.Output.SQLite.Enabled = false }, "must be enabled"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "dsn"},
		{"negative retention", func(s *Settings) { s.Snippets.Retention.MaxSnippets = -1 }, "maxsnippets"},
		{"missing snippet path", func(s *Settings) { s.Snippets.Path = "" }, "snippets.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("05:30")
	require.NoError(t, err)
	assert.Equal(t, 5, h)
	assert.Equal(t, 30, m)

	for _, bad := range []string{"", "5", "24:00", "12:60", "ab:cd"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestNextClockTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

	next, err := NextClockTime(now, "05:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 5, 30, 0, 0, time.UTC), next)

	next, err = NextClockTime(now, "23:15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 23, 15, 0, 0, time.UTC), next)

	next, err = NextClockTime(now, "22:00")
	require.NoError(t, err)
	assert.Equal(t, now, next)
}

func TestEnvValidators(t *testing.T) {
	require.NoError(t, validateEnvThreshold("0.5"))
	require.Error(t, validateEnvThreshold("2"))
	require.NoError(t, validateEnvDuration("750ms"))
	require.Error(t, validateEnvDuration("-1s"))
	require.Error(t, validateEnvSource("rtsp"))
	require.Error(t, validateEnvLogLevel("verbose"))
	require.NoError(t, validateEnvBool("true"))
}
