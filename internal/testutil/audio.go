package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// Run is a stretch of constant-valued 16-bit samples.
type Run struct {
	Samples int
	Value   int
}

// WriteMonoWAV writes the runs back to back as a mono 16-bit WAV file in a
// temp dir and returns its path.
func WriteMonoWAV(t *testing.T, sampleRate int, runs ...Run) string {
	t.Helper()
	var data []int
	for _, r := range runs {
		for range r.Samples {
			data = append(data, r.Value)
		}
	}

	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}
