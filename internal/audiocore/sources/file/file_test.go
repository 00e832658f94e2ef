package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/errors"
)

func writeWAV(t *testing.T, rate, chans int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "night.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, 16, chans, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: rate, NumChannels: chans},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func collect(t *testing.T, src *Source) []audiocore.Frame {
	t.Helper()
	var frames []audiocore.Frame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-src.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatal("replay did not finish")
		}
	}
}

func TestReplayMono(t *testing.T) {
	data := make([]int, 10)
	for i := range data {
		data[i] = (i + 1) * 100
	}
	path := writeWAV(t, 8000, 1, data)
	start := time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC)

	src, err := NewSource("replay", Config{Path: path, FrameSize: 4, StartTime: start})
	require.NoError(t, err)
	assert.Equal(t, 8000, src.Format().SampleRate)
	assert.Equal(t, "night.wav", src.Name())

	require.NoError(t, src.Start(t.Context()))
	frames := collect(t, src)

	require.Len(t, frames, 3)
	assert.Equal(t, []int16{100, 200, 300, 400}, frames[0].Samples)
	// Short final block is padded with silence
	assert.Equal(t, []int16{900, 1000, 0, 0}, frames[2].Samples)
	assert.Equal(t, start.Add(time.Millisecond), frames[2].Timestamp)
	assert.Zero(t, src.Dropped())

	require.NoError(t, src.Stop())
}

func TestReplayStereoDownmix(t *testing.T) {
	path := writeWAV(t, 8000, 2, []int{100, 300, -200, -400})

	src, err := NewSource("replay", Config{Path: path, FrameSize: 2})
	require.NoError(t, err)
	require.NoError(t, src.Start(t.Context()))

	frames := collect(t, src)
	require.Len(t, frames, 1)
	assert.Equal(t, []int16{200, -300}, frames[0].Samples)
}

func TestStopCancelsReplay(t *testing.T) {
	path := writeWAV(t, 8000, 1, make([]int, 8000))

	src, err := NewSource("replay", Config{Path: path, FrameSize: 80, QueueSize: 1, Realtime: true})
	require.NoError(t, err)
	require.NoError(t, src.Start(t.Context()))
	assert.ErrorIs(t, src.Start(t.Context()), audiocore.ErrSourceRunning)

	<-src.Frames()
	require.NoError(t, src.Stop())

	// Channel is closed once replay has exited
	for range src.Frames() {
	}
}

func TestNewSourceRejectsInvalidInput(t *testing.T) {
	bogus := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("not a riff file at all"), 0o600))

	_, err := NewSource("replay", Config{Path: bogus, FrameSize: 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, audiocore.ErrInvalidAudioFormat))

	_, err = NewSource("replay", Config{Path: filepath.Join(t.TempDir(), "missing.wav"), FrameSize: 4})
	require.Error(t, err)

	_, err = NewSource("replay", Config{Path: bogus})
	assert.True(t, errors.Is(err, audiocore.ErrInvalidAudioFormat))
}
