package malgo

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/errors"
)

func testDevices() []AudioDeviceInfo {
	return []AudioDeviceInfo{
		{Index: 0, Name: "HDA Intel PCH, ALC3246 Analog", ID: ":0,0"},
		{Index: 2, Name: "USB Audio Device, USB Audio", ID: ":1,0", IsDefault: true},
		{Index: 3, Name: "Loopback", ID: ":2,0"},
	}
}

func TestMatchDevice(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"empty selects default", "", 2},
		{"sysdefault alias", "sysdefault", 2},
		{"exact name", "Loopback", 3},
		{"decoded id", ":0,0", 0},
		{"substring", "ALC3246", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchDevice(testDevices(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchDeviceFallsBackToFirst(t *testing.T) {
	devices := testDevices()
	devices[1].IsDefault = false

	got, err := matchDevice(devices, "default")
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestMatchDeviceNotFound(t *testing.T) {
	_, err := matchDevice(testDevices(), "Focusrite")
	require.Error(t, err)
	assert.True(t, errors.Is(err, audiocore.ErrDeviceNotFound))

	_, err = matchDevice(nil, "")
	assert.True(t, errors.Is(err, audiocore.ErrDeviceNotFound))
}

func TestHexToASCII(t *testing.T) {
	got, err := hexToASCII(hex.EncodeToString([]byte(":1,0\x00\x00")))
	require.NoError(t, err)
	assert.Equal(t, ":1,0", got)

	_, err = hexToASCII("zz")
	assert.Error(t, err)
}

func TestNewMalgoSourceDefaults(t *testing.T) {
	src, err := NewMalgoSource("mic", MalgoConfig{})
	require.NoError(t, err)

	assert.Equal(t, "mic", src.ID())
	assert.Equal(t, 16000, src.Format().SampleRate)
	assert.Equal(t, 1600, src.config.FrameSize)
	assert.Zero(t, src.Dropped())

	// Stop before Start is rejected
	assert.True(t, errors.Is(src.Stop(), audiocore.ErrSourceNotRunning))
}

func TestOnAudioDataIgnoredWhenIdle(t *testing.T) {
	src, err := NewMalgoSource("mic", MalgoConfig{SampleRate: 8000, FrameSize: 4})
	require.NoError(t, err)

	src.onAudioData(nil, make([]byte, 64), 32)
	assert.Zero(t, src.queue.Len())

	src.running.Store(true)
	src.onAudioData(nil, make([]byte, 16), 8)
	assert.Equal(t, 2, src.queue.Len())
}
