package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// AudioDeviceInfo describes a capture device
type AudioDeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// GetLogger returns the capture device logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audiocore").Module("malgo")
}

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("os", runtime.GOOS).
			Build()
	}
}

// EnumerateDevices lists the capture devices of the platform backend.
func EnumerateDevices() ([]AudioDeviceInfo, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	return describeDevices(infos), nil
}

func describeDevices(infos []malgo.DeviceInfo) []AudioDeviceInfo {
	devices := make([]AudioDeviceInfo, 0, len(infos))
	for i := range infos {
		// ALSA null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			decodedID = infos[i].ID.String()
		}
		devices = append(devices, AudioDeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodedID,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// SelectDevice finds the device matching deviceName.
func SelectDevice(devices []malgo.DeviceInfo, deviceName string) (*malgo.DeviceInfo, error) {
	idx, err := matchDevice(describeDevices(devices), deviceName)
	if err != nil {
		return nil, err
	}
	return &devices[idx], nil
}

// matchDevice returns the backend index of the device matching deviceName.
// An empty name, "default" or "sysdefault" selects the system default, or
// the first device when none is flagged. Otherwise the exact name, the
// decoded ID, and finally a name substring are tried in that order.
func matchDevice(devices []AudioDeviceInfo, deviceName string) (int, error) {
	if len(devices) == 0 {
		return 0, errors.New(audiocore.ErrDeviceNotFound).
			Category(errors.CategoryNotFound).
			Context("device_name", deviceName).
			Context("available_devices", 0).
			Build()
	}

	switch deviceName {
	case "", "default", "sysdefault":
		for _, d := range devices {
			if d.IsDefault {
				return d.Index, nil
			}
		}
		return devices[0].Index, nil
	}

	for _, d := range devices {
		if d.Name == deviceName {
			return d.Index, nil
		}
	}
	for _, d := range devices {
		if d.ID == deviceName {
			return d.Index, nil
		}
	}
	for _, d := range devices {
		if strings.Contains(d.Name, deviceName) {
			return d.Index, nil
		}
	}

	return 0, errors.New(audiocore.ErrDeviceNotFound).
		Category(errors.CategoryNotFound).
		Context("device_name", deviceName).
		Context("available_devices", len(devices)).
		Build()
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(bytes), "\x00"), nil
}
