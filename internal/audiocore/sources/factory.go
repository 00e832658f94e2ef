// Package sources builds the configured frame source.
package sources

import (
	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/audiocore/sources/file"
	"github.com/nightsound/nightsound-go/internal/audiocore/sources/malgo"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/errors"
)

// CreateSource creates the source selected by settings.Source.
func CreateSource(settings *conf.CaptureSettings) (audiocore.Source, error) {
	switch settings.Source {
	case "device", "":
		return malgo.NewMalgoSource("device", malgo.MalgoConfig{
			DeviceName: settings.Device,
			SampleRate: uint32(settings.SampleRate),
			FrameSize:  settings.FrameSize(),
			QueueSize:  settings.QueueSize,
			Gain:       settings.Gain,
		})

	case "file":
		src, err := file.NewSource("file", file.Config{
			Path:      settings.Input,
			FrameSize: settings.FrameSize(),
			QueueSize: settings.QueueSize,
			Gain:      settings.Gain,
		})
		if err != nil {
			return nil, err
		}
		if src.Format().SampleRate != settings.SampleRate {
			_ = src.Close()
			return nil, errors.New(audiocore.ErrInvalidAudioFormat).
				Component(audiocore.ComponentAudioCore).
				Context("file_sample_rate", src.Format().SampleRate).
				Context("capture_sample_rate", settings.SampleRate).
				Build()
		}
		return src, nil

	default:
		return nil, errors.Newf("unknown source type: %s", settings.Source).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("source_type", settings.Source).
			Build()
	}
}

// ListAvailableDevices returns a list of available audio capture devices
func ListAvailableDevices() ([]malgo.AudioDeviceInfo, error) {
	return malgo.EnumerateDevices()
}
