package audiocore

import (
	"github.com/nightsound/nightsound-go/internal/errors"
)

// ComponentAudioCore identifies audiocore errors
const ComponentAudioCore = "audiocore"

var (
	// ErrSourceRunning is returned by Start on a running source
	ErrSourceRunning = errors.New(errors.NewStd("audio source already running")).
				Component(ComponentAudioCore).
				Category(errors.CategoryState).
				Build()

	// ErrSourceNotRunning is returned by Stop on an idle source
	ErrSourceNotRunning = errors.New(errors.NewStd("audio source not running")).
				Component(ComponentAudioCore).
				Category(errors.CategoryState).
				Build()

	// ErrDeviceNotFound is returned when no capture device matches
	ErrDeviceNotFound = errors.New(errors.NewStd("no matching audio device found")).
				Component(ComponentAudioCore).
				Category(errors.CategoryNotFound).
				Build()

	// ErrInvalidAudioFormat is returned when input audio cannot be turned into frames
	ErrInvalidAudioFormat = errors.New(errors.NewStd("invalid audio format")).
				Component(ComponentAudioCore).
				Category(errors.CategoryValidation).
				Build()
)

// ReportError sends err on errs unless the channel is full. Sources call it
// from capture callbacks, which must never block.
func ReportError(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}
