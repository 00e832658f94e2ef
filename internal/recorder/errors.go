package recorder

import (
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// ComponentRecorder identifies recorder errors
const ComponentRecorder = "recorder"

// ErrRunning is returned by Run while the recorder is already running.
var ErrRunning = errors.New(errors.NewStd("recorder already running")).
	Component(ComponentRecorder).
	Category(errors.CategoryState).
	Build()

// GetLogger returns the recorder logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("recorder")
}
