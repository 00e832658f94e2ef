package library

import (
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// ComponentLibrary identifies library errors
const ComponentLibrary = "library"

// ErrRecording is returned by Purge while a session is recording.
var ErrRecording = errors.New(errors.NewStd("a session is recording")).
	Component(ComponentLibrary).
	Category(errors.CategoryConflict).
	Build()

// GetLogger returns the library logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("library")
}
