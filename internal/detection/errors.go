package detection

import (
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// ComponentDetection identifies detection errors
const ComponentDetection = "detection"

var (
	// ErrInvalidFrame is returned for a frame whose length differs from the
	// configured frame size. Only that frame is affected.
	ErrInvalidFrame = errors.New(errors.NewStd("invalid frame")).
			Component(ComponentDetection).
			Category(errors.CategoryDetection).
			Build()

	// ErrInvalidConfig is returned for gate or analyzer settings that
	// cannot work.
	ErrInvalidConfig = errors.New(errors.NewStd("invalid detection config")).
				Component(ComponentDetection).
				Category(errors.CategoryValidation).
				Build()
)

// GetLogger returns the detection logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("detection")
}
