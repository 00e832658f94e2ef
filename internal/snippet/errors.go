package snippet

import (
	"fmt"

	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// ComponentSnippet identifies snippet errors
const ComponentSnippet = "snippet"

var (
	// ErrWriteFailed is returned when a blob cannot be opened, written or
	// committed. The partial blob is removed and the rest of the event is
	// ignored.
	ErrWriteFailed = errors.New(errors.NewStd("snippet write failed")).
			Component(ComponentSnippet).
			Category(errors.CategorySnippet).
			Build()

	// ErrInvalidName is returned for blob names that would escape the
	// snippet directory.
	ErrInvalidName = errors.New(errors.NewStd("invalid snippet name")).
			Component(ComponentSnippet).
			Category(errors.CategoryValidation).
			Build()
)

// GetLogger returns the snippet logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("snippet")
}

func writeFailed(op string, err error) error {
	return errors.New(fmt.Errorf("%w: %s: %w", ErrWriteFailed, op, err)).
		Component(ComponentSnippet).
		Category(errors.CategorySnippet).
		Context("operation", op).
		Build()
}
