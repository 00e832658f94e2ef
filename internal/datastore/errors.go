package datastore

import (
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// ComponentDatastore identifies datastore errors
const ComponentDatastore = "datastore"

var (
	ErrSessionNotFound = errors.New(errors.NewStd("session not found")).
				Component(ComponentDatastore).
				Category(errors.CategoryNotFound).
				Build()

	ErrSnippetNotFound = errors.New(errors.NewStd("snippet not found")).
				Component(ComponentDatastore).
				Category(errors.CategoryNotFound).
				Build()

	// ErrSessionClosed is returned when a snippet targets a session that
	// has already ended.
	ErrSessionClosed = errors.New(errors.NewStd("session is closed")).
				Component(ComponentDatastore).
				Category(errors.CategoryState).
				Build()

	// ErrSessionActive is returned when deleting a session that is still
	// recording.
	ErrSessionActive = errors.New(errors.NewStd("session is active")).
				Component(ComponentDatastore).
				Category(errors.CategoryState).
				Build()

	ErrNotOpen = errors.New(errors.NewStd("database connection is not initialized")).
			Component(ComponentDatastore).
			Category(errors.CategoryDatabase).
			Build()
)

// GetLogger returns the datastore logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// dbError creates a categorized database error with context pairs.
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component(ComponentDatastore).
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i+1 < len(context); i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder.Build()
}

// notFound wraps a not-found sentinel with the identifier that missed.
func notFound(sentinel error, id uint) error {
	return errors.New(sentinel).
		Component(ComponentDatastore).
		Category(errors.CategoryNotFound).
		Context("id", id).
		Build()
}
