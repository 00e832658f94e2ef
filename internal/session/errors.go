package session

import (
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// ComponentSession identifies session errors
const ComponentSession = "session"

var (
	// ErrAlreadyActive is returned by StartSession while a session is open.
	ErrAlreadyActive = errors.New(errors.NewStd("session already active")).
				Component(ComponentSession).
				Category(errors.CategorySession).
				Build()

	// ErrNotActive is returned by StopSession when no session is open.
	ErrNotActive = errors.New(errors.NewStd("session not active")).
			Component(ComponentSession).
			Category(errors.CategorySession).
			Build()

	// ErrNoActiveSession is returned by RecordSnippet when no session is
	// open. Nothing is written in that case.
	ErrNoActiveSession = errors.New(errors.NewStd("no active session")).
				Component(ComponentSession).
				Category(errors.CategorySession).
				Build()

	// ErrOrphanedSessionRecovered reports that crash recovery closed one or
	// more sessions. It is informational.
	ErrOrphanedSessionRecovered = errors.New(errors.NewStd("orphaned session recovered")).
					Component(ComponentSession).
					Category(errors.CategorySession).
					Build()
)

// GetLogger returns the session logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("session")
}
