package snippet

import (
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/nightsound/nightsound-go/internal/errors"
)

const lockFileName = ".recording.lock"

// ErrRecordingActive is returned when another process holds the recording
// lock on a snippet directory.
var ErrRecordingActive = errors.New(errors.NewStd("another process is recording into this snippet directory")).
	Component(ComponentSnippet).
	Category(errors.CategoryConflict).
	Build()

// RecordingLock is held by the one process that creates blobs in a
// snippet directory.
type RecordingLock struct {
	fl *flock.Flock
}

// LockRecording takes the recording lock on the sink directory and then
// removes temp files left behind by an interrupted run. Only the lock
// holder creates temp files, so any it finds are stale.
func (s *FileSink) LockRecording() (*RecordingLock, error) {
	fl := flock.New(filepath.Join(s.dir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentSnippet).
			Category(errors.CategoryFileIO).
			Context("dir", s.dir).
			Build()
	}
	if !ok {
		return nil, errors.New(ErrRecordingActive).
			Component(ComponentSnippet).
			Category(errors.CategoryConflict).
			Context("dir", s.dir).
			Build()
	}
	s.removeStaleTemps()
	return &RecordingLock{fl: fl}, nil
}

// RecordingActive reports whether another process or runtime holds the
// recording lock.
func (s *FileSink) RecordingActive() (bool, error) {
	fl := flock.New(filepath.Join(s.dir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return false, errors.New(err).
			Component(ComponentSnippet).
			Category(errors.CategoryFileIO).
			Context("dir", s.dir).
			Build()
	}
	if !ok {
		return true, nil
	}
	return false, fl.Unlock()
}

// Release gives the lock up.
func (l *RecordingLock) Release() error {
	return l.fl.Unlock()
}
