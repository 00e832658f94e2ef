// Package library is the read and housekeeping side of recorded sessions:
// listing, resolving snippet files for playback, and deleting.
package library

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/snippet"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Order selects how a session's snippets are listed.
type Order string

const (
	OrderTime    Order = "time"
	OrderLoudest Order = "loudest"
)

// Library wraps the datastore and the blob sink. Listings of closed
// sessions never change except through Library, so they are cached until
// the next delete.
type Library struct {
	store datastore.Interface
	sink  snippet.BlobSink
	cache *cache.Cache
	log   logger.Logger
}

// New creates a Library.
func New(store datastore.Interface, sink snippet.BlobSink) *Library {
	return &Library{
		store: store,
		sink:  sink,
		cache: cache.New(cacheTTL, cacheCleanup),
		log:   GetLogger(),
	}
}

// Sessions lists sessions newest first.
func (l *Library) Sessions(limit, offset int) ([]datastore.Session, error) {
	return l.store.ListSessions(limit, offset)
}

// Session loads one session.
func (l *Library) Session(id uint) (*datastore.Session, error) {
	return l.store.GetSession(id)
}

// Snippets lists a session's snippets in the given order.
func (l *Library) Snippets(sessionID uint, order Order) ([]datastore.Snippet, error) {
	key := fmt.Sprintf("snippets:%d:%s", sessionID, order)
	if cached, found := l.cache.Get(key); found {
		return cached.([]datastore.Snippet), nil
	}

	s, err := l.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	var list []datastore.Snippet
	switch order {
	case OrderLoudest:
		list, err = l.store.SnippetsBySessionLoudest(sessionID, 0)
	case OrderTime, "":
		list, err = l.store.SnippetsBySession(sessionID)
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown snippet order %q", order))
	}
	if err != nil {
		return nil, err
	}

	if !s.Active() {
		l.cache.Set(key, list, cache.DefaultExpiration)
	}
	return list, nil
}

// Recent returns the newest snippets across sessions.
func (l *Library) Recent(limit int) ([]datastore.Snippet, error) {
	return l.store.RecentSnippets(limit)
}

// Snippet loads one snippet.
func (l *Library) Snippet(id uint) (*datastore.Snippet, error) {
	return l.store.GetSnippet(id)
}

// SnippetPath resolves the audio file of a snippet.
func (l *Library) SnippetPath(id uint) (string, *datastore.Snippet, error) {
	s, err := l.store.GetSnippet(id)
	if err != nil {
		return "", nil, err
	}
	path, err := l.sink.Path(s.FileName)
	if err != nil {
		return "", nil, err
	}
	return path, s, nil
}

// DeleteSnippet removes a snippet row and its file.
func (l *Library) DeleteSnippet(id uint) error {
	s, err := l.store.GetSnippet(id)
	if err != nil {
		return err
	}
	if err := l.store.DeleteSnippet(id); err != nil {
		return err
	}
	l.invalidate()
	l.removeFiles([]string{s.FileName})
	l.log.Info("snippet deleted",
		logger.Uint64("id", uint64(id)),
		logger.String("file", s.FileName))
	return nil
}

// DeleteSession removes a closed session, its snippets and their files.
func (l *Library) DeleteSession(id uint) (int, error) {
	files, err := l.store.DeleteSession(id)
	if err != nil {
		return 0, err
	}
	l.invalidate()
	removed := l.removeFiles(files)
	l.log.Info("session deleted",
		logger.Uint64("id", uint64(id)),
		logger.Int("files", removed))
	return removed, nil
}

// Purge deletes every session and snippet. It is refused while a session
// is recording.
func (l *Library) Purge() (int, error) {
	active, err := l.store.ActiveSession()
	if err != nil {
		return 0, err
	}
	if active != nil {
		return 0, errors.New(ErrRecording).
			Component(ComponentLibrary).
			Context("session_id", active.ID).
			Build()
	}

	files, err := l.store.Purge()
	if err != nil {
		return 0, err
	}
	l.invalidate()
	removed := l.removeFiles(files)
	l.log.Info("library purged", logger.Int("files", removed))
	return removed, nil
}

func (l *Library) invalidate() {
	l.cache.Flush()
}

// removeFiles deletes blobs and returns how many went away. Failures are
// logged, the rows are already gone.
func (l *Library) removeFiles(files []string) int {
	removed := 0
	for _, name := range files {
		if err := l.sink.Remove(name); err != nil {
			l.log.Warn("failed to remove snippet file",
				logger.String("file", name),
				logger.Error(err))
			continue
		}
		removed++
	}
	return removed
}
