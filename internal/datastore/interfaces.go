// Package datastore persists sessions and snippet metadata through gorm.
package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/errors"
)

// Interface abstracts the database backend.
type Interface interface {
	Open() error
	Close() error

	CreateSession(start time.Time) (*Session, error)
	GetSession(id uint) (*Session, error)
	// ActiveSession returns the open session, or nil when there is none.
	ActiveSession() (*Session, error)
	// OpenSessions returns every session with a nil end, oldest first.
	OpenSessions() ([]Session, error)
	ListSessions(limit, offset int) ([]Session, error)
	CloseSession(id uint, end time.Time, recovered bool) error
	TouchSession(id uint, at time.Time) error
	// DeleteSession removes a closed session and its snippets and returns
	// the file names that belonged to it.
	DeleteSession(id uint) ([]string, error)

	// SaveSnippet inserts the snippet and increments the session's
	// snippet count in one transaction. The session must be active.
	SaveSnippet(snippet *Snippet) error
	GetSnippet(id uint) (*Snippet, error)
	DeleteSnippet(id uint) error
	SnippetsBySession(sessionID uint) ([]Snippet, error)
	SnippetsBySessionLoudest(sessionID uint, limit int) ([]Snippet, error)
	RecentSnippets(limit int) ([]Snippet, error)
	// LastSnippet returns the snippet with the latest end time in a
	// session, or nil when it has none.
	LastSnippet(sessionID uint) (*Snippet, error)

	// Purge deletes every session and snippet and returns the file names
	// that were referenced.
	Purge() ([]string, error)
}

// DataStore implements Interface on top of a gorm connection.
type DataStore struct {
	DB *gorm.DB
}

// New returns the store selected in settings. It does not open it.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("no database backend enabled").
			Component(ComponentDatastore).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func (ds *DataStore) db() (*gorm.DB, error) {
	if ds.DB == nil {
		return nil, ErrNotOpen
	}
	return ds.DB, nil
}

// CreateSession inserts a new open session.
func (ds *DataStore) CreateSession(start time.Time) (*Session, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	s := &Session{StartTime: start}
	if err := db.Create(s).Error; err != nil {
		return nil, dbError(err, "create_session")
	}
	return s, nil
}

// GetSession loads a session by id.
func (ds *DataStore) GetSession(id uint) (*Session, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	var s Session
	if err := db.First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(ErrSessionNotFound, id)
		}
		return nil, dbError(err, "get_session", "id", id)
	}
	return &s, nil
}

// ActiveSession implements Interface.
func (ds *DataStore) ActiveSession() (*Session, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	var sessions []Session
	if err := db.Where("end_time IS NULL").Order("start_time DESC").Limit(1).Find(&sessions).Error; err != nil {
		return nil, dbError(err, "active_session")
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// OpenSessions implements Interface.
func (ds *DataStore) OpenSessions() ([]Session, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	var sessions []Session
	if err := db.Where("end_time IS NULL").Order("start_time ASC").Find(&sessions).Error; err != nil {
		return nil, dbError(err, "open_sessions")
	}
	return sessions, nil
}

// ListSessions returns sessions newest first. A limit of 0 returns all.
func (ds *DataStore) ListSessions(limit, offset int) ([]Session, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	q := db.Order("start_time DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var sessions []Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, dbError(err, "list_sessions")
	}
	return sessions, nil
}

// CloseSession sets the end time of an open session. Closing a session
// that is already closed returns ErrSessionClosed.
func (ds *DataStore) CloseSession(id uint, end time.Time, recovered bool) error {
	db, err := ds.db()
	if err != nil {
		return err
	}
	res := db.Model(&Session{}).
		Where("id = ? AND end_time IS NULL", id).
		Updates(map[string]any{"end_time": end, "recovered": recovered})
	if res.Error != nil {
		return dbError(res.Error, "close_session", "id", id)
	}
	if res.RowsAffected == 0 {
		return ds.missingOrClosed(db, id)
	}
	return nil
}

// TouchSession records a liveness checkpoint on an open session.
func (ds *DataStore) TouchSession(id uint, at time.Time) error {
	db, err := ds.db()
	if err != nil {
		return err
	}
	res := db.Model(&Session{}).
		Where("id = ? AND end_time IS NULL", id).
		Update("last_checkpoint", at)
	if res.Error != nil {
		return dbError(res.Error, "touch_session", "id", id)
	}
	if res.RowsAffected == 0 {
		return ds.missingOrClosed(db, id)
	}
	return nil
}

func (ds *DataStore) missingOrClosed(db *gorm.DB, id uint) error {
	var count int64
	if err := db.Model(&Session{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return dbError(err, "check_session", "id", id)
	}
	if count == 0 {
		return notFound(ErrSessionNotFound, id)
	}
	return errors.New(ErrSessionClosed).
		Component(ComponentDatastore).
		Context("session_id", id).
		Build()
}

// DeleteSession implements Interface.
func (ds *DataStore) DeleteSession(id uint) ([]string, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	var files []string
	err = db.Transaction(func(tx *gorm.DB) error {
		var s Session
		if err := tx.First(&s, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(ErrSessionNotFound, id)
			}
			return dbError(err, "delete_session", "id", id)
		}
		if s.Active() {
			return errors.New(ErrSessionActive).
				Component(ComponentDatastore).
				Context("session_id", id).
				Build()
		}
		if err := tx.Model(&Snippet{}).Where("session_id = ?", id).Pluck("file_name", &files).Error; err != nil {
			return dbError(err, "delete_session", "id", id)
		}
		if err := tx.Where("session_id = ?", id).Delete(&Snippet{}).Error; err != nil {
			return dbError(err, "delete_session", "id", id)
		}
		if err := tx.Delete(&Session{}, id).Error; err != nil {
			return dbError(err, "delete_session", "id", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// SaveSnippet implements Interface.
func (ds *DataStore) SaveSnippet(snippet *Snippet) error {
	db, err := ds.db()
	if err != nil {
		return err
	}
	if snippet.DurationMs == 0 && !snippet.EndTime.IsZero() {
		snippet.DurationMs = snippet.EndTime.Sub(snippet.Timestamp).Milliseconds()
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Session{}).
			Where("id = ? AND end_time IS NULL", snippet.SessionID).
			UpdateColumn("snippet_count", gorm.Expr("snippet_count + ?", 1))
		if res.Error != nil {
			return dbError(res.Error, "save_snippet", "session_id", snippet.SessionID)
		}
		if res.RowsAffected == 0 {
			return errors.New(ErrSessionClosed).
				Component(ComponentDatastore).
				Context("session_id", snippet.SessionID).
				Context("file", snippet.FileName).
				Build()
		}
		if err := tx.Create(snippet).Error; err != nil {
			return dbError(err, "save_snippet",
				"session_id", snippet.SessionID,
				"file", snippet.FileName)
		}
		return nil
	})
}

// GetSnippet loads a snippet by id.
func (ds *DataStore) GetSnippet(id uint) (*Snippet, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	var s Snippet
	if err := db.First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(ErrSnippetNotFound, id)
		}
		return nil, dbError(err, "get_snippet", "id", id)
	}
	return &s, nil
}

// DeleteSnippet removes a snippet row. The session's snippet count is left
// as recorded.
func (ds *DataStore) DeleteSnippet(id uint) error {
	db, err := ds.db()
	if err != nil {
		return err
	}
	res := db.Delete(&Snippet{}, id)
	if res.Error != nil {
		return dbError(res.Error, "delete_snippet", "id", id)
	}
	if res.RowsAffected == 0 {
		return notFound(ErrSnippetNotFound, id)
	}
	return nil
}

// SnippetsBySession returns a session's snippets in time order.
func (ds *DataStore) SnippetsBySession(sessionID uint) ([]Snippet, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	var snippets []Snippet
	if err := db.Where("session_id = ?", sessionID).Order("timestamp ASC").Find(&snippets).Error; err != nil {
		return nil, dbError(err, "snippets_by_session", "session_id", sessionID)
	}
	return snippets, nil
}

// SnippetsBySessionLoudest returns a session's snippets by RMS value,
// loudest first. Ties go to the earlier snippet. A limit of 0 returns all.
func (ds *DataStore) SnippetsBySessionLoudest(sessionID uint, limit int) ([]Snippet, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	q := db.Where("session_id = ?", sessionID).Order("rms_value DESC").Order("timestamp ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var snippets []Snippet
	if err := q.Find(&snippets).Error; err != nil {
		return nil, dbError(err, "snippets_by_session_loudest", "session_id", sessionID)
	}
	return snippets, nil
}

// RecentSnippets returns the newest snippets across all sessions.
func (ds *DataStore) RecentSnippets(limit int) ([]Snippet, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	q := db.Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var snippets []Snippet
	if err := q.Find(&snippets).Error; err != nil {
		return nil, dbError(err, "recent_snippets")
	}
	return snippets, nil
}

// LastSnippet implements Interface.
func (ds *DataStore) LastSnippet(sessionID uint) (*Snippet, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	var snippets []Snippet
	if err := db.Where("session_id = ?", sessionID).Order("end_time DESC").Limit(1).Find(&snippets).Error; err != nil {
		return nil, dbError(err, "last_snippet", "session_id", sessionID)
	}
	if len(snippets) == 0 {
		return nil, nil
	}
	return &snippets[0], nil
}

// Purge implements Interface.
func (ds *DataStore) Purge() ([]string, error) {
	db, err := ds.db()
	if err != nil {
		return nil, err
	}
	var files []string
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Snippet{}).Pluck("file_name", &files).Error; err != nil {
			return dbError(err, "purge")
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Snippet{}).Error; err != nil {
			return dbError(err, "purge")
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Session{}).Error; err != nil {
			return dbError(err, "purge")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
