package datastore

import (
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open connects to the database file and migrates the schema.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	if path == "" {
		return errors.Newf("sqlite path is empty").
			Component(ComponentDatastore).
			Category(errors.CategoryConfiguration).
			Build()
	}

	dir, fileName := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	basePath, err := conf.GetBasePath(dir)
	if err != nil {
		return err
	}
	absoluteFilePath := filepath.Join(basePath, fileName)

	// WAL lets the API read while the capture side writes
	dsn := absoluteFilePath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return dbError(err, "open", "db_type", "sqlite", "path", absoluteFilePath)
	}

	GetLogger().Info("opened sqlite database", logger.String("path", absoluteFilePath))
	store.DB = db
	return performAutoMigration(db, "sqlite")
}

// Close closes the database connection.
func (store *SQLiteStore) Close() error {
	return closeDB(store.DB, "sqlite")
}
