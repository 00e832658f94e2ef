package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nightsound/nightsound-go/internal/datastore"
)

func openSQLite(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), name)),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedSource(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.AutoMigrate(&datastore.Session{}, &datastore.Snippet{}))

	start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	closed := datastore.Session{ID: 3, StartTime: start, EndTime: &end, SnippetCount: 2}
	open := datastore.Session{ID: 7, StartTime: end.Add(14 * time.Hour)}
	require.NoError(t, db.Create(&closed).Error)
	require.NoError(t, db.Create(&open).Error)

	for i := range 2 {
		ts := start.Add(time.Duration(i+1) * time.Hour)
		require.NoError(t, db.Create(&datastore.Snippet{
			SessionID: closed.ID,
			FileName:  fmt.Sprintf("snippet-%d.wav", i),
			Timestamp: ts,
			EndTime:   ts.Add(2 * time.Second),
			RMSValue:  0.2 + float64(i)/10,
		}).Error)
	}
}

func TestMigratorCopiesAndSkipsExisting(t *testing.T) {
	source := openSQLite(t, "source.db")
	target := openSQLite(t, "target.db")
	seedSource(t, source)

	var out bytes.Buffer
	m := newMigrator(&Config{BatchSize: 1}, &out, source, target)

	stats, err := m.Run()
	require.NoError(t, err)
	require.Len(t, stats.Tables, 2)
	assert.Equal(t, int64(2), stats.Tables[0].Migrated)
	assert.Equal(t, int64(2), stats.Tables[1].Migrated)

	require.NoError(t, NewVerifier(source, target, &out).Verify())

	var copied datastore.Session
	require.NoError(t, target.First(&copied, 7).Error)
	assert.True(t, copied.Active())

	// a second run finds every row already present
	stats, err = m.Run()
	require.NoError(t, err)
	assert.Zero(t, stats.Tables[0].Migrated)
	assert.Equal(t, int64(2), stats.Tables[0].Skipped)
	assert.Equal(t, int64(2), stats.Tables[1].Skipped)

	stats.Print(&out)
	assert.Contains(t, out.String(), "TOTAL")
}

func TestMigratorCleanReplacesTarget(t *testing.T) {
	source := openSQLite(t, "source.db")
	target := openSQLite(t, "target.db")
	seedSource(t, source)

	require.NoError(t, target.AutoMigrate(&datastore.Session{}, &datastore.Snippet{}))
	require.NoError(t, target.Create(&datastore.Session{ID: 99, StartTime: time.Now()}).Error)

	var out bytes.Buffer
	_, err := newMigrator(&Config{BatchSize: 100, Clean: true}, &out, source, target).Run()
	require.NoError(t, err)

	var count int64
	require.NoError(t, target.Model(&datastore.Session{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestVerifierDetectsMissingRows(t *testing.T) {
	source := openSQLite(t, "source.db")
	target := openSQLite(t, "target.db")
	seedSource(t, source)
	require.NoError(t, target.AutoMigrate(&datastore.Session{}, &datastore.Snippet{}))

	var out bytes.Buffer
	err := NewVerifier(source, target, &out).Verify()
	require.Error(t, err)
	assert.Contains(t, out.String(), "MISMATCH")
}

func TestConfigLoad(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nightsound.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o600))

	cfg := Config{SQLitePath: dbPath, BatchSize: 500}
	require.NoError(t, cfg.Load())

	cfg.BatchSize = 0
	assert.Error(t, cfg.Load())
	cfg.BatchSize = 20000
	assert.Error(t, cfg.Load())

	missing := Config{SQLitePath: filepath.Join(t.TempDir(), "missing.db"), BatchSize: 1}
	assert.Error(t, missing.Load())
}

func TestConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nightsound.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o600))

	yaml := fmt.Sprintf(`output:
  sqlite:
    path: %s
  mysql:
    enabled: true
    host: db.internal
    username: night
    password: secret
    database: sounds
`, dbPath)
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))

	cfg := Config{ConfigPath: configPath, BatchSize: 10}
	require.NoError(t, cfg.Load())
	assert.Equal(t, dbPath, cfg.SQLitePath)
	assert.Equal(t, 3306, cfg.MySQLPort)
	assert.Equal(t, "night:secret@tcp(db.internal:3306)/sounds?charset=utf8mb4&parseTime=True&loc=UTC", cfg.GetMySQLDSN())
	assert.NotContains(t, cfg.GetSanitizedMySQLDSN(), "secret")
}
