package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/privacy"
)

// Migrator copies rows from the source database to the target.
type Migrator struct {
	cfg      Config
	out      io.Writer
	sourceDB *gorm.DB
	targetDB *gorm.DB
}

// MigrationStats tracks export statistics.
type MigrationStats struct {
	StartTime time.Time
	EndTime   time.Time
	Tables    []TableStats
}

// TableStats tracks per-table statistics.
type TableStats struct {
	Name      string
	Migrated  int64
	Skipped   int64
	Errors    int64
	Duration  time.Duration
	BatchSize int
}

// Print writes the export summary.
func (s *MigrationStats) Print(out io.Writer) {
	fmt.Fprintln(out, "\n=== Export Summary ===")
	fmt.Fprintf(out, "Duration: %s\n\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))

	fmt.Fprintf(out, "%-12s %10s %10s %10s %12s\n", "Table", "Migrated", "Skipped", "Errors", "Duration")
	fmt.Fprintln(out, strings.Repeat("-", 58))

	var totalMigrated, totalSkipped, totalErrors int64
	for _, t := range s.Tables {
		fmt.Fprintf(out, "%-12s %10d %10d %10d %12s\n",
			t.Name, t.Migrated, t.Skipped, t.Errors, t.Duration.Round(time.Millisecond))
		totalMigrated += t.Migrated
		totalSkipped += t.Skipped
		totalErrors += t.Errors
	}

	fmt.Fprintln(out, strings.Repeat("-", 58))
	fmt.Fprintf(out, "%-12s %10d %10d %10d\n", "TOTAL", totalMigrated, totalSkipped, totalErrors)
}

// NewMigrator opens the SQLite source and the MySQL target.
func NewMigrator(cfg *Config, out io.Writer) (*Migrator, error) {
	logLevel := logger.Silent
	if cfg.Verbose {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	sourceDB, err := gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	targetDB, err := gorm.Open(mysql.Open(cfg.GetMySQLDSN()), gormConfig)
	if err != nil {
		newMigrator(cfg, out, sourceDB, nil).Close()
		// driver errors can echo the DSN
		return nil, fmt.Errorf("failed to open MySQL database %s: %w", cfg.GetSanitizedMySQLDSN(), privacy.WrapError(err))
	}

	m := newMigrator(cfg, out, sourceDB, targetDB)
	if err := m.ping(); err != nil {
		m.Close()
		return nil, err
	}
	fmt.Fprintln(out, "Database connections established successfully")
	return m, nil
}

func newMigrator(cfg *Config, out io.Writer, sourceDB, targetDB *gorm.DB) *Migrator {
	return &Migrator{cfg: *cfg, out: out, sourceDB: sourceDB, targetDB: targetDB}
}

func (m *Migrator) ping() error {
	for name, db := range map[string]*gorm.DB{"source": m.sourceDB, "target": m.targetDB} {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get %s connection: %w", name, err)
		}
		if err := sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to ping %s database: %w", name, err)
		}
	}
	return nil
}

// Close closes both database connections.
func (m *Migrator) Close() {
	for _, db := range []*gorm.DB{m.sourceDB, m.targetDB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// Run creates the schema in the target and copies sessions, then snippets.
func (m *Migrator) Run() (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}

	if err := m.targetDB.AutoMigrate(&datastore.Session{}, &datastore.Snippet{}); err != nil {
		return nil, fmt.Errorf("failed to create target tables: %w", err)
	}

	if m.cfg.Clean {
		if err := m.cleanTables(); err != nil {
			return nil, fmt.Errorf("failed to clean tables: %w", err)
		}
	}

	tables := []struct {
		name    string
		migrate func(int) (*TableStats, error)
	}{
		{"sessions", m.migrateSessions},
		{"snippets", m.migrateSnippets},
	}

	for _, t := range tables {
		tableStats, err := t.migrate(m.cfg.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to migrate %s: %w", t.name, err)
		}
		stats.Tables = append(stats.Tables, *tableStats)
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// cleanTables empties the target, snippets first.
func (m *Migrator) cleanTables() error {
	fmt.Fprintln(m.out, "Cleaning target tables...")
	for _, model := range []any{&datastore.Snippet{}, &datastore.Session{}} {
		if err := m.targetDB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// migrateTable copies one table in batches. Rows whose primary key already
// exists in the target are skipped.
func migrateTable[T any](m *Migrator, tableName string, batchSize int) (*TableStats, error) {
	start := time.Now()
	stats := &TableStats{Name: tableName, BatchSize: batchSize}

	fmt.Fprintf(m.out, "Migrating %s...\n", tableName)

	var sourceCount int64
	if err := m.sourceDB.Model(new(T)).Count(&sourceCount).Error; err != nil {
		return stats, fmt.Errorf("failed to count source records: %w", err)
	}
	if sourceCount == 0 {
		fmt.Fprintf(m.out, "  %s: no records to migrate\n", tableName)
		stats.Duration = time.Since(start)
		return stats, nil
	}

	var processed int64
	batchNum := 0
	err := m.sourceDB.Model(new(T)).FindInBatches(new([]T), batchSize, func(tx *gorm.DB, batch int) error {
		batchNum++
		records := tx.Statement.Dest.(*[]T)

		result := m.targetDB.Clauses(clause.OnConflict{DoNothing: true}).Create(records)
		if result.Error != nil {
			stats.Errors += int64(len(*records))
			fmt.Fprintf(m.out, "  Batch %d error: %v\n", batchNum, result.Error)
			return nil //nolint:nilerr // a failed batch is counted, the rest still copy
		}

		stats.Migrated += result.RowsAffected
		stats.Skipped += int64(len(*records)) - result.RowsAffected
		processed += int64(len(*records))

		if m.cfg.Verbose || batchNum%10 == 0 {
			fmt.Fprintf(m.out, "  %s: %d/%d (%.1f%%)\n", tableName, processed, sourceCount,
				float64(processed)/float64(sourceCount)*100)
		}
		return nil
	}).Error
	if err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	fmt.Fprintf(m.out, "  %s: completed (%d migrated, %d skipped, %d errors) in %s\n",
		tableName, stats.Migrated, stats.Skipped, stats.Errors, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

func (m *Migrator) migrateSessions(batchSize int) (*TableStats, error) {
	return migrateTable[datastore.Session](m, "sessions", batchSize)
}

func (m *Migrator) migrateSnippets(batchSize int) (*TableStats, error) {
	return migrateTable[datastore.Snippet](m, "snippets", batchSize)
}
