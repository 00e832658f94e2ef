package datastore

import (
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

const (
	// DefaultSlowQueryThreshold is the duration after which a query is
	// logged as slow.
	DefaultSlowQueryThreshold = 500 * time.Millisecond

	// MaxColumnsForDetailedDisplay caps how many new column names a
	// migration log line lists.
	MaxColumnsForDetailedDisplay = 5
)

// createGormLogger routes gorm output into the datastore module logger.
func createGormLogger() gormlogger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger(), DefaultSlowQueryThreshold)
}

// performAutoMigration migrates every table and logs what changed.
func performAutoMigration(db *gorm.DB, dbType string) error {
	start := time.Now()
	log := GetLogger().With(logger.String("db_type", dbType))
	log.Debug("starting database migration")

	tables := []struct {
		model any
		name  string
	}{
		{&Session{}, "sessions"},
		{&Snippet{}, "snippets"},
	}
	for _, table := range tables {
		if err := migrateTable(db, table.model, table.name, dbType, log); err != nil {
			return err
		}
	}

	log.Debug("database migration completed",
		logger.Duration("duration", time.Since(start)),
		logger.Int("tables_migrated", len(tables)))
	return nil
}

// migrateTable migrates a single table with detailed logging.
func migrateTable(db *gorm.DB, model any, tableName, dbType string, log logger.Logger) error {
	tableStart := time.Now()
	tableExists := db.Migrator().HasTable(model)
	columnsBefore := getTableColumns(db, model, tableExists)

	if err := db.AutoMigrate(model); err != nil {
		enhancedErr := errors.New(err).
			Component(ComponentDatastore).
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "auto_migrate_table").
			Context("db_type", dbType).
			Context("table", tableName).
			Build()
		log.Error("table migration failed",
			logger.String("table", tableName),
			logger.Error(enhancedErr))
		return enhancedErr
	}

	action := "unchanged"
	added := findNewColumns(db, model, columnsBefore)
	switch {
	case !tableExists:
		action = "created"
	case len(added) > 0:
		action = "updated"
	}

	fields := []logger.Field{
		logger.String("table", tableName),
		logger.String("action", action),
		logger.Duration("duration", time.Since(tableStart)),
	}
	if len(added) > 0 && tableExists {
		fields = append(fields, logger.Int("columns_added", len(added)))
		if len(added) <= MaxColumnsForDetailedDisplay {
			fields = append(fields, logger.Any("new_columns", added))
		}
	}
	log.Debug("table migrated", fields...)
	return nil
}

func getTableColumns(db *gorm.DB, model any, tableExists bool) []string {
	if !tableExists {
		return nil
	}
	cols, err := db.Migrator().ColumnTypes(model)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, col.Name())
	}
	return names
}

func findNewColumns(db *gorm.DB, model any, before []string) []string {
	cols, err := db.Migrator().ColumnTypes(model)
	if err != nil {
		return nil
	}
	var added []string
	for _, col := range cols {
		if !slices.Contains(before, col.Name()) {
			added = append(added, col.Name())
		}
	}
	return added
}

// closeDB closes the pool behind a gorm connection.
func closeDB(db *gorm.DB, dbType string) error {
	if db == nil {
		return ErrNotOpen
	}
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "close", "db_type", dbType)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "db_type", dbType)
	}
	GetLogger().Debug(fmt.Sprintf("%s database connection closed", dbType))
	return nil
}
