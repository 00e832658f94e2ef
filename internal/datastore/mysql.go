package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/privacy"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// buildMySQLDSN formats a go-sql-driver DSN. parseTime is required for the
// time columns and loc=UTC keeps stored times zone-free.
func buildMySQLDSN(s *conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// Open connects to the server and migrates the schema.
func (store *MySQLStore) Open() error {
	cfg := &store.Settings.Output.MySQL
	db, err := gorm.Open(mysql.Open(buildMySQLDSN(cfg)), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		// driver errors can echo the DSN
		return dbError(privacy.WrapError(err), "open",
			"db_type", "mysql",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Database)
	}

	GetLogger().Info("connected to mysql database",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database))
	store.DB = db
	return performAutoMigration(db, "mysql")
}

// Close closes the database connection.
func (store *MySQLStore) Close() error {
	return closeDB(store.DB, "mysql")
}
