package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/nightsound/nightsound-go/internal/privacy"
)

// Config holds the configuration for the export tool.
type Config struct {
	SQLitePath string

	// Target database, either a DSN or its components
	MySQLDSN      string
	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPass     string
	MySQLDatabase string

	BatchSize  int
	Clean      bool
	SkipVerify bool
	Verbose    bool

	ConfigPath string
}

// Load validates the configuration, falling back to config.yaml for the
// connection settings.
func (c *Config) Load() error {
	if c.SQLitePath == "" {
		if err := c.loadFromConfigFile(); err != nil && c.SQLitePath == "" {
			return fmt.Errorf("--sqlite-path is required (or provide config.yaml)")
		}
	}

	if _, err := os.Stat(c.SQLitePath); os.IsNotExist(err) {
		return fmt.Errorf("SQLite database not found: %s", c.SQLitePath)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be at least 1")
	}
	if c.BatchSize > 10000 {
		return fmt.Errorf("batch-size too large (max 10000)")
	}

	return nil
}

// loadFromConfigFile reads output.sqlite and output.mysql from a nightsound
// config file.
func (c *Config) loadFromConfigFile() error {
	v := viper.New()

	configPath := c.ConfigPath
	if configPath == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			p := filepath.Join(homeDir, ".config", "nightsound", "config.yaml")
			if _, statErr := os.Stat(p); statErr == nil {
				configPath = p
			}
		}
		if configPath == "" {
			configPath = "config.yaml"
		}
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if c.SQLitePath == "" {
		c.SQLitePath = v.GetString("output.sqlite.path")
	}

	if c.MySQLDSN == "" && v.GetBool("output.mysql.enabled") {
		c.MySQLHost = v.GetString("output.mysql.host")
		c.MySQLPort = v.GetInt("output.mysql.port")
		if c.MySQLPort == 0 {
			c.MySQLPort = 3306
		}
		c.MySQLUser = v.GetString("output.mysql.username")
		c.MySQLPass = v.GetString("output.mysql.password")
		c.MySQLDatabase = v.GetString("output.mysql.database")
	}

	return nil
}

// GetMySQLDSN returns MySQLDSN as-is when set, otherwise builds one from
// the individual components.
func (c *Config) GetMySQLDSN() string {
	if c.MySQLDSN != "" {
		return c.MySQLDSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.MySQLUser, c.MySQLPass, c.MySQLHost, c.MySQLPort, c.MySQLDatabase)
}

// GetSanitizedMySQLDSN returns the DSN with credentials and host redacted
// for printing.
func (c *Config) GetSanitizedMySQLDSN() string {
	return privacy.ScrubMessage(c.GetMySQLDSN())
}
