// Package conf provides configuration management for NightSound.
package conf

import "github.com/nightsound/nightsound-go/internal/logger"

// GetLogger returns the config package logger. It is fetched on every call
// because the central logger is installed after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
