package observability

import "github.com/nightsound/nightsound-go/internal/logger"

// GetLogger returns the telemetry logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
