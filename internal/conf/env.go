// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "NIGHTSOUND_DEBUG", validateEnvBool},
		{"main.log.level", "NIGHTSOUND_LOG_LEVEL", validateEnvLogLevel},

		// Capture
		{"capture.source", "NIGHTSOUND_CAPTURE_SOURCE", validateEnvSource},
		{"capture.device", "NIGHTSOUND_CAPTURE_DEVICE", nil},
		{"capture.input", "NIGHTSOUND_CAPTURE_INPUT", nil},
		{"capture.samplerate", "NIGHTSOUND_SAMPLE_RATE", validateEnvPositiveInt},

		// Detection
		{"detection.threshold", "NIGHTSOUND_THRESHOLD", validateEnvThreshold},
		{"detection.minduration", "NIGHTSOUND_MIN_DURATION", validateEnvDuration},
		{"detection.hangtime", "NIGHTSOUND_HANG_TIME", validateEnvDuration},
		{"detection.preroll", "NIGHTSOUND_PRE_ROLL", validateEnvDuration},

		// Storage
		{"snippets.path", "NIGHTSOUND_SNIPPETS_PATH", nil},
		{"output.sqlite.path", "NIGHTSOUND_SQLITE_PATH", nil},
		{"output.mysql.password", "NIGHTSOUND_MYSQL_PASSWORD", nil},

		// Telemetry
		{"sentry.enabled", "NIGHTSOUND_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "NIGHTSOUND_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("must be one of trace, debug, info, warn, error")
}

func validateEnvSource(value string) error {
	if value != "device" && value != "file" {
		return fmt.Errorf("must be device or file")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvThreshold(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f <= 0 || f > 1 {
		return fmt.Errorf("must be in (0, 1]")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration such as 500ms or 1s")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
