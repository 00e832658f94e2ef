// config.go: settings struct for NightSound and the functions that load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nightsound/nightsound-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// LogSettings controls the central logger.
type LogSettings struct {
	Level      string            `validate:"omitempty,oneof=trace debug info warn error"`
	Timezone   string            // "Local", "UTC" or an IANA name
	Console    bool              // text output on stdout
	File       bool              // JSON output to Path
	Path       string            // log file path
	MaxSize    int               `validate:"gte=0"` // megabytes before rotation
	MaxAge     int               `validate:"gte=0"` // days to keep rotated files
	MaxBackups int               `validate:"gte=0"` // rotated files to keep
	Compress   bool              // gzip rotated files
	Modules    map[string]string // per-module level overrides
}

// LoggingConfig converts the settings into the logger's config type.
func (l *LogSettings) LoggingConfig() *logger.LoggingConfig {
	return &logger.LoggingConfig{
		DefaultLevel: l.Level,
		Timezone:     l.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: l.Console, Level: l.Level},
		FileOutput: &logger.FileOutput{
			Enabled:         l.File,
			Path:            l.Path,
			MaxSize:         l.MaxSize,
			MaxAge:          l.MaxAge,
			MaxRotatedFiles: l.MaxBackups,
			Compress:        l.Compress,
			Level:           l.Level,
		},
		ModuleLevels: l.Modules,
	}
}

// MainSettings contains the node name and log settings.
type MainSettings struct {
	Name string      // node name shown in logs and status
	Log  LogSettings // logger configuration
}

// CaptureSettings selects and configures the sample source.
type CaptureSettings struct {
	Source     string  `validate:"oneof=device file"` // "device" or "file"
	Device     string  // capture device name or ID, empty for system default
	Input      string  // WAV file replayed when Source is "file"
	SampleRate int     `validate:"gte=8000,lte=192000"`
	FrameMs    int     `validate:"gte=10,lte=1000"` // frame length in milliseconds
	QueueSize  int     `validate:"gte=1"`           // frames buffered between source and pipeline
	Gain       float64 `validate:"gt=0,lte=16"`     // linear gain applied before analysis
}

// FrameSize returns the number of samples per frame.
func (c *CaptureSettings) FrameSize() int {
	return c.SampleRate * c.FrameMs / 1000
}

// DetectionSettings tunes the detection gate.
type DetectionSettings struct {
	Threshold   float64       `validate:"gt=0,lte=1"` // normalized RMS that opens an event
	MinDuration time.Duration // shorter events are discarded
	HangTime    time.Duration // quiet time that closes an event
	PreRoll     time.Duration // audio kept from before the trigger
	MaxDuration time.Duration // force-close after this long, 0 disables
	RMSValue    string        `validate:"oneof=peak average"` // value stored as the snippet RMS
}

// RetentionSettings bounds the snippets kept per session.
type RetentionSettings struct {
	MaxSnippets int `validate:"gte=0"` // loudest N kept per session, 0 keeps all
}

// SnippetSettings configures snippet storage.
type SnippetSettings struct {
	Path      string `validate:"required"`
	Retention RetentionSettings
}

// SessionSettings controls session lifecycle helpers.
type SessionSettings struct {
	StartDelay         time.Duration // wait before the first session starts
	AutoStop           string        // "HH:MM" clock time, empty disables
	CheckpointInterval time.Duration // liveness checkpoint period, 0 disables
}

// SQLiteSettings contains settings for the SQLite database.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains settings for the MySQL database.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     int `validate:"gte=0,lte=65535"`
}

// OutputSettings selects the persistence backend.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// TelemetrySettings controls the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings controls error telemetry. Disabled unless opted in.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// ServerSettings controls the playback API.
type ServerSettings struct {
	Enabled bool
	Listen  string
}

// Settings contains all configuration options for NightSound.
type Settings struct {
	Debug     bool   // true to enable debug mode
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main      MainSettings
	Capture   CaptureSettings
	Detection DetectionSettings
	Snippets  SnippetSettings
	Session   SessionSettings
	Output    OutputSettings
	Telemetry TelemetrySettings
	Sentry    SentrySettings
	Server    ServerSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables.
func Load() (*Settings, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default config directories and creates a default file when none exists.
func LoadFile(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings, err := unmarshalSettings()
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func unmarshalSettings() (*Settings, error) {
	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// embedded at build time
		panic(fmt.Sprintf("error reading embedded config: %v", err))
	}
	return string(data)
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveSettings writes settings to path, or to the active config file when
// path is empty, and returns the path written.
func SaveSettings(settings *Settings, path string) (string, error) {
	if settings == nil {
		return "", fmt.Errorf("settings not loaded")
	}

	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		var err error
		if path, err = FindConfigFile(); err != nil {
			return "", fmt.Errorf("error finding config file: %w", err)
		}
	}

	settingsCopy := *settings
	if err := SaveYAMLConfig(path, &settingsCopy); err != nil {
		return "", fmt.Errorf("error saving config: %w", err)
	}

	GetLogger().Info("settings saved", logger.String("path", path))
	return path, nil
}

// SaveYAMLConfig writes settings to configPath through a temporary file so a
// crash never leaves a truncated config behind. Comments are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := moveFile(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
