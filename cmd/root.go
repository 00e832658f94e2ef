// Package cmd builds the nightsound command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nightsound/nightsound-go/cmd/config"
	"github.com/nightsound/nightsound-go/cmd/devices"
	"github.com/nightsound/nightsound-go/cmd/file"
	"github.com/nightsound/nightsound-go/cmd/realtime"
	"github.com/nightsound/nightsound-go/cmd/serve"
	"github.com/nightsound/nightsound-go/cmd/sessions"
	"github.com/nightsound/nightsound-go/cmd/snippets"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/privacy"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nightsound",
		Short:         "NightSound night-time sound recorder",
		Version:       settings.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	devicesCmd := devices.Command()
	rootCmd.AddCommand(
		realtime.Command(settings),
		file.Command(settings),
		serve.Command(settings),
		sessions.Command(settings),
		snippets.Command(settings),
		config.Command(settings),
		devicesCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := conf.ValidateSettings(settings); err != nil {
			return err
		}
		// device listing needs neither logging setup nor telemetry
		if cmd.Name() == devicesCmd.Name() {
			return nil
		}
		return initialize(settings)
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		errors.FlushTelemetry(2 * time.Second)
		_ = logger.Global().Flush()
	}

	return rootCmd
}

// initialize builds the central logger from the final settings and opts
// into error reporting.
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Main.Log.Level = "debug"
	}
	central, err := logger.NewCentralLogger(settings.Main.Log.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(central)

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, settings.Version); err != nil {
			logger.Global().Module("main").Warn("error reporting disabled", logger.Error(err))
		}
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Snippets.Path, "snippets", viper.GetString("snippets.path"), "Directory where snippet WAV files are stored")
	rootCmd.PersistentFlags().StringVar(&settings.Output.SQLite.Path, "db", viper.GetString("output.sqlite.path"), "Path to the SQLite database")
	rootCmd.PersistentFlags().IntVar(&settings.Capture.SampleRate, "samplerate", viper.GetInt("capture.samplerate"), "Capture sample rate in Hz")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
