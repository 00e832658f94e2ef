package realtime

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nightsound/nightsound-go/internal/analysis"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// Command creates the record command, which captures one session from the
// configured device.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "record",
		Aliases: []string{"realtime"},
		Short:   "Record a night session",
		Long:    "Capture audio from the configured source and store a snippet for every loud event until interrupted or the auto-stop time.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// --input alone means replaying that file
			if settings.Capture.Input != "" && !cmd.Flags().Changed("source") {
				settings.Capture.Source = "file"
			}
			if viper.ConfigFileUsed() != "" {
				conf.Watch(func(*conf.Settings) {
					logger.Global().Module("main").Info("config file changed, restart recording to apply it")
				})
			}
			return analysis.RealtimeAnalysis(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	return cmd
}

// setupFlags configures flags specific to the record command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Capture.Source, "source", viper.GetString("capture.source"), "Sample source: device or file")
	cmd.Flags().StringVar(&settings.Capture.Device, "device", viper.GetString("capture.device"), "Capture device name or ID, empty for the system default")
	cmd.Flags().StringVar(&settings.Capture.Input, "input", viper.GetString("capture.input"), "WAV file to replay when source is file")
	cmd.Flags().Float64VarP(&settings.Detection.Threshold, "threshold", "t", viper.GetFloat64("detection.threshold"), "Normalized RMS level that opens an event, 0..1")
	cmd.Flags().DurationVar(&settings.Detection.MinDuration, "min-duration", viper.GetDuration("detection.minduration"), "Shortest event that is kept")
	cmd.Flags().DurationVar(&settings.Detection.HangTime, "hang-time", viper.GetDuration("detection.hangtime"), "Time below threshold before an event closes")
	cmd.Flags().DurationVar(&settings.Detection.PreRoll, "pre-roll", viper.GetDuration("detection.preroll"), "Audio kept from before the trigger")
	cmd.Flags().DurationVar(&settings.Session.StartDelay, "start-delay", viper.GetDuration("session.startdelay"), "Wait this long before recording")
	cmd.Flags().StringVar(&settings.Session.AutoStop, "auto-stop", viper.GetString("session.autostop"), "Stop recording at this clock time (HH:MM)")
	cmd.Flags().IntVar(&settings.Snippets.Retention.MaxSnippets, "max-snippets", viper.GetInt("snippets.retention.maxsnippets"), "Keep only the N loudest snippets, 0 keeps all")
	cmd.Flags().BoolVar(&settings.Server.Enabled, "serve", viper.GetBool("server.enabled"), "Run the playback server while recording")
	cmd.Flags().StringVar(&settings.Server.Listen, "listen", viper.GetString("server.listen"), "Listen address of the playback server")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "telemetry-listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
