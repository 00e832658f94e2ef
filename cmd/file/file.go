package file

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nightsound/nightsound-go/internal/analysis"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/detection"
)

// Command creates the replay command, which runs a WAV recording through
// the detection pipeline as one session.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "replay [input.wav]",
		Aliases: []string{"file"},
		Short:   "Replay a recording as a session",
		Long:    "Run a mono 16-bit WAV file through detection and store the snippets it produces as a new session.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := analysis.FileAnalysis(cmd.Context(), settings, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Session %d: %d snippets, %d frames processed\n",
				res.Session.ID, len(res.Snippets), res.Status.FramesProcessed)
			if len(res.Snippets) == 0 {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTART\tDURATION\tLEVEL\tFILE")
			for _, s := range res.Snippets {
				fmt.Fprintf(w, "%d\t%s\t%dms\t%.1f dBFS\t%s\n",
					s.ID, s.Timestamp.Format("15:04:05.000"), s.DurationMs,
					detection.ToDecibels(s.RMSValue), s.FileName)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Float64VarP(&settings.Detection.Threshold, "threshold", "t", settings.Detection.Threshold, "Normalized RMS level that opens an event, 0..1")
	cmd.Flags().Float64Var(&settings.Capture.Gain, "gain", settings.Capture.Gain, "Linear gain applied before analysis")

	return cmd
}
