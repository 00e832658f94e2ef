package snippets

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nightsound/nightsound-go/internal/analysis"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/detection"
)

// Command creates the snippets command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snippets",
		Short: "List and delete recorded snippets",
	}
	cmd.AddCommand(recentCommand(settings), pathCommand(settings), deleteCommand(settings), purgeCommand(settings))
	return cmd
}

func recentCommand(settings *conf.Settings) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "recent",
		Aliases: []string{"list"},
		Short:   "List the newest snippets across sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := analysis.NewRuntime(settings)
			if err != nil {
				return err
			}
			defer rt.Close()

			list, err := rt.Library.Recent(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSESSION\tTIME\tDURATION\tLEVEL\tFILE")
			for _, s := range list {
				fmt.Fprintf(w, "%d\t%d\t%s\t%dms\t%.1f dBFS\t%s\n",
					s.ID, s.SessionID, s.Timestamp.Local().Format(time.DateTime), s.DurationMs,
					detection.ToDecibels(s.RMSValue), s.FileName)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of snippets")
	return cmd
}

func pathCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "path [id]",
		Short: "Print the WAV file path of a snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := analysis.NewRuntime(settings)
			if err != nil {
				return err
			}
			defer rt.Close()

			path, _, err := rt.Library.SnippetPath(id)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

func deleteCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a snippet and its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := analysis.NewRuntime(settings)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Library.DeleteSnippet(id); err != nil {
				return err
			}
			fmt.Printf("Deleted snippet %d\n", id)
			return nil
		},
	}
}

func purgeCommand(settings *conf.Settings) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every session, snippet and snippet file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("purge deletes all recordings, pass --yes to confirm")
			}
			rt, err := analysis.NewRuntime(settings)
			if err != nil {
				return err
			}
			defer rt.Close()

			removed, err := rt.Library.Purge()
			if err != nil {
				return err
			}
			fmt.Printf("Purged library, %d files removed\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the purge")
	return cmd
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid snippet id %q", arg)
	}
	return uint(id), nil
}
