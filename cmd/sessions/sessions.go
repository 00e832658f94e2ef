package sessions

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nightsound/nightsound-go/internal/analysis"
	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/detection"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/library"
	"github.com/nightsound/nightsound-go/internal/session"
	"github.com/nightsound/nightsound-go/internal/snippet"
)

// Command creates the sessions command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage recorded sessions",
	}
	cmd.AddCommand(listCommand(settings), showCommand(settings), deleteCommand(settings), recoverCommand(settings))
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := analysis.NewRuntime(settings)
			if err != nil {
				return err
			}
			defer rt.Close()

			list, err := rt.Library.Sessions(limit, offset)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTART\tDURATION\tSNIPPETS\tSTATE")
			for i := range list {
				s := &list[i]
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
					s.ID, s.StartTime.Local().Format(time.DateTime),
					s.Duration(time.Now()).Round(time.Second), s.SnippetCount, state(s))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions")
	cmd.Flags().IntVar(&offset, "offset", 0, "Sessions to skip")
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	var loudest bool
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a session and its snippets",
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

			s, err := rt.Library.Session(id)
			if err != nil {
				return err
			}
			order := library.OrderTime
			if loudest {
				order = library.OrderLoudest
			}
			snippets, err := rt.Library.Snippets(id, order)
			if err != nil {
				return err
			}

			fmt.Printf("Session %d (%s)\nStarted:  %s\nDuration: %s\nSnippets: %d\n\n",
				s.ID, state(s), s.StartTime.Local().Format(time.DateTime),
				s.Duration(time.Now()).Round(time.Second), s.SnippetCount)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tDURATION\tLEVEL\tFILE")
			for _, sn := range snippets {
				fmt.Fprintf(w, "%d\t%s\t%dms\t%.1f dBFS\t%s\n",
					sn.ID, sn.Timestamp.Local().Format(time.TimeOnly), sn.DurationMs,
					detection.ToDecibels(sn.RMSValue), sn.FileName)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&loudest, "loudest", false, "Sort snippets by level instead of time")
	return cmd
}

func deleteCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a finished session and its snippet files",
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

			removed, err := rt.Library.DeleteSession(id)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted session %d and %d files\n", id, removed)
			return nil
		},
	}
}

func recoverCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Close sessions left open by a crash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := analysis.NewRuntime(settings)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.RecoverSessions(cmd.Context())
			switch {
			case errors.Is(err, snippet.ErrRecordingActive):
				return fmt.Errorf("a recorder is running on %s, stop it before recovering sessions", rt.Sink.Dir())
			case errors.Is(err, session.ErrOrphanedSessionRecovered):
				fmt.Printf("Closed orphaned sessions, latest is %d ending %s\n",
					s.ID, s.EndTime.Local().Format(time.DateTime))
			case err != nil:
				return err
			default:
				fmt.Println("No open sessions")
			}
			return nil
		},
	}
}

func state(s *datastore.Session) string {
	switch {
	case s.Active():
		return "open"
	case s.Recovered:
		return "recovered"
	default:
		return "closed"
	}
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid session id %q", arg)
	}
	return uint(id), nil
}
