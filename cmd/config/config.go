package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nightsound/nightsound-go/internal/conf"
)

// Command creates the config command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and save configuration",
	}
	cmd.AddCommand(saveCommand(settings))
	return cmd
}

func saveCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "save [path]",
		Short: "Write the effective settings, flags and environment included, to a config file",
		Long: "Write the effective settings to path, or over the active config file " +
			"when no path is given. Comments in the file are not preserved.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			written, err := conf.SaveSettings(settings, path)
			if err != nil {
				return err
			}
			fmt.Printf("Settings written to %s\n", written)
			return nil
		},
	}
}
