package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nightsound/nightsound-go/internal/audiocore/sources"
)

// Command creates the devices command, which lists capture devices.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := sources.ListAvailableDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No capture devices found")
				return nil
			}
			for _, d := range devices {
				marker := " "
				if d.IsDefault {
					marker = "*"
				}
				fmt.Printf("%s %d: %s (%s)\n", marker, d.Index, d.Name, d.ID)
			}
			return nil
		},
	}
}
