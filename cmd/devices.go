// Package cmd holds the auxiliary CLI subcommands.
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/nexy-voice/audiod/internal/device"
	"github.com/nexy-voice/audiod/internal/logging"
	"github.com/nexy-voice/audiod/internal/platform"
	"github.com/spf13/cobra"
)

// CreateDevicesCmd creates the devices command: a one-shot enumeration of
// the audio endpoints the platform reports, with the current defaults
// marked. Useful for picking UIDs when debugging switch behavior.
func CreateDevicesCmd() *cobra.Command {
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long: `Enumerates the input and output audio endpoints the platform currently ` +
			`reports and marks the default device of each direction.`,
		Run: func(_ *cobra.Command, _ []string) {
			format := "text"
			if logJSON {
				format = "json"
			}
			logging.Initialize(logging.Config{Level: "warn", Format: format})
			logger := logging.GetLogger("devices")

			p, err := platform.New()
			if err != nil {
				logger.Error("Failed to initialize audio platform", "error", err)
				os.Exit(1)
			}
			defer p.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIRECTION\tUID\tNAME\tRATE\tBLUETOOTH\tDEFAULT")

			for _, direction := range device.Directions {
				raws, listErr := p.ListDevices(direction.DeviceType())
				if listErr != nil {
					logger.Error("Device enumeration failed", "direction", direction, "error", listErr)
					continue
				}
				for _, raw := range raws {
					d := device.NewDescriptor(raw, direction)
					marker := ""
					if raw.IsDefault {
						marker = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\t%s\n",
						direction, d.UID, d.Name, int(d.SampleRate), d.IsBluetooth, marker)
				}
			}
			w.Flush()
		},
	}

	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	return cmd
}
