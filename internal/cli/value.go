package cli

import (
	"github.com/spf13/cobra"
)

var valueSerial string

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Revalue the stored fleet, or one device with --serial",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Value(cmd.Context(), valueSerial)
	},
}

func init() {
	valueCmd.Flags().StringVar(&valueSerial, "serial", "", "Value a single device by serial number")
}
