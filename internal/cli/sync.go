package cli

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the device inventory into the local snapshot table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context())
	},
}
