package cmd

import (
	"github.com/spf13/cobra"

	"efpak/internal/efpakerr"
)

var sendCmd = &cobra.Command{
	Use:                   "send PKG ADDR",
	Short:                 "Send a package to a remote device (unsupported)",
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return efpakerr.New(efpakerr.Unsupported, "send is not implemented")
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
