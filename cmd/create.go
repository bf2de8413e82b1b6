package cmd

import (
	"github.com/spf13/cobra"

	"efpak/pkg/efpak"
)

var createCmd = &cobra.Command{
	Use:                   "create PKG",
	Short:                 "Create a new, empty package",
	Long:                  `Creates PKG if it doesn't already exist and writes the leading FORMAT block.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := efpak.CreateFile(args[0])
		if err != nil {
			return err
		}
		return w.Close()
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
