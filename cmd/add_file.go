package cmd

import (
	"github.com/spf13/cobra"

	"efpak/pkg/efpak"
)

var addFileCmd = &cobra.Command{
	Use:                   "add_file PKG SRC DST",
	Short:                 "Append a loose file to a package",
	Long:                  `Appends SRC's contents as a FILE block, to be installed at the absolute path DST.`,
	Args:                  cobra.ExactArgs(3),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := efpak.CreateFile(args[0])
		if err != nil {
			return err
		}
		defer w.Close()
		return w.AddFile(args[1], args[2])
	},
}

func init() {
	rootCmd.AddCommand(addFileCmd)
}
