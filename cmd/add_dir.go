package cmd

import (
	"github.com/spf13/cobra"

	"efpak/pkg/efpak"
)

var addDirCmd = &cobra.Command{
	Use:                   "add_dir PKG SRC DST",
	Short:                 "Append a local directory tree to a package",
	Long:                  `Walks SRC recursively, adding a FILE block for every regular file found, destined under DST.`,
	Args:                  cobra.ExactArgs(3),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := efpak.CreateFile(args[0])
		if err != nil {
			return err
		}
		defer w.Close()
		return w.AddDir(args[1], args[2])
	},
}

func init() {
	rootCmd.AddCommand(addDirCmd)
}
