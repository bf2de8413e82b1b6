package cmd

import (
	"github.com/spf13/cobra"

	"efpak/pkg/efpak"
)

var addDiskCmd = &cobra.Command{
	Use:                   "add_disk PKG IMAGE",
	Short:                 "Append a whole-disk image to a package",
	Long:                  `Appends IMAGE, a raw disk image with its own MBR and partitions, as a DISK block.`,
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := efpak.CreateFile(args[0])
		if err != nil {
			return err
		}
		defer w.Close()
		return w.AddDisk(args[1])
	},
}

func init() {
	rootCmd.AddCommand(addDiskCmd)
}
