package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"efpak/internal/diskio"
	"efpak/internal/installer"
	"efpak/pkg/efpak"
)

var installCmd = &cobra.Command{
	Use:                   "install PKG {root|DEVNAME}",
	Short:                 "Install a package onto a block device",
	Long: `Streams PKG's DISK/PART blocks onto the named block device and its
FILE blocks into the running filesystem. Each PART slot is published to the
running kernel and mounted right after it is written; the MBR is rewritten
only once every write has succeeded. "root" resolves to the disk backing the running root
filesystem; any other value names a device under /dev directly.`,
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, target := args[0], args[1]

		devName := target
		if target == "root" {
			name, err := diskio.ResolveRootDevice()
			if err != nil {
				return err
			}
			devName = name
		}

		disk, err := diskio.Open(devName)
		if err != nil {
			return err
		}
		defer disk.Close()

		r, err := efpak.OpenFile(pkg)
		if err != nil {
			return err
		}
		defer r.Close()

		in := installer.New(disk, r)
		return in.Run(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
