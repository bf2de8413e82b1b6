package cmd

import (
	"github.com/spf13/cobra"

	"efpak/internal/efpakerr"
	"efpak/pkg/efpak"
)

var addPartCmd = &cobra.Command{
	Use:                   "add_part PKG IMAGE {boot|root|app} [FS]",
	Short:                 "Append a partition image to a package",
	Long: `Appends IMAGE as the named partition's image. FS names the filesystem
it's formatted with and defaults by partition kind when omitted: boot->vfat,
root->squash, app->ext3.`,
	Args:                  cobra.RangeArgs(3, 4),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		partID, err := parsePartID(args[2])
		if err != nil {
			return err
		}
		fsID := efpak.DefaultFsID(partID)
		if len(args) == 4 {
			fsID, err = parseFsID(args[3])
			if err != nil {
				return err
			}
		}

		w, err := efpak.CreateFile(args[0])
		if err != nil {
			return err
		}
		defer w.Close()
		return w.AddPart(args[1], partID, fsID)
	},
}

func init() {
	rootCmd.AddCommand(addPartCmd)
}

func parsePartID(s string) (efpak.PartID, error) {
	switch s {
	case "boot":
		return efpak.PartBoot, nil
	case "root":
		return efpak.PartRoot, nil
	case "app":
		return efpak.PartApp, nil
	default:
		return 0, efpakerr.New(efpakerr.Operation, "unknown partition %q, want boot, root or app", s)
	}
}

func parseFsID(s string) (efpak.FsID, error) {
	switch s {
	case "vfat":
		return efpak.FsVFAT, nil
	case "squash", "squashfs":
		return efpak.FsSquashfs, nil
	case "ext2":
		return efpak.FsExt2, nil
	case "ext3":
		return efpak.FsExt3, nil
	default:
		return 0, efpakerr.New(efpakerr.Operation, "unknown filesystem %q", s)
	}
}
