package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"efpak/internal/efpakerr"
	"efpak/pkg/efpak"
)

var extractCmd = &cobra.Command{
	Use:                   "extract PKG DIR",
	Short:                 "Extract every block's payload into a directory",
	Long: `Writes each block's decompressed payload to DIR/%04x, a zero-padded
sequence number in package order starting at 0000 — every block, including
the leading FORMAT block, gets a numbered file.`,
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, dir := args[0], args[1]

		r, err := efpak.OpenFile(pkg)
		if err != nil {
			return err
		}
		defer r.Close()

		if err := os.MkdirAll(dir, 0755); err != nil {
			return efpakerr.New(efpakerr.IO, "mkdir -p %s: %v", dir, err)
		}

		for i := 0; ; i++ {
			h, err := r.NextBlock()
			if err != nil {
				return err
			}
			if h == nil {
				return nil
			}

			if err := r.StartBlock(); err != nil {
				return err
			}
			payload, err := r.ReadAll()
			if err != nil {
				return err
			}
			if err := r.EndBlock(); err != nil {
				return err
			}

			out := filepath.Join(dir, fmt.Sprintf("%04x", i))
			if err := os.WriteFile(out, payload, 0644); err != nil {
				return efpakerr.New(efpakerr.IO, "write %s: %v", out, err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
