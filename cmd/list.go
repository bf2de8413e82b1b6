package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"efpak/pkg/efpak"
)

var listCmd = &cobra.Command{
	Use:                   "list PKG",
	Short:                 "List the blocks in a package",
	Long:                  `Prints every block header in PKG, in package order, without decompressing payload.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := efpak.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		for {
			h, err := r.NextBlock()
			if err != nil {
				return err
			}
			if h == nil {
				return nil
			}
			fmt.Println(h.Describe())
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
