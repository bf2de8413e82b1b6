// Package cmd implements the efpak command-line driver: one file per
// subcommand, each registering itself with rootCmd from its own init().
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "efpak",
	Short: "Build and install efpak firmware update packages",
	Long: `efpak authors and installs efpak firmware update packages: a disk image,
partition images, loose files and hooks framed into one streamable container,
plus an installer that writes them onto a partitioned A/B block device.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and returns the process exit status, printing
// "success" or "failure" the way the original tool's main() does.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		fmt.Println("failure")
		return 1
	}
	fmt.Println("success")
	return 0
}
