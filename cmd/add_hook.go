package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"efpak/internal/efpakerr"
	"efpak/pkg/efpak"
)

var addHookCmd = &cobra.Command{
	Use:   "add_hook PKG DATA WHEN[,WHEN...]",
	Short: "Append a hook to a package",
	Long: `Appends DATA as a HOOK block: the path DATA also becomes the block's
path field, the location the installer stages or runs the hook at. WHEN is a
comma-separated list of now, prex, postx, compl, mbr. If DATA does not exist
on disk the block carries no payload, only the path, the "run this" form
instead of "stage this".`,
	Args:                  cobra.ExactArgs(3),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, data, whenArg := args[0], args[1], args[2]

		whenFlags, err := parseHookWhen(whenArg)
		if err != nil {
			return err
		}

		dataPath := data
		if _, err := os.Stat(data); err != nil {
			dataPath = ""
		}

		w, err := efpak.CreateFile(pkg)
		if err != nil {
			return err
		}
		defer w.Close()
		return w.AddHook(dataPath, data, whenFlags, efpak.HookExecExecve)
	},
}

func init() {
	rootCmd.AddCommand(addHookCmd)
}

func parseHookWhen(s string) (uint32, error) {
	var flags uint32
	for _, part := range strings.Split(s, ",") {
		switch part {
		case "now":
			flags |= efpak.HookWhenNow
		case "prex":
			flags |= efpak.HookWhenPreX
		case "postx":
			flags |= efpak.HookWhenPostX
		case "compl":
			flags |= efpak.HookWhenCompl
		case "mbr":
			flags |= efpak.HookWhenMBR
		default:
			return 0, efpakerr.New(efpakerr.Operation, "unknown hook trigger %q", part)
		}
	}
	return flags, nil
}
