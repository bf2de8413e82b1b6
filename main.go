package main

import (
	"os"

	"efpak/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
