package main

import (
	"os"

	"github.com/roman-kulish/impedance-sweeper/cmd/eisctl/cmd"
)

func main() {
	if err := cmd.NewRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
