package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkessler/parley/internal/version"
)

// Version returns the current version
func Version() string {
	return version.Get()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("parley version %s\n", Version())
	},
}
