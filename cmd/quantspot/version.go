package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Overridden at link time with -ldflags "-X main.version=...".
var version = "dev"

var cmdVersion = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("quantspot", version)
	},
}
