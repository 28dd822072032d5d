package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridable at build time via -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wakesync version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("wakesync", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
