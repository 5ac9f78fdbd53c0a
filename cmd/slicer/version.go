package main

import (
	"github.com/spf13/cobra"

	"stele-slicer/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.String())
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
