package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is overridden at link time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "minigpt %s\n", Version)
		},
	}
}
