package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Show version information",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", styleBrand.Render("kvc-indicator"), styleValue.Render(version))
			fmt.Fprintf(out, "  %s  %s\n", styleLabel.Render("Commit"), styleValue.Render(commit))
			fmt.Fprintf(out, "  %s   %s\n", styleLabel.Render("Built"), styleValue.Render(buildDate))
			fmt.Fprintf(out, "  %s %s\n", styleLabel.Render("OS/Arch"), styleValue.Render(runtime.GOOS+"/"+runtime.GOARCH))
			fmt.Fprintf(out, "  %s      %s\n", styleLabel.Render("Go"), styleValue.Render(runtime.Version()))
		},
	}
}
