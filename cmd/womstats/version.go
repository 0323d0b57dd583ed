package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// set with -ldflags "-X main.version=..."
var version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	// no config needed
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		v, commit := buildInfo()
		fmt.Printf("womstats %s", v)
		if commit != "" {
			if len(commit) > 8 {
				commit = commit[:8]
			}
			fmt.Printf(" (git: %s)", commit)
		}
		fmt.Println()
	},
}

func buildInfo() (string, string) {
	v := version
	var commit string
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				commit = s.Value
			}
		}
	}
	if v == "" {
		v = "(devel)"
	}
	return v, commit
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
