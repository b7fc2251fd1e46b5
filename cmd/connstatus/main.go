package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "connstatus",
		Short: "Connection status for the Plex and Discord backends",
		Long: `connstatus tracks the media server and presence connections of a
PlexCord backend over its event bus.

It pulls status snapshots, follows push events, resolves error codes into
user-facing messages and retries lost connections once after startup.

Examples:
  connstatus status                 Print the current state and exit
  connstatus watch                  Follow changes until interrupted
  connstatus retry plex             Ask the backend to reconnect Plex
  connstatus connect --interactive  Connect Discord with a prompted client ID
  connstatus simulate               Run against an in-process backend`,
		SilenceUsage: true,
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "config file path")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	root.PersistentFlags().String("format", "text", "output format (text, json)")

	root.AddCommand(
		statusCmd(),
		watchCmd(),
		retryCmd(),
		connectCmd(),
		simulateCmd(),
		eventsCmd(),
		metricsCmd(),
		versionCmd(),
	)

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connstatus %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
