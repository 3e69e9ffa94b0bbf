package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "citypulse",
		Short: "Citizen notification service for Cochin Smart City",
		Long: `CityPulse is the notification backbone of the Cochin Smart City portal.

It keeps a bounded stack of alert-style toasts, persists notification
records in SQLite, streams state snapshots to browsers over WebSocket,
and stores complaint attachments on disk or in S3.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
