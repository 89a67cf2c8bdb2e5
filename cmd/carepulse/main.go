// Package main is the entry point for the carepulse CLI.
//
// CarePulse can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	carepulse serve -c config.yaml                          # Start the dashboard
//	carepulse validate -c config.yaml                       # Validate configuration
//	carepulse fetch -c config.yaml hospitals                # Run one query
//	carepulse fetch --base-url URL nhia-status year=2024 ... # Run one query without a config
//	carepulse resources                                     # List queryable resources
//	carepulse version                                       # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "carepulse",
	Short: "A live dashboard for healthcare analytics",
	Long: `CarePulse is a live stat-card dashboard for a healthcare analytics API.

It queries hospital, locality and disease analytics endpoints, caches the
results per query and shows them as stat cards that update over
Server-Sent Events.

Quick start:
  1. Create a config file (carepulse.yaml)
  2. Run: carepulse serve -c carepulse.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  api:
    base_url: https://analytics.example.org/api/
  cards:
    - id: hospitals
      title: Hospitals
      resource: hospitals`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already prints the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this carepulse binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "carepulse %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
