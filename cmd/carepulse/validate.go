package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/carepulse/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a CarePulse configuration file without starting the server.

This command parses the YAML, expands environment variables, validates all
fields and expands card grids. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  carepulse validate -c config.yaml
  carepulse validate --config /etc/carepulse/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// expanding grids catches template keys no dimension provides
	cards, err := config.BuildCards(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	directCards := len(cfg.Cards)
	gridCards := len(cards) - directCards

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  API:              %s\n", cfg.API.BaseURL)
	fmt.Fprintf(out, "  Port:             %d\n", cfg.Port)
	fmt.Fprintf(out, "  Refresh interval: %s\n", cfg.Refresh())
	fmt.Fprintf(out, "  Cards:            %d direct + %d from grids = %d total\n",
		directCards, gridCards, len(cards))

	return nil
}
