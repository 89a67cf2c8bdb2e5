package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/carepulse"
	"github.com/jpalmerr/carepulse/config"
	"github.com/jpalmerr/carepulse/statcard"
)

// fetchCmd runs a single query and prints its payload.
var fetchCmd = &cobra.Command{
	Use:   "fetch <resource> [param=value ...]",
	Short: "Run one query and print the result",
	Long: `Run one query against the analytics API and print the JSON payload.

The API base URL and headers come from the config file, or from --base-url
when no config is given. With --field, only the value at that dot path is
printed, formatted as a stat card would show it.

Example:
  carepulse fetch -c config.yaml hospitals
  carepulse fetch --base-url http://localhost:8000/api/ nhia-status disease_name=Malaria year=2024
  carepulse fetch -c config.yaml nhia-status disease_name=Malaria --field insured`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringP("config", "c", "", "path to config file")
	fetchCmd.Flags().String("base-url", "", "API base URL (overrides the config file)")
	fetchCmd.Flags().String("field", "", "dot path of a single value to print")
	fetchCmd.Flags().Duration("timeout", 30*time.Second, "overall time limit, including the retry")
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger := newLogger(slog.LevelWarn)

	resource := args[0]
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}

	client, err := fetchClient(cmd, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	q, err := client.Query(resource, params)
	if err != nil {
		return err
	}
	if !q.Enabled() {
		res, _ := carepulse.LookupResource(resource)
		return fmt.Errorf("query %s is disabled: required parameters are %s",
			q.Key(), strings.Join(res.ParamNames(), ", "))
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	r := q.Fetch(ctx)
	if r.Err != nil {
		return fmt.Errorf("fetch %s: %w", q.Path(), r.Err)
	}

	out := cmd.OutOrStdout()
	if field, _ := cmd.Flags().GetString("field"); field != "" {
		v, err := carepulse.ValueAt(r.Data, field)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, statcard.FormatValue(v))
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Data, "", "  "); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(out)
	return err
}

// fetchClient builds the client from --config and/or --base-url.
func fetchClient(cmd *cobra.Command, logger *slog.Logger) (*carepulse.Client, error) {
	configFile, _ := cmd.Flags().GetString("config")
	baseURL, _ := cmd.Flags().GetString("base-url")

	if configFile == "" {
		if baseURL == "" {
			return nil, errors.New("either --config or --base-url is required")
		}
		return carepulse.New(baseURL, carepulse.WithLogger(logger))
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	return config.NewClient(cfg, logger)
}

// parseParams parses "name=value" arguments.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", arg)
		}
		params[name] = value
	}
	return params, nil
}
