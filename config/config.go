// Package config provides YAML configuration parsing for CarePulse.
//
// This package enables running CarePulse as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Malaria Surveillance
//	port: 8080
//	refresh_interval: 5m
//
//	api:
//	  base_url: ${CAREPULSE_API_URL:-http://localhost:8000/api/}
//	  headers:
//	    Authorization: Bearer ${CAREPULSE_API_TOKEN}
//
//	cards:
//	  - id: hospitals
//	    title: Hospitals
//	    resource: hospitals
//
//	card_grids:
//	  - id: nhia
//	    title: "Insured ({{.disease_name}} {{.year}})"
//	    resource: nhia-status
//	    field: insured
//	    dimensions:
//	      disease_name: [Malaria, Typhoid]
//	      year: ["2023", "2024"]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/carepulse"
)

const (
	defaultPort            = 8080
	defaultRefreshInterval = 5 * time.Minute

	// minRefreshInterval keeps a typo like "5ms" from hammering the API.
	minRefreshInterval = 1 * time.Second
)

// Config is the root configuration structure for CarePulse.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "CarePulse" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// MaxConcurrency bounds concurrent refreshes. Defaults to 10.
	MaxConcurrency int `yaml:"max_concurrency"`

	// RefreshInterval is the time between refresh rounds.
	// Defaults to 5m; "0s" fetches once on start. Otherwise at least 1s.
	RefreshInterval *Duration `yaml:"refresh_interval"`

	// API configures the analytics API client.
	API APIConfig `yaml:"api"`

	// Cards defines individual stat cards.
	Cards []CardConfig `yaml:"cards"`

	// CardGrids defines card grids that expand via cartesian product.
	CardGrids []GridConfig `yaml:"card_grids"`
}

// APIConfig configures the analytics API client.
type APIConfig struct {
	// BaseURL is the API root, e.g. https://analytics.example.org/api/.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// RetryDelay overrides the delay before the single retry.
	RetryDelay *Duration `yaml:"retry_delay"`

	// Headers are sent with every request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`
}

// CardConfig defines a single stat card.
type CardConfig struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`

	// Resource is the query resource name, e.g. "nhia-status".
	Resource string `yaml:"resource"`

	// Params are the query parameters.
	// Values support environment variable substitution.
	Params map[string]string `yaml:"params"`

	// Field is the dot path of the value in the payload.
	Field string `yaml:"field"`

	// Field2 is the dot path of the optional secondary value.
	Field2 string `yaml:"field2"`
}

// GridConfig defines a card grid that expands via cartesian product.
//
// The embedded card is the template: Title, Description and Params values
// may use dimension keys as template variables, e.g. {{.year}}.
type GridConfig struct {
	CardConfig `yaml:",inline"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// DimensionParams maps a dimension name to the resource parameter it
	// fills, for dimensions not named after the parameter.
	DimensionParams map[string]string `yaml:"dimension_params"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Refresh returns the configured refresh interval, or the default when
// unset.
func (c *Config) Refresh() time.Duration {
	if c.RefreshInterval == nil {
		return defaultRefreshInterval
	}
	return c.RefreshInterval.Duration()
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// expandMap expands environment variables in every value of m in place.
func expandMap(m map[string]string, context, field string) error {
	for k, v := range m {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: %s[%s]: %w", context, field, k, err)
		}
		m[k] = expanded
	}
	return nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the API base URL, header values and
// card params. Defaults are applied for Port (8080).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}
	if c.RefreshInterval != nil {
		d := c.RefreshInterval.Duration()
		if d < 0 {
			return fmt.Errorf("refresh_interval cannot be negative, got %s", d)
		}
		if d != 0 && d < minRefreshInterval {
			return fmt.Errorf("refresh_interval must be at least %s, got %s", minRefreshInterval, d)
		}
	}

	if err := c.API.expandAndValidate(); err != nil {
		return err
	}

	seen := make(map[string]string)
	for i := range c.Cards {
		card := &c.Cards[i]
		context := fmt.Sprintf("cards[%d]", i)
		if card.ID != "" {
			context = fmt.Sprintf("cards[%d] (%s)", i, card.ID)
		}

		if err := card.expandAndValidate(context); err != nil {
			return err
		}
		if prev, exists := seen[card.ID]; exists {
			return fmt.Errorf("%s: duplicate id, first used by %s", context, prev)
		}
		seen[card.ID] = context
	}

	for i := range c.CardGrids {
		g := &c.CardGrids[i]
		context := fmt.Sprintf("card_grids[%d]", i)
		if g.ID != "" {
			context = fmt.Sprintf("card_grids[%d] (%s)", i, g.ID)
		}

		if err := g.expandAndValidate(context); err != nil {
			return err
		}
		if prev, exists := seen[g.ID]; exists {
			return fmt.Errorf("%s: duplicate id, first used by %s", context, prev)
		}
		seen[g.ID] = context
	}

	if len(c.Cards) == 0 && len(c.CardGrids) == 0 {
		return errors.New("at least one card or card grid must be defined")
	}

	return nil
}

func (a *APIConfig) expandAndValidate() error {
	if a.BaseURL == "" {
		return errors.New("api: base_url is required")
	}
	expanded, err := expandEnvVars(a.BaseURL)
	if err != nil {
		return fmt.Errorf("api: base_url: %w", err)
	}
	a.BaseURL = expanded

	parsedURL, err := url.Parse(a.BaseURL)
	if err != nil {
		return fmt.Errorf("api: invalid base_url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("api: base_url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("api: base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("api: base_url must have a host")
	}

	if err := expandMap(a.Headers, "api", "headers"); err != nil {
		return err
	}

	if a.Timeout != 0 {
		if a.Timeout.Duration() < 0 {
			return fmt.Errorf("api: timeout cannot be negative, got %s", a.Timeout.Duration())
		}
		if a.Timeout.Duration() < time.Second {
			return fmt.Errorf("api: timeout must be at least 1s if specified, got %s", a.Timeout.Duration())
		}
	}
	if a.RetryDelay != nil && a.RetryDelay.Duration() < 0 {
		return fmt.Errorf("api: retry_delay cannot be negative, got %s", a.RetryDelay.Duration())
	}
	return nil
}

// expandAndValidate checks a plain card. Params must name parameters of the
// resource.
func (cc *CardConfig) expandAndValidate(context string) error {
	res, err := cc.validateCommon(context)
	if err != nil {
		return err
	}
	if _, err := res.Values(cc.Params); err != nil {
		return fmt.Errorf("%s: %w", context, err)
	}
	return nil
}

func (cc *CardConfig) validateCommon(context string) (carepulse.Resource, error) {
	if cc.ID == "" {
		return carepulse.Resource{}, fmt.Errorf("%s: id is required", context)
	}
	if cc.Resource == "" {
		return carepulse.Resource{}, fmt.Errorf("%s: resource is required", context)
	}
	res, ok := carepulse.LookupResource(cc.Resource)
	if !ok {
		return carepulse.Resource{}, fmt.Errorf("%s: unknown resource %q", context, cc.Resource)
	}
	if err := expandMap(cc.Params, context, "params"); err != nil {
		return carepulse.Resource{}, err
	}
	return res, nil
}

// expandAndValidate checks a grid. Templates must parse and every dimension
// needs distinct values.
func (g *GridConfig) expandAndValidate(context string) error {
	res, err := g.validateCommon(context)
	if err != nil {
		return err
	}

	// fail fast before the SDK tries to use an invalid template
	templates := map[string]string{"title": g.Title, "description": g.Description}
	for k, v := range g.Params {
		templates["params["+k+"]"] = v
	}
	for field, text := range templates {
		if _, err := template.New("").Parse(text); err != nil {
			return fmt.Errorf("%s: invalid %s template: %w", context, field, err)
		}
	}

	if len(g.Dimensions) == 0 {
		return fmt.Errorf("%s: at least one dimension is required", context)
	}
	for dimName, dimValues := range g.Dimensions {
		if len(dimValues) == 0 {
			return fmt.Errorf("%s: dimension %q has no values", context, dimName)
		}
		seen := make(map[string]struct{}, len(dimValues))
		for _, v := range dimValues {
			if _, exists := seen[v]; exists {
				return fmt.Errorf("%s: dimension %q has duplicate value %q", context, dimName, v)
			}
			seen[v] = struct{}{}
		}
	}

	params := make(map[string]bool, len(res.Params))
	for _, p := range res.Params {
		params[p.Name] = true
	}
	for dim, param := range g.DimensionParams {
		if _, ok := g.Dimensions[dim]; !ok {
			return fmt.Errorf("%s: dimension_params: dimension %q is not defined", context, dim)
		}
		if !params[param] {
			return fmt.Errorf("%s: dimension_params: %s has no parameter %q", context, res.Name, param)
		}
	}
	for k := range g.Params {
		if !params[k] {
			return fmt.Errorf("%s: params: %s has no parameter %q", context, res.Name, k)
		}
	}
	return nil
}
