package config

import (
	"log/slog"
	"maps"
	"sort"

	"github.com/jpalmerr/carepulse"
)

// ClientOptions converts the api section into client options.
// The logger is passed through when non-nil.
func ClientOptions(cfg *Config, logger *slog.Logger) []carepulse.Option {
	var opts []carepulse.Option

	if len(cfg.API.Headers) > 0 {
		opts = append(opts, carepulse.WithHeaders(mapToKeyValuePairs(cfg.API.Headers)...))
	}
	if cfg.API.Timeout != 0 {
		opts = append(opts, carepulse.WithTimeout(cfg.API.Timeout.Duration()))
	}
	if cfg.API.RetryDelay != nil {
		opts = append(opts, carepulse.WithRetryDelay(cfg.API.RetryDelay.Duration()))
	}
	if logger != nil {
		opts = append(opts, carepulse.WithLogger(logger))
	}
	return opts
}

// NewClient creates the API client described by cfg.
func NewClient(cfg *Config, logger *slog.Logger) (*carepulse.Client, error) {
	return carepulse.New(cfg.API.BaseURL, ClientOptions(cfg, logger)...)
}

// BuildCards converts parsed configuration into SDK card specs.
//
// Plain cards come first, in file order, followed by each grid's cards.
// Grid dimensions are expanded via cartesian product.
func BuildCards(cfg *Config) ([]carepulse.CardSpec, error) {
	var cards []carepulse.CardSpec

	for _, cc := range cfg.Cards {
		cards = append(cards, buildCard(cc))
	}

	for _, gc := range cfg.CardGrids {
		gridCards, err := buildGridCards(gc)
		if err != nil {
			return nil, err
		}
		cards = append(cards, gridCards...)
	}

	return cards, nil
}

// DashboardOptions converts the dashboard settings and cards into
// dashboard options.
func DashboardOptions(cfg *Config, cards []carepulse.CardSpec, logger *slog.Logger) []carepulse.DashboardOption {
	opts := []carepulse.DashboardOption{
		carepulse.WithCards(cards...),
		carepulse.WithPort(cfg.Port),
		carepulse.WithRefreshInterval(cfg.Refresh()),
	}
	if cfg.Title != "" {
		opts = append(opts, carepulse.WithTitle(cfg.Title))
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, carepulse.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	if logger != nil {
		opts = append(opts, carepulse.WithDashboardLogger(logger))
	}
	return opts
}

// buildCard converts a single CardConfig to a CardSpec.
func buildCard(cc CardConfig) carepulse.CardSpec {
	return carepulse.CardSpec{
		ID:          cc.ID,
		Title:       cc.Title,
		Description: cc.Description,
		Icon:        cc.Icon,
		Resource:    cc.Resource,
		Params:      maps.Clone(cc.Params),
		Field:       cc.Field,
		Field2:      cc.Field2,
	}
}

// buildGridCards expands a GridConfig into multiple cards.
func buildGridCards(gc GridConfig) ([]carepulse.CardSpec, error) {
	opts := []carepulse.GridOption{carepulse.WithDimensions(gc.Dimensions)}
	if len(gc.DimensionParams) > 0 {
		opts = append(opts, carepulse.WithDimensionParams(mapToKeyValuePairs(gc.DimensionParams)...))
	}
	return carepulse.NewCardGrid(buildCard(gc.CardConfig), opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
