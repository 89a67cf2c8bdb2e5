package carepulse

import (
	"errors"
	"log/slog"
	"time"
)

// dashboardConfig holds mutable state during Dashboard construction.
type dashboardConfig struct {
	title           string
	cards           []CardSpec
	port            int
	maxConcurrency  int
	refreshInterval time.Duration
	logger          *slog.Logger
}

// DashboardOption configures a [Dashboard] during construction.
//
// Built-in options: [WithCards], [WithTitle], [WithPort],
// [WithMaxConcurrency], [WithRefreshInterval], [WithDashboardLogger].
type DashboardOption func(*dashboardConfig) error

// WithCards adds cards to the dashboard, in display order.
//
// Can be called multiple times; cards accumulate. Combine with
// [NewCardGrid] to add a generated set.
//
// Example:
//
//	d, err := carepulse.NewDashboard(client,
//	    carepulse.WithCards(hospitalsCard),
//	    carepulse.WithCards(grid...),
//	)
func WithCards(cards ...CardSpec) DashboardOption {
	return func(cfg *dashboardConfig) error {
		cfg.cards = append(cfg.cards, cards...)
		return nil
	}
}

// WithTitle sets the dashboard page title. Defaults to "CarePulse".
//
// Returns an error if the title is empty.
func WithTitle(title string) DashboardOption {
	return func(cfg *dashboardConfig) error {
		if title == "" {
			return errors.New("title cannot be empty")
		}
		cfg.title = title
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) DashboardOption {
	return func(cfg *dashboardConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency sets the maximum number of queries refreshed at once.
// Defaults to 10 if not specified.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) DashboardOption {
	return func(cfg *dashboardConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithRefreshInterval sets how often card queries are refreshed.
//
// Each round fetches every card query; results still fresh under their
// resource's stale time come from the cache. Zero fetches once on start and
// never again. Defaults to 5 minutes.
//
// Returns an error if the duration is negative.
func WithRefreshInterval(d time.Duration) DashboardOption {
	return func(cfg *dashboardConfig) error {
		if d < 0 {
			return errors.New("refresh interval cannot be negative")
		}
		cfg.refreshInterval = d
		return nil
	}
}

// WithDashboardLogger sets a custom [slog.Logger] for the dashboard.
// If not specified, the client's logger is used.
//
// Returns an error if the logger is nil.
func WithDashboardLogger(logger *slog.Logger) DashboardOption {
	return func(cfg *dashboardConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}
