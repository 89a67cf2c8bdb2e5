package carepulse

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// clientConfig holds mutable state during Client construction.
type clientConfig struct {
	headers        map[string]string
	timeout        time.Duration
	retryDelay     *time.Duration
	logger         *slog.Logger
	clock          clockwork.Clock
	registry       *prometheus.Registry
	gcInterval     *time.Duration
	fetchCallbacks []func(FetchResult)
}

// Option is a function that configures a [Client] during construction.
//
// Options return an error if validation fails.
type Option func(*clientConfig) error

// WithHeaders adds static HTTP headers sent with every request, such as an
// API key. Headers are passed through verbatim.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	client, err := carepulse.New(baseURL,
//	    carepulse.WithHeaders("X-Api-Key", key),
//	)
func WithHeaders(keyValues ...string) Option {
	return func(cfg *clientConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithRetryDelay overrides the retry delay of every query's tier.
//
// Returns an error if the duration is negative. Zero retries immediately.
func WithRetryDelay(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d < 0 {
			return errors.New("retry delay cannot be negative")
		}
		cfg.retryDelay = &d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the client.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock sets the clock used for staleness, retention and retry delays.
// Tests pass a [clockwork.FakeClock].
func WithClock(clock clockwork.Clock) Option {
	return func(cfg *clientConfig) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = clock
		return nil
	}
}

// WithRegistry registers the client's metrics on reg instead of a private
// registry. See [Client.MetricsGatherer].
func WithRegistry(reg *prometheus.Registry) Option {
	return func(cfg *clientConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithGCInterval sets how often unused, expired results are evicted.
// Defaults to one minute. Zero disables background collection.
func WithGCInterval(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d < 0 {
			return errors.New("gc interval cannot be negative")
		}
		cfg.gcInterval = &d
		return nil
	}
}

// WithFetchCallback registers a function called after every HTTP attempt.
//
// Callbacks run synchronously on the request goroutine and must not block.
// Panics are recovered and logged. Multiple callbacks run in registration
// order. Nil callbacks are ignored.
//
// Example:
//
//	client, err := carepulse.New(baseURL,
//	    carepulse.WithFetchCallback(func(r carepulse.FetchResult) {
//	        if r.Err != nil {
//	            log.Printf("%s failed on attempt %d", r.Path, r.Attempt)
//	        }
//	    }),
//	)
func WithFetchCallback(cb func(FetchResult)) Option {
	return func(cfg *clientConfig) error {
		if cb == nil {
			return nil
		}
		cfg.fetchCallbacks = append(cfg.fetchCallbacks, cb)
		return nil
	}
}
