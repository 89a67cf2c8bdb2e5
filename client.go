package carepulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/carepulse/internal/querycache"
	"github.com/jpalmerr/carepulse/internal/transport"
)

const defaultTimeout = 10 * time.Second

// Client is a caching, de-duplicating client for the health analytics API.
//
// Queries built from a Client share its cache: results are keyed by
// [QueryKey], concurrent requests for one key collapse into one, and each
// resource's [QueryConfig] decides how long results stay fresh. A failed
// request is retried once after a fixed delay.
//
// Create a Client with [New] and release it with [Client.Close].
type Client struct {
	baseURL        string
	headers        map[string]string
	timeout        time.Duration
	retryDelay     *time.Duration
	clock          clockwork.Clock
	logger         *slog.Logger
	http           *transport.Client
	cache          *querycache.Cache
	registry       *prometheus.Registry
	metrics        *clientMetrics
	fetchCallbacks []func(FetchResult)
}

// New creates a [Client] for the API rooted at baseURL, e.g.
// "https://analytics.example.org/api/".
//
// Returns an error if baseURL is not an absolute http(s) URL or an option
// is invalid.
//
// Example:
//
//	client, err := carepulse.New("https://analytics.example.org/api/",
//	    carepulse.WithTimeout(5*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	res := client.Hospitals().Fetch(ctx)
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.New("invalid base URL: " + err.Error())
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("base URL must have a scheme (http:// or https://)")
	}
	if parsed.Host == "" {
		return nil, errors.New("base URL must have a host")
	}

	cfg := &clientConfig{
		headers: make(map[string]string),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	registry := cfg.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics, err := newClientMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	cacheOpts := []querycache.Option{
		querycache.WithClock(clock),
		querycache.WithMetrics(metrics),
		querycache.WithLogger(logger),
	}
	if cfg.gcInterval != nil {
		cacheOpts = append(cacheOpts, querycache.WithGCInterval(*cfg.gcInterval))
	}

	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/") + "/",
		headers:        cfg.headers,
		timeout:        cfg.timeout,
		retryDelay:     cfg.retryDelay,
		clock:          clock,
		logger:         logger,
		http:           transport.NewClient(),
		cache:          querycache.New(cacheOpts...),
		registry:       registry,
		metrics:        metrics,
		fetchCallbacks: cfg.fetchCallbacks,
	}, nil
}

// Close stops background cache work, abandons in-flight requests and
// releases idle connections. Safe to call more than once.
func (c *Client) Close() {
	c.cache.Close()
	c.http.Close()
}

// BaseURL returns the API base URL, always ending in a slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// MetricsGatherer returns the registry holding the client's metrics.
func (c *Client) MetricsGatherer() prometheus.Gatherer {
	return c.registry
}

// Invalidate marks the result for key stale. See [Query.Invalidate].
func (c *Client) Invalidate(key QueryKey) bool {
	return c.cache.Invalidate(key.String())
}

// InvalidateResource marks every cached result of a resource stale and
// returns how many were affected.
func (c *Client) InvalidateResource(resource string) int {
	exact, prefix := resourcePrefixes(resource)
	n := c.cache.InvalidatePrefix(prefix)
	if c.cache.Invalidate(exact) {
		n++
	}
	return n
}

// WindowFocused signals that the user returned to the dashboard. Observed
// queries whose config sets RefetchOnFocus are refetched. Returns the number
// of requests started; zero for the built-in tiers.
func (c *Client) WindowFocused() int {
	return c.cache.RefetchOnFocus()
}

// Reconnected signals that connectivity was restored. Observed queries whose
// config sets RefetchOnReconnect are refetched. Returns the number of
// requests started; zero for the built-in tiers.
func (c *Client) Reconnected() int {
	return c.cache.RefetchOnReconnect()
}

// CacheStats returns a snapshot of the cache counters.
func (c *Client) CacheStats() querycache.Stats {
	return c.cache.Stats()
}

// Entries returns a snapshot of every cached result, ordered by key.
func (c *Client) Entries() []querycache.Entry {
	return c.cache.Entries()
}

// Subscribe returns a channel receiving every cache change. Sends are
// non-blocking; a slow subscriber misses updates. Call [Client.Unsubscribe]
// when done.
func (c *Client) Subscribe() <-chan querycache.Entry {
	return c.cache.Subscribe()
}

// Unsubscribe removes a subscription created by [Client.Subscribe].
func (c *Client) Unsubscribe(ch <-chan querycache.Entry) {
	c.cache.Unsubscribe(ch)
}

// loader returns the cache loader for one query: a GET with up to
// cfg.MaxRetries retries spaced by the retry delay.
func (c *Client) loader(key QueryKey, path string, cfg QueryConfig) querycache.Loader {
	delay := cfg.RetryDelay
	if c.retryDelay != nil {
		delay = *c.retryDelay
	}

	return func(ctx context.Context) ([]byte, error) {
		var lastErr error
		for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
			if attempt > 1 {
				c.metrics.retry(key.Resource)
				if err := c.wait(ctx, delay); err != nil {
					return nil, lastErr
				}
			}

			body, err := c.get(ctx, key, path, attempt)
			if err == nil {
				return body, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-c.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// get performs one request and records it.
func (c *Client) get(ctx context.Context, key QueryKey, path string, attempt int) ([]byte, error) {
	resp := c.http.Get(ctx, c.baseURL+path, c.headers, c.timeout)

	result := FetchResult{
		Key:        key,
		Path:       path,
		Attempt:    attempt,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		RequestID:  resp.RequestID,
		At:         c.clock.Now(),
	}

	logAttrs := []any{
		"resource", key.Resource,
		"path", path,
		"attempt", attempt,
		"status_code", resp.StatusCode,
		"latency_ms", resp.Latency.Milliseconds(),
		"request_id", resp.RequestID,
	}

	var body []byte
	outcome := outcomeSuccess
	if resp.OK() {
		body = resp.Body
		c.logger.Debug("query fetched", logAttrs...)
	} else {
		apiErr := newAPIError(path, resp)
		result.Err = apiErr
		outcome = outcomeServerError
		if apiErr.Kind == KindNetworkFailure {
			outcome = outcomeNetworkFailure
		}
		c.logger.Warn("query fetch failed", append(logAttrs, "error", apiErr.Error())...)
	}
	c.metrics.observeRequest(key.Resource, outcome, resp.Latency)

	for _, cb := range c.fetchCallbacks {
		invokeCallbackSafe(cb, result, c.logger)
	}

	if result.Err != nil {
		return nil, result.Err
	}
	return body, nil
}

// invokeCallbackSafe calls a fetch callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(FetchResult), result FetchResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("fetch callback panicked",
				"panic", r,
				"path", result.Path,
			)
		}
	}()
	cb(result)
}
