package carepulse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/carepulse/internal/querycache"
)

// QueryKey identifies a cacheable request: a resource name followed by the
// query's parameter values in declaration order. Absent values are "".
//
// Two queries with equal keys share one cache entry and one in-flight
// request.
type QueryKey struct {
	Resource string
	Params   []string
}

// String returns the canonical form of the key, a JSON array such as
// ["nhia-status","Malaria",""].
func (k QueryKey) String() string {
	parts := make([]string, 0, len(k.Params)+1)
	parts = append(parts, k.Resource)
	parts = append(parts, k.Params...)
	b, err := json.Marshal(parts)
	if err != nil {
		// []string always marshals
		panic("carepulse: marshal query key: " + err.Error())
	}
	return string(b)
}

// resourcePrefixes returns the key prefixes covering every key of a resource:
// the exact key without params and the open array for keys with params.
func resourcePrefixes(resource string) (exact, prefix string) {
	exact = QueryKey{Resource: resource}.String()
	return exact, strings.TrimSuffix(exact, "]") + ","
}

// QueryConfig is the caching and retry policy of a query.
type QueryConfig struct {
	// StaleTime is how long a successful result is served without a new
	// request. Zero means always stale.
	StaleTime time.Duration

	// CacheRetention is how long an unused result is kept.
	CacheRetention time.Duration

	// RefetchOnFocus, RefetchOnMount and RefetchOnReconnect enable the
	// automatic refetch triggers. All built-in tiers disable them.
	RefetchOnFocus     bool
	RefetchOnMount     bool
	RefetchOnReconnect bool

	// MaxRetries is how many times a failed request is retried.
	MaxRetries int

	// RetryDelay is the fixed wait before each retry.
	RetryDelay time.Duration
}

const (
	defaultMaxRetries = 1
	defaultRetryDelay = time.Second
)

// Built-in caching tiers.
var (
	// TierReference is for slow-changing reference data such as the
	// hospital list.
	TierReference = QueryConfig{
		StaleTime:      10 * time.Minute,
		CacheRetention: 30 * time.Minute,
		MaxRetries:     defaultMaxRetries,
		RetryDelay:     defaultRetryDelay,
	}

	// TierScoped is for lookup data scoped to a parent entity, such as the
	// localities of a hospital.
	TierScoped = QueryConfig{
		StaleTime:      5 * time.Minute,
		CacheRetention: 10 * time.Minute,
		MaxRetries:     defaultMaxRetries,
		RetryDelay:     defaultRetryDelay,
	}

	// TierAnalytics is for parameter-dependent analytics. Results are always
	// stale, so every new request for a key goes to the network while
	// concurrent ones are still de-duplicated.
	TierAnalytics = QueryConfig{
		StaleTime:      0,
		CacheRetention: 5 * time.Minute,
		MaxRetries:     defaultMaxRetries,
		RetryDelay:     defaultRetryDelay,
	}
)

func (c QueryConfig) policy() querycache.Policy {
	return querycache.Policy{
		StaleTime:          c.StaleTime,
		Retention:          c.CacheRetention,
		RefetchOnMount:     c.RefetchOnMount,
		RefetchOnFocus:     c.RefetchOnFocus,
		RefetchOnReconnect: c.RefetchOnReconnect,
	}
}

// Query is a bound request for one resource with fixed parameters.
//
// A Query is cheap to create and holds no state of its own; results live in
// the [Client] cache. Queries with missing or invalid required parameters
// are disabled: they never touch the network and always report
// [StatusIdle].
type Query[T any] struct {
	client   *Client
	resource Resource
	values   []string
	enabled  bool
	decode   func([]byte) (T, error)
}

func newQuery[T any](c *Client, res Resource, values []string, decode func([]byte) (T, error)) Query[T] {
	return Query[T]{
		client:   c,
		resource: res,
		values:   values,
		enabled:  res.enabled(values),
		decode:   decode,
	}
}

// decodeJSON is the decoder for typed payloads.
func decodeJSON[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}

// decodeRaw passes the payload through untouched.
func decodeRaw(data []byte) (json.RawMessage, error) {
	return json.RawMessage(data), nil
}

// Key returns the query key.
func (q Query[T]) Key() QueryKey {
	params := make([]string, len(q.values))
	copy(params, q.values)
	return QueryKey{Resource: q.resource.Name, Params: params}
}

// Enabled reports whether every parameter satisfies its rule.
func (q Query[T]) Enabled() bool {
	return q.enabled
}

// Config returns the caching policy of the query.
func (q Query[T]) Config() QueryConfig {
	return q.resource.Config
}

// Path returns the request path relative to the API base URL. Parameters
// are appended in declaration order; absent ones are left out entirely.
func (q Query[T]) Path() string {
	return q.resource.path(q.values)
}

// Fetch returns the result for the query, making a request only when there
// is no fresh cached result. Concurrent Fetch calls for the same key share
// one request.
//
// If ctx ends first, Fetch returns the current snapshot with Err set to the
// context error, alongside any previous Data; the request keeps running and
// its result is cached.
func (q Query[T]) Fetch(ctx context.Context) Result[T] {
	if !q.enabled {
		return idleResult[T]()
	}
	entry, err := q.client.cache.Load(ctx, q.Key().String(), q.resource.Config.policy(), q.client.loader(q.Key(), q.Path(), q.resource.Config))
	r := resultFromEntry(entry, q.decode)
	if err != nil {
		r.Err = err
	}
	return r
}

// Use returns the current result without blocking, the way a view reads a
// query on every render. A missing or stale result starts a background
// request; cached data is returned meanwhile.
func (q Query[T]) Use() Result[T] {
	if !q.enabled {
		return idleResult[T]()
	}
	entry := q.client.cache.Prefetch(q.Key().String(), q.resource.Config.policy(), q.client.loader(q.Key(), q.Path(), q.resource.Config))
	return resultFromEntry(entry, q.decode)
}

// Observe subscribes to the query. The channel receives the current result
// and then every change until ctx is done, when it is closed.
//
// Observing starts a request only when there is no data yet. Existing data,
// even stale, is not refetched on attach unless the query's config sets
// RefetchOnMount. An observed result is never evicted and is refetched when
// invalidated.
//
// A disabled query yields a single idle result and the channel is closed.
func (q Query[T]) Observe(ctx context.Context) <-chan Result[T] {
	out := make(chan Result[T], 1)
	if !q.enabled {
		out <- idleResult[T]()
		close(out)
		return out
	}

	load := q.client.loader(q.Key(), q.Path(), q.resource.Config)
	entries, cancel := q.client.cache.Observe(q.Key().String(), q.resource.Config.policy(), load)

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				select {
				case out <- resultFromEntry(e, q.decode):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Invalidate marks the cached result stale. Observed queries are refetched
// right away; others on their next Fetch or Use. Reports whether a cached
// result existed.
func (q Query[T]) Invalidate() bool {
	if !q.enabled {
		return false
	}
	return q.client.cache.Invalidate(q.Key().String())
}

// buildQuery encodes present params as a query string in declaration order.
func buildQuery(names, values []string) string {
	var sb strings.Builder
	for i, name := range names {
		if i >= len(values) || values[i] == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(values[i]))
	}
	return sb.String()
}
