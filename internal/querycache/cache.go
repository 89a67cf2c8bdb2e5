package querycache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	defaultGCInterval = time.Minute

	// observerBuffer is the channel buffer for per-key observers. A full
	// buffer drops its oldest entry, so slow observers skip intermediate
	// states but always end on the latest one.
	observerBuffer   = 16
	subscriberBuffer = 100
)

// Metrics receives cache events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Hit()
	Miss()
	Shared()
	Evicted()
}

// NoopMetrics discards all events.
type NoopMetrics struct{}

func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Shared()  {}
func (NoopMetrics) Evicted() {}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Loads     uint64 `json:"loads"`
	Shared    uint64 `json:"shared"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

// Cache is a query-keyed store of JSON payloads with in-flight load
// de-duplication, staleness tracking and observer-aware garbage collection.
//
// All methods are safe for concurrent use.
type Cache struct {
	clock      clockwork.Clock
	metrics    Metrics
	logger     *slog.Logger
	gcInterval time.Duration

	// group is the in-flight registry: at most one load per key runs at a
	// time and concurrent callers attach to it.
	group singleflight.Group

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu      sync.Mutex
	records map[string]*record
	stats   Stats

	subMu       sync.RWMutex
	subscribers map[chan Entry]struct{}
}

// Option configures a [Cache].
type Option func(*Cache)

// WithClock sets the clock used for staleness and expiry. Defaults to the
// real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [NoopMetrics].
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger sets the logger used for loader panics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithGCInterval sets how often expired, unobserved entries are collected.
// Zero or negative disables the background janitor; [Cache.Collect] can still
// be called directly.
func WithGCInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.gcInterval = d
	}
}

// New creates a [Cache] and starts its janitor.
// Call [Cache.Close] to stop background work.
func New(opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		clock:       clockwork.NewRealClock(),
		metrics:     NoopMetrics{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		gcInterval:  defaultGCInterval,
		ctx:         ctx,
		cancel:      cancel,
		records:     make(map[string]*record),
		subscribers: make(map[chan Entry]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.startJanitor()
	return c
}

// Close cancels in-flight loads and stops the janitor. Safe to call more
// than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
	})
	c.wg.Wait()
}

// Load returns the entry for key, calling load only when there is no fresh
// successful entry.
//
// Concurrent calls for the same key share one in-flight load. The returned
// error is non-nil only when ctx ends before the shared load settles; the load
// keeps running and its result is still cached. Load failures are reported in
// Entry.Err, not as the error return.
func (c *Cache) Load(ctx context.Context, key string, policy Policy, load Loader) (Entry, error) {
	now := c.clock.Now()

	c.mu.Lock()
	rec := c.recordLocked(key, policy, load, now)
	if rec.entry.Fresh(now) {
		entry := rec.entry
		c.stats.Hits++
		c.mu.Unlock()
		c.metrics.Hit()
		return entry, nil
	}
	seq := rec.seq
	c.markLoadingLocked(rec)
	c.stats.Misses++
	c.mu.Unlock()
	c.metrics.Miss()

	for {
		select {
		case res := <-c.flight(key, seq, policy, load):
			out := res.Val.(settled)
			if out.seq < seq {
				continue
			}
			if res.Shared {
				c.mu.Lock()
				c.stats.Shared++
				c.mu.Unlock()
				c.metrics.Shared()
			}
			return out.entry, nil
		case <-ctx.Done():
			entry, _ := c.Peek(key)
			return entry, ctx.Err()
		}
	}
}

// settled is the outcome of one flight: the entry it left behind and the
// sequence number it was started for.
type settled struct {
	entry Entry
	seq   uint64
}

// flight joins the in-flight load for key or starts one.
//
// A caller that marked the entry loading just after a flight settled, but
// before the group released the key, joins that finished flight and gets a
// result older than its own seq. Callers re-issue in that case so the entry
// they marked is settled again.
func (c *Cache) flight(key string, seq uint64, policy Policy, load Loader) <-chan singleflight.Result {
	return c.group.DoChan(key, func() (any, error) {
		return c.run(key, seq, policy, load), nil
	})
}

// Prefetch starts a background load for key unless a fresh entry exists or a
// load is already in flight, and returns the current snapshot.
func (c *Cache) Prefetch(key string, policy Policy, load Loader) Entry {
	now := c.clock.Now()

	c.mu.Lock()
	rec := c.recordLocked(key, policy, load, now)
	if rec.entry.Fresh(now) || rec.entry.Fetching {
		entry := rec.entry
		c.mu.Unlock()
		return entry
	}
	entry := c.startLocked(key, rec)
	c.mu.Unlock()
	return entry
}

// Peek returns the current entry for key without loading or extending its
// lifetime.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[key]
	if !ok {
		return Entry{Key: key, Status: StatusIdle}, false
	}
	return rec.entry, true
}

// Observe attaches an observer to key. The returned channel first receives
// the current entry and then every change until cancel is called. Observed
// entries are never collected.
//
// Attaching starts a load when load is non-nil and the entry has no data
// yet, or is stale and the policy sets RefetchOnMount. The first entry sent
// is then already loading. Existing data is otherwise served as is.
func (c *Cache) Observe(key string, policy Policy, load Loader) (<-chan Entry, func()) {
	ch := make(chan Entry, observerBuffer)
	now := c.clock.Now()

	c.mu.Lock()
	rec := c.recordLocked(key, policy, load, now)
	if load != nil && !rec.entry.Fetching {
		if !rec.entry.HasData() || (policy.RefetchOnMount && !rec.entry.Fresh(now)) {
			c.startLocked(key, rec)
		}
	}
	rec.observers[ch] = struct{}{}
	ch <- rec.entry
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if rec, ok := c.records[key]; ok {
				delete(rec.observers, ch)
				rec.touch(c.clock.Now())
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Invalidate marks the entry for key stale. Observed entries are reloaded in
// the background. Reports whether the key was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[key]
	if !ok {
		return false
	}
	c.invalidateLocked(key, rec)
	return true
}

// InvalidatePrefix invalidates every key starting with prefix and returns how
// many entries were affected.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, rec := range c.records {
		if strings.HasPrefix(key, prefix) {
			c.invalidateLocked(key, rec)
			n++
		}
	}
	return n
}

// RefetchOnFocus reloads observed entries whose policy opts into focus
// refetching. Returns the number of loads started.
func (c *Cache) RefetchOnFocus() int {
	return c.refetchObserved(func(p Policy) bool { return p.RefetchOnFocus })
}

// RefetchOnReconnect reloads observed entries whose policy opts into
// reconnect refetching. Returns the number of loads started.
func (c *Cache) RefetchOnReconnect() int {
	return c.refetchObserved(func(p Policy) bool { return p.RefetchOnReconnect })
}

// Collect evicts entries that have no observers, are not loading and whose
// retention has elapsed. Returns the number of evicted entries.
func (c *Cache) Collect() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, rec := range c.records {
		if len(rec.observers) > 0 || rec.entry.Fetching {
			continue
		}
		if now.Before(rec.entry.ExpiresAt) {
			continue
		}
		delete(c.records, key)
		c.stats.Evictions++
		c.metrics.Evicted()
		n++
	}
	return n
}

// Entries returns a snapshot of all entries ordered by key.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, len(c.records))
	for _, rec := range c.records {
		entries = append(entries, rec.entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.records)
	return s
}

// Subscribe returns a channel receiving every entry change for all keys.
//
// Sends are non-blocking: a subscriber whose buffer is full misses updates.
// Caller must call [Cache.Unsubscribe] when done.
func (c *Cache) Subscribe() <-chan Entry {
	ch := make(chan Entry, subscriberBuffer)

	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (c *Cache) Unsubscribe(ch <-chan Entry) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for subCh := range c.subscribers {
		if subCh == ch {
			delete(c.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// recordLocked returns the record for key, creating an idle one when missing,
// and refreshes its policy, loader and last-use time.
func (c *Cache) recordLocked(key string, policy Policy, load Loader, now time.Time) *record {
	rec, ok := c.records[key]
	if !ok {
		rec = &record{
			entry:     Entry{Key: key, Status: StatusIdle},
			observers: make(map[chan Entry]struct{}),
		}
		c.records[key] = rec
	}
	rec.policy = policy
	if load != nil {
		rec.load = load
	}
	rec.touch(now)
	return rec
}

// markLoadingLocked flags the record as loading and notifies observers.
// No-op when a load is already in flight.
func (c *Cache) markLoadingLocked(rec *record) {
	if rec.entry.Fetching {
		return
	}
	rec.entry.Fetching = true
	rec.entry.Status = StatusLoading
	c.notifyLocked(rec)
}

// startLocked marks the record loading and launches a background load.
func (c *Cache) startLocked(key string, rec *record) Entry {
	if rec.load == nil {
		return rec.entry
	}
	seq, policy, load := rec.seq, rec.policy, rec.load
	c.markLoadingLocked(rec)
	c.stats.Misses++
	c.metrics.Miss()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case res := <-c.flight(key, seq, policy, load):
				if res.Val.(settled).seq >= seq {
					return
				}
			case <-c.ctx.Done():
				return
			}
		}
	}()
	return rec.entry
}

func (c *Cache) invalidateLocked(key string, rec *record) {
	rec.gen++
	if rec.entry.Status == StatusSuccess {
		rec.entry.StaleAt = c.clock.Now()
	}
	if len(rec.observers) > 0 && !rec.entry.Fetching {
		c.startLocked(key, rec)
	}
}

func (c *Cache) refetchObserved(enabled func(Policy) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, rec := range c.records {
		if len(rec.observers) == 0 || rec.entry.Fetching || !enabled(rec.policy) {
			continue
		}
		c.startLocked(key, rec)
		n++
	}
	return n
}

// run executes one load for key inside the singleflight group and settles
// the result into the record.
func (c *Cache) run(key string, seq uint64, policy Policy, load Loader) settled {
	c.mu.Lock()
	rec := c.recordLocked(key, policy, load, c.clock.Now())
	if rec.seq != seq {
		// another load settled after the caller looked; share its result
		entry := rec.entry
		c.mu.Unlock()
		return settled{entry: entry, seq: seq}
	}
	gen := rec.gen
	c.markLoadingLocked(rec)
	c.stats.Loads++
	c.mu.Unlock()

	data, err := c.safeLoad(key, load)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	rec.seq++
	rec.touch(now)
	rec.entry.Fetching = false
	if err != nil {
		rec.entry.Status = StatusError
		rec.entry.Data = nil
		rec.entry.Err = err
		rec.entry.StaleAt = now
	} else {
		if data == nil {
			data = []byte{}
		}
		rec.entry.Status = StatusSuccess
		rec.entry.Data = data
		rec.entry.Err = nil
		rec.entry.FetchedAt = now
		rec.entry.StaleAt = now.Add(rec.policy.StaleTime)
		if rec.gen != gen {
			rec.entry.StaleAt = now
		}
	}
	c.notifyLocked(rec)
	return settled{entry: rec.entry, seq: seq}
}

// safeLoad calls the loader with panic recovery. A panic is logged with a
// correlation ID and turned into an error carrying the same ID.
func (c *Cache) safeLoad(key string, load Loader) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("query loader panic",
				"correlation_id", correlationID,
				"key", key,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			data = nil
			err = fmt.Errorf("query loader panic (correlation_id: %s)", correlationID)
		}
	}()
	return load(c.ctx)
}

// notifyLocked sends the record's entry to its observers and all global
// subscribers without blocking.
func (c *Cache) notifyLocked(rec *record) {
	entry := rec.entry
	for ch := range rec.observers {
		// sends happen only under c.mu, so after dropping the oldest
		// buffered entry there is room for this one
		select {
		case ch <- entry:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- entry:
			default:
			}
		}
	}

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for ch := range c.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// startJanitor launches the background collector when gcInterval > 0.
func (c *Cache) startJanitor() {
	if c.gcInterval <= 0 {
		return
	}
	ticker := c.clock.NewTicker(c.gcInterval)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				c.Collect()
			case <-c.ctx.Done():
				return
			}
		}
	}()
}
