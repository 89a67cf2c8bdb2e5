package querycache

import (
	"context"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	// StatusIdle means no load has been attempted for the key.
	StatusIdle Status = "idle"

	// StatusLoading means a load is in flight. Data from a previous
	// successful load may still be present.
	StatusLoading Status = "loading"

	// StatusSuccess means the last load returned a payload.
	StatusSuccess Status = "success"

	// StatusError means the last load failed.
	StatusError Status = "error"
)

// Policy controls how long an entry is served without reloading and how long
// it is kept once nothing uses it.
type Policy struct {
	// StaleTime is how long after a successful load the entry is served
	// without calling the loader. Zero means always stale.
	StaleTime time.Duration

	// Retention is how long an unobserved entry is kept after its last use.
	Retention time.Duration

	// RefetchOnMount makes [Cache.Observe] reload a stale entry that already
	// has data.
	RefetchOnMount bool

	// RefetchOnFocus enables reloading observed entries on [Cache.RefetchOnFocus].
	RefetchOnFocus bool

	// RefetchOnReconnect enables reloading observed entries on [Cache.RefetchOnReconnect].
	RefetchOnReconnect bool
}

// Loader produces the payload for a key. The context is owned by the cache
// and is cancelled only when the cache is closed.
type Loader func(ctx context.Context) ([]byte, error)

// Entry is a snapshot of the cached state for one key.
//
// Entries handed out by the cache are copies; Data must be treated as
// read-only because it is shared with other readers.
type Entry struct {
	// Key is the canonical query key.
	Key string `json:"key"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Data is the last successful payload. nil when the key never loaded
	// successfully or the last load failed.
	Data []byte `json:"-"`

	// Err is the error from the last load. nil unless Status is StatusError.
	Err error `json:"-"`

	// FetchedAt is when the last successful load settled.
	FetchedAt time.Time `json:"fetched_at"`

	// StaleAt is when the entry stops being served without a reload.
	StaleAt time.Time `json:"stale_at"`

	// ExpiresAt is when the entry becomes eligible for eviction if it has no
	// observers. Observers keep an entry alive past this time.
	ExpiresAt time.Time `json:"expires_at"`

	// Fetching is true while a load for the key is in flight.
	Fetching bool `json:"fetching"`
}

// Fresh reports whether the entry can be served at now without reloading.
func (e Entry) Fresh(now time.Time) bool {
	return e.Status == StatusSuccess && now.Before(e.StaleAt)
}

// HasData reports whether the entry carries a payload.
func (e Entry) HasData() bool {
	return e.Data != nil
}

// record is the mutable per-key state guarded by Cache.mu.
type record struct {
	entry  Entry
	policy Policy
	load   Loader

	// seq increments on every settle; a load that finds seq changed since its
	// caller looked reuses the settled result instead of loading again.
	seq uint64

	// gen increments on every invalidation; a load that started under an
	// older generation settles as already stale.
	gen uint64

	lastUsed  time.Time
	observers map[chan Entry]struct{}
}

func (r *record) touch(now time.Time) {
	r.lastUsed = now
	r.entry.ExpiresAt = now.Add(r.policy.Retention)
}
