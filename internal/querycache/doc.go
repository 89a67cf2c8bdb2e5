// Package querycache provides the query-keyed payload cache behind carepulse
// queries.
//
// The main components are:
//
//   - [Cache]: keyed store with in-flight de-duplication and pub/sub
//   - [Entry]: snapshot of one key's state (idle, loading, success, error)
//   - [Policy]: staleness, retention and refetch triggers for a key
//
// Entry lifecycle: a key is created idle on first use, moves to loading when
// a load starts, and settles to success or error. A settled entry reloads
// only when it is stale and requested again, or when it is invalidated.
// Entries without observers are evicted once their retention has elapsed.
//
// At most one load per key is in flight at any time. Concurrent callers
// attach to the pending load via golang.org/x/sync/singleflight.
//
// Users of the carepulse library should not need to interact with this
// package directly.
package querycache
