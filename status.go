package carepulse

import (
	"time"

	"github.com/jpalmerr/carepulse/internal/querycache"
)

// QueryStatus is the lifecycle state of a query.
//
// A query starts [StatusIdle], moves to [StatusLoading] while a request is
// in flight and settles as [StatusSuccess] or [StatusError]. A disabled query
// stays idle.
type QueryStatus string

const (
	// StatusIdle means no request has been attempted. Disabled queries are
	// always idle.
	StatusIdle QueryStatus = "idle"

	// StatusLoading means a request is in flight.
	StatusLoading QueryStatus = "loading"

	// StatusSuccess means the last request returned data.
	StatusSuccess QueryStatus = "success"

	// StatusError means the last request failed after its retry.
	StatusError QueryStatus = "error"
)

// String returns the string representation of the status.
func (s QueryStatus) String() string {
	return string(s)
}

// Result is what a query hands to its caller: the decoded payload, the load
// state and the error.
//
// Once settled, Data and Err are mutually exclusive. While a refetch runs
// the previous Data is kept, so IsLoading is only true when there is nothing
// to show yet.
//
// The one exception is a [Query.Fetch] whose context ends first: Err is the
// context error and the result is the snapshot at that moment, which may
// still hold Data and report [StatusLoading].
type Result[T any] struct {
	// Data is the decoded payload. Zero unless HasData is true.
	Data T

	// HasData reports whether Data holds a payload.
	HasData bool

	// Status is the lifecycle state.
	Status QueryStatus

	// IsLoading is true while the first request for the key is in flight.
	IsLoading bool

	// IsFetching is true while any request for the key is in flight,
	// including background refetches of existing data.
	IsFetching bool

	// Err is the error from the last request, usually an [*APIError].
	Err error

	// FetchedAt is when the data was last loaded successfully.
	FetchedAt time.Time
}

// idleResult is the neutral state of a disabled query.
func idleResult[T any]() Result[T] {
	return Result[T]{Status: StatusIdle}
}

// resultFromEntry converts a cache entry into a typed result. A payload that
// cannot be decoded is reported as an error.
func resultFromEntry[T any](e querycache.Entry, decode func([]byte) (T, error)) Result[T] {
	r := Result[T]{
		Status:     QueryStatus(e.Status),
		IsFetching: e.Fetching,
		FetchedAt:  e.FetchedAt,
	}
	if e.Status == querycache.StatusError {
		r.Err = e.Err
	}
	if e.HasData() {
		data, err := decode(e.Data)
		if err != nil {
			r.Status = StatusError
			r.Err = err
			return r
		}
		r.Data = data
		r.HasData = true
	}
	r.IsLoading = e.Status == querycache.StatusLoading && !r.HasData
	return r
}

// FetchResult describes one HTTP attempt made for a query.
//
// It is passed to callbacks registered with [WithFetchCallback]. A query
// that fails and is retried produces two FetchResults.
type FetchResult struct {
	// Key is the query key the request was made for.
	Key QueryKey

	// Path is the request path relative to the base URL.
	Path string

	// Attempt is 1 for the first request and 2 for the retry.
	Attempt int

	// StatusCode is zero if no response was received.
	StatusCode int

	// Latency is the time taken by the request.
	Latency time.Duration

	// RequestID is the X-Request-ID sent with the request.
	RequestID string

	// Err is nil for 2xx responses, otherwise an [*APIError].
	Err error

	// At is when the attempt completed.
	At time.Time
}
