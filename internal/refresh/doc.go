// Package refresh runs dashboard refresh rounds through a bounded worker
// pool.
//
// A [Scheduler] runs its jobs once on start and then on every tick of its
// interval. Each job run produces an [Outcome]. Panicking jobs are recovered
// and reported as errors with a correlation ID that also appears in the
// logs.
//
// This package is internal to carepulse. The dashboard uses it to warm and
// refresh card queries.
package refresh
