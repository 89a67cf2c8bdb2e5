// Package store provides storage and pub/sub for dashboard cards.
//
// This package is internal to carepulse and holds the current [Card] of
// every dashboard tile. It implements a publish-subscribe pattern for
// real-time updates to connected dashboard clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Card]: Stored state of one card
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
package store
