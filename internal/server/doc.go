// Package server provides the HTTP server for the carepulse dashboard.
//
// This package is internal to carepulse and handles all HTTP concerns:
//
//   - Dashboard serving: the embedded page at "/" with cards rendered in place
//   - REST API: JSON snapshot of all cards at "/api/cards"
//   - Server-Sent Events: card updates at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
