// Package server provides the HTTP server for the navtags dashboard and API.
//
// This package is internal to navtags and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded dashboard at "/"
//   - REST API: JSON snapshot of the current tags at "/api/tags"
//   - Server-Sent Events: Real-time tag updates at "/api/sse"
//   - Activity beacons: Input events reported by the page at "/api/activity"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
