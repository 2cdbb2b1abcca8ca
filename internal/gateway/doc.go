// ABOUTME: Package documentation for the gateway package
// ABOUTME: Describes the HTTP server tying fleet, store, and hub together

// Package gateway implements the HTTP server that fleet agents and
// dashboard operators talk to.
//
// Agents authenticate every request with an HMAC signature over the raw
// body (see the auth package) and use four endpoints: heartbeat,
// next-command claim, output chunks, and the final result. Operators
// authenticate with a bearer token obtained from the login endpoint and
// use the read APIs, the command enqueue endpoints, the per-command SSE
// output stream, and the WebSocket agent-events feed.
//
// The gateway owns the process lifecycle: it opens the store, builds the
// in-memory hubs, and serves until the context is cancelled, then shuts
// the HTTP server down gracefully and closes the store.
package gateway
