// Package server holds the HTTP server configuration.
//
// The start command serves the status API with these settings next to the
// detector lanes and the queue processor. The API key, when set, is enforced by
// core/middleware/auth on every route.
package server
