// Package middleware provides the HTTP middleware chain: request ids,
// structured request logging, Prometheus metrics, Redis-backed rate limiting,
// and session authentication.
//
// SessionAuth only identifies the caller; route groups opt into enforcement
// with RequireAuth or RequireAdmin.
package middleware
