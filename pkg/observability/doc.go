// Package observability provides structured logging, Prometheus metrics,
// health probes, and graceful shutdown for the kbforge access-control service.
//
// Logging is structured JSON over stdlib slog. Request-scoped loggers carry
// the request ID set by the middleware chain:
//
//	logger := observability.FromContext(ctx)
//	logger.WithField("resource_id", id).Info("permission resolved")
//
// Metrics cover the HTTP surface, the permission engine (resolutions,
// mutations, cache hits), and the database pool. The registry is served on a
// dedicated health port next to the liveness/readiness probes, which check
// PostgreSQL (hard dependency) and Redis (soft dependency; sessions and the
// resolution cache degrade without it).
package observability
