// Package middleware provides HTTP middleware for CityPulse servers:
// Prometheus request metrics and OpenTelemetry tracing.
//
// Both middlewares are chi-aware: the route pattern (not the raw URL) is
// used as the path label and span name, so metrics cardinality stays
// bounded.
package middleware
