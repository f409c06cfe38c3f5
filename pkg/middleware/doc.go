// Package middleware provides optional HTTP middleware for hydrant apps:
// Prometheus request metrics and OpenTelemetry tracing. Both observe the
// served-from-cache indicator so dashboards and traces can split cache
// hits from fresh renders.
package middleware
