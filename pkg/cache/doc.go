// Package cache implements the response cache for rendered pages.
//
// It provides a namespaced key/value Store with in-memory, Redis, and S3
// backends, a deterministic cache-key generator, a write-through
// CaptureWriter that records an in-flight HTTP response, and a View that
// replays a stored response byte-for-byte.
//
// Reads fail open: a backend error is reported to the caller for logging,
// but the lookup result is indistinguishable from a miss. Writes are
// best-effort; a failed Put never affects the live response.
package cache
