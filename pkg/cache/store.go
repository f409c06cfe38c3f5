package cache

import (
	"context"
	"net/http"
	"time"
)

// Metadata is the response metadata persisted alongside the body bytes.
type Metadata struct {
	// Status is the HTTP status code of the cached response.
	Status int `json:"status"`

	// Header contains the response headers as they were set on the live
	// response, minus any encoding applied after capture.
	Header http.Header `json:"header"`
}

// Entry is the result of a Store lookup. It is immutable once returned
// from Get.
type Entry struct {
	// Found reports whether the key was present and not expired.
	Found bool

	// Key and Namespace identify the entry.
	Key       string
	Namespace string

	// Data is the response body. A nil Data with Found=true is a valid
	// empty-body response, distinct from a miss.
	Data []byte

	// Meta is the persisted response metadata.
	Meta Metadata

	// ExpiresAt is when the entry stops being served.
	ExpiresAt time.Time
}

// Store is a namespaced key/value store for rendered responses.
// Implementations must be safe for concurrent use.
//
// Get never fails closed: on a backend error it returns a zero-valued
// Entry (Found=false) together with the error, so callers can log the
// failure and continue as if the lookup missed.
//
// Put is best-effort. Callers must treat a Put error as non-fatal and
// keep serving the live response.
type Store interface {
	Get(ctx context.Context, key, namespace string) (Entry, error)
	Put(ctx context.Context, key, namespace string, data []byte, meta Metadata, expiresAt time.Time) error

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, key, namespace string) error

	// Close releases backend resources.
	Close() error
}

// Flusher is implemented by stores that queue destructive operations
// (deletes, invalidations) asynchronously. The write-through layer waits
// for Flush before a Put so a store cannot reorder a put ahead of an
// intended delete.
type Flusher interface {
	Flush(ctx context.Context) error
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
type ErrStoreClosed struct{}

func (e ErrStoreClosed) Error() string {
	return "cache store is closed"
}
