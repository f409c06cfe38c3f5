package cache

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ShouldCacheFunc decides at finalize time whether a captured response is
// stored. Returning false finalizes the response without a Put.
type ShouldCacheFunc func(r *http.Request, status int, header http.Header) bool

// CaptureOptions configures a CaptureWriter.
type CaptureOptions struct {
	// Key and Namespace identify the entry to write. Key is required.
	Key       string
	Namespace string

	// TTL overrides TTL derivation from the response's Cache-Control
	// header. Zero means derive (s-maxage, then max-age, then DefaultTTL).
	TTL time.Duration

	// ShouldCache, when set, is consulted at finalize time.
	ShouldCache ShouldCacheFunc

	// OnComplete runs after the store operation has settled, success or
	// failure. Hosts that freeze the process after a response completes
	// hang their "response finished" signal here.
	OnComplete func()

	// Logger receives store failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// CaptureWriter wraps a live http.ResponseWriter and transparently records
// everything written through it: body chunks are forwarded to the
// transport and appended to an in-memory buffer in the same order, and
// the recorded status and headers become the entry metadata.
//
// The handler-facing contract is unchanged — callers write and set
// headers exactly as they would on the wrapped writer. Finalize must be
// called when the response is complete; the entry is stored before
// Finalize returns, so the store write always happens-before the response
// is considered finished.
type CaptureWriter struct {
	dst   http.ResponseWriter
	store Store
	req   *http.Request
	opts  CaptureOptions

	buf         bytes.Buffer
	status      int
	wroteHeader bool
	wroteBody   bool
	finalized   bool

	// handlerEncoding is the Content-Encoding visible when the body
	// started flowing, i.e. set by the handler itself. An encoding that
	// appears later was applied by a compression step after capture and
	// must not be persisted with the unencoded bytes.
	handlerEncoding string
}

// NewCaptureWriter creates a write-through capture for one response.
func NewCaptureWriter(dst http.ResponseWriter, store Store, r *http.Request, opts CaptureOptions) *CaptureWriter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &CaptureWriter{
		dst:    dst,
		store:  store,
		req:    r,
		opts:   opts,
		status: http.StatusOK,
	}
}

// Header returns the live response's header map.
func (c *CaptureWriter) Header() http.Header {
	return c.dst.Header()
}

// WriteHeader records the status and forwards it.
func (c *CaptureWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
		c.snapshotEncoding()
	}
	c.dst.WriteHeader(status)
}

// Write appends the chunk to the capture buffer and forwards it to the
// transport, preserving write order.
func (c *CaptureWriter) Write(p []byte) (int, error) {
	if !c.wroteBody {
		c.wroteBody = true
		c.snapshotEncoding()
	}
	c.wroteHeader = true
	c.buf.Write(p)
	return c.dst.Write(p)
}

func (c *CaptureWriter) snapshotEncoding() {
	if c.handlerEncoding == "" {
		c.handlerEncoding = c.dst.Header().Get("Content-Encoding")
	}
}

// Status returns the status recorded for the response so far.
func (c *CaptureWriter) Status() int {
	return c.status
}

// SetTTL replaces the TTL override after construction. The session's
// error flag maps to a short TTL through this.
func (c *CaptureWriter) SetTTL(ttl time.Duration) {
	c.opts.TTL = ttl
}

// Finalize completes the response. The first call applies last (if any)
// through the write path, decides whether to store, performs the store,
// and then signals completion; subsequent calls are ignored. Some callers
// finalize more than once, so this must stay idempotent.
//
// A store failure is logged and swallowed — the live response was already
// served and the cache is fail-open.
func (c *CaptureWriter) Finalize(ctx context.Context, last []byte) error {
	if c.finalized {
		return nil
	}
	c.finalized = true

	var writeErr error
	if len(last) > 0 {
		_, writeErr = c.Write(last)
	}

	c.storeEntry(ctx)

	if c.opts.OnComplete != nil {
		c.opts.OnComplete()
	}
	return writeErr
}

func (c *CaptureWriter) storeEntry(ctx context.Context) {
	if c.store == nil || c.opts.Key == "" {
		return
	}
	if c.opts.ShouldCache != nil && !c.opts.ShouldCache(c.req, c.status, c.dst.Header()) {
		return
	}

	meta := Metadata{
		Status: c.status,
		Header: c.dst.Header().Clone(),
	}
	// Strip an encoding applied by an automatic compression step after
	// capture: the buffered bytes are what the handler wrote, and a
	// recorded encoding must describe those exact bytes.
	if enc := meta.Header.Get("Content-Encoding"); enc != "" && enc != c.handlerEncoding {
		meta.Header.Del("Content-Encoding")
	}

	ttl := c.opts.TTL
	if ttl <= 0 {
		derived, ok := TTLFromCacheControl(meta.Header.Get("Cache-Control"))
		switch {
		case !ok:
			ttl = DefaultTTL
		case derived <= 0:
			// An explicit zero-second directive means do not cache.
			return
		default:
			ttl = derived
		}
	}

	// A store with a pending delete queue is drained first so this put
	// cannot land before an invalidation it logically follows.
	if f, ok := c.store.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			c.opts.Logger.Warn("cache flush before put failed", "key", c.opts.Key, "error", err)
		}
	}

	data := append([]byte(nil), c.buf.Bytes()...)
	err := c.store.Put(ctx, c.opts.Key, c.opts.Namespace, data, meta, time.Now().Add(ttl))
	if err != nil {
		StoreErrors.WithLabelValues("put").Inc()
		c.opts.Logger.Warn("cache put failed", "key", c.opts.Key, "namespace", c.opts.Namespace, "error", err)
		return
	}
	StoredBytes.Observe(float64(len(data)))
}
