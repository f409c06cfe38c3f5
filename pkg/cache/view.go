package cache

import (
	"context"
	"errors"
	"net/http"
)

// IndicatorHeader communicates to downstream observers whether a response
// body came from the cache or a fresh render.
const IndicatorHeader = "X-Cache"

// Indicator values.
const (
	IndicatorHit  = "HIT"
	IndicatorMiss = "MISS"
)

// ErrNotReplayable is returned by Replay on a view that missed.
var ErrNotReplayable = errors.New("cache: view is not replayable")

// LookupOptions configures a cache lookup.
type LookupOptions struct {
	// Key overrides key generation. When empty, the key is computed from
	// the request path and query via Key with KeyOpts.
	Key       string
	Namespace string
	KeyOpts   KeyOptions
}

// View is a read-only wrapper around one cache lookup result plus the
// live request/response pair. A view that missed is request-scoped and
// discarded; a view that hit may be handed to Replay exactly once.
type View struct {
	Entry Entry

	w        http.ResponseWriter
	r        *http.Request
	replayed bool
}

// Lookup computes the cache key (unless supplied), queries the store, and
// returns a view over the result. Backend errors are returned for logging
// but leave the view in the missed state — reads fail open.
func Lookup(ctx context.Context, store Store, w http.ResponseWriter, r *http.Request, opts LookupOptions) (*View, error) {
	key := opts.Key
	if key == "" {
		key = Key(r.URL.Path, r.URL.RawQuery, opts.KeyOpts)
	}

	view := &View{w: w, r: r}
	entry, err := store.Get(ctx, key, opts.Namespace)
	entry.Key = key
	entry.Namespace = opts.Namespace
	view.Entry = entry
	if err != nil {
		StoreErrors.WithLabelValues("get").Inc()
		return view, err
	}
	return view, nil
}

// Key returns the resolved cache key, present even on a miss so the
// caller can store the fresh render under it.
func (v *View) Key() string {
	return v.Entry.Key
}

// Usable reports whether the entry should be served. An entry persisted
// with status 500 captured a transient rendering failure; it stays in the
// store until it expires but is never replayed — the caller renders fresh
// instead of serving the failure indefinitely.
func (v *View) Usable() bool {
	if !v.Entry.Found || v.replayed {
		return false
	}
	return v.Entry.Meta.Status != http.StatusInternalServerError
}

// Replay writes the stored status, headers, and body to the live
// response, bypassing rendering entirely. After Replay returns, the
// response is owned by the view; no other code may write to it.
func (v *View) Replay() error {
	if !v.Entry.Found || v.replayed {
		return ErrNotReplayable
	}
	v.replayed = true

	h := v.w.Header()
	for name, values := range v.Entry.Meta.Header {
		h[name] = values
	}
	h.Set(IndicatorHeader, IndicatorHit)
	v.w.WriteHeader(v.Entry.Meta.Status)
	if len(v.Entry.Data) > 0 {
		if _, err := v.w.Write(v.Entry.Data); err != nil {
			return err
		}
	}
	return nil
}
