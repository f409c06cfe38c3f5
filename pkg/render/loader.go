package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
)

// FetchFunc retrieves a sub-resource by URL on behalf of the sandbox.
type FetchFunc func(ctx context.Context, rawURL string) ([]byte, error)

// ErrResourceBlocked is wrapped into errors returned for disallowed
// sub-resource loads.
type ErrResourceBlocked struct {
	URL string
	Tag string
}

func (e ErrResourceBlocked) Error() string {
	return fmt.Sprintf("resource blocked: %s (requested by <%s>)", e.URL, e.Tag)
}

// media-like elements never load during server rendering; their output
// is invisible to the serialized document and fetching them only burns
// time on the render path.
var blockedTags = map[string]struct{}{
	"img": {}, "image": {}, "picture": {}, "source": {}, "track": {},
	"audio": {}, "video": {}, "embed": {}, "object": {},
}

// ResourceLoader is the sandbox's only path to the outside world for
// sub-resource fetches. It blocks media elements outright, allows
// same-origin bundle scripts and source maps (warning when one is not in
// the asset manifest), and otherwise consults a caller-supplied pattern
// allow-list.
//
// Successfully loaded resources are cached in memory by resolved URL for
// the lifetime of the process; the cache is unbounded, which is safe
// because the process restarts on redeploy.
type ResourceLoader struct {
	origin   string
	manifest map[string]struct{}
	patterns []string
	fetch    FetchFunc
	logger   *slog.Logger

	cache sync.Map // resolved URL -> []byte
}

// NewResourceLoader creates a loader for the given origin
// ("scheme://host") and asset manifest (bundle file names).
func NewResourceLoader(origin string, manifest, patterns []string, fetch FetchFunc, logger *slog.Logger) *ResourceLoader {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]struct{}, len(manifest))
	for _, name := range manifest {
		m[name] = struct{}{}
	}
	return &ResourceLoader{
		origin:   origin,
		manifest: m,
		patterns: patterns,
		fetch:    fetch,
		logger:   logger,
	}
}

// Allows decides whether the element named tag may load rawURL.
func (l *ResourceLoader) Allows(rawURL, tag string) bool {
	if _, blocked := blockedTags[strings.ToLower(tag)]; blocked {
		return false
	}
	if l.isBundleURL(rawURL) {
		if !l.inManifest(rawURL) {
			l.logger.Warn("sandbox loaded bundle not in asset manifest", "url", rawURL)
		}
		return true
	}
	for _, pattern := range l.patterns {
		if matchPattern(pattern, rawURL) {
			return true
		}
	}
	return false
}

// Load fetches rawURL if allowed, serving repeat loads from the cache.
// Only successful fetches populate the cache.
func (l *ResourceLoader) Load(ctx context.Context, rawURL, tag string) ([]byte, error) {
	if !l.Allows(rawURL, tag) {
		return nil, ErrResourceBlocked{URL: rawURL, Tag: tag}
	}
	if cached, ok := l.cache.Load(rawURL); ok {
		return cached.([]byte), nil
	}
	if l.fetch == nil {
		return nil, fmt.Errorf("resource loader has no fetcher for %s", rawURL)
	}
	data, err := l.fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	l.cache.Store(rawURL, data)
	return data, nil
}

// isBundleURL reports whether rawURL is a same-origin script or source
// map — the asset shapes that are always allowed to load.
func (l *ResourceLoader) isBundleURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.IsAbs() && u.Scheme+"://"+u.Host != l.origin {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".js", ".mjs", ".map":
		return true
	}
	return false
}

func (l *ResourceLoader) inManifest(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := l.manifest[path.Base(u.Path)]
	return ok
}

// matchPattern matches s against a pattern where '*' spans any run of
// characters. A pattern without '*' must match exactly.
func matchPattern(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx == -1 {
			return false
		}
		s = s[idx+len(part):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}
