package hydrant

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hydrant-dev/hydrant/pkg/cache"
	"github.com/hydrant-dev/hydrant/pkg/render"
)

func newTestApp(t *testing.T, mutate func(*Config)) *App {
	t.Helper()

	cfg := validConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	app, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if s := app.Store(); s != nil {
			s.Close()
		}
	})
	return app
}

func get(app *App, target, userAgent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)
	return rr
}

func TestApp_MissThenHit(t *testing.T) {
	app := newTestApp(t, nil)

	first := get(app, "http://example.com/products?color=red", "")
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want %d", first.Code, http.StatusOK)
	}
	if got := first.Header().Get(cache.IndicatorHeader); got != cache.IndicatorMiss {
		t.Fatalf("first %s = %q, want %q", cache.IndicatorHeader, got, cache.IndicatorMiss)
	}
	if !strings.Contains(first.Body.String(), "window.__HYDRANT_CTX__=") {
		t.Fatalf("first body is not a rendered document:\n%s", first.Body.String())
	}

	second := get(app, "http://example.com/products?color=red", "")
	if got := second.Header().Get(cache.IndicatorHeader); got != cache.IndicatorHit {
		t.Fatalf("second %s = %q, want %q", cache.IndicatorHeader, got, cache.IndicatorHit)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatal("replayed body differs from the rendered one")
	}
	if got := second.Header().Get("Content-Type"); !strings.Contains(got, "text/html") {
		t.Fatalf("replayed Content-Type = %q", got)
	}
}

func TestApp_HitSkipsRendering(t *testing.T) {
	renders := 0
	app := newTestApp(t, func(cfg *Config) {
		shell := render.ShellFactory()
		cfg.Render.Factory = func(sc render.SandboxConfig) (render.Sandbox, error) {
			renders++
			return shell(sc)
		}
	})

	get(app, "http://example.com/page", "")
	get(app, "http://example.com/page", "")
	if renders != 1 {
		t.Fatalf("renderer ran %d times, want 1", renders)
	}
}

func TestApp_DeviceVariesCache(t *testing.T) {
	app := newTestApp(t, nil)

	desktopUA := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0"
	mobileUA := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148"

	get(app, "http://example.com/page", desktopUA)
	second := get(app, "http://example.com/page", mobileUA)
	if got := second.Header().Get(cache.IndicatorHeader); got != cache.IndicatorMiss {
		t.Fatalf("mobile request after desktop render: %s = %q, want %q",
			cache.IndicatorHeader, got, cache.IndicatorMiss)
	}

	third := get(app, "http://example.com/page", mobileUA)
	if got := third.Header().Get(cache.IndicatorHeader); got != cache.IndicatorHit {
		t.Fatalf("repeat mobile request: %s = %q, want %q",
			cache.IndicatorHeader, got, cache.IndicatorHit)
	}
}

func TestApp_QueryOrderVariesCache(t *testing.T) {
	app := newTestApp(t, nil)

	get(app, "http://example.com/p?a=1&b=2", "")
	second := get(app, "http://example.com/p?b=2&a=1", "")
	if got := second.Header().Get(cache.IndicatorHeader); got != cache.IndicatorMiss {
		t.Fatalf("reordered query was a %s, want %s", got, cache.IndicatorMiss)
	}
}

func TestApp_RenderFailureStillServes(t *testing.T) {
	app := newTestApp(t, func(cfg *Config) {
		cfg.Render.Factory = func(sc render.SandboxConfig) (render.Sandbox, error) {
			return nil, fmt.Errorf("engine unavailable")
		}
		cfg.Render.LoaderSrc = "/loader.js"
	})

	rr := get(app, "http://example.com/broken", "")
	// The error document hands rendering to the client; the response is
	// still a success from the transport's point of view.
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "/loader.js") {
		t.Fatalf("error document missing loader:\n%s", rr.Body.String())
	}
}

func TestApp_RenderFailureShortTTL(t *testing.T) {
	app := newTestApp(t, func(cfg *Config) {
		cfg.Render.Factory = func(sc render.SandboxConfig) (render.Sandbox, error) {
			return nil, fmt.Errorf("engine unavailable")
		}
		cfg.Cache.ErrorTTL = 30 * time.Second
	})

	before := time.Now()
	get(app, "http://example.com/broken", "")

	key := cache.Key("/broken", "", cache.KeyOptions{
		DeviceTags:   []string{"desktop"},
		RequestClass: "user",
	})
	entry, err := app.Store().Get(context.Background(), key, "pages")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !entry.Found {
		t.Fatal("error document was not cached")
	}
	ttl := entry.ExpiresAt.Sub(before)
	if ttl > time.Minute {
		t.Fatalf("error entry TTL = %v, want short", ttl)
	}
}

func TestApp_CacheDisabled(t *testing.T) {
	app := newTestApp(t, func(cfg *Config) {
		cfg.Cache.Disabled = true
	})

	first := get(app, "http://example.com/p", "")
	second := get(app, "http://example.com/p", "")
	for i, rr := range []*httptest.ResponseRecorder{first, second} {
		if got := rr.Header().Get(cache.IndicatorHeader); got != cache.IndicatorMiss {
			t.Fatalf("request %d: %s = %q, want %q", i, cache.IndicatorHeader, got, cache.IndicatorMiss)
		}
	}
}

func TestApp_ShouldCachePolicy(t *testing.T) {
	app := newTestApp(t, func(cfg *Config) {
		cfg.Cache.ShouldCache = func(r *http.Request, status int, h http.Header) bool {
			return !strings.HasPrefix(r.URL.Path, "/account")
		}
	})

	get(app, "http://example.com/account/settings", "")
	second := get(app, "http://example.com/account/settings", "")
	if got := second.Header().Get(cache.IndicatorHeader); got != cache.IndicatorMiss {
		t.Fatalf("excluded path was cached: %s = %q", cache.IndicatorHeader, got)
	}

	get(app, "http://example.com/public", "")
	cached := get(app, "http://example.com/public", "")
	if got := cached.Header().Get(cache.IndicatorHeader); got != cache.IndicatorHit {
		t.Fatalf("included path was not cached: %s = %q", cache.IndicatorHeader, got)
	}
}

func TestApp_CSPHeader(t *testing.T) {
	app := newTestApp(t, func(cfg *Config) {
		cfg.Render.CSP = true
	})

	rr := get(app, "http://example.com/p", "")
	csp := rr.Header().Get("Content-Security-Policy")
	if !strings.HasPrefix(csp, "script-src 'self'") {
		t.Fatalf("Content-Security-Policy = %q", csp)
	}
	if !strings.Contains(csp, "'sha256-") {
		t.Fatalf("CSP carries no integrity hashes: %q", csp)
	}
}

func TestApp_DrainAfterResponses(t *testing.T) {
	app := newTestApp(t, nil)

	for i := 0; i < 5; i++ {
		get(app, fmt.Sprintf("http://example.com/p%d", i), "")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := app.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestApp_MetricsEndpoint(t *testing.T) {
	app := newTestApp(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})

	get(app, "http://example.com/p", "")

	rr := get(app, "http://example.com/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "hydrant_cache_misses_total") {
		t.Fatal("metrics output missing cache counters")
	}
}
