// Package hydrant renders pages of a client-side application on the
// server and serves the result to browsers and crawlers, caching
// finished responses so repeat requests skip re-rendering.
//
// Create an App with hydrant.New():
//
//	app, err := hydrant.New(hydrant.Config{
//	    Render: hydrant.RenderConfig{
//	        Factory:   myengine.Factory(),
//	        LoaderSrc: "/assets/loader.js",
//	    },
//	    Cache: hydrant.CacheConfig{Namespace: "v42"},
//	})
//	http.ListenAndServe(":8080", app)
package hydrant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hydrant-dev/hydrant/internal/dev"
	"github.com/hydrant-dev/hydrant/pkg/cache"
	"github.com/hydrant-dev/hydrant/pkg/drain"
	"github.com/hydrant-dev/hydrant/pkg/middleware"
	"github.com/hydrant-dev/hydrant/pkg/render"
)

// App is the serving layer: an http.Handler that routes static assets,
// the metrics endpoint, and the dev reload socket, and renders (or
// replays from cache) everything else.
type App struct {
	mux     *chi.Mux
	cfg     Config
	logger  *slog.Logger
	store   cache.Store
	barrier *drain.Barrier
	reload  *dev.ReloadBroker

	staticDir    string
	staticPrefix string
	staticFS     http.FileSystem
}

// New creates an App. Configuration problems are fatal here, before the
// server accepts any traffic.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Static.Prefix == "" {
		cfg.Static.Prefix = "/"
	}
	if cfg.Cache.Namespace == "" {
		cfg.Cache.Namespace = DefaultCacheConfig().Namespace
	}
	if cfg.Cache.ErrorTTL == 0 {
		cfg.Cache.ErrorTTL = DefaultCacheConfig().ErrorTTL
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := cfg.Cache.Store
	if store == nil && !cfg.Cache.Disabled {
		store = cache.NewMemoryStore()
	}

	app := &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		barrier:      drain.New(),
		staticDir:    cfg.Static.Dir,
		staticPrefix: cfg.Static.Prefix,
	}
	if cfg.Static.Dir != "" {
		app.staticFS = http.Dir(cfg.Static.Dir)
	}
	if cfg.DevMode {
		app.reload = dev.NewReloadBroker()
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	if cfg.Metrics.Enabled {
		mux.Use(middleware.Metrics())
		mux.Method(http.MethodGet, cfg.Metrics.Path, promhttp.Handler())
	}
	if cfg.Tracing {
		mux.Use(middleware.OpenTelemetry())
	}
	if app.reload != nil {
		mux.Get("/_hydrant/reload", app.reload.HandleWebSocket)
	}
	mux.Get("/*", app.renderPage)
	app.mux = mux

	return app, nil
}

// ServeHTTP implements http.Handler. Static assets are checked first so
// a file on disk always wins over a render.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.staticFS != nil && a.shouldServeStatic(r.URL.Path) {
		a.serveStatic(w, r)
		return
	}
	a.mux.ServeHTTP(w, r)
}

// renderPage serves one page: replayed from the cache when a usable
// entry exists, freshly rendered and written through the cache
// otherwise.
func (a *App) renderPage(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	a.barrier.Start(id)
	finish := sync.OnceFunc(func() { a.barrier.Finish(id) })
	defer finish()

	cls := Classify(r)
	ns := a.cfg.Cache.Namespace
	caching := a.store != nil && !a.cfg.Cache.Disabled

	// Cache writes must survive a client disconnect: the response may be
	// aborted, the stored entry should not be.
	opCtx := context.WithoutCancel(r.Context())

	var key string
	if caching {
		view, err := cache.Lookup(opCtx, a.store, w, r, cache.LookupOptions{
			Namespace: ns,
			KeyOpts: cache.KeyOptions{
				DeviceTags:         cls.DeviceTags,
				RequestClass:       cls.RequestClass,
				Extras:             a.cfg.Cache.Extras,
				IgnoreDeviceTags:   a.cfg.Cache.IgnoreDeviceTags,
				IgnoreRequestClass: a.cfg.Cache.IgnoreRequestClass,
			},
		})
		if err != nil {
			a.logger.Warn("cache lookup failed", "key", view.Key(), "error", err)
		}
		if view.Usable() {
			cache.Hits.WithLabelValues(ns).Inc()
			if err := view.Replay(); err != nil {
				a.logger.Error("cache replay failed", "key", view.Key(), "error", err)
			}
			return
		}
		cache.Misses.WithLabelValues(ns).Inc()
		key = view.Key()
	}
	w.Header().Set(cache.IndicatorHeader, cache.IndicatorMiss)

	var out http.ResponseWriter = w
	var capture *cache.CaptureWriter
	if caching {
		capture = cache.NewCaptureWriter(w, a.store, r, cache.CaptureOptions{
			Key:         key,
			Namespace:   ns,
			TTL:         a.cfg.Cache.TTL,
			ShouldCache: a.cfg.Cache.ShouldCache,
			OnComplete:  finish,
			Logger:      a.logger,
		})
		out = capture
	}

	session := render.NewSession(render.SessionConfig{
		URL:              r.URL,
		Origin:           a.origin(r),
		RequestID:        id,
		Device:           cls.Device(),
		Features:         a.cfg.Render.Features,
		Factory:          a.cfg.Render.Factory,
		Compiler:         a.cfg.Render.Compiler,
		Scripts:          a.cfg.Render.Scripts,
		Manifest:         a.cfg.Render.Manifest,
		ManifestHref:     a.cfg.Render.ManifestHref,
		StylesheetHref:   a.cfg.Render.StylesheetHref,
		Stylesheet:       a.cfg.Render.Stylesheet,
		OptimizeCSS:      a.cfg.Render.OptimizeCSS,
		LoaderSrc:        a.cfg.Render.LoaderSrc,
		ServerOnly:       a.cfg.Render.ServerOnly,
		LegacyRedirect:   a.cfg.Render.LegacyRedirect,
		AllowedResources: a.cfg.Render.AllowedResources,
		Fetch:            a.cfg.Render.Fetch,
		Verbose:          a.cfg.DevMode,
		Logger:           a.logger,
	})
	doc := session.Run(r.Context())

	if doc.Failed && capture != nil {
		capture.SetTTL(a.cfg.Cache.ErrorTTL)
	}

	h := out.Header()
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "text/html; charset=utf-8")
	}
	if a.cfg.Render.CSP && len(doc.Integrity) > 0 {
		h.Set("Content-Security-Policy", cspScriptSrc(doc.Integrity))
	}
	// A rendering failure still answers 200: the error document hands
	// rendering to the client, and hydration gives the user a working
	// page instead of an error screen.
	out.WriteHeader(http.StatusOK)
	if _, err := out.Write(doc.HTML); err != nil {
		a.logger.Warn("response write failed", "error", err)
	}

	if capture != nil {
		if err := capture.Finalize(opCtx, nil); err != nil {
			a.logger.Warn("response finalize failed", "error", err)
		}
	}
}

// Drain blocks until every in-flight response, including its
// asynchronous cache write, has finished. Hosts that freeze the process
// between requests must call this before suspending.
func (a *App) Drain(ctx context.Context) error {
	return a.barrier.Wait(ctx)
}

// NotifyReload tells connected dev-mode browsers to reload. No-op
// outside dev mode.
func (a *App) NotifyReload() {
	if a.reload != nil {
		a.reload.NotifyReload()
	}
}

// Store returns the configured cache store, nil when caching is
// disabled.
func (a *App) Store() cache.Store {
	return a.store
}

// Run starts the server on cfg.Addr and blocks.
func (a *App) Run() error {
	addr := a.cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	a.logger.Info("listening", "addr", addr, "protocol", a.protocol())
	if a.protocol() == "https" {
		return http.ListenAndServeTLS(addr, a.cfg.TLS.CertFile, a.cfg.TLS.KeyFile, a)
	}
	return http.ListenAndServe(addr, a)
}

func (a *App) protocol() string {
	if a.cfg.Protocol == "" {
		return "http"
	}
	return a.cfg.Protocol
}

// origin resolves the canonical origin the application sees.
func (a *App) origin(r *http.Request) string {
	if a.cfg.Render.Origin != "" {
		return a.cfg.Render.Origin
	}
	scheme := "http"
	if r.TLS != nil || a.protocol() == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func cspScriptSrc(integrity []string) string {
	var b strings.Builder
	b.WriteString("script-src 'self'")
	for _, hash := range integrity {
		fmt.Fprintf(&b, " '%s'", hash)
	}
	return b.String()
}
