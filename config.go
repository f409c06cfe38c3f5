package hydrant

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hydrant-dev/hydrant/pkg/cache"
	"github.com/hydrant-dev/hydrant/pkg/render"
)

// Config is the main application configuration.
type Config struct {
	// Protocol selects "http" or "https". Default: "http".
	Protocol string

	// Addr is the listen address used by Run (e.g. ":8080").
	Addr string

	// TLS configures certificates when Protocol is "https".
	TLS TLSConfig

	// Static configures static asset serving.
	Static StaticConfig

	// Cache configures the response cache.
	Cache CacheConfig

	// Render configures the rendering pipeline.
	Render RenderConfig

	// Metrics configures the Prometheus endpoint and middleware.
	Metrics MetricsConfig

	// Tracing enables the OpenTelemetry request middleware.
	Tracing bool

	// DevMode enables the live-reload broker and console diagnostics in
	// error documents. Never enable in production.
	DevMode bool

	// Logger is the structured logger. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// TLSConfig holds certificate paths for HTTPS serving.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// StaticConfig configures static asset serving.
type StaticConfig struct {
	// Dir is the directory containing static files. Empty disables
	// static serving.
	Dir string

	// Prefix is the URL path prefix for static files. Default: "/".
	Prefix string
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Store is the cache backend. If nil and caching is not disabled, an
	// in-process MemoryStore is created.
	Store cache.Store

	// Namespace partitions the keyspace, e.g. per release version, so a
	// deploy starts from a cold namespace without flushing the store.
	// Default: "pages".
	Namespace string

	// Disabled turns the response cache off entirely.
	Disabled bool

	// TTL overrides TTL derivation from response Cache-Control headers.
	TTL time.Duration

	// ErrorTTL is the TTL applied to error documents so a transient
	// failure is not served for the full default lifetime.
	// Default: 30 seconds.
	ErrorTTL time.Duration

	// ShouldCache, when set, decides per response whether to store it.
	ShouldCache cache.ShouldCacheFunc

	// Extras are caller-supplied values mixed into every cache key.
	Extras []string

	// IgnoreDeviceTags stops device classification from varying keys.
	IgnoreDeviceTags bool

	// IgnoreRequestClass stops request classification from varying keys.
	IgnoreRequestClass bool
}

// RenderConfig configures the rendering pipeline.
type RenderConfig struct {
	// Origin is the canonical origin ("scheme://host") the application
	// sees. Empty derives it per request.
	Origin string

	// Factory builds the sandboxed execution environment. Required.
	Factory render.SandboxFactory

	// Compiler compiles bundles for the sandbox. Required when Scripts
	// names any script.
	Compiler render.Compiler

	// Scripts are the bundles executed per render, in fixed order.
	Scripts render.ScriptSet

	// Manifest lists the expected asset bundle file names.
	Manifest []string

	// ManifestHref, StylesheetHref, and LoaderSrc are the asset URLs
	// referenced from assembled documents.
	ManifestHref   string
	StylesheetHref string
	LoaderSrc      string

	// Stylesheet is the main stylesheet source for CSS optimization.
	Stylesheet string

	// OptimizeCSS inlines only the rules used by the rendered markup.
	OptimizeCSS bool

	// ServerOnly omits the loader script tag from assembled documents.
	ServerOnly bool

	// LegacyRedirect is an optional inline script that redirects
	// unsupported browsers.
	LegacyRedirect string

	// AllowedResources are URL patterns the sandbox may fetch beyond
	// same-origin bundles.
	AllowedResources []string

	// Features are feature flags exposed to the application.
	Features map[string]bool

	// Fetch performs the sandbox's outbound resource fetches.
	Fetch render.FetchFunc

	// CSP emits a Content-Security-Policy script-src header built from
	// the document's inline-script integrity hashes.
	CSP bool
}

// MetricsConfig configures the Prometheus surface.
type MetricsConfig struct {
	// Enabled mounts the metrics endpoint and request middleware.
	Enabled bool

	// Path is the metrics endpoint path. Default: "/metrics".
	Path string
}

// ConfigError describes invalid configuration detected at construction
// time. Misconfiguration is fatal before the server accepts traffic.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration. It is called by New; a non-nil
// error means the app must not start.
func (c *Config) Validate() error {
	switch c.Protocol {
	case "", "http":
	case "https":
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return &ConfigError{Field: "tls", Reason: "https requires cert and key files"}
		}
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return &ConfigError{Field: "tls.certFile", Reason: err.Error()}
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return &ConfigError{Field: "tls.keyFile", Reason: err.Error()}
		}
	default:
		return &ConfigError{Field: "protocol", Reason: fmt.Sprintf("invalid protocol %q", c.Protocol)}
	}

	if c.Render.Factory == nil {
		return &ConfigError{Field: "render.factory", Reason: "a sandbox factory is required"}
	}
	if len(c.Render.Scripts.Ordered()) > 0 && c.Render.Compiler == nil {
		return &ConfigError{Field: "render.compiler", Reason: "a compiler is required when scripts are configured"}
	}
	return nil
}

// DefaultCacheConfig returns the cache defaults applied by New.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Namespace: "pages",
		ErrorTTL:  30 * time.Second,
	}
}
