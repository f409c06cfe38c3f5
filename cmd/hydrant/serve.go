package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hydrant-dev/hydrant"
	"github.com/hydrant-dev/hydrant/pkg/cache"
	"github.com/hydrant-dev/hydrant/pkg/render"
)

func serveCmd() *cobra.Command {
	var (
		addr         string
		certFile     string
		keyFile      string
		staticDir    string
		staticPrefix string
		origin       string
		namespace    string
		ttl          time.Duration
		redisAddr    string
		noCache      bool
		loaderSrc    string
		manifestHref string
		styleHref    string
		stylePath    string
		optimizeCSS  bool
		serverOnly   bool
		csp          bool
		metrics      bool
		tracing      bool
		devMode      bool
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rendering server",
		Long: `Start the rendering server.

Without a JavaScript sandbox wired in, serve runs in shell mode: every
page gets the application shell document and rendering happens in the
browser. Responses are still cached and replayed.

Examples:
  hydrant serve --static=./dist --loader=/assets/loader.js
  hydrant serve --redis=localhost:6379 --namespace=v42
  hydrant serve --cert=tls.crt --key=tls.key --addr=:443`,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			var stylesheet string
			if stylePath != "" {
				b, err := os.ReadFile(stylePath)
				if err != nil {
					return fmt.Errorf("read stylesheet: %w", err)
				}
				stylesheet = string(b)
			}

			var store cache.Store
			if redisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: redisAddr})
				if err := client.Ping(cmd.Context()).Err(); err != nil {
					return fmt.Errorf("redis ping: %w", err)
				}
				store = cache.NewRedisStore(client)
			}

			cfg := hydrant.Config{
				Addr:    addr,
				Static:  hydrant.StaticConfig{Dir: staticDir, Prefix: staticPrefix},
				Metrics: hydrant.MetricsConfig{Enabled: metrics},
				Tracing: tracing,
				DevMode: devMode,
				Logger:  logger,
				Cache: hydrant.CacheConfig{
					Store:     store,
					Namespace: namespace,
					Disabled:  noCache,
					TTL:       ttl,
				},
				Render: hydrant.RenderConfig{
					Origin:         origin,
					Factory:        render.ShellFactory(),
					LoaderSrc:      loaderSrc,
					ManifestHref:   manifestHref,
					StylesheetHref: styleHref,
					Stylesheet:     stylesheet,
					OptimizeCSS:    optimizeCSS,
					ServerOnly:     serverOnly,
					CSP:            csp,
				},
			}
			if certFile != "" || keyFile != "" {
				cfg.Protocol = "https"
				cfg.TLS = hydrant.TLSConfig{CertFile: certFile, KeyFile: keyFile}
			}

			app, err := hydrant.New(cfg)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- app.Run() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("shutting down", "signal", sig.String())
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := app.Drain(ctx); err != nil {
					logger.Warn("drain incomplete", "error", err)
				}
				if store != nil {
					if err := store.Close(); err != nil {
						logger.Warn("store close failed", "error", err)
					}
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")
	cmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate file (enables HTTPS)")
	cmd.Flags().StringVar(&keyFile, "key", "", "TLS key file (enables HTTPS)")
	cmd.Flags().StringVar(&staticDir, "static", "", "Directory of static assets")
	cmd.Flags().StringVar(&staticPrefix, "static-prefix", "/", "URL prefix for static assets")
	cmd.Flags().StringVar(&origin, "origin", "", "Canonical origin, e.g. https://example.com")
	cmd.Flags().StringVar(&namespace, "namespace", "pages", "Cache namespace, e.g. a release version")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Fixed cache TTL (default derives from Cache-Control)")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address for the cache store (default in-memory)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the response cache")
	cmd.Flags().StringVar(&loaderSrc, "loader", "", "URL of the client loader script")
	cmd.Flags().StringVar(&manifestHref, "manifest", "", "URL of the asset manifest")
	cmd.Flags().StringVar(&styleHref, "stylesheet-href", "", "URL of the main stylesheet")
	cmd.Flags().StringVar(&stylePath, "stylesheet", "", "Path to the main stylesheet for CSS inlining")
	cmd.Flags().BoolVar(&optimizeCSS, "optimize-css", false, "Inline only the CSS rules the page uses")
	cmd.Flags().BoolVar(&serverOnly, "server-only", false, "Omit the client loader from documents")
	cmd.Flags().BoolVar(&csp, "csp", false, "Emit Content-Security-Policy integrity hashes")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Expose Prometheus metrics at /metrics")
	cmd.Flags().BoolVar(&tracing, "tracing", false, "Enable OpenTelemetry request tracing")
	cmd.Flags().BoolVar(&devMode, "dev", false, "Development mode: live reload, verbose error pages")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	return cmd
}
