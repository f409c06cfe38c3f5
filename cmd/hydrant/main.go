package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hydrant",
		Short: "Server-side page rendering with a response cache",
		Long: `Hydrant renders single-page applications on the server and caches
the finished pages, so browsers and crawlers get full HTML on the
first byte and repeat requests never touch the renderer.

  • Multi-phase render pipeline with graceful fallback
  • Write-through response cache (memory, Redis, or S3)
  • Device and crawler aware cache keys
  • Prometheus metrics and OpenTelemetry tracing`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
