// BlockPhantom - Wallet risk reports for Ethereum and Cardano
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mbd888/blockphantom/internal/config"
	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/server"
	"github.com/mbd888/blockphantom/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// initTraces is swapped in tests.
var initTraces = traces.Init

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run starts tracing and serves until ctx ends or the server fails. The
// tracer is flushed on every return path.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting blockphantom",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"alchemy_network", cfg.AlchemyNetwork,
		"blockfrost_network", cfg.BlockfrostNetwork,
		"fallback_on_fetch_error", cfg.FallbackOnFetchError,
	)

	shutdownTraces, err := initTraces(ctx, cfg.OTLPEndpoint, Version, logger)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(sctx); err != nil {
			logger.Error("trace shutdown error", "error", err)
		}
	}()

	if Version != "dev" {
		server.Version = Version
	}

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(ctx)
}
