// Command server runs the payment history service.
package main

import (
	"context"
	"os"

	"github.com/mbd888/payhistory/internal/config"
	"github.com/mbd888/payhistory/internal/logging"
	"github.com/mbd888/payhistory/internal/server"
	"github.com/mbd888/payhistory/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting payhistory",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"capture_mode", cfg.CaptureMode,
		"default_currency", cfg.DefaultCurrency,
	)

	ctx := context.Background()
	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		_ = shutdownTracing(context.Background())
		os.Exit(1)
	}
}
