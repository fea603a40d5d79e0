package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	lendconfig "lendboard/config"
	"lendboard/gateway/middleware"
	"lendboard/lending/catalog"
	"lendboard/observability/logging"
	telemetry "lendboard/observability/otel"
	"lendboard/services/dashboardd/config"
	"lendboard/services/dashboardd/server"
	"lendboard/services/dashboardd/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/dashboardd/config.yaml", "path to dashboardd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDBOARD_ENV"))
	logger := logging.Setup("dashboardd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger = logging.SetupLevel("dashboardd", env, logging.ParseLevel(cfg.LogLevel))

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("dashboardd", env))
	if err != nil {
		fatal(logger, "init telemetry", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	deployment, err := lendconfig.Load(cfg.CatalogPath)
	if err != nil {
		fatal(logger, "load catalog", err)
	}
	cat, err := catalog.New(deployment)
	if err != nil {
		fatal(logger, "build catalog", err)
	}

	dsn := cfg.Database.URL
	if cfg.Database.Driver == config.DriverSQLite {
		dsn, err = storage.FileDSN(cfg.Database.Path)
		if err != nil {
			fatal(logger, "resolve storage DSN", err)
		}
	}
	store, err := storage.Open(cfg.Database.Driver, dsn)
	if err != nil {
		fatal(logger, "open storage", err)
	}
	defer store.Close()
	logger.Info("storage ready",
		slog.String("driver", cfg.Database.Driver),
		slog.String("dsn", logging.MaskDSN(dsn)))

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for name, limit := range cfg.RateLimits {
		limits[name] = middleware.RateLimit{
			RatePerSecond: limit.RatePerSecond,
			Burst:         limit.Burst,
			DefaultTokens: limit.DefaultTokens,
			Tokens:        limit.Tokens,
		}
	}

	srv, err := server.New(server.Config{
		ListenAddress:   cfg.ListenAddress,
		Strict:          cfg.Strict,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration,
		HistoryLimit:    cfg.History.Limit,
		Retention:       cfg.History.Retention.Duration,
		Auth: middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		IngestScope:  cfg.Auth.IngestScope,
		RateLimits:   limits,
		CORS:         middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		StreamBuffer: cfg.Stream.Buffer,
		WriteTimeout: cfg.Stream.WriteTimeout.Duration,
	}, cat, store, logger)
	if err != nil {
		fatal(logger, "build server", err)
	}
	if !cfg.Auth.Enabled {
		logger.Warn("snapshot ingest is unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
