package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/JonMunkholm/memcsv/internal/config"
	"github.com/JonMunkholm/memcsv/internal/core"
	db "github.com/JonMunkholm/memcsv/internal/database"
	"github.com/JonMunkholm/memcsv/internal/logging"
	"github.com/JonMunkholm/memcsv/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	dialect, err := cfg.Dialect.Build()
	if err != nil {
		logger.Error("invalid default dialect", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"ttl", cfg.Store.TTLDuration().String(),
		"data_dir", cfg.Store.DataDir,
		"load_max_concurrent", cfg.Store.MaxConcurrentLoads,
		"audit_db", cfg.Audit.DatabaseURL != "",
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// The audit trail goes to Postgres when a URL is configured, otherwise
	// it is only logged.
	var recorder core.AuditRecorder
	var pool *pgxpool.Pool
	if cfg.Audit.DatabaseURL != "" {
		pool, err = openAuditPool(ctx, cfg.Audit)
		if err != nil {
			logger.Error("failed to open audit database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to create audit schema", "error", err)
			os.Exit(1)
		}
		recorder = core.NewDBAuditRecorder(pool)
		logger.Info("audit trail stored in database")
	}

	service := core.NewService(core.Options{
		Fs:                 afero.NewOsFs(),
		DataDir:            cfg.Store.DataDir,
		Dialect:            dialect,
		TTL:                cfg.Store.TTLDuration(),
		MaxConcurrentLoads: cfg.Store.MaxConcurrentLoads,
		MaxLoadWait:        cfg.Store.MaxLoadWait,
		Recorder:           recorder,
		Logger:             logger,
	})

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(ctx)
	go service.StartSweepScheduler(jobCtx, cfg.Store.SweepInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.LoadStatus(); status.Active > 0 {
			logger.Info("waiting for loads to complete", "active", status.Active)
			if err := service.WaitForLoads(shutdownCtx); err != nil {
				logger.Warn("loads did not complete in time", "error", err)
			} else {
				logger.Info("all loads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		logger.Info("server stopped", "error", err)
	}
}

func openAuditPool(ctx context.Context, cfg config.AuditConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
