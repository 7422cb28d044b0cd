package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/uploadkit/internal/adapter"
	"github.com/JonMunkholm/uploadkit/internal/config"
	"github.com/JonMunkholm/uploadkit/internal/history"
	"github.com/JonMunkholm/uploadkit/internal/logging"
	"github.com/JonMunkholm/uploadkit/internal/notify"
	"github.com/JonMunkholm/uploadkit/internal/session"
	"github.com/JonMunkholm/uploadkit/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	sessionCfg, err := cfg.SessionSettings()
	if err != nil {
		slog.Error("failed to load accept configuration", "error", err)
		os.Exit(1)
	}

	uploader, limiter, err := adapter.New(ctx, cfg.AdapterSettings(), logger)
	if err != nil {
		slog.Error("failed to create upload adapter", "error", err)
		os.Exit(1)
	}
	slog.Info("upload adapter ready",
		"kind", cfg.Adapter.Kind,
		"global_max_concurrent", cfg.Adapter.GlobalMaxConcurrent,
	)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	var store *history.Store
	if cfg.Database.Enabled() {
		pool, err := connectDB(ctx, &cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store = history.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare history schema", "error", err)
			os.Exit(1)
		}
		go store.StartPurgeScheduler(jobCtx, cfg.PurgeSettings())
	} else {
		slog.Info("no database configured, upload history disabled")
	}

	hub := notify.NewHub(logger)
	sessions := session.NewRegistry(uploader, hub, store, sessionCfg, logger)

	server := web.NewServer(web.Deps{
		Config:   cfg,
		Sessions: sessions,
		Hub:      hub,
		History:  store,
		Limiter:  limiter,
		Accept:   sessionCfg.Accept,
		Logger:   logger,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first so no new uploads start
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for active transfers to complete (with timeout)
		if limiter != nil {
			if st := limiter.Status(); st.Active > 0 {
				slog.Info("waiting for uploads to complete", "active", st.Active)
				if err := limiter.WaitForDrain(shutdownCtx); err != nil {
					slog.Warn("uploads did not complete in time", "error", err)
				} else {
					slog.Info("all uploads completed")
				}
			}
		}

		// Whatever is still running ends interrupted
		sessions.Close()
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	err = server.Start(cfg.Server.Addr())
	if !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		sessions.Close()
		return
	}
	<-done
	slog.Info("server stopped")
}

// connectDB opens and verifies the connection pool.
func connectDB(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
