// Package main is the entry point for the Users API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/pkordes/users-api/internal/config"
	"github.com/pkordes/users-api/internal/handler"
	"github.com/pkordes/users-api/internal/repo"
	"github.com/pkordes/users-api/internal/service"
	"github.com/pkordes/users-api/migrations"
)

func main() {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use the default logger before the JSON logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	ctx := context.Background()
	users, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open database", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	slog.Info("database connection established", "driver", cfg.Driver)

	// --- Router -----------------------------------------------------------
	errs := handler.NewErrorTranslator(logger)
	srv := handler.NewServer(service.NewUserService(users), errs)
	router := handler.NewRouter(srv, logger, handler.RouterOptions{
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openStore connects to the configured engine, applies migrations when
// enabled and returns the user repository with its close function.
func openStore(ctx context.Context, cfg config.Config) (repo.UserRepo, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		// New() does not open connections immediately; Ping verifies reachability.
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping: %w", err)
		}
		if cfg.MigrateOnStart {
			// goose needs database/sql; borrow the pool through the stdlib bridge.
			db := stdlib.OpenDBFromPool(pool)
			n, err := migrations.Up(ctx, goose.DialectPostgres, db)
			db.Close()
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			slog.Info("migrations applied", "count", n)
		}
		return repo.NewUserRepo(pool), pool.Close, nil

	case config.DriverSQLite:
		db, err := repo.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() { _ = db.Close() }
		if cfg.MigrateOnStart {
			n, err := migrations.Up(ctx, goose.DialectSQLite3, db.DB)
			if err != nil {
				closeDB()
				return nil, nil, err
			}
			slog.Info("migrations applied", "count", n)
		}
		users, err := repo.NewSQLiteUserRepo(db)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		return users, closeDB, nil
	}
	return nil, nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}
