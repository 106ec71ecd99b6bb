// Package main is the entry point for the gate backend server.
//
// main only reads configuration, builds the logger and hands both to
// internal/server. Everything else lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/garirakho/gate-backend/internal/config"
	"github.com/garirakho/gate-backend/internal/server"
)

// defaultIngestKey is the development key devices ship with.
const defaultIngestKey = "devkey"

func main() {
	// === 1. CONFIGURATION ===
	// .env, optional YAML (CONFIG_FILE) and the environment, in that order.
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if cfg.Ingest.APIKey == defaultIngestKey {
		logger.Warn("INGEST_API_KEY is the default development key; set a real one in production")
	}

	// === 3. SQLITE DIRECTORY ===
	// The SQLite fallback creates its file on first open, but not the
	// directory holding it.
	if driver, dsn, err := cfg.Database.Select(); err == nil && driver == config.DriverSQLite && dsn != ":memory:" {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. SERVER ===
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the slog handler from LOG_FORMAT (text or json) and
// LOG_LEVEL (debug, info, warn, error). An unknown level means info.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
