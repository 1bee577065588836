// Command governor runs the governance runtime: the CARP resolve/execute
// HTTP surface, session lifecycle, approval workflow, and trace query/stream
// endpoints, wired up by pkg/runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/governor/pkg/api"
	"github.com/codeready-toolchain/governor/pkg/config"
	"github.com/codeready-toolchain/governor/pkg/runtime"
	"github.com/codeready-toolchain/governor/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "directory holding config.yaml and .env")
	configFile := flag.String("config-file", "", "path to config.yaml (overrides -config-dir)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Warn("no .env file loaded", "path", envPath, "error", err)
	} else {
		logger.Info("loaded environment file", "path", envPath)
	}

	path := *configFile
	if path == "" {
		path = filepath.Join(*configDir, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load configuration", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to construct runtime", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("error closing runtime", "error", err)
		}
	}()

	logger.Info("starting governor",
		"version", version.Full(),
		"address", cfg.Server.Address,
		"storage_driver", cfg.Storage.Driver,
		"atlas_dirs", cfg.Atlas.Dirs,
	)

	server := api.NewServer(rt)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("governor stopped")
}
