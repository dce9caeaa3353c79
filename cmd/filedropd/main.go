package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/zynqcloud/filedrop/internal/cleanup"
	"github.com/zynqcloud/filedrop/internal/config"
	"github.com/zynqcloud/filedrop/internal/handler"
	"github.com/zynqcloud/filedrop/internal/index"
	"github.com/zynqcloud/filedrop/internal/store"
	"github.com/zynqcloud/filedrop/internal/sync"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "filedrop.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration error", "err", err)
		os.Exit(1)
	}

	backend, err := newBackend(cfg)
	if err != nil {
		logger.Error("failed to initialise storage backend", "err", err)
		os.Exit(1)
	}

	idx, err := index.NewStore(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open index", "err", err)
		os.Exit(1)
	}
	defer idx.Close() //nolint:errcheck

	// Root context — cancelled when a shutdown signal arrives. All
	// long-running background goroutines receive this context so they
	// stop cleanly without needing their own signal wiring.
	ctx, cancel := context.WithCancel(context.Background())

	// One-time startup reconciliation (§4.F) before the server starts
	// accepting traffic, so a stale index never serves a listing that
	// disagrees with what's actually on the backing store.
	reconciler := sync.NewReconciler(idx, backend, logger)
	if err := reconciler.Run(ctx); err != nil {
		logger.Error("startup reconciliation failed", "err", err)
		cancel()
		os.Exit(1)
	}

	// Partial-upload cleanup goroutine reclaims disk space from abandoned
	// sessions (§4.G supplemented feature).
	ttl := time.Duration(cfg.UploadTimeoutSecs) * time.Second
	cleanupDone := cleanup.RunPeriodic(ctx, idx, backend, ttl, 10*time.Minute, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler.New(cfg, idx, backend, reconciler, logger),
		// ReadHeaderTimeout closes Slowloris: a client that never finishes
		// sending headers holds a goroutine until this fires.
		ReadHeaderTimeout: 10 * time.Second,
		// ReadTimeout and WriteTimeout are intentionally disabled (0 = no
		// limit): a multi-gigabyte upload over the chunked WebSocket
		// channel can legitimately take hours at a slow link, and any
		// finite deadline here would sever it mid-session. A reverse
		// proxy in front of filedropd is the correct layer for an
		// outer connection timeout.
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("filedrop starting",
			"port", cfg.Port,
			"file_system", cfg.FileSystem,
			"storage_limit_bytes", cfg.StorageLimitBytes,
			"max_concurrent_uploads", cfg.MaxConcurrentUploads,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// shutdownSignals is defined in signals.go (os.Interrupt) and extended
	// by signals_unix.go (+ SIGTERM) via build tags — no OS-specific
	// imports here.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, shutdownSignals...)
	<-quit

	logger.Info("shutdown signal received — draining connections")

	// Cancel the root context first so background goroutines (cleanup)
	// stop accepting new work before the HTTP server drains.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}

	// Wait for the cleanup goroutine to finish its current pass.
	<-cleanupDone

	logger.Info("filedrop stopped")
}

// newBackend constructs the configured store.Backend: Local or SFTP.
func newBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.FileSystem {
	case config.FileSystemLocal:
		return store.NewLocal(cfg.Local.Path)

	case config.FileSystemSSH:
		sshCfg := store.SFTPConfig{
			Addr:       fmt.Sprintf("%s:%d", cfg.SSH.Host, cfg.SSH.Port),
			User:       cfg.SSH.User,
			Password:   cfg.SSH.Password,
			RemoteRoot: cfg.SSH.RemoteRoot,
			KeepAlive:  time.Duration(cfg.SSH.KeepAliveSecs) * time.Second,
		}
		if cfg.SSH.PublicKeyPath != "" {
			key, err := os.ReadFile(cfg.SSH.PublicKeyPath)
			if err != nil {
				return nil, fmt.Errorf("read ssh private key %q: %w", cfg.SSH.PublicKeyPath, err)
			}
			sshCfg.PrivateKey = key
		}
		return store.NewSFTP(sshCfg)

	default:
		return nil, fmt.Errorf("unknown file_system %q", cfg.FileSystem)
	}
}
