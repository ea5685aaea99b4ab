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

	"receipt-drop/internal/blob"
	"receipt-drop/internal/config"
	"receipt-drop/internal/db"
	"receipt-drop/internal/logging"
	"receipt-drop/internal/receipts"
	"receipt-drop/internal/server"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(os.Stdout, logging.Format(cfg.LogFormat), cfg.LogLevel).With("service", "backend")
	slog.SetDefault(log)

	// Cancelled on SIGINT (Ctrl+C) or SIGTERM (container stop).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("exiting", "error", err)
		os.Exit(1)
	}
}

type app struct {
	srv     *server.Server
	store   db.Store
	sweeper *receipts.Sweeper
}

// newApp opens the stores and wires the upload pipeline, sweeper and HTTP
// server together.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := db.Open(ctx, cfg.DatabaseURL, db.OpenOptions{
		ConnectTimeout: cfg.ConnectTimeout,
		MongoDatabase:  cfg.MongoDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	log.Info("db_connected", "backend", store.Backend())

	records := db.NewBreaker(store, uint32(cfg.Breaker.Failures), cfg.Breaker.Timeout, log)
	uploader := receipts.NewUploader(blobs, records, cfg.BaseURL)

	return &app{
		store:   records,
		sweeper: receipts.NewSweeper(cfg.Sweeper(), blobs, records),
		srv: server.New(server.Config{
			Addr:            cfg.Addr,
			Env:             cfg.Env,
			Uploader:        uploader,
			Store:           records,
			Blobs:           blobs,
			CORSOrigins:     cfg.CORSOrigins,
			UploadRateLimit: cfg.UploadRateLimit,
			TrustProxy:      cfg.TrustProxy,
			Build:           server.Build{Version: cfg.Version, Commit: cfg.Commit},
			Logger:          log,
		}),
	}, nil
}

func openBlobs(ctx context.Context, cfg config.Config) (blob.Store, error) {
	if m := cfg.Minio(); m.Enabled() {
		s, err := blob.NewMinioStore(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("open object storage: %w", err)
		}
		return s, nil
	}
	s, err := blob.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("open upload dir: %w", err)
	}
	return s, nil
}

// run serves until ctx is cancelled or the listener fails, then shuts the
// server down and closes the record store.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx = logging.WithLogger(ctx, log)
	for _, w := range cfg.Warnings() {
		log.Warn("config_warning", "msg", w)
	}
	redacted := cfg.Redacted()
	log.Info("starting",
		"addr", cfg.Addr,
		"env", cfg.Env,
		"base_url", cfg.BaseURL,
		"database_url", redacted.DatabaseURL,
		"version", cfg.Version,
		"commit", cfg.Commit,
	)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.store.Close(cctx); err != nil {
			log.Error("db_close_failed", "error", err)
		}
	}()

	go a.sweeper.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutting_down")
		// Give in-flight uploads time to finish.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("shutdown_complete")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}
}
