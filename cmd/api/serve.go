package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"cabinet/api/internal/app"
	"cabinet/api/internal/email"
	"cabinet/api/internal/events"
	"cabinet/api/internal/export"
	"cabinet/api/internal/ratelimit"
	"cabinet/api/internal/search"
	"cabinet/api/internal/session"
	"cabinet/api/internal/storage"
	"cabinet/api/internal/store"
	"cabinet/api/internal/telemetry"
)

func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	cfg := loadConfig(ctx)
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig(ctx)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	dataStore := store.NewPostgresStore(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := app.Deps{
		Store:    dataStore,
		Searcher: search.NewPgSearch(db),
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		PDF:     export.ChromePDF{ExecPath: cfg.ChromiumPath},
		Metrics: telemetry.NewMetrics(registry),
	}
	opts := app.ServerOptions{CORSOrigins: cfg.CORSOrigins, Gatherer: registry}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Connect(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer client.Close()
		log.Info().Msg("using redis for refresh sessions and rate limits")
		deps.Sessions = session.NewRedisStoreWithClient(client)
		opts.Limits = ratelimit.NewRedisStore(client)
	} else {
		log.Info().Msg("using postgres for refresh sessions")
	}

	if cfg.StorageConfigured() {
		objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			// Uploads fail with a storage error until the next restart.
			log.Error().Err(err).Msg("object storage unavailable")
		} else {
			deps.Objects = objects
		}
	} else {
		log.Warn().Msg("object storage not configured, uploads disabled")
	}

	if strings.TrimSpace(cfg.NATSURL) != "" {
		publisher, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			log.Error().Err(err).Msg("nats unavailable, domain events disabled")
		} else {
			defer publisher.Close()
			deps.Events = publisher
		}
	}

	service := app.New(cfg, deps)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("cabinet api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	return nil
}
