package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ucptrace/ucptrace/internal/auth"
	"github.com/ucptrace/ucptrace/internal/config"
	"github.com/ucptrace/ucptrace/internal/dlq"
	"github.com/ucptrace/ucptrace/internal/handlers"
	"github.com/ucptrace/ucptrace/internal/logging"
	"github.com/ucptrace/ucptrace/internal/ratelimit"
	"github.com/ucptrace/ucptrace/internal/server"
	"github.com/ucptrace/ucptrace/internal/storage"
	"github.com/ucptrace/ucptrace/pkg/tracker"
	"github.com/ucptrace/ucptrace/pkg/writer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With("service", "collector")
	logging.SetDefault(logger)

	logger.Info("starting collector",
		"port", cfg.Server.Port,
		"backend", cfg.Destination.Backend,
		"log_level", cfg.Logging.Level,
	)

	dest, err := newDestination(cfg, logger)
	if err != nil {
		return err
	}

	var rateLimiter ratelimit.RateLimiter
	if cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Ingestion.RedisURL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			logger.Warn("rate limiter unavailable, continuing without", "error", err)
			rateLimiter = ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			logger.Info("rate limiting enabled",
				"requests", cfg.Ingestion.RateLimitRequests,
				"window", cfg.Ingestion.RateLimitWindow,
			)
		}
	} else {
		rateLimiter = ratelimit.NoOpRateLimiter{}
	}
	defer rateLimiter.Close()

	var writerOpts []writer.Option
	var dlqQueue *dlq.JetStreamQueue
	if cfg.DLQ.Enabled {
		dlqQueue, err = dlq.NewJetStreamQueue(context.Background(), cfg.DLQ.NATSURL, logger.Logger)
		if err != nil {
			return fmt.Errorf("init dlq: %w", err)
		}
		defer dlqQueue.Close()
		writerOpts = append(writerOpts, writer.WithEvictFunc(func(row map[string]interface{}) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			dlqQueue.WriteEvicted(ctx, row)
		}))
		logger.Info("dlq enabled", "nats_url", cfg.DLQ.NATSURL)
	}

	buf := writer.New(dest, writer.Config{
		BatchSize:      cfg.Buffer.BatchSize,
		BufferCapacity: cfg.Buffer.Capacity,
		FlushTimeout:   cfg.Buffer.FlushTimeout,
	}, logger.Logger, writerOpts...)

	trk := tracker.New(buf, tracker.Config{
		AppName:        cfg.Tracker.AppName,
		RedactPII:      cfg.Tracker.RedactPII,
		PIIFields:      cfg.Tracker.PIIFields,
		CustomMetadata: cfg.Tracker.CustomMetadata,
	}, logger.Logger)

	var verifier *auth.Verifier
	if cfg.Auth.Enabled {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth enabled but auth.jwt_secret is empty")
		}
		verifier = auth.NewVerifier(cfg.Auth.JWTSecret)
		logger.Info("signal endpoint authentication enabled")
	}

	handler := handlers.NewSignalHandler(trk, rateLimiter, cfg.Ingestion.MaxSignalSize, logger)
	router := server.NewRouter(handler, verifier)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collector listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := trk.Close(shutdownCtx); err != nil {
		logger.Error("final flush failed", "error", err)
	}

	logger.Info("collector stopped")
	return nil
}

// newDestination builds the configured warehouse backend.
func newDestination(cfg *config.Config, logger *logging.Logger) (writer.Destination, error) {
	switch cfg.Destination.Backend {
	case "opensearch", "":
		dest, err := storage.NewOpenSearch(storage.OpenSearchConfig{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			IndexPrefix:   cfg.OpenSearch.IndexPrefix,
			ShardCount:    cfg.OpenSearch.ShardCount,
			ReplicaCount:  cfg.OpenSearch.ReplicaCount,
		}, logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("init opensearch destination: %w", err)
		}
		return dest, nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		dest, err := storage.NewPostgres(ctx, storage.PostgresConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		}, logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres destination: %w", err)
		}
		return dest, nil
	default:
		return nil, fmt.Errorf("unknown destination backend: %s (supported: opensearch, postgres)", cfg.Destination.Backend)
	}
}
