// Command ingestion starts the record ingestion HTTP service.
//
// The service accepts records via POST /api/v1/records and
// POST /api/v1/records/batch, validates them, persists them to PostgreSQL
// when enabled, and publishes them to the record-ingest Kafka topic for the
// search service to index.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	checker := health.NewChecker()
	var store publisher.RecordStore
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate postgres", "error", err)
			os.Exit(1)
		}
		store = publisher.NewPostgresStore(db)
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		slog.Info("connected to postgres")
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RecordIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.RecordIngest)

	pub := publisher.New(store, producer)
	h := handler.New(pub, validator.New(cfg.Ingestion))
	limitWrites := func(h http.HandlerFunc) http.Handler { return h }
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limiter := middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst)
		go limiter.Run(ctx, time.Minute)
		limit := middleware.RateLimit(limiter, m)
		limitWrites = func(h http.HandlerFunc) http.Handler { return limit(h) }
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/records", limitWrites(h.Ingest))
	mux.Handle("POST /api/v1/records/batch", limitWrites(h.IngestBatch))
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Trace(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
