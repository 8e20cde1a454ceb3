// Command analytics runs the standalone search analytics service.
//
// It consumes search and insert events published by search instances,
// aggregates them in memory (query volume, latency percentiles, cache hit
// rate, zero-result rate, top queries, records inserted per origin) and
// serves the aggregate at GET /api/v1/analytics. With PostgreSQL enabled it
// also writes periodic snapshots to the analytics_snapshots table.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/analytics"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	if err := run(cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(cfg *config.Config) error {
	if !cfg.Kafka.Enabled {
		return errors.New("analytics service requires kafka.enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	// A dedicated group so the search instances' own aggregators do not
	// split the topic with this service.
	kcfg := cfg.Kafka
	kcfg.ConsumerGroup += "-analytics"
	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(kcfg, kcfg.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
	g.Go(func() error { return aggregator.Start(gctx, consumer) })
	slog.Info("analytics aggregator started", "topic", kcfg.Topics.AnalyticsEvents, "group", kcfg.ConsumerGroup)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		s := consumer.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d events processed, %d failed", s.Processed, s.Failed),
		}
	})

	var snapshotReader analytics.SnapshotReader
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		snapshots := analytics.NewSnapshotStore(db.DB, cfg.Analytics.SnapshotRetention)
		snapshotReader = snapshots
		g.Go(func() error { return snapshots.Run(gctx, aggregator, cfg.Analytics.SnapshotInterval) })
		checker.RegisterOptional("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		slog.Info("analytics snapshots enabled", "interval", cfg.Analytics.SnapshotInterval)
	}

	mux := http.NewServeMux()
	analyticsH := analytics.NewHandler(aggregator, snapshotReader)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshot", analyticsH.Snapshot)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
