// Command searcher runs the hash tree search service.
//
// On startup it loads records from the configured source chain (HTTP JSON
// endpoint and/or PostgreSQL), falling back to a fixed three-record set
// when nothing could be loaded. It then serves prefix search over HTTP,
// consumes new records from Kafka, and aggregates search analytics.
// POST /api/v1/reload rebuilds the index from the same source chain.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/search/handler"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/redis"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "sources", cfg.Loader.Sources)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
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

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		var err error
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		slog.Info("connected to postgres", "database", cfg.Postgres.Database)
	}

	g, gctx := errgroup.WithContext(ctx)

	aggregator := analytics.NewAggregator()
	var tracker analytics.Tracker = aggregator
	var analyticsConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000, 100, time.Second)
		collector.Start(gctx)
		defer collector.Close()
		tracker = collector
		analyticsConsumer = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
	}
	g.Go(func() error { return aggregator.Start(gctx, analyticsConsumer) })
	var snapshotReader analytics.SnapshotReader
	if db != nil {
		snapshots := analytics.NewSnapshotStore(db.DB, cfg.Analytics.SnapshotRetention)
		snapshotReader = snapshots
		g.Go(func() error { return snapshots.Run(gctx, aggregator, cfg.Analytics.SnapshotInterval) })
	}

	store := hashtree.NewStore()
	svc := search.New(store, queryCache, tracker, m)

	sources, err := buildSources(cfg, db)
	if err != nil {
		return err
	}
	opts := loader.OptionsFromConfig(cfg.Loader)
	opts.Metrics = m
	ldr := loader.New(sources, opts)
	result, err := ldr.Load(ctx, svc)
	if err != nil {
		slog.Warn("starting with an empty index", "error", err)
	}
	slog.Info("index loaded",
		"records_indexed", result.Indexed,
		"fallback", result.Fallback,
		"index_records", store.Len(),
	)

	if cfg.Kafka.Enabled {
		kcfg := cfg.Kafka
		kcfg.ConsumerGroup = instanceGroup(kcfg.ConsumerGroup)
		recordConsumer := consumer.New(kafka.NewConsumer(kcfg, kcfg.Topics.RecordIngest, consumer.HandleMessage(svc)))
		g.Go(func() error { return recordConsumer.Start(gctx) })
		slog.Info("record consumer started", "topic", kcfg.Topics.RecordIngest, "group", kcfg.ConsumerGroup)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if n := store.Len(); n > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d records", n)}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "index is empty"}
	})
	if cfg.Redis.Enabled {
		checker.RegisterOptional("redis", func(ctx context.Context) health.ComponentHealth {
			if redisClient == nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: "not connected"}
			}
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if db != nil {
		checker.RegisterOptional("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := handler.New(svc, queryCache, validator.New(cfg.Ingestion), cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	analyticsH := analytics.NewHandler(aggregator, snapshotReader)

	limitWrites := func(h http.HandlerFunc) http.Handler { return h }
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limiter := middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst)
		g.Go(func() error { return limiter.Run(gctx, time.Minute) })
		limit := middleware.RateLimit(limiter, m)
		limitWrites = func(h http.HandlerFunc) http.Handler { return limit(h) }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.Handle("POST /api/v1/records", limitWrites(h.InsertRecord))
	mux.Handle("POST /api/v1/records/batch", limitWrites(h.InsertBatch))
	mux.Handle("POST /api/v1/reload", limitWrites(h.Reload(func(ctx context.Context) (hashtree.Stats, error) {
		return svc.Reload(ctx, func(ctx context.Context, idx *hashtree.Index) error {
			res, err := ldr.Load(ctx, idx)
			if err == nil && res.Fallback {
				return fmt.Errorf("%w: every source failed, keeping the current index", apperrors.ErrSourceUnavailable)
			}
			return err
		})
	})))
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshot", analyticsH.Snapshot)
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

	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildSources maps the configured source names onto loader sources.
func buildSources(cfg *config.Config, db *postgres.Client) ([]loader.Source, error) {
	sources := make([]loader.Source, 0, len(cfg.Loader.Sources))
	for _, name := range cfg.Loader.Sources {
		switch name {
		case "http":
			sources = append(sources, loader.NewHTTPSource(cfg.Loader.URL, &http.Client{Timeout: cfg.Loader.Timeout}))
		case "postgres":
			if db == nil {
				return nil, errors.New("loader source postgres requires a postgres connection")
			}
			sources = append(sources, &loader.PostgresSource{DB: db.DB})
		default:
			return nil, fmt.Errorf("unknown loader source %q", name)
		}
	}
	return sources, nil
}

// instanceGroup gives every search instance its own consumer group so each
// one receives every record.
func instanceGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "-" + host
}
