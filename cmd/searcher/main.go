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

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/autocomplete"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/pico"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/pico/executor"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/router"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/status"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// articleStore is whichever backend store.driver selected.
type articleStore struct {
	querier executor.Querier
	dialect pico.Dialect
	ping    func(context.Context) error
	close   func() error
	pg      *postgres.Client
}

func openStore(ctx context.Context, cfg *config.Config) (*articleStore, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return &articleStore{querier: db.DB, dialect: pico.SQLite{}, ping: db.Ping, close: db.Close}, nil
	default:
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return &articleStore{querier: db.DB, dialect: pico.Postgres{}, ping: db.Ping, close: db.Close, pg: db}, nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"driver", cfg.Store.Driver,
		"max_results", cfg.Store.MaxResults,
	)

	idx, err := vocabulary.LoadIndex(cfg.Vocabulary.SnapshotPath)
	if err != nil {
		return fmt.Errorf("loading vocabulary: %w", err)
	}
	slog.Info("vocabulary loaded", "path", cfg.Vocabulary.SnapshotPath, "entries", idx.Len())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		m.VocabularyEntries.Set(float64(idx.Len()))
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer store.close()
	slog.Info("article store ready", "dialect", store.dialect.Name())

	breaker := resilience.NewCircuitBreaker("article-store", resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	exec := executor.New(store.querier, store.dialect, executor.Config{
		MaxResults:    cfg.Store.MaxResults,
		Timeout:       cfg.Store.QueryTimeout,
		MaxConcurrent: cfg.Store.MaxConcurrentQueries,
	}, breaker)
	completer := autocomplete.NewCompleter(idx, cfg.Autocomplete.MinChars, cfg.Autocomplete.TopK)

	g, gctx := errgroup.WithContext(ctx)

	checker := health.NewChecker()
	checker.Register("store", health.PingCheck(store.ping))
	checker.Register("vocabulary", health.VocabularyCheck(completer.Size))

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = newLimiter(gctx, g, cfg, checker)
	}

	var tracker handler.EventTracker
	var analyticsHandler *analytics.Handler
	if cfg.Analytics.Enabled {
		agg := analytics.NewAggregator()
		analyticsHandler = analytics.NewHandler(agg)
		tracker = startAnalytics(gctx, g, cfg, agg, store.pg)
	}

	h := handler.New(completer, exec, tracker, m, cfg.Tracing.Enabled)
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(h, checker, router.Options{
			Limiter:        limiter,
			LimitWindow:    cfg.RateLimit.Window,
			Analytics:      analyticsHandler,
			Status:         status.NewReporter(store.querier),
			Metrics:        m,
			CORS:           corsConfig(cfg.CORS),
			RequestTimeout: cfg.Server.RequestTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
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

// newLimiter prefers the shared Redis window and falls back to a
// per-process bucket when Redis is unreachable at startup.
func newLimiter(ctx context.Context, g *errgroup.Group, cfg *config.Config, checker *health.Checker) middleware.Limiter {
	if cfg.Redis.Addr != "" {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err == nil {
			g.Go(func() error {
				<-ctx.Done()
				return client.Close()
			})
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := client.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
			slog.Info("rate limiting via redis", "addr", cfg.Redis.Addr, "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
			return ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		}
		slog.Warn("redis unavailable, rate limiting per process", "error", err)
	}

	mem := ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	g.Go(func() error {
		mem.RunCleanup(ctx, 5*time.Minute)
		return nil
	})
	return mem
}

// startAnalytics routes events through Kafka when brokers are configured,
// otherwise straight into the in-process aggregator.
func startAnalytics(ctx context.Context, g *errgroup.Group, cfg *config.Config, agg *analytics.Aggregator, pg *postgres.Client) handler.EventTracker {
	if pg != nil {
		snapshots := aggregator.NewStore(pg)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			slog.Warn("analytics snapshots disabled", "error", err)
		} else {
			if _, err := snapshots.RestoreLatest(ctx, agg); err != nil {
				slog.Warn("analytics starting from zero", "error", err)
			}
			g.Go(func() error {
				snapshots.RunPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
				return nil
			})
		}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		slog.Info("analytics recorded in-process")
		return agg
	}

	topic := cfg.Kafka.Topics.AnalyticsEvents
	producer := kafka.NewProducer(cfg.Kafka, topic)
	batches := collector.NewBatchCollector(producer, 100, 2*time.Second, cfg.Analytics.BufferSize)
	g.Go(func() error {
		batches.Run(ctx)
		return producer.Close()
	})

	consumer := kafka.NewConsumer(cfg.Kafka, topic, analytics.HandleEvent(agg))
	g.Go(func() error {
		return consumer.Start(ctx)
	})
	slog.Info("analytics pipeline started", "topic", topic, "brokers", cfg.Kafka.Brokers)
	return batches
}

func corsConfig(cfg config.CORSConfig) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(cfg.AllowOrigins) > 0 {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return c
}
