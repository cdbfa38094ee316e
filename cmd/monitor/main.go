// Package main provides the scheduled monitoring daemon. On each cron tick
// it assesses every configured market, exports Prometheus metrics and,
// when a database is configured, appends the results to assessment history.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cometguard/internal/cache"
	"cometguard/internal/config"
	"cometguard/internal/engine"
	"cometguard/internal/observability"
	"cometguard/internal/provider"
	"cometguard/internal/storage"
	"cometguard/internal/storage/migrations"
	"cometguard/internal/storage/postgres"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("monitor failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var snapProvider provider.SnapshotProvider
	if cfg.RPCURL == "" {
		logger.Info("no rpc_url configured, using mocked market data")
		snapProvider = provider.NewStub()
	} else {
		client, err := provider.NewCometClient(cfg.RPCURL, cfg.Markets, logger)
		if err != nil {
			return fmt.Errorf("create comet client: %w", err)
		}
		snapProvider = client
	}

	snapCache := cache.New(time.Duration(cfg.Cache.TTLSeconds)*time.Second, int(cfg.Cache.MaxCapacity))
	eng := engine.New(engine.Options{
		Provider:    snapProvider,
		Cache:       snapCache,
		Params:      cfg.Risk,
		Parallelism: int(cfg.Assessment.Parallelism),
		Timeout:     time.Duration(cfg.Assessment.TimeoutSeconds) * time.Second,
		Logger:      logger,
	})

	// Optional assessment history persistence.
	var store storage.AssessmentStore
	if cfg.Monitor.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Monitor.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		store = postgres.NewAssessmentStore(pool)
		logger.Info("assessment history persistence enabled")
	}

	metrics := observability.NewMetrics("cometguard")
	cacheObserver := metrics.NewCacheObserver()

	mon := &monitor{
		cfg:           cfg,
		engine:        eng,
		cache:         snapCache,
		store:         store,
		metrics:       metrics,
		cacheObserver: cacheObserver,
		logger:        logger,
	}

	// Metrics and health endpoints.
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	server := &http.Server{Addr: cfg.Monitor.MetricsAddr, Handler: mux}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.Monitor.MetricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// One immediate cycle, then on schedule.
	mon.runCycle(ctx)

	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(cfg.Monitor.Cron, func() { mon.runCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Monitor.Cron, err)
	}
	scheduler.Start()
	logger.Info("monitor started",
		zap.String("cron", cfg.Monitor.Cron),
		zap.Int("markets", len(cfg.Markets)))

	<-ctx.Done()
	logger.Info("shutting down")

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// monitor bundles everything one assessment cycle needs.
type monitor struct {
	cfg           *config.Config
	engine        *engine.Engine
	cache         *cache.SnapshotCache
	store         storage.AssessmentStore
	metrics       *observability.Metrics
	cacheObserver *observability.CacheObserver
	logger        *zap.Logger
}

// runCycle assesses all configured markets once and records the outcome.
func (m *monitor) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	results := m.engine.AssessRisks(ctx, m.cfg.MarketIDs())

	allOK := true
	for _, r := range results {
		if r.Err != nil {
			allOK = false
			m.metrics.ObserveAssessment(r.MarketID, 0, r.Err)
			continue
		}
		m.metrics.ObserveAssessment(r.MarketID, r.Assessment.RiskScore, nil)
		for _, f := range r.Assessment.Findings {
			m.metrics.ObserveFinding(f.Severity.String(), f.Factor)
		}

		if snap, err := m.engine.Snapshot(ctx, r.MarketID); err == nil {
			m.metrics.MarketUtilization.WithLabelValues(r.MarketID).Set(snap.Utilization)
		}

		if m.store != nil {
			if err := m.store.Insert(ctx, r.Assessment); err != nil {
				m.logger.Error("persist assessment failed",
					zap.String("market", r.MarketID), zap.Error(err))
			}
		}
	}

	stats := m.cache.Stats()
	m.cacheObserver.Observe(m.cache.Len(), stats.Hits, stats.Misses)

	elapsed := time.Since(start)
	m.metrics.CycleDuration.Observe(elapsed.Seconds())
	if allOK {
		m.metrics.LastSuccessfulCycle.SetToCurrentTime()
	}
	m.logger.Info("assessment cycle complete",
		zap.Int("markets", len(results)),
		zap.Bool("all_ok", allOK),
		zap.Duration("elapsed", elapsed))
}
