// Command searcher serves ranked queries over the index written by the
// indexer. It opens the index store read-only, keeps document and term
// caches, and follows the indexer's cache invalidation topic.
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index/store"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/occurrence"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/collection"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/invalidation"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/middleware"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	occurrences, err := occurrence.Open(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to open occurrence store", "error", err)
		os.Exit(1)
	}
	defer occurrences.Close()

	fs, err := store.Open(store.Options{
		Dir:         cfg.Index.DataDir,
		IOTimeout:   cfg.Index.IOTimeout,
		ReadOnly:    true,
		Occurrences: occurrences,
		Metrics:     m,
	})
	if err != nil {
		slog.Error("failed to open index store", "error", err)
		os.Exit(1)
	}
	defer fs.Close()

	caches, err := collection.NewCaches(fs, cfg.Cache, cache.WithMetrics(m))
	if err != nil {
		slog.Error("failed to create caches", "error", err)
		os.Exit(1)
	}
	coll := collection.New(fs, caches,
		collection.WithParallelism(cfg.Search.Parallelism),
		collection.WithMetrics(m),
	)

	go refreshCatalog(ctx, fs, cfg.Index.RefreshInterval)

	invalidations := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, "",
		invalidation.HandleMessage(coll, fs))
	go func() {
		if err := invalidations.Start(ctx); err != nil {
			slog.Error("invalidation consumer stopped", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("index_store", health.PingCheck(fs.Ping, true))
	checker.Register("occurrence_store", health.PingCheck(occurrences.Ping, false))

	analyzer := analysis.New(analysis.DefaultRegistry(), cfg.Analysis)
	var traceRate float64
	if cfg.Tracing.Enabled {
		traceRate = cfg.Tracing.SampleRate
	}
	h := handler.New(coll, parser.New(analyzer, cfg.Analysis.DefaultLanguage, cfg.Search.DefaultSlop), handler.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		TraceRate:    traceRate,
	})

	var limiter *middleware.Limiter
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
		limiter.StartPruning(ctx, 5*time.Minute)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logging,
		middleware.Metrics(m),
		middleware.CORS(middleware.CORSConfig{AllowOrigins: cfg.Server.CORSOrigins}),
		middleware.RateLimit(limiter),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// refreshCatalog picks up documents the indexer added even when no
// invalidation event arrives.
func refreshCatalog(ctx context.Context, fs *store.FileStore, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fs.Refresh(); err != nil {
				slog.Warn("catalog refresh failed", "error", err)
			}
		}
	}
}
