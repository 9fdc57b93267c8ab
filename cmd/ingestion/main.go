// Command ingestion accepts documents over HTTP and queues them for the
// indexer.
//
// POST /api/v1/documents validates a document and publishes it to the
// ingest topic. GET /health is the liveness probe.
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)

	registry := analysis.DefaultRegistry()
	h := handler.New(publisher.New(producer, cfg.Analysis.DefaultLanguage), registry.SupportsReader)

	var limiter *middleware.Limiter
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
		limiter.StartPruning(ctx, 5*time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /health", h.Health)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Logging,
			middleware.Metrics(m),
			middleware.CORS(middleware.CORSConfig{AllowOrigins: cfg.Server.CORSOrigins}),
			middleware.RateLimit(limiter),
			middleware.Timeout(cfg.Server.WriteTimeout),
		),
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
