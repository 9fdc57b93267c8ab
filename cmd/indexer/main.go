// Command indexer consumes ingest events, writes document and term records
// to the index store and announces flushed terms to searchers.
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
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/occurrence"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/metrics"
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
	slog.Info("starting indexer service",
		"data_dir", cfg.Index.DataDir,
		"occurrence_backend", cfg.Index.OccurrenceBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	occurrences, err := occurrence.Open(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to open occurrence store", "error", err)
		os.Exit(1)
	}
	defer occurrences.Close()

	fs, err := store.Open(store.Options{
		Dir:         cfg.Index.DataDir,
		IOTimeout:   cfg.Index.IOTimeout,
		Occurrences: occurrences,
		Metrics:     m,
	})
	if err != nil {
		slog.Error("failed to open index store", "error", err)
		os.Exit(1)
	}
	defer fs.Close()

	analyzer := analysis.New(analysis.DefaultRegistry(), cfg.Analysis)
	engine := indexer.NewEngine(fs, analyzer, cfg.Index, m)

	invalidations := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
	defer invalidations.Close()
	engine.OnFlush(consumer.PublishInvalidations(invalidations))
	engine.StartFlushLoop(ctx)

	checker := health.NewChecker()
	checker.Register("index_store", health.PingCheck(fs.Ping, true))
	checker.Register("occurrence_store", health.PingCheck(occurrences.Ping, true))

	// The indexer has no API; its metrics port also answers health probes.
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler(reg))
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
		defer server.Shutdown(context.Background())
	}

	ingest := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, cfg.Kafka.ConsumerGroup,
		consumer.HandleMessage(engine))

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := ingest.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing pending postings before shutdown")
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := engine.Close(flushCtx); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("indexer service stopped")
}
