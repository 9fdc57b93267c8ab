// Package occurrence provides the backends documents keep their raw
// occurrences in: process memory, PostgreSQL or Redis.
package occurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/resilience"
)

// Backend is an occurrence store with a lifecycle.
type Backend interface {
	index.OccurrenceStore
	index.OccurrenceDeleter
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the backend selected by cfg.Index.OccurrenceBackend.
// Remote backends are wrapped with retries and a circuit breaker.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Backend, error) {
	switch cfg.Index.OccurrenceBackend {
	case config.OccurrenceBackendMemory, "":
		slog.Warn("using in-memory occurrence store, occurrences are lost on restart")
		return NewMemory(), nil

	case config.OccurrenceBackendPostgres:
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting occurrence store: %w", err)
		}
		store := NewPostgres(client)
		if err := store.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return Guard("occurrences-postgres", store, m), nil

	case config.OccurrenceBackendRedis:
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting occurrence store: %w", err)
		}
		return Guard("occurrences-redis", NewRedis(client, cfg.Redis.KeyPrefix), m), nil

	default:
		return nil, fmt.Errorf("unknown occurrence backend %q", cfg.Index.OccurrenceBackend)
	}
}

// Guarded retries transient failures of a remote backend and stops
// calling it while its circuit is open.
type Guarded struct {
	Backend
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

func Guard(name string, b Backend, m *metrics.Metrics) *Guarded {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Guarded{
		Backend: b,
		breaker: resilience.NewCircuitBreaker(name, cbCfg),
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 25 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Retryable: func(err error) bool {
				return !errors.Is(err, apperrors.ErrMalformedRecord)
			},
		},
	}
}

func (g *Guarded) Append(ctx context.Context, id index.DocumentID, occs []index.Occurrence) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, "occurrence-append", g.retry, func(ctx context.Context) error {
			return g.Backend.Append(ctx, id, occs)
		})
	})
	return unavailable(err)
}

func (g *Guarded) Load(ctx context.Context, id index.DocumentID) ([]index.Occurrence, error) {
	var out []index.Occurrence
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, "occurrence-load", g.retry, func(ctx context.Context) error {
			occs, err := g.Backend.Load(ctx, id)
			if err != nil {
				return err
			}
			out = occs
			return nil
		})
	})
	return out, unavailable(err)
}

func (g *Guarded) Delete(ctx context.Context, id index.DocumentID) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, "occurrence-delete", g.retry, func(ctx context.Context) error {
			return g.Backend.Delete(ctx, id)
		})
	})
	return unavailable(err)
}

func unavailable(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	}
	return err
}

// State reports the circuit state for health checks.
func (g *Guarded) State() resilience.State {
	return g.breaker.State()
}
