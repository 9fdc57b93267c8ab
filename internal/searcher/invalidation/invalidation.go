// Package invalidation applies cache invalidation events published by the
// indexer to a searcher's collection.
package invalidation

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/kafka"
)

// TermCache is the part of the collection an event touches.
type TermCache interface {
	InvalidateTerms(texts ...string)
	ClearTermCache()
}

// Catalog re-reads document ids assigned by the indexer.
type Catalog interface {
	Refresh() error
}

// HandleMessage refreshes the catalog and then drops the flushed terms,
// so reloaded terms never point at ids the searcher cannot resolve.
func HandleMessage(terms TermCache, catalog Catalog) kafka.MessageHandler {
	logger := slog.Default().With("component", "invalidation-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.CacheInvalidationEvent](value)
		if err != nil {
			logger.Error("failed to decode invalidation event", "error", err, "key", string(key))
			return err
		}
		if err := catalog.Refresh(); err != nil {
			return err
		}
		if event.All {
			terms.ClearTermCache()
			logger.Info("term cache cleared", "flushed_at", event.FlushedAt)
			return nil
		}
		terms.InvalidateTerms(event.Terms...)
		logger.Debug("terms invalidated", "terms", len(event.Terms), "flushed_at", event.FlushedAt)
		return nil
	}
}
