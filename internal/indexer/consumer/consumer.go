// Package consumer reads ingest events from Kafka and indexes them, and
// announces flushed terms to searchers.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/kafka"
)

// maxTermsPerEvent caps the term list of one invalidation event; larger
// flushes ask searchers to drop the whole term cache instead.
const maxTermsPerEvent = 5000

// Indexer is the part of the engine the consumer drives.
type Indexer interface {
	IndexDocument(ctx context.Context, req indexer.IndexRequest) (*index.Document, error)
}

// HandleMessage returns a MessageHandler indexing every ingest event.
// Undecodable events and URLs that are already indexed are skipped;
// other failures leave the message uncommitted.
func HandleMessage(engine Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return err
		}
		logger.Debug("processing ingest event",
			"event_id", event.EventID,
			"url", event.URL,
		)

		doc, err := engine.IndexDocument(ctx, indexer.IndexRequest{
			URL:         event.URL,
			Content:     event.Content,
			ContentType: event.ContentType,
			Language:    event.Language,
		})
		switch {
		case errors.Is(err, apperrors.ErrDocumentExists):
			logger.Info("document already indexed, skipping", "url", event.URL, "event_id", event.EventID)
			return kafka.ErrSkip
		case errors.Is(err, apperrors.ErrInvalidInput):
			logger.Warn("ingest event rejected", "url", event.URL, "error", err)
			return kafka.ErrSkip
		case err != nil:
			return fmt.Errorf("indexing %s: %w", event.URL, err)
		}

		logger.Info("document indexed",
			"doc_id", doc.ID,
			"url", doc.URL,
			"event_id", event.EventID,
		)
		return nil
	}
}

// PublishInvalidations returns a flush listener announcing flushed terms
// on the cache invalidation topic.
func PublishInvalidations(pub kafka.Publisher) indexer.FlushListener {
	logger := slog.Default().With("component", "invalidation-publisher")
	return func(ctx context.Context, terms []string) {
		event := ingestion.CacheInvalidationEvent{FlushedAt: time.Now().UTC()}
		if len(terms) > maxTermsPerEvent {
			event.All = true
		} else {
			event.Terms = terms
		}
		if err := pub.Publish(ctx, kafka.Event{Key: "terms", Value: event}); err != nil {
			logger.Error("failed to publish cache invalidation",
				"terms", len(terms),
				"error", err,
			)
		}
	}
}
