// Package publisher turns accepted ingestion requests into ingest events
// on Kafka for the indexer.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/kafka"
)

// Publisher produces IngestEvents keyed by URL, so every event for one
// URL lands on the same partition and is indexed in order.
type Publisher struct {
	producer kafka.Publisher
	language string
	logger   *slog.Logger
}

// New creates a Publisher. defaultLanguage fills requests without one.
func New(producer kafka.Publisher, defaultLanguage string) *Publisher {
	return &Publisher{
		producer: producer,
		language: defaultLanguage,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest publishes req for indexing.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	event := ingestion.IngestEvent{
		EventID:     uuid.NewString(),
		URL:         strings.TrimSpace(req.URL),
		Content:     req.Content,
		ContentType: req.ContentType,
		Language:    req.Language,
		IngestedAt:  time.Now().UTC(),
	}
	if event.Language == "" {
		event.Language = p.language
	}

	if err := p.producer.Publish(ctx, kafka.Event{Key: event.URL, Value: event}); err != nil {
		p.logger.Error("failed to publish ingest event",
			"event_id", event.EventID,
			"url", event.URL,
			"error", err,
		)
		return nil, fmt.Errorf("%w: publishing ingest event: %w", apperrors.ErrUnavailable, err)
	}
	return &ingestion.IngestResponse{
		EventID: event.EventID,
		URL:     event.URL,
		Status:  "QUEUED",
	}, nil
}
