// Package ingestion defines the request/response types and Kafka event
// schemas of the document ingestion pipeline.
package ingestion

import "time"

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
type IngestRequest struct {
	URL         string `json:"url"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Language    string `json:"language"`
}

// IngestResponse is returned once the document is queued for indexing.
type IngestResponse struct {
	EventID string `json:"event_id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
}

// IngestEvent is the Kafka payload consumed by the indexer.
type IngestEvent struct {
	EventID     string    `json:"event_id"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"`
	Language    string    `json:"language"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// CacheInvalidationEvent tells searchers which term records changed. All
// asks for the whole term cache to be dropped.
type CacheInvalidationEvent struct {
	Terms     []string  `json:"terms,omitempty"`
	All       bool      `json:"all,omitempty"`
	FlushedAt time.Time `json:"flushed_at"`
}
