package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/kafka"
)

type fakeIndexer struct {
	requests []indexer.IndexRequest
	err      error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, req indexer.IndexRequest) (*index.Document, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	doc := index.NewDocument(req.URL, req.Content)
	doc.ID = index.DocumentID(len(f.requests))
	return doc, nil
}

type recordingPublisher struct {
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.events = append(p.events, events...)
	return nil
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleMessageIndexesEvent(t *testing.T) {
	f := &fakeIndexer{}
	handle := HandleMessage(f)

	err := handle(context.Background(), []byte("k"), encode(t, ingestion.IngestEvent{
		URL: "https://example.com", Content: "hello", ContentType: "text/plain", Language: "en",
	}))
	require.NoError(t, err)
	require.Len(t, f.requests, 1)
	assert.Equal(t, "https://example.com", f.requests[0].URL)
	assert.Equal(t, "en", f.requests[0].Language)
}

func TestHandleMessageSkipsPoisonAndDuplicates(t *testing.T) {
	handle := HandleMessage(&fakeIndexer{})
	err := handle(context.Background(), nil, []byte("{"))
	assert.ErrorIs(t, err, kafka.ErrSkip)

	dup := &fakeIndexer{err: fmt.Errorf("%w: known", apperrors.ErrDocumentExists)}
	err = HandleMessage(dup)(context.Background(), nil, encode(t, ingestion.IngestEvent{URL: "u"}))
	assert.ErrorIs(t, err, kafka.ErrSkip)
}

func TestHandleMessageKeepsTransientFailures(t *testing.T) {
	f := &fakeIndexer{err: errors.New("disk full")}
	err := HandleMessage(f)(context.Background(), nil, encode(t, ingestion.IngestEvent{URL: "u"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, kafka.ErrSkip)
}

func TestPublishInvalidations(t *testing.T) {
	pub := &recordingPublisher{}
	listener := PublishInvalidations(pub)

	listener(context.Background(), []string{"cat", "sat"})
	big := make([]string, maxTermsPerEvent+1)
	listener(context.Background(), big)

	require.Len(t, pub.events, 2)
	first := pub.events[0].Value.(ingestion.CacheInvalidationEvent)
	assert.Equal(t, []string{"cat", "sat"}, first.Terms)
	assert.False(t, first.All)
	second := pub.events[1].Value.(ingestion.CacheInvalidationEvent)
	assert.True(t, second.All)
	assert.Empty(t, second.Terms)
}
