package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/kafka"
)

type recorder struct {
	calls []string
	terms []string
	err   error
}

func (r *recorder) InvalidateTerms(texts ...string) {
	r.calls = append(r.calls, "invalidate")
	r.terms = append(r.terms, texts...)
}

func (r *recorder) ClearTermCache() { r.calls = append(r.calls, "clear") }

func (r *recorder) Refresh() error {
	r.calls = append(r.calls, "refresh")
	return r.err
}

func encode(t *testing.T, e ingestion.CacheInvalidationEvent) []byte {
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestRefreshBeforeInvalidating(t *testing.T) {
	r := &recorder{}
	h := HandleMessage(r, r)

	require.NoError(t, h(context.Background(), []byte("terms"), encode(t, ingestion.CacheInvalidationEvent{Terms: []string{"cat", "dog"}})))
	assert.Equal(t, []string{"refresh", "invalidate"}, r.calls)
	assert.Equal(t, []string{"cat", "dog"}, r.terms)
}

func TestAllClearsTermCache(t *testing.T) {
	r := &recorder{}
	require.NoError(t, HandleMessage(r, r)(context.Background(), nil, encode(t, ingestion.CacheInvalidationEvent{All: true})))
	assert.Equal(t, []string{"refresh", "clear"}, r.calls)
}

func TestPoisonMessageIsSkipped(t *testing.T) {
	r := &recorder{}
	err := HandleMessage(r, r)(context.Background(), nil, []byte("{not json"))
	require.ErrorIs(t, err, kafka.ErrSkip)
	assert.Empty(t, r.calls)
}

func TestRefreshFailureKeepsMessage(t *testing.T) {
	r := &recorder{err: errors.New("disk gone")}
	err := HandleMessage(r, r)(context.Background(), nil, encode(t, ingestion.CacheInvalidationEvent{Terms: []string{"cat"}}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, kafka.ErrSkip)
	assert.Equal(t, []string{"refresh"}, r.calls)
}
