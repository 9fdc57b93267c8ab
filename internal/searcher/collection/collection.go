// Package collection executes ranked searches over the persisted index
// through the document and term caches.
package collection

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/metrics"
)

// Cache names, also used as metric labels.
const (
	DocumentCacheName = "documents"
	TermCacheName     = "terms"
)

// Source is the persistent side of the collection.
type Source interface {
	LoadDocument(ctx context.Context, id index.DocumentID) (*index.Document, error)
	LoadTerm(ctx context.Context, text string) (*index.Term, error)
	DocumentCount() int
}

// Caches is the cache layer a Collection reads through. It is created by
// the caller and owned by exactly one Collection.
type Caches struct {
	Documents *cache.Cache[index.DocumentID, *index.Document]
	Terms     *cache.Cache[string, *index.Term]
}

// NewCaches builds an LRU document cache and an idle-expiring term cache
// loading from src.
func NewCaches(src Source, cfg config.CacheConfig, opts ...cache.Option) (*Caches, error) {
	docs, err := cache.NewLRU(DocumentCacheName, cfg.DocumentCacheSize, src.LoadDocument, opts...)
	if err != nil {
		return nil, err
	}
	terms := cache.NewIdle(TermCacheName, cfg.TermCacheSize, cfg.TermIdleExpiry, src.LoadTerm, opts...)
	return &Caches{Documents: docs, Terms: terms}, nil
}

type Option func(*Collection)

// WithParallelism bounds the goroutines used per search stage. Values
// below one select GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collection) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) { c.logger = l }
}

// Collection is safe for concurrent searches.
type Collection struct {
	source      Source
	caches      *Caches
	parallelism int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(src Source, caches *Caches, opts ...Option) *Collection {
	c := &Collection{
		source:      src,
		caches:      caches,
		parallelism: runtime.GOMAXPROCS(0),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "collection")
	return c
}

// DocumentCount is N, the number of documents in the collection.
func (c *Collection) DocumentCount() int {
	return c.source.DocumentCount()
}

// GetDocumentForID returns the document or an error satisfying
// apperrors.IsNotFound.
func (c *Collection) GetDocumentForID(ctx context.Context, id index.DocumentID) (*index.Document, error) {
	return c.caches.Documents.Get(ctx, id)
}

// GetTermForText returns the term or an error satisfying
// apperrors.IsNotFound.
func (c *Collection) GetTermForText(ctx context.Context, text string) (*index.Term, error) {
	return c.caches.Terms.Get(ctx, text)
}

// ClearTermCache makes every later term lookup read the store again.
func (c *Collection) ClearTermCache() {
	c.caches.Terms.InvalidateAll()
	c.logger.Info("term cache cleared")
}

// InvalidateTerms drops the named terms from the term cache.
func (c *Collection) InvalidateTerms(texts ...string) {
	c.caches.Terms.Invalidate(texts...)
}

// EstimatedResultSetSize approximates how many documents contain all of
// terms, assuming terms occur independently: N * prod(df/N), truncated.
func (c *Collection) EstimatedResultSetSize(terms []*index.Term) int {
	if len(terms) == 0 {
		return 0
	}
	n := c.source.DocumentCount()
	if n <= 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(terms))
	estimate := float64(n)
	for _, t := range terms {
		if _, dup := seen[t.Text()]; dup {
			continue
		}
		seen[t.Text()] = struct{}{}
		// Multiplying before dividing keeps a single term's estimate exact.
		estimate = estimate * float64(t.DocumentFrequency()) / float64(n)
	}
	return int(estimate)
}

// EstimateForTexts resolves texts through the term cache and estimates
// their result set size. Unknown texts make the estimate 0.
func (c *Collection) EstimateForTexts(ctx context.Context, texts []string) (int, error) {
	unique := distinct(texts)
	if len(unique) == 0 {
		return 0, nil
	}
	terms, err := c.resolveTerms(ctx, unique)
	if err != nil {
		return 0, err
	}
	if len(terms) < len(unique) {
		return 0, nil
	}
	return c.EstimatedResultSetSize(terms), nil
}

// CacheStats reports the counters of both caches by name.
func (c *Collection) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		DocumentCacheName: c.caches.Documents.Stats(),
		TermCacheName:     c.caches.Terms.Stats(),
	}
}

func (c *Collection) observe(result *QueryResult, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case result.Len() == 0:
		outcome = "zero_result"
	}
	c.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		c.metrics.SearchLatency.Observe(result.Elapsed.Seconds())
		c.metrics.SearchResultsCount.Observe(float64(result.Len()))
	}
}
