package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/tracing"
)

// minGroupChunk is the smallest id range handed to one grouping goroutine.
const minGroupChunk = 512

// Query is a list of normalised term texts and the proximity slop. Slop 0
// disables the proximity filter.
type Query struct {
	Terms []string
	Slop  int
}

// Entry is one matching document, the query terms it contains and its
// score.
type Entry struct {
	Document *index.Document
	Terms    []*index.Term
	Score    float64
}

// QueryResult lists matches by descending score.
type QueryResult struct {
	Entries []Entry
	Elapsed time.Duration
}

func (r *QueryResult) Len() int { return len(r.Entries) }

// Documents returns the matched documents in rank order.
func (r *QueryResult) Documents() []*index.Document {
	docs := make([]*index.Document, len(r.Entries))
	for i, e := range r.Entries {
		docs[i] = e.Document
	}
	return docs
}

// candidate is a document id with the resolved query terms occurring in it.
type candidate struct {
	id    index.DocumentID
	terms []*index.Term
}

// Search ranks documents against q. Terms and documents that cannot be
// loaded are left out of the result rather than failing the search; the
// returned error is reserved for invalid queries and cancellation.
func (c *Collection) Search(ctx context.Context, q Query) (*QueryResult, error) {
	start := time.Now()
	result, err := c.search(ctx, q)
	if result != nil {
		result.Elapsed = time.Since(start)
	}
	c.observe(result, err)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("search executed",
		"terms", q.Terms,
		"slop", q.Slop,
		"results", result.Len(),
		"elapsed_ms", float64(result.Elapsed.Microseconds())/1000,
	)
	return result, nil
}

func (c *Collection) search(ctx context.Context, q Query) (*QueryResult, error) {
	if q.Slop < 0 {
		return nil, fmt.Errorf("%w: slop must not be negative, got %d", apperrors.ErrInvalidInput, q.Slop)
	}
	// N is read once so every weight in this search uses the same value.
	n := c.source.DocumentCount()

	spanCtx, span := tracing.StartChildSpan(ctx, "resolve_terms")
	terms, err := c.resolveTerms(spanCtx, distinct(q.Terms))
	span.SetAttr("resolved", len(terms))
	span.End()
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return &QueryResult{}, nil
	}
	qv := vector.NewQueryVector(n, q.Terms, terms)

	spanCtx, span = tracing.StartChildSpan(ctx, "group_documents")
	candidates, err := c.groupByDocument(spanCtx, terms)
	span.SetAttr("candidates", len(candidates))
	span.End()
	if err != nil {
		return nil, err
	}

	spanCtx, span = tracing.StartChildSpan(ctx, "score")
	groups, err := c.score(spanCtx, qv, candidates)
	span.End()
	if err != nil {
		return nil, err
	}
	vector.SortByScore(groups)

	_, span = tracing.StartChildSpan(ctx, "proximity")
	filter := q.Slop > 0 && len(terms) > 1
	entries := make([]Entry, 0, len(groups))
	for _, g := range groups {
		if filter && !withinProximity(g.Document.ID, g.Terms, len(terms), q.Slop) {
			continue
		}
		entries = append(entries, Entry{Document: g.Document, Terms: g.Terms, Score: g.Score})
	}
	span.SetAttr("dropped", len(groups)-len(entries))
	span.End()

	return &QueryResult{Entries: entries}, nil
}

// resolveTerms loads texts in parallel. Unknown texts are dropped; the
// survivors keep the order of texts.
func (c *Collection) resolveTerms(ctx context.Context, texts []string) ([]*index.Term, error) {
	resolved := make([]*index.Term, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, text := range texts {
		g.Go(func() error {
			t, err := c.caches.Terms.Get(gctx, text)
			switch {
			case err == nil:
				resolved[i] = t
			case apperrors.IsNotFound(err):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				c.logger.Warn("term lookup failed", "term", text, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving query terms: %w", err)
	}

	terms := resolved[:0]
	for _, t := range resolved {
		if t != nil {
			terms = append(terms, t)
		}
	}
	return terms, nil
}

// groupByDocument pairs every document occurring in any of terms with the
// subset of terms it contains. Documents come out in ascending id order,
// which is the discovery order ties are ranked by.
func (c *Collection) groupByDocument(ctx context.Context, terms []*index.Term) ([]candidate, error) {
	bitmaps := make([]*roaring.Bitmap, len(terms))
	for i, t := range terms {
		bitmaps[i] = t.Documents()
	}
	ids := roaring.FastOr(bitmaps...).ToArray()
	if len(ids) == 0 {
		return nil, nil
	}

	chunk := max(minGroupChunk, (len(ids)+c.parallelism-1)/c.parallelism)
	parts := make([][]candidate, (len(ids)+chunk-1)/chunk)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for p := range parts {
		lo := p * chunk
		hi := min(lo+chunk, len(ids))
		g.Go(func() error {
			out := make([]candidate, 0, hi-lo)
			for _, raw := range ids[lo:hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				id := index.DocumentID(raw)
				cand := candidate{id: id}
				for _, t := range terms {
					if t.Contains(id) {
						cand.terms = append(cand.terms, t)
					}
				}
				out = append(out, cand)
			}
			parts[p] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("grouping documents: %w", err)
	}

	candidates := make([]candidate, 0, len(ids))
	for _, part := range parts {
		candidates = append(candidates, part...)
	}
	return candidates, nil
}

// score loads each candidate document and merges its vector with qv.
// Documents that cannot be loaded are skipped.
func (c *Collection) score(ctx context.Context, qv vector.QueryVector, candidates []candidate) ([]vector.MergedAxeGroup, error) {
	groups := make([]*vector.MergedAxeGroup, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, cand := range candidates {
		g.Go(func() error {
			doc, err := c.caches.Documents.Get(gctx, cand.id)
			switch {
			case err == nil:
				group := vector.Score(qv, vector.NewDocumentVector(doc, cand.terms))
				groups[i] = &group
			case apperrors.IsNotFound(err):
				c.logger.Debug("matched document missing", "doc_id", cand.id)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				c.logger.Warn("document lookup failed", "doc_id", cand.id, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring documents: %w", err)
	}

	out := make([]vector.MergedAxeGroup, 0, len(groups))
	for _, grp := range groups {
		if grp != nil {
			out = append(out, *grp)
		}
	}
	return out, nil
}

// distinct drops empty and repeated texts, keeping first occurrences.
func distinct(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
