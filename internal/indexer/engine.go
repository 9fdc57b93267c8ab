// Package indexer turns documents into persisted document and term
// records. Postings are buffered in memory and merged into the stored term
// records on flush.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/metrics"
)

const flushParallelism = 8

// Store is the persistence the engine writes through.
type Store interface {
	ReserveID(doc *index.Document) (created bool, err error)
	StoreDocument(ctx context.Context, doc *index.Document) error
	HasDocument(url string) (bool, error)
	LoadTerm(ctx context.Context, text string) (*index.Term, error)
	StoreTerm(ctx context.Context, term *index.Term) error
}

// FlushListener is told which term texts a flush rewrote.
type FlushListener func(ctx context.Context, terms []string)

// IndexRequest is one document to analyse and index.
type IndexRequest struct {
	URL         string
	Content     string
	ContentType string
	Language    string
}

type Engine struct {
	store    Store
	analyzer *analysis.Analyzer
	cfg      config.IndexConfig
	pending  *pendingIndex

	// inflight holds URLs between the duplicate check and persistence.
	inflight sync.Map

	flushMu     sync.Mutex
	listenersMu sync.RWMutex
	listeners   []FlushListener

	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(store Store, analyzer *analysis.Analyzer, cfg config.IndexConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		store:    store,
		analyzer: analyzer,
		cfg:      cfg,
		pending:  newPendingIndex(),
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
	}
}

// OnFlush registers l to run after every flush that rewrote terms.
func (e *Engine) OnFlush(l FlushListener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// IndexDocument reads, analyses and indexes one new document. A URL that
// is already indexed is rejected with apperrors.ErrDocumentExists; a URL
// whose earlier attempt failed part way is indexed again under the id it
// was given.
func (e *Engine) IndexDocument(ctx context.Context, req IndexRequest) (*index.Document, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("%w: url is required", apperrors.ErrInvalidInput)
	}
	if _, busy := e.inflight.LoadOrStore(req.URL, struct{}{}); busy {
		return nil, fmt.Errorf("%w: %s is being indexed", apperrors.ErrDocumentExists, req.URL)
	}
	defer e.inflight.Delete(req.URL)
	indexed, err := e.store.HasDocument(req.URL)
	if err != nil {
		return nil, err
	}
	if indexed {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentExists, req.URL)
	}

	extracted, err := e.analyzer.Read(req.Content, req.ContentType)
	if err != nil {
		return nil, err
	}
	doc := index.NewDocument(req.URL, req.Content)
	doc.Title = extracted.Title
	doc.ContentType = req.ContentType
	doc.Language = req.Language

	cleaned := e.analyzer.Clean(extracted.Text)
	if err := e.AddOccurrences(ctx, doc, e.analyzer.Occurrences(cleaned, req.Language)); err != nil {
		return nil, err
	}
	return doc, nil
}

// AddOccurrences persists doc when it has no id yet, appends occurrences
// to its occurrence record and buffers them as postings for the next
// flush.
func (e *Engine) AddOccurrences(ctx context.Context, doc *index.Document, occurrences iter.Seq[index.Occurrence]) error {
	newDoc := doc.ID == 0
	occs := slices.Collect(occurrences)
	if newDoc {
		if err := e.persistDocument(ctx, doc, occs); err != nil {
			return err
		}
	} else if err := doc.AppendOccurrences(ctx, occs); err != nil {
		return err
	}
	pending := e.pending.add(doc.ID, occs)

	if e.metrics != nil {
		if newDoc {
			e.metrics.DocsIndexedTotal.Inc()
		}
		e.metrics.OccurrencesTotal.Add(float64(len(occs)))
	}
	e.logger.Debug("occurrences added",
		"doc_id", doc.ID,
		"url", doc.URL,
		"occurrences", len(occs),
		"pending", pending,
	)

	if e.cfg.FlushThreshold > 0 && pending >= e.cfg.FlushThreshold {
		e.logger.Info("pending postings reached threshold, flushing",
			"pending", pending,
			"threshold", e.cfg.FlushThreshold,
		)
		if err := e.Flush(ctx); err != nil {
			return fmt.Errorf("flushing postings: %w", err)
		}
	}
	return nil
}

// persistDocument stores a new document so that any failure leaves it
// retryable. The catalog id comes first, then the occurrence record, and
// the document record last; its presence is what marks the URL indexed.
func (e *Engine) persistDocument(ctx context.Context, doc *index.Document, occs []index.Occurrence) error {
	created, err := e.store.ReserveID(doc)
	if err != nil {
		return fmt.Errorf("reserving id for %s: %w", doc.URL, err)
	}
	if !created {
		e.logger.Info("resuming incomplete document", "doc_id", doc.ID, "url", doc.URL)
		if err := doc.ResetOccurrences(ctx); err != nil {
			return err
		}
	}
	if err := doc.AppendOccurrences(ctx, occs); err != nil {
		return err
	}
	if err := e.store.StoreDocument(ctx, doc); err != nil {
		return fmt.Errorf("storing document %s: %w", doc.URL, err)
	}
	return nil
}

// Flush merges buffered postings into the stored term records. Terms that
// fail to store stay buffered for the next flush and are reported in the
// returned error.
func (e *Engine) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	terms, docs := e.pending.drain()
	if len(terms) == 0 {
		return nil
	}
	start := time.Now()

	var (
		mu      sync.Mutex
		flushed []string
		failed  []*index.Term
		errs    []error
	)
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(flushParallelism)
	for text, delta := range terms {
		g.Go(func() error {
			err := e.mergeTerm(gctx, delta)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, delta)
				errs = append(errs, fmt.Errorf("term %q: %w", text, err))
				return nil
			}
			flushed = append(flushed, text)
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		e.pending.restore(failed)
	}
	status := "success"
	if len(errs) > 0 {
		status = "failure"
	}
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
	slices.Sort(flushed)
	e.logger.Info("postings flushed",
		"terms", len(flushed),
		"failed", len(failed),
		"documents", docs,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if len(flushed) > 0 {
		e.listenersMu.RLock()
		listeners := slices.Clone(e.listeners)
		e.listenersMu.RUnlock()
		for _, l := range listeners {
			l(ctx, flushed)
		}
	}
	return errors.Join(errs...)
}

// mergeTerm folds delta into the stored record for its text. An absent or
// malformed record is replaced by delta; an I/O failure keeps delta
// pending.
func (e *Engine) mergeTerm(ctx context.Context, delta *index.Term) error {
	stored, err := e.store.LoadTerm(ctx, delta.Text())
	switch {
	case err == nil:
		merged := stored.Clone()
		merged.Merge(delta)
		return e.store.StoreTerm(ctx, merged)
	case errors.Is(err, apperrors.ErrStoreIO):
		return err
	case apperrors.IsNotFound(err):
		if errors.Is(err, apperrors.ErrMalformedRecord) {
			e.logger.Warn("replacing malformed term record", "term", delta.Text(), "error", err)
		}
		return e.store.StoreTerm(ctx, delta)
	default:
		return err
	}
}

// Pending reports the buffered term and occurrence counts.
func (e *Engine) Pending() (terms, occurrences int) {
	return e.pending.size()
}

// StartFlushLoop flushes every FlushInterval until ctx is cancelled, then
// flushes once more.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(context.WithoutCancel(ctx)); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if _, n := e.pending.size(); n > 0 {
					if err := e.Flush(ctx); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

// Close flushes whatever is still buffered.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.Flush(ctx); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
		return err
	}
	return nil
}
