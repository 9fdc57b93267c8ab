// Package store persists documents and terms as one file each under a data
// directory, with an append-only catalog assigning document ids.
//
// Layout:
//
//	<dir>/catalog.log
//	<dir>/documents/<escaped url>.doc
//	<dir>/terms/<escaped text>.term
//
// Every record is written to a temporary file, synced and renamed into
// place, so readers in other processes see either the old or the new
// record and never a partial one.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/resilience"
)

const (
	documentsDir = "documents"
	termsDir     = "terms"
	tempPattern  = ".pending-*.tmp"
)

var errReadOnly = errors.New("index store is read-only")

// Options configures a FileStore.
type Options struct {
	Dir string
	// IOTimeout bounds each record read. Zero disables the bound.
	IOTimeout time.Duration
	// ReadOnly stores never write and pick up new catalog entries through
	// Refresh. Searchers open the store read-only.
	ReadOnly bool
	// Occurrences is bound to every document the store hands out.
	Occurrences index.OccurrenceStore
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// FileStore is safe for concurrent use.
type FileStore struct {
	dir         string
	ioTimeout   time.Duration
	readOnly    bool
	occurrences index.OccurrenceStore
	catalog     *catalog
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Open prepares the directory layout, removes temporary files left by an
// interrupted writer and replays the catalog.
func Open(opts Options) (*FileStore, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: store directory is required", apperrors.ErrInvalidInput)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		dir:         opts.Dir,
		ioTimeout:   opts.IOTimeout,
		readOnly:    opts.ReadOnly,
		occurrences: opts.Occurrences,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "index-store"),
	}

	if !opts.ReadOnly {
		for _, sub := range []string{documentsDir, termsDir} {
			dir := filepath.Join(opts.Dir, sub)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating %s: %w", dir, err)
			}
			s.removeTemporaries(dir)
		}
	}

	cat, err := openCatalog(filepath.Join(opts.Dir, catalogFile), opts.ReadOnly)
	if err != nil {
		return nil, err
	}
	s.catalog = cat
	s.publishCount()

	s.logger.Info("index store opened",
		"dir", opts.Dir,
		"read_only", opts.ReadOnly,
		"documents", cat.count(),
	)
	return s, nil
}

func (s *FileStore) removeTemporaries(dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, tempPattern))
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			s.logger.Warn("removed incomplete record", "path", m)
		}
	}
}

// DocumentCount is the number of documents in the catalog.
func (s *FileStore) DocumentCount() int {
	return s.catalog.count()
}

// HasDocument reports whether a document record exists for url. Indexing
// writes the record last, so a URL with a catalog id but no record is one
// whose indexing did not complete.
func (s *FileStore) HasDocument(url string) (bool, error) {
	if _, ok := s.catalog.lookup(url); !ok {
		return false, nil
	}
	_, err := os.Stat(s.documentPath(url))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: checking document %s: %w", apperrors.ErrStoreIO, url, err)
	}
}

// Refresh reads catalog records appended since the last call.
func (s *FileStore) Refresh() error {
	if err := s.catalog.refresh(); err != nil {
		return fmt.Errorf("refreshing catalog: %w", err)
	}
	s.publishCount()
	return nil
}

func (s *FileStore) publishCount() {
	if s.metrics != nil {
		s.metrics.DocumentCount.Set(float64(s.catalog.count()))
	}
}

// LoadDocument reads the document with the given id. Missing, unreadable
// and corrupt records all yield apperrors.ErrDocumentNotFound; the
// underlying cause stays in the error chain.
func (s *FileStore) LoadDocument(ctx context.Context, id index.DocumentID) (*index.Document, error) {
	url, ok := s.catalog.url(id)
	if !ok {
		s.metrics.StoreOp("document", "read", "not_found")
		return nil, fmt.Errorf("%w: id %d", apperrors.ErrDocumentNotFound, id)
	}
	return s.loadDocument(ctx, id, url)
}

// LoadDocumentByURL reads the document stored under url.
func (s *FileStore) LoadDocumentByURL(ctx context.Context, url string) (*index.Document, error) {
	id, ok := s.catalog.lookup(url)
	if !ok {
		s.metrics.StoreOp("document", "read", "not_found")
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, url)
	}
	return s.loadDocument(ctx, id, url)
}

func (s *FileStore) loadDocument(ctx context.Context, id index.DocumentID, url string) (*index.Document, error) {
	data, err := s.read(ctx, "document", s.documentPath(url), apperrors.ErrDocumentNotFound)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(data)
	if err == nil && (doc.URL != url || doc.ID != id) {
		err = fmt.Errorf("%w: record holds %q (id %d)", apperrors.ErrMalformedRecord, doc.URL, doc.ID)
	}
	if err != nil {
		s.metrics.StoreOp("document", "read", "error")
		s.logger.Warn("unreadable document record", "url", url, "id", id, "error", err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDocumentNotFound, err)
	}
	doc.Bind(s.occurrences)
	s.metrics.StoreOp("document", "read", "ok")
	return doc, nil
}

// ReserveID gives doc the catalog id for its URL and binds it to the
// occurrence store, appending a catalog entry when the URL is new. No
// document record is written, so until StoreDocument succeeds the
// document loads as not found. A known URL hands back its existing id.
func (s *FileStore) ReserveID(doc *index.Document) (created bool, err error) {
	if doc.URL == "" {
		return false, fmt.Errorf("%w: document URL is required", apperrors.ErrInvalidInput)
	}
	if s.readOnly {
		return false, errReadOnly
	}
	id, created, err := s.catalog.assign(doc.URL)
	if err != nil {
		s.metrics.StoreOp("document", "write", "error")
		return false, fmt.Errorf("%w: %w", apperrors.ErrStoreIO, err)
	}
	if doc.ID != 0 && doc.ID != id {
		return false, fmt.Errorf("%w: document %s has id %d, catalog says %d", apperrors.ErrInvalidInput, doc.URL, doc.ID, id)
	}
	doc.ID = id
	doc.Bind(s.occurrences)
	if created {
		s.publishCount()
	}
	return created, nil
}

// StoreDocument persists doc, reserving its id on first store. A document
// already carrying an id must match the catalog entry for its URL.
func (s *FileStore) StoreDocument(ctx context.Context, doc *index.Document) error {
	if _, err := s.ReserveID(doc); err != nil {
		return err
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}

	if err := s.write(filepath.Join(s.dir, documentsDir), s.documentPath(doc.URL), encodeDocument(doc)); err != nil {
		s.metrics.StoreOp("document", "write", "error")
		return err
	}
	s.metrics.StoreOp("document", "write", "ok")
	return ctx.Err()
}

// LoadTerm reads the term record for text. Failures are reported as
// apperrors.ErrTermNotFound in the same way as LoadDocument.
func (s *FileStore) LoadTerm(ctx context.Context, text string) (*index.Term, error) {
	data, err := s.read(ctx, "term", s.termPath(text), apperrors.ErrTermNotFound)
	if err != nil {
		return nil, err
	}
	term, err := decodeTerm(data)
	if err == nil && term.Text() != text {
		err = fmt.Errorf("%w: record holds term %q", apperrors.ErrMalformedRecord, term.Text())
	}
	if err != nil {
		s.metrics.StoreOp("term", "read", "error")
		s.logger.Warn("unreadable term record", "term", text, "error", err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTermNotFound, err)
	}
	s.metrics.StoreOp("term", "read", "ok")
	return term, nil
}

// StoreTerm replaces the record for term. A term without documents removes
// the record, so lookups report it as not found.
func (s *FileStore) StoreTerm(ctx context.Context, term *index.Term) error {
	if term.Text() == "" {
		return fmt.Errorf("%w: term text is required", apperrors.ErrInvalidInput)
	}
	if s.readOnly {
		return errReadOnly
	}
	path := s.termPath(term.Text())
	if term.DocumentFrequency() == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: removing %s: %w", apperrors.ErrStoreIO, path, err)
		}
		return nil
	}
	data, err := encodeTerm(term)
	if err != nil {
		return err
	}
	if err := s.write(filepath.Join(s.dir, termsDir), path, data); err != nil {
		s.metrics.StoreOp("term", "write", "error")
		return err
	}
	s.metrics.StoreOp("term", "write", "ok")
	return ctx.Err()
}

// Ping reports whether the data directory is reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	return resilience.WithTimeout(ctx, s.ioTimeout, "index store ping", func(context.Context) error {
		_, err := os.Stat(s.dir)
		return err
	})
}

func (s *FileStore) Close() error {
	return s.catalog.close()
}

func (s *FileStore) read(ctx context.Context, kind, path string, notFound error) ([]byte, error) {
	data, err := resilience.Call(ctx, s.ioTimeout, "read "+kind, func(context.Context) ([]byte, error) {
		return os.ReadFile(path)
	})
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, os.ErrNotExist):
		s.metrics.StoreOp(kind, "read", "not_found")
		return nil, fmt.Errorf("%w: %s", notFound, filepath.Base(path))
	default:
		s.metrics.StoreOp(kind, "read", "error")
		s.logger.Warn("record read failed", "kind", kind, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w: %w", notFound, apperrors.ErrStoreIO, err)
	}
}

// write replaces path atomically with data.
func (s *FileStore) write(dir, path string, data []byte) error {
	f, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("%w: creating temp record: %w", apperrors.ErrStoreIO, err)
	}
	tmp := f.Name()
	cleanup := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %w", apperrors.ErrStoreIO, err)
	}
	if _, err := f.Write(data); err != nil {
		return cleanup(fmt.Errorf("writing %s: %w", tmp, err))
	}
	if err := f.Sync(); err != nil {
		return cleanup(fmt.Errorf("syncing %s: %w", tmp, err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: closing %s: %w", apperrors.ErrStoreIO, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: renaming record into place: %w", apperrors.ErrStoreIO, err)
	}
	return nil
}
