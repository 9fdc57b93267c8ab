package index

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnboundDocument is returned when occurrences are requested from a
// document that has no occurrence store or no id yet.
var ErrUnboundDocument = errors.New("document has no occurrence store binding")

// Document is one source text. Content is kept verbatim; the cleaned and
// stemmed form only exists while the document is being indexed.
type Document struct {
	ID          DocumentID
	URL         string
	Title       string
	ContentType string
	Language    string
	Content     string
	IndexedAt   time.Time

	occurrences OccurrenceStore
}

func NewDocument(url, content string) *Document {
	return &Document{URL: url, Content: content}
}

// Bind attaches the occurrence store used by AppendOccurrences and
// Occurrences.
func (d *Document) Bind(store OccurrenceStore) {
	d.occurrences = store
}

// AppendOccurrences adds raw occurrences to the document's record in the
// occurrence store.
func (d *Document) AppendOccurrences(ctx context.Context, occs []Occurrence) error {
	if d.occurrences == nil || d.ID == 0 {
		return ErrUnboundDocument
	}
	if len(occs) == 0 {
		return nil
	}
	if err := d.occurrences.Append(ctx, d.ID, occs); err != nil {
		return fmt.Errorf("appending occurrences for document %d: %w", d.ID, err)
	}
	return nil
}

// ResetOccurrences empties the document's occurrence record so a retried
// indexing attempt does not append twice. Stores that cannot delete are
// left untouched.
func (d *Document) ResetOccurrences(ctx context.Context) error {
	if d.occurrences == nil || d.ID == 0 {
		return ErrUnboundDocument
	}
	del, ok := d.occurrences.(OccurrenceDeleter)
	if !ok {
		return nil
	}
	if err := del.Delete(ctx, d.ID); err != nil {
		return fmt.Errorf("resetting occurrences for document %d: %w", d.ID, err)
	}
	return nil
}

// Occurrences reads every occurrence recorded for the document.
func (d *Document) Occurrences(ctx context.Context) ([]Occurrence, error) {
	if d.occurrences == nil || d.ID == 0 {
		return nil, ErrUnboundDocument
	}
	occs, err := d.occurrences.Load(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("loading occurrences for document %d: %w", d.ID, err)
	}
	return occs, nil
}
