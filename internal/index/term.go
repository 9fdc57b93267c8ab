package index

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// Term is one normalised token with the documents it occurs in and its
// occurrences per document. The document bitmap and the occurrence map
// always hold the same set of ids.
//
// Terms handed out by the searcher's cache are shared between queries and
// must be treated as read-only; the indexer builds new values instead.
type Term struct {
	text        string
	docs        *roaring.Bitmap
	occurrences map[DocumentID][]Occurrence
}

func NewTerm(text string) *Term {
	return &Term{
		text:        text,
		docs:        roaring.New(),
		occurrences: make(map[DocumentID][]Occurrence),
	}
}

func (t *Term) Text() string { return t.text }

// DocumentFrequency is the number of distinct documents containing t.
func (t *Term) DocumentFrequency() int {
	return int(t.docs.GetCardinality())
}

// Documents returns the occurring document set. Callers must not modify it.
func (t *Term) Documents() *roaring.Bitmap {
	return t.docs
}

// OccurringDocuments lists document ids in ascending order.
func (t *Term) OccurringDocuments() []DocumentID {
	ids := make([]DocumentID, 0, t.docs.GetCardinality())
	it := t.docs.Iterator()
	for it.HasNext() {
		ids = append(ids, DocumentID(it.Next()))
	}
	return ids
}

func (t *Term) Contains(id DocumentID) bool {
	return t.docs.Contains(uint32(id))
}

// OccurrencesIn returns t's occurrences in document id ordered by word
// index, or nil.
func (t *Term) OccurrencesIn(id DocumentID) []Occurrence {
	return t.occurrences[id]
}

// TermFrequency is the number of occurrences of t in document id.
func (t *Term) TermFrequency(id DocumentID) int {
	return len(t.occurrences[id])
}

// Add records occurrences of t in document id. Adding with no occurrences
// is a no-op, so a document is never listed without a position.
func (t *Term) Add(id DocumentID, occs ...Occurrence) {
	if len(occs) == 0 {
		return
	}
	merged := append(slices.Clone(t.occurrences[id]), occs...)
	t.occurrences[id] = normalizeOccurrences(merged)
	t.docs.Add(uint32(id))
}

// Merge folds other's postings into t.
func (t *Term) Merge(other *Term) {
	for id, occs := range other.occurrences {
		t.Add(id, occs...)
	}
}

// Clone returns a deep copy that can be modified freely.
func (t *Term) Clone() *Term {
	c := &Term{
		text:        t.text,
		docs:        t.docs.Clone(),
		occurrences: make(map[DocumentID][]Occurrence, len(t.occurrences)),
	}
	for id, occs := range t.occurrences {
		c.occurrences[id] = slices.Clone(occs)
	}
	return c
}
