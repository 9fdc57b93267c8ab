// Package index holds the data model shared by the indexer and the
// searcher: occurrences, terms with their per-document postings, and
// documents.
package index

import (
	"context"
	"slices"
)

// DocumentID is assigned by the catalog on first persistence. Zero means
// the document has not been stored yet.
type DocumentID uint32

// Occurrence is one token of a document. WordIndex counts every token of
// the cleaned text, stop words included, so distances between occurrences
// are word distances in the source. CharStart and CharEnd are byte offsets
// into the cleaned text.
type Occurrence struct {
	Text      string `json:"text"`
	WordIndex int    `json:"word_index"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// OccurrenceStore is the append-only backend a document keeps its raw
// occurrences in.
type OccurrenceStore interface {
	Append(ctx context.Context, id DocumentID, occurrences []Occurrence) error
	Load(ctx context.Context, id DocumentID) ([]Occurrence, error)
}

// OccurrenceDeleter is implemented by occurrence stores that can drop a
// document's record.
type OccurrenceDeleter interface {
	Delete(ctx context.Context, id DocumentID) error
}

func compareOccurrence(a, b Occurrence) int {
	return a.WordIndex - b.WordIndex
}

// normalizeOccurrences sorts by word index and drops repeated positions.
func normalizeOccurrences(occs []Occurrence) []Occurrence {
	slices.SortFunc(occs, compareOccurrence)
	return slices.CompactFunc(occs, func(a, b Occurrence) bool {
		return a.WordIndex == b.WordIndex
	})
}
