// Package vector implements the vector-space scoring used by searches:
// query and document vectors of log-frequency weighted axes, normalised to
// unit length and merged into per-document scores.
package vector

import (
	"cmp"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
)

// LogFrequency is the log-frequency weight 1 + log10(tf), or 0 when the
// term does not occur.
func LogFrequency(tf int) float64 {
	if tf <= 0 {
		return 0
	}
	return 1 + math.Log10(float64(tf))
}

// IDF is log(n/df). Empty collections and unknown terms weigh 0.
func IDF(n, df int) float64 {
	if n <= 0 || df <= 0 {
		return 0
	}
	return math.Log(float64(n) / float64(df))
}

// Axe is one term component of a vector. Weight is normalised.
type Axe struct {
	Term   *index.Term
	Weight float64
}

// normalize divides every raw weight by the Euclidean norm of all of them.
// A zero-norm vector keeps zero weights.
func normalize(axes []Axe) {
	var sum float64
	for _, a := range axes {
		sum += a.Weight * a.Weight
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range axes {
		axes[i].Weight /= norm
	}
}

// QueryVector weighs each resolved query term by its frequency in the query
// and its inverse document frequency over the collection.
type QueryVector struct {
	axes   []Axe
	byText map[string]int
}

// NewQueryVector builds the vector for resolved terms. queryTerms is the
// query as written, repeats included; n is the collection size for the
// whole search.
func NewQueryVector(n int, queryTerms []string, resolved []*index.Term) QueryVector {
	counts := make(map[string]int, len(queryTerms))
	for _, text := range queryTerms {
		counts[text]++
	}

	q := QueryVector{
		axes:   make([]Axe, 0, len(resolved)),
		byText: make(map[string]int, len(resolved)),
	}
	for _, t := range resolved {
		if _, dup := q.byText[t.Text()]; dup {
			continue
		}
		q.byText[t.Text()] = len(q.axes)
		q.axes = append(q.axes, Axe{
			Term:   t,
			Weight: LogFrequency(counts[t.Text()]) * IDF(n, t.DocumentFrequency()),
		})
	}
	normalize(q.axes)
	return q
}

// Axe returns the query axe for term text.
func (q QueryVector) Axe(text string) (Axe, bool) {
	i, ok := q.byText[text]
	if !ok {
		return Axe{}, false
	}
	return q.axes[i], true
}

func (q QueryVector) Axes() []Axe { return q.axes }

func (q QueryVector) Len() int { return len(q.axes) }

// DocumentVector holds one document's axes over the query terms it
// contains. It never spans the document's full vocabulary.
type DocumentVector struct {
	Document *index.Document
	axes     []Axe
}

func NewDocumentVector(doc *index.Document, terms []*index.Term) DocumentVector {
	axes := make([]Axe, 0, len(terms))
	for _, t := range terms {
		axes = append(axes, Axe{
			Term:   t,
			Weight: LogFrequency(t.TermFrequency(doc.ID)),
		})
	}
	normalize(axes)
	return DocumentVector{Document: doc, axes: axes}
}

func (d DocumentVector) Axes() []Axe { return d.axes }

// MergedAxe is the contribution of one term shared by the query and a
// document.
type MergedAxe struct {
	Document *index.Document
	Term     *index.Term
	Score    float64
}

// Merge pairs d's axes with q's. Document axes without a query axe are
// dropped.
func Merge(q QueryVector, d DocumentVector) []MergedAxe {
	merged := make([]MergedAxe, 0, len(d.axes))
	for _, da := range d.axes {
		qa, ok := q.Axe(da.Term.Text())
		if !ok {
			continue
		}
		merged = append(merged, MergedAxe{
			Document: d.Document,
			Term:     da.Term,
			Score:    qa.Weight * da.Weight,
		})
	}
	return merged
}

// MergedAxeGroup is a document's score: the sum of its merged axes, with
// the terms that contributed.
type MergedAxeGroup struct {
	Document *index.Document
	Score    float64
	Terms    []*index.Term
}

// Group sums merged axes of one document.
func Group(doc *index.Document, merged []MergedAxe) MergedAxeGroup {
	g := MergedAxeGroup{Document: doc, Terms: make([]*index.Term, 0, len(merged))}
	for _, m := range merged {
		g.Score += m.Score
		g.Terms = append(g.Terms, m.Term)
	}
	return g
}

// Score merges q with d and groups the result.
func Score(q QueryVector, d DocumentVector) MergedAxeGroup {
	return Group(d.Document, Merge(q, d))
}

// SortByScore orders groups by descending score. Equal scores keep their
// relative order.
func SortByScore(groups []MergedAxeGroup) {
	slices.SortStableFunc(groups, func(a, b MergedAxeGroup) int {
		return cmp.Compare(b.Score, a.Score)
	})
}
