package indexer

import (
	"sync"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
)

// pendingIndex buffers postings added since the last flush, one partial
// term per text.
type pendingIndex struct {
	mu          sync.Mutex
	terms       map[string]*index.Term
	docs        map[index.DocumentID]struct{}
	occurrences int
}

func newPendingIndex() *pendingIndex {
	return &pendingIndex{
		terms: make(map[string]*index.Term),
		docs:  make(map[index.DocumentID]struct{}),
	}
}

func (p *pendingIndex) add(id index.DocumentID, occs []index.Occurrence) int {
	byText := make(map[string][]index.Occurrence)
	for _, o := range occs {
		byText[o.Text] = append(byText[o.Text], o)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for text, group := range byText {
		t, ok := p.terms[text]
		if !ok {
			t = index.NewTerm(text)
			p.terms[text] = t
		}
		t.Add(id, group...)
	}
	p.docs[id] = struct{}{}
	p.occurrences += len(occs)
	return p.occurrences
}

// restore puts terms that failed to flush back so the next flush retries
// them.
func (p *pendingIndex) restore(terms []*index.Term) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range terms {
		if existing, ok := p.terms[t.Text()]; ok {
			existing.Merge(t)
			continue
		}
		p.terms[t.Text()] = t
	}
}

// drain hands out the buffered terms and empties the buffer.
func (p *pendingIndex) drain() (map[string]*index.Term, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	terms, docs := p.terms, len(p.docs)
	p.terms = make(map[string]*index.Term)
	p.docs = make(map[index.DocumentID]struct{})
	p.occurrences = 0
	return terms, docs
}

func (p *pendingIndex) size() (terms, occurrences int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.terms), p.occurrences
}
