// Package analysis turns document content and query text into index
// terms. Content is read by a content-type specific Reader, cleaned,
// segmented into words (Unicode UAX #29), case folded, stop-word filtered
// and stemmed according to the document language.
package analysis

import (
	"iter"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
)

// Analyzer is safe for concurrent use once built.
type Analyzer struct {
	registry *Registry
	cleaner  Cleaner
	cfg      config.AnalysisConfig
}

func New(registry *Registry, cfg config.AnalysisConfig) *Analyzer {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	return &Analyzer{
		registry: registry,
		cleaner:  DiacriticsCleaner{},
		cfg:      cfg,
	}
}

// Read extracts the indexable text of content.
func (a *Analyzer) Read(content, contentType string) (Extracted, error) {
	reader, err := a.registry.Reader(contentType)
	if err != nil {
		return Extracted{}, err
	}
	return reader.Read(content)
}

// Clean applies the text cleaner. Occurrence offsets refer to its output.
func (a *Analyzer) Clean(text string) string {
	return a.cleaner.Clean(text)
}

// Occurrences yields the index occurrences of already cleaned text. Word
// indexes count every word, stop words included, so they measure
// distance in the original word sequence.
func (a *Analyzer) Occurrences(cleaned, language string) iter.Seq[index.Occurrence] {
	if language == "" {
		language = a.cfg.DefaultLanguage
	}
	var stopper Stopper
	if a.cfg.StopWords {
		stopper, _ = a.registry.Stopper(language)
	}
	var stemmer Stemmer
	if a.cfg.Stemming {
		stemmer, _ = a.registry.Stemmer(language)
	}

	return func(yield func(index.Occurrence) bool) {
		seg := words.FromString(cleaned)
		offset, wordIndex := 0, 0
		for seg.Next() {
			token := seg.Value()
			start := offset
			offset += len(token)
			if !isWord(token) {
				continue
			}
			position := wordIndex
			wordIndex++

			if a.cfg.CaseFolding {
				token = strings.ToLower(token)
			}
			if stopper != nil && stopper.IsStopWord(strings.ToLower(token)) {
				continue
			}
			if stemmer != nil {
				token = stemmer.Stem(token)
			}
			if token == "" {
				continue
			}
			if !yield(index.Occurrence{
				Text:      token,
				WordIndex: position,
				CharStart: start,
				CharEnd:   offset,
			}) {
				return
			}
		}
	}
}

// Analyze cleans text and collects its occurrences.
func (a *Analyzer) Analyze(text, language string) []index.Occurrence {
	var out []index.Occurrence
	for o := range a.Occurrences(a.Clean(text), language) {
		out = append(out, o)
	}
	return out
}

// QueryTerms normalises query text the same way documents are indexed and
// returns the term texts in query order, repeats included.
func (a *Analyzer) QueryTerms(text, language string) []string {
	var terms []string
	for o := range a.Occurrences(a.Clean(text), language) {
		terms = append(terms, o.Text)
	}
	return terms
}

// isWord reports whether a UAX #29 segment is a word rather than spacing
// or punctuation.
func isWord(segment string) bool {
	for _, r := range segment {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
