package analysis

import (
	"unicode"

	"github.com/surgebase/porter2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DiacriticsCleaner folds compatibility forms and removes combining marks,
// so "Café" and "cafe" index alike once case is folded.
type DiacriticsCleaner struct{}

func (DiacriticsCleaner) Clean(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return norm.NFKC.String(text)
	}
	return out
}

// Porter2Stemmer is the English Snowball stemmer.
type Porter2Stemmer struct{}

func (Porter2Stemmer) Stem(word string) string {
	return porter2.Stem(word)
}

// StopWords is a fixed word set.
type StopWords map[string]struct{}

func (s StopWords) IsStopWord(word string) bool {
	_, ok := s[word]
	return ok
}

func NewStopWords(words ...string) StopWords {
	s := make(StopWords, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

var englishStopWords = NewStopWords(
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
)
