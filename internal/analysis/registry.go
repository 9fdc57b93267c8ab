package analysis

import (
	"fmt"
	"mime"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
)

// Extracted is the indexable part of a document.
type Extracted struct {
	Title string
	Text  string
}

// Reader extracts text from one content type.
type Reader interface {
	Read(content string) (Extracted, error)
}

// Cleaner rewrites text before tokenisation. It must not change the
// meaning of byte offsets callers compute on its output.
type Cleaner interface {
	Clean(text string) string
}

// Stopper recognises words that are counted but not indexed.
type Stopper interface {
	IsStopWord(word string) bool
}

// Stemmer reduces a word to its index form.
type Stemmer interface {
	Stem(word string) string
}

// Registry maps content types to readers and language codes to stoppers
// and stemmers. Lookups are case-insensitive.
type Registry struct {
	mu       sync.RWMutex
	readers  map[string]Reader
	stoppers map[string]Stopper
	stemmers map[string]Stemmer
}

func NewRegistry() *Registry {
	return &Registry{
		readers:  make(map[string]Reader),
		stoppers: make(map[string]Stopper),
		stemmers: make(map[string]Stemmer),
	}
}

// DefaultRegistry knows plain text, HTML and English.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterReader("text/plain", PlainTextReader{})
	r.RegisterReader("text/html", HTMLReader{})
	r.RegisterReader("application/xhtml+xml", HTMLReader{})
	r.RegisterStopper("en", englishStopWords)
	r.RegisterStemmer("en", Porter2Stemmer{})
	return r
}

func (r *Registry) RegisterReader(contentType string, reader Reader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readers[strings.ToLower(contentType)] = reader
}

func (r *Registry) RegisterStopper(language string, s Stopper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stoppers[strings.ToLower(language)] = s
}

func (r *Registry) RegisterStemmer(language string, s Stemmer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stemmers[strings.ToLower(language)] = s
}

// Reader resolves a reader by media type; parameters such as charset are
// ignored and an empty type means plain text.
func (r *Registry) Reader(contentType string) (Reader, error) {
	mediaType := "text/plain"
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: content type %q: %v", apperrors.ErrInvalidInput, contentType, err)
		}
		mediaType = parsed
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	reader, ok := r.readers[mediaType]
	if !ok {
		return nil, fmt.Errorf("%w: no reader for content type %q", apperrors.ErrInvalidInput, mediaType)
	}
	return reader, nil
}

func (r *Registry) Stopper(language string) (Stopper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stoppers[strings.ToLower(language)]
	return s, ok
}

func (r *Registry) Stemmer(language string) (Stemmer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stemmers[strings.ToLower(language)]
	return s, ok
}

// SupportsReader reports whether contentType resolves to a reader.
func (r *Registry) SupportsReader(contentType string) bool {
	_, err := r.Reader(contentType)
	return err == nil
}
