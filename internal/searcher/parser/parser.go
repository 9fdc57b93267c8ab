// Package parser turns raw query text into a collection query.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/collection"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
)

// Normalizer analyses query words the same way documents were analysed.
type Normalizer interface {
	QueryTerms(text, language string) []string
}

// Plan is a parsed query.
type Plan struct {
	Raw   string
	Words []string
	Query collection.Query
}

// Parser resolves query text with a fixed language and default slop.
type Parser struct {
	normalizer  Normalizer
	language    string
	defaultSlop int
}

func New(n Normalizer, language string, defaultSlop int) *Parser {
	return &Parser{normalizer: n, language: language, defaultSlop: defaultSlop}
}

// Parse splits raw on whitespace. A trailing "~N" word sets the slop; a
// non-nil override replaces it. Words that analyse to nothing (stop
// words, punctuation) are dropped, so a plan may have no terms.
func (p *Parser) Parse(raw string, override *int) (*Plan, error) {
	words := strings.Fields(raw)
	slop := p.defaultSlop

	if n := len(words); n > 0 && strings.HasPrefix(words[n-1], "~") {
		v, err := strconv.Atoi(words[n-1][1:])
		if err != nil {
			return nil, fmt.Errorf("%w: bad slop %q", apperrors.ErrInvalidInput, words[n-1])
		}
		slop = v
		words = words[:n-1]
	}
	if override != nil {
		slop = *override
	}
	if slop < 0 {
		return nil, fmt.Errorf("%w: slop must not be negative", apperrors.ErrInvalidInput)
	}

	terms := p.normalizer.QueryTerms(strings.Join(words, " "), p.language)
	return &Plan{
		Raw:   raw,
		Words: words,
		Query: collection.Query{Terms: terms, Slop: slop},
	}, nil
}
