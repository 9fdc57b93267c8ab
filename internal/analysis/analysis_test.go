package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
)

func defaultAnalyzer() *Analyzer {
	return New(DefaultRegistry(), config.Default().Analysis)
}

func TestWordIndexesCountStopWords(t *testing.T) {
	occs := defaultAnalyzer().Analyze("the dog sat on the rug", "en")

	require.Len(t, occs, 3)
	assert.Equal(t, index.Occurrence{Text: "dog", WordIndex: 1, CharStart: 4, CharEnd: 7}, occs[0])
	assert.Equal(t, "sat", occs[1].Text)
	assert.Equal(t, 2, occs[1].WordIndex)
	assert.Equal(t, "rug", occs[2].Text)
	assert.Equal(t, 5, occs[2].WordIndex)
}

func TestOffsetsPointIntoCleanedText(t *testing.T) {
	a := defaultAnalyzer()
	cleaned := a.Clean("Hello, wonderful world!")
	for o := range a.Occurrences(cleaned, "") {
		assert.NotEmpty(t, cleaned[o.CharStart:o.CharEnd])
	}
	occs := a.Analyze("Hello, wonderful world!", "")
	require.Len(t, occs, 3)
	assert.Equal(t, "Hello, wonderful world!"[occs[1].CharStart:occs[1].CharEnd], "wonderful")
}

func TestStemmingAndCaseFolding(t *testing.T) {
	a := defaultAnalyzer()
	assert.Equal(t, []string{"run", "runner", "run"}, a.QueryTerms("Running RUNNERS runs", "en"))
}

func TestDisabledFilters(t *testing.T) {
	a := New(DefaultRegistry(), config.AnalysisConfig{DefaultLanguage: "en"})
	assert.Equal(t, []string{"The", "Cats"}, a.QueryTerms("The Cats", ""))
}

func TestUnknownLanguageSkipsStopAndStem(t *testing.T) {
	a := defaultAnalyzer()
	assert.Equal(t, []string{"the", "cats"}, a.QueryTerms("the cats", "xx"))
}

func TestDiacriticsRemoved(t *testing.T) {
	a := defaultAnalyzer()
	assert.Equal(t, a.QueryTerms("cafe naive", "en"), a.QueryTerms("Café naïve", "en"))
}

func TestHTMLReader(t *testing.T) {
	a := defaultAnalyzer()
	page := `<html><head><title> Monitored
  page </title><script>var x = 1;</script></head>
<body><h1>Cats</h1><p>Cats &amp; dogs</p></body></html>`

	ex, err := a.Read(page, "text/html; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "Monitored page", ex.Title)
	assert.Contains(t, ex.Text, "Cats & dogs")
	assert.NotContains(t, ex.Text, "<p>")
	assert.NotContains(t, ex.Text, "var x")
}

func TestHTMLTitleIsIndexed(t *testing.T) {
	a := defaultAnalyzer()
	page := `<html><head><title>Quarterly Earnings</title></head><body><p>hello world</p></body></html>`

	ex, err := a.Read(page, "text/html")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Earnings", ex.Title)

	terms := a.QueryTerms(ex.Text, "en")
	assert.Equal(t, a.QueryTerms("quarterly earnings hello world", "en"), terms)
}

func TestReaderLookup(t *testing.T) {
	r := DefaultRegistry()
	assert.True(t, r.SupportsReader(""))
	assert.True(t, r.SupportsReader("TEXT/PLAIN"))

	_, err := r.Reader("application/pdf")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = r.Reader(";;")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
