// Package benchmark measures the analysis pipeline, the index store and
// ranked search, reporting throughput and allocations.
package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Search engines keep an inverted index from every normalised term to the
        documents containing it, along with the word positions of each occurrence.
        Queries are normalised the same way, matched against the index and ranked by
        the cosine similarity of weighted term vectors, optionally keeping only the
        documents whose query terms occur close to each other.`,
	"long": strings.Repeat(`Information retrieval systems combine tokenisation, stemming
        and stop word removal to normalise text into searchable terms. Caches in front of
        the term and document records keep hot lookups off the disk, while proximity
        filters use word positions to favour documents where the query terms occur
        together. Diacritics such as café and naïve fold into their plain forms. `, 20),
}

func newAnalyzer() *analysis.Analyzer {
	return analysis.New(analysis.DefaultRegistry(), config.Default().Analysis)
}

func BenchmarkAnalyze(b *testing.B) {
	a := newAnalyzer()
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = a.Analyze(text, "en")
			}
		})
	}
}

// BenchmarkAnalyzeFilters isolates the cost of each optional filter.
func BenchmarkAnalyzeFilters(b *testing.B) {
	text := sampleTexts["long"]
	variants := map[string]config.AnalysisConfig{
		"none":      {DefaultLanguage: "en"},
		"fold":      {DefaultLanguage: "en", CaseFolding: true},
		"fold_stop": {DefaultLanguage: "en", CaseFolding: true, StopWords: true},
		"all":       config.Default().Analysis,
	}
	for name, cfg := range variants {
		a := analysis.New(analysis.DefaultRegistry(), cfg)
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = a.Analyze(text, "en")
			}
		})
	}
}

func BenchmarkReadHTML(b *testing.B) {
	page := "<html><head><title>Benchmark</title></head><body><p>" +
		strings.Repeat("Some <b>bold</b> &amp; <i>italic</i> text. ", 200) +
		"</p><script>ignored()</script></body></html>"
	a := newAnalyzer()
	b.ReportAllocs()
	b.SetBytes(int64(len(page)))
	for b.Loop() {
		if _, err := a.Read(page, "text/html"); err != nil {
			b.Fatal(err)
		}
	}
}
