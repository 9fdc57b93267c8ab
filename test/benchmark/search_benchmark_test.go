package benchmark

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/collection"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
)

var vocabulary = strings.Fields(`search engine index term document query rank score
	vector cosine proximity slop cache store record catalog posting occurrence
	analysis stem token word language filter flush merge segment shard replica`)

func BenchmarkQueryParse(b *testing.B) {
	p := parser.New(newAnalyzer(), "en", 0)
	queries := map[string]string{
		"simple":    "search engines",
		"with_slop": "ranking documents by proximity ~4",
		"long":      "the search engine indexes every term of every document and ranks the results ~2",
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := p.Parse(q, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSearch ranks a two-term query over a synthetic corpus, warm
// caches, with and without the proximity filter.
func BenchmarkSearch(b *testing.B) {
	for _, docs := range []int{100, 1000, 5000} {
		c := buildCollection(b, docs)
		for _, slop := range []int{0, 3} {
			b.Run(fmt.Sprintf("docs_%d/slop_%d", docs, slop), func(b *testing.B) {
				ctx := context.Background()
				q := collection.Query{Terms: []string{"search", "rank"}, Slop: slop}
				if _, err := c.Search(ctx, q); err != nil {
					b.Fatal(err)
				}
				b.ReportAllocs()
				b.ResetTimer()
				for b.Loop() {
					if _, err := c.Search(ctx, q); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func buildCollection(b *testing.B, docs int) *collection.Collection {
	b.Helper()
	ctx := context.Background()
	cfg := config.Default()
	fs := openStore(b)
	engine := indexer.NewEngine(fs, newAnalyzer(), cfg.Index, nil)

	rng := rand.New(rand.NewPCG(1, uint64(docs)))
	words := make([]string, 60)
	for i := range docs {
		for j := range words {
			words[j] = vocabulary[rng.IntN(len(vocabulary))]
		}
		url := fmt.Sprintf("https://bench/%d", i)
		if _, err := engine.IndexDocument(ctx, indexer.IndexRequest{URL: url, Content: strings.Join(words, " ")}); err != nil {
			b.Fatal(err)
		}
	}
	if err := engine.Close(ctx); err != nil {
		b.Fatal(err)
	}

	caches, err := collection.NewCaches(fs, cfg.Cache)
	if err != nil {
		b.Fatal(err)
	}
	return collection.New(fs, caches)
}
