// Command loadtest drives the searcher, and optionally the ingestion
// service, with concurrent requests and prints per-operation latency.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	opSearch = "search"
	opIngest = "ingest"
)

var queries = []string{
	"inverted index",
	"search engine ~2",
	"document ranking",
	"term frequency ~3",
	"cosine similarity",
	"proximity search ~1",
	"query cache",
	"stemming stop words",
	"catalog record ~5",
	"zstd compression",
}

var vocabulary = []string{
	"search", "engine", "index", "inverted", "document", "ranking", "term",
	"frequency", "cosine", "similarity", "proximity", "query", "cache",
	"stemming", "stop", "words", "catalog", "record", "compression", "zstd",
}

type config struct {
	searchURL   string
	ingestURL   string
	concurrency int
	duration    time.Duration
	ingestRatio float64
}

func main() {
	var cfg config
	flag.StringVar(&cfg.searchURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.StringVar(&cfg.ingestURL, "ingest-url", "", "base URL of the ingestion service; empty disables ingestion")
	flag.IntVar(&cfg.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&cfg.ingestRatio, "ingest-ratio", 0.1, "fraction of requests that ingest a document")
	flag.Parse()

	fmt.Println("=== argus load test ===")
	fmt.Printf("Search:      %s\n", cfg.searchURL)
	if cfg.ingestURL != "" {
		fmt.Printf("Ingestion:   %s (ratio %.2f)\n", cfg.ingestURL, cfg.ingestRatio)
	}
	fmt.Printf("Concurrency: %d\n", cfg.concurrency)
	fmt.Printf("Duration:    %s\n\n", cfg.duration)

	rec := newRecorder()
	start := time.Now()
	run(cfg, rec)
	rec.report(os.Stdout, time.Since(start))

	if rec.total() == 0 {
		fmt.Println("WARNING: no requests completed. Are the services running?")
		os.Exit(1)
	}
}

func run(cfg config, rec *recorder) {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	runID := time.Now().Unix()
	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.concurrency {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for seq := 0; ctx.Err() == nil; seq++ {
				if cfg.ingestURL != "" && rng.Float64() < cfg.ingestRatio {
					ingest(ctx, client, cfg.ingestURL, fmt.Sprintf("%d-%d-%d", runID, w, seq), rng, rec)
					continue
				}
				search(ctx, client, cfg.searchURL, queries[rng.IntN(len(queries))], rec)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func search(ctx context.Context, client *http.Client, base, query string, rec *recorder) {
	target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", base, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		rec.record(opSearch, 0, 0, 0)
		return
	}
	began := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(began)
	if err != nil {
		if ctx.Err() == nil {
			rec.record(opSearch, elapsed, 0, 0)
		}
		return
	}
	defer resp.Body.Close()

	var body struct {
		TotalHits int `json:"total_hits"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	io.Copy(io.Discard, resp.Body)
	rec.record(opSearch, elapsed, resp.StatusCode, body.TotalHits)
}

func ingest(ctx context.Context, client *http.Client, base, id string, rng *rand.Rand, rec *recorder) {
	words := make([]byte, 0, 512)
	for i := range 60 {
		if i > 0 {
			words = append(words, ' ')
		}
		words = append(words, vocabulary[rng.IntN(len(vocabulary))]...)
	}
	payload, _ := json.Marshal(map[string]string{
		"url":          "https://loadtest.local/" + id,
		"content":      string(words),
		"content_type": "text/plain",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/documents", bytes.NewReader(payload))
	if err != nil {
		rec.record(opIngest, 0, 0, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	began := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(began)
	if err != nil {
		if ctx.Err() == nil {
			rec.record(opIngest, elapsed, 0, 0)
		}
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	rec.record(opIngest, elapsed, resp.StatusCode, 0)
}
