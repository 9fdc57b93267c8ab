// Package e2e exercises the running services: ingestion, indexer and
// searcher, connected through Kafka. Tests skip when a service is not
// reachable.
//
// Run with:
//
//	go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

type e2eConfig struct {
	IngestionURL string
	SearcherURL  string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		IngestionURL: envOrDefault("E2E_INGESTION_URL", "http://localhost:8081"),
		SearcherURL:  envOrDefault("E2E_SEARCHER_URL", "http://localhost:8080"),
	}
}

func TestPlatformHealth(t *testing.T) {
	cfg := loadE2EConfig()
	services := []struct {
		name string
		url  string
	}{
		{"search /health/live", cfg.SearcherURL + "/health/live"},
		{"search /health/ready", cfg.SearcherURL + "/health/ready"},
		{"ingestion /health", cfg.IngestionURL + "/health"},
	}
	client := &http.Client{Timeout: 5 * time.Second}

	for _, svc := range services {
		t.Run(svc.name, func(t *testing.T) {
			resp, err := client.Get(svc.url)
			if err != nil {
				t.Skipf("service unavailable: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestIngestAndSearch ingests two documents with a unique word and polls
// the searcher until both rank, the closer pair first under a slop.
func TestIngestAndSearch(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 10 * time.Second}
	if _, err := client.Get(cfg.IngestionURL + "/health"); err != nil {
		t.Skipf("ingestion service unavailable: %v", err)
	}
	if _, err := client.Get(cfg.SearcherURL + "/health/live"); err != nil {
		t.Skipf("search service unavailable: %v", err)
	}

	word := fmt.Sprintf("zyx%d", time.Now().UnixNano())
	docs := map[string]string{
		"near": fmt.Sprintf("the %s platypus swims at dawn", word),
		"far":  fmt.Sprintf("the %s walks slowly across the wide and empty field near a platypus", word),
	}
	for name, content := range docs {
		payload, _ := json.Marshal(map[string]string{
			"url":          fmt.Sprintf("https://e2e.example/%s/%s", word, name),
			"content":      content,
			"content_type": "text/plain",
		})
		resp, err := client.Post(cfg.IngestionURL+"/api/v1/documents", "application/json", strings.NewReader(string(payload)))
		if err != nil {
			t.Fatalf("ingest request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}
	}

	query := url.QueryEscape(word + " platypus ~2")
	var result struct {
		TotalHits int `json:"total_hits"`
		Results   []struct {
			URL   string  `json:"url"`
			Score float64 `json:"score"`
		} `json:"results"`
	}
	for attempt := range 30 {
		time.Sleep(time.Second)
		resp, err := client.Get(cfg.SearcherURL + "/api/v1/search?q=" + query)
		if err != nil {
			t.Logf("attempt %d: search request failed: %v", attempt, err)
			continue
		}
		json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if result.TotalHits > 0 {
			break
		}
	}
	if result.TotalHits == 0 {
		t.Skip("documents not searchable within 30s, the indexer may not be running")
	}
	if result.TotalHits != 1 || !strings.HasSuffix(result.Results[0].URL, "/near") {
		t.Errorf("expected only the near document within slop 2, got %+v", result.Results)
	}
}

func TestSearchStats(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.SearcherURL + "/api/v1/stats")
	if err != nil {
		t.Skipf("search service unavailable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var stats struct {
		Documents int                       `json:"documents"`
		Caches    map[string]map[string]any `json:"caches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	for _, name := range []string{"documents", "terms"} {
		if _, ok := stats.Caches[name]; !ok {
			t.Errorf("missing cache stats for %s", name)
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
