// Package handler serves the searcher's HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/collection"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/tracing"
)

// Collection is the searcher surface the handler needs.
type Collection interface {
	Search(ctx context.Context, q collection.Query) (*collection.QueryResult, error)
	EstimateForTexts(ctx context.Context, texts []string) (int, error)
	GetDocumentForID(ctx context.Context, id index.DocumentID) (*index.Document, error)
	GetTermForText(ctx context.Context, text string) (*index.Term, error)
	DocumentCount() int
	CacheStats() map[string]cache.Stats
	InvalidateTerms(texts ...string)
	ClearTermCache()
}

// Options holds response limits and trace sampling.
type Options struct {
	DefaultLimit int
	MaxResults   int
	// TraceRate is the fraction of searches whose stage spans are logged.
	TraceRate float64
}

type Handler struct {
	collection Collection
	parser     *parser.Parser
	opts       Options
	logger     *slog.Logger
}

func New(c Collection, p *parser.Parser, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		collection: c,
		parser:     p,
		opts:       opts,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/estimate", h.Estimate)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/terms/{text}", h.Term)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/cache/terms/invalidate", h.InvalidateTerms)
}

type SearchHit struct {
	ID    index.DocumentID `json:"id"`
	URL   string           `json:"url"`
	Title string           `json:"title,omitempty"`
	Score float64          `json:"score"`
	Terms []string         `json:"terms"`
}

type SearchResponse struct {
	Query     string      `json:"query"`
	Terms     []string    `json:"terms"`
	Slop      int         `json:"slop"`
	TotalHits int         `json:"total_hits"`
	ElapsedMs float64     `json:"elapsed_ms"`
	Results   []SearchHit `json:"results"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	raw := r.URL.Query().Get("q")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, err := h.limit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var override *int
	if s := r.URL.Query().Get("slop"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "slop must be an integer")
			return
		}
		override = &v
	}

	plan, err := h.parser.Parse(raw, override)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	if tracing.Sampled(h.opts.TraceRate) {
		var span *tracing.Span
		ctx, span = tracing.StartSpan(ctx, "search", middleware.GetRequestID(ctx))
		defer func() {
			span.End()
			span.Log(log)
		}()
	}

	result, err := h.collection.Search(ctx, plan.Query)
	if err != nil {
		log.Error("search failed", "query", raw, "error", err)
		h.writeErr(w, err)
		return
	}

	resp := SearchResponse{
		Query:     raw,
		Terms:     plan.Query.Terms,
		Slop:      plan.Query.Slop,
		TotalHits: result.Len(),
		ElapsedMs: float64(result.Elapsed.Microseconds()) / 1000,
		Results:   make([]SearchHit, 0, min(limit, result.Len())),
	}
	if resp.Terms == nil {
		resp.Terms = []string{}
	}
	for _, e := range result.Entries[:min(limit, result.Len())] {
		hit := SearchHit{
			ID:    e.Document.ID,
			URL:   e.Document.URL,
			Title: e.Document.Title,
			Score: e.Score,
			Terms: make([]string, len(e.Terms)),
		}
		for i, t := range e.Terms {
			hit.Terms[i] = t.Text()
		}
		resp.Results = append(resp.Results, hit)
	}

	log.Info("search completed",
		"query", raw,
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"elapsed_ms", resp.ElapsedMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	plan, err := h.parser.Parse(raw, nil)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	n, err := h.collection.EstimateForTexts(r.Context(), plan.Query.Terms)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":    raw,
		"estimate": n,
	})
}

type DocumentResponse struct {
	ID          index.DocumentID `json:"id"`
	URL         string           `json:"url"`
	Title       string           `json:"title,omitempty"`
	ContentType string           `json:"content_type,omitempty"`
	Language    string           `json:"language,omitempty"`
	IndexedAt   string           `json:"indexed_at,omitempty"`
	Content     string           `json:"content"`
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		h.writeError(w, http.StatusBadRequest, "document id must be a positive integer")
		return
	}
	doc, err := h.collection.GetDocumentForID(r.Context(), index.DocumentID(id))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	resp := DocumentResponse{
		ID:          doc.ID,
		URL:         doc.URL,
		Title:       doc.Title,
		ContentType: doc.ContentType,
		Language:    doc.Language,
		Content:     doc.Content,
	}
	if !doc.IndexedAt.IsZero() {
		resp.IndexedAt = doc.IndexedAt.UTC().Format(time.RFC3339)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type TermResponse struct {
	Text              string           `json:"text"`
	DocumentFrequency int              `json:"document_frequency"`
	Postings          []PostingSummary `json:"postings"`
}

type PostingSummary struct {
	Document      index.DocumentID `json:"document"`
	TermFrequency int              `json:"term_frequency"`
}

// Term looks the path text up verbatim; it is not analysed.
func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	text := r.PathValue("text")
	term, err := h.collection.GetTermForText(r.Context(), text)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	resp := TermResponse{
		Text:              term.Text(),
		DocumentFrequency: term.DocumentFrequency(),
	}
	for _, id := range term.OccurringDocuments() {
		resp.Postings = append(resp.Postings, PostingSummary{Document: id, TermFrequency: term.TermFrequency(id)})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": h.collection.DocumentCount(),
		"caches":    h.collection.CacheStats(),
	})
}

type invalidateRequest struct {
	Terms []string `json:"terms"`
	All   bool     `json:"all"`
}

// InvalidateTerms drops the named terms from the term cache, or all of
// them when the body sets "all" or names no terms.
func (h *Handler) InvalidateTerms(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.All || len(req.Terms) == 0 {
		h.collection.ClearTermCache()
		h.logger.Info("term cache cleared", "request_id", middleware.GetRequestID(r.Context()))
		h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "all": true})
		return
	}
	h.collection.InvalidateTerms(req.Terms...)
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "terms": len(req.Terms)})
}

func (h *Handler) limit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return h.opts.DefaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, h.opts.MaxResults), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err onto a status; server errors hide their detail.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	h.writeError(w, status, msg)
}
