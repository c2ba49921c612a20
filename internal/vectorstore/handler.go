package vectorstore

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vectorgate/vectorgate/internal/httpserver"
	"github.com/vectorgate/vectorgate/internal/servicemethod"
)

// Handler exposes Service over HTTP.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a vectorstore Handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts data-plane endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/vector_store/insert", servicemethod.Wrap(h.logger, "vector_store.insert", h.insert))
	r.Post("/vector_store/search", servicemethod.Wrap(h.logger, "vector_store.search", h.search))
	r.Post("/vector_store/flush", servicemethod.Wrap(h.logger, "vector_store.flush", h.flush))
}

type documentBody struct {
	Key      string         `json:"key" validate:"required"`
	Chunk    string         `json:"chunk" validate:"required"`
	Vector   []float32      `json:"vector" validate:"required,min=1"`
	Metadata map[string]any `json:"metadata"`
}

type insertRequestBody struct {
	ModelName string         `json:"model_name" validate:"required"`
	Data      []documentBody `json:"data" validate:"required,min=1,dive"`
}

type insertResponse struct {
	Inserted int  `json:"inserted"`
	Flushed  bool `json:"flushed"`
}

func (h *Handler) insert(r *http.Request) (any, error) {
	var body insertRequestBody
	if err := httpserver.DecodeAndValidate(r, &body); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(body.Data))
	for _, d := range body.Data {
		docs = append(docs, Document{Key: d.Key, Chunk: d.Chunk, Vector: d.Vector, Metadata: d.Metadata})
	}

	result, err := h.svc.Insert(r.Context(), InsertRequest{ModelName: body.ModelName, Documents: docs})
	if err != nil {
		return nil, err
	}

	return insertResponse{Inserted: result.Inserted, Flushed: result.Flushed}, nil
}

type searchRequestBody struct {
	ModelName         string    `json:"model_name" validate:"required"`
	Vector            []float32 `json:"vector" validate:"required,min=1"`
	Limit             int       `json:"limit" validate:"omitempty,min=1,max=1000"`
	ScoreThreshold    float32   `json:"score_threshold"`
	MetricType        string    `json:"metric_type" validate:"omitempty,oneof=L2 IP COSINE"`
	HybridSearch      bool      `json:"hybrid_search"`
	TextFilter        string    `json:"text_filter"`
	MinimumWordsMatch int       `json:"minimum_words_match"`
	IncludeStopWords  bool      `json:"include_stop_words"`
}

type searchResponse struct {
	Results      []Hit `json:"results"`
	TotalCount   int   `json:"total_count"`
	SearchTimeMs int64 `json:"search_time_ms"`
}

func (h *Handler) search(r *http.Request) (any, error) {
	var body searchRequestBody
	if err := httpserver.DecodeAndValidate(r, &body); err != nil {
		return nil, err
	}

	started := time.Now()
	hits, err := h.svc.Search(r.Context(), SearchRequest{
		ModelName:         body.ModelName,
		Vector:            body.Vector,
		Limit:             body.Limit,
		ScoreThreshold:    body.ScoreThreshold,
		MetricType:        body.MetricType,
		HybridSearch:      body.HybridSearch,
		TextFilter:        body.TextFilter,
		MinimumWordsMatch: body.MinimumWordsMatch,
		IncludeStopWords:  body.IncludeStopWords,
	})
	if err != nil {
		return nil, err
	}

	return searchResponse{Results: hits, TotalCount: len(hits), SearchTimeMs: time.Since(started).Milliseconds()}, nil
}

type flushRequestBody struct {
	ModelName string `json:"model_name" validate:"required"`
}

func (h *Handler) flush(r *http.Request) (any, error) {
	var body flushRequestBody
	if err := httpserver.DecodeAndValidate(r, &body); err != nil {
		return nil, err
	}

	if err := h.svc.Flush(r.Context(), body.ModelName); err != nil {
		return nil, err
	}
	return map[string]bool{"flushed": true}, nil
}
