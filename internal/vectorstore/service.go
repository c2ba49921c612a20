// Package vectorstore implements the tenant-facing data plane: inserting
// documents as dense and BM25 sparse vectors, and searching them by dense
// similarity or a reciprocal-rank-fusion hybrid of dense and sparse.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vectorgate/vectorgate/internal/auth"
	"github.com/vectorgate/vectorgate/internal/connpool"
	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/telemetry"
	"github.com/vectorgate/vectorgate/internal/vectordb"
)

// Document is a single record to insert, matching the EmbeddedVector tuple:
// a stable key (overwrites on repeat), the source chunk of text (tokenized
// and BM25-scored for sparse search), and arbitrary caller metadata.
type Document struct {
	Key      string
	Chunk    string
	Metadata map[string]any
	Vector   []float32
}

// InsertRequest describes a batch insert against a tenant's (model)
// collection.
type InsertRequest struct {
	ModelName string
	Documents []Document
}

// InsertResult is the outcome of an Insert call.
type InsertResult struct {
	Inserted int
	Flushed  bool
}

// SearchRequest describes a tenant search against their (tenant, model)
// collection.
type SearchRequest struct {
	ModelName         string
	Vector            []float32
	Limit             int
	ScoreThreshold    float32
	MetricType        string
	HybridSearch      bool
	TextFilter        string
	MinimumWordsMatch int
	IncludeStopWords  bool
}

// Hit is a single search result.
type Hit struct {
	ID     any            `json:"id"`
	Score  float32        `json:"score"`
	Fields map[string]any `json:"fields,omitempty"`
}

// sparseDropRatioBuild matches config.Config's DROP_RATIO_BUILD default;
// it trims the lowest-weighted terms from the sparse index during search,
// trading a small amount of recall for latency.
const sparseDropRatioBuild = 0.2

type tenantSchemaRecord struct {
	collectionName string
	dimension      int
}

// Service implements the insert/search/flush data plane.
type Service struct {
	pool      *connpool.Pool
	controlDB *pgxpool.Pool
	logger    *slog.Logger

	autoFlushThreshold int

	mu      sync.Mutex
	corpora map[string]*vectordb.Corpus
}

// New creates a vectorstore Service. autoFlushThreshold is the batch size at
// or above which an insert is flushed immediately, making its rows
// searchable without a separate Flush call.
func New(pool *connpool.Pool, controlDB *pgxpool.Pool, autoFlushThreshold int, logger *slog.Logger) *Service {
	return &Service{
		pool:               pool,
		controlDB:          controlDB,
		autoFlushThreshold: autoFlushThreshold,
		logger:             logger,
		corpora:            make(map[string]*vectordb.Corpus),
	}
}

// Insert tokenizes, BM25-scores, and upserts a batch of documents into the
// tenant's (tenant, model) collection. Duplicate keys within the batch keep
// only the last occurrence, matching the upstream collection's upsert
// semantics.
func (s *Service) Insert(ctx context.Context, req InsertRequest) (*InsertResult, error) {
	tenantCode := auth.TenantFromContext(ctx)
	tenant, err := s.lookupTenantSchema(ctx, tenantCode, req.ModelName)
	if err != nil {
		return nil, err
	}

	engine, key, err := s.acquireEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(key)

	docs := dedupeByKey(req.Documents)

	corpus := s.corpusFor(tenantCode, req.ModelName)

	rows := make([]vectordb.Row, 0, len(docs))
	for i, doc := range docs {
		if err := vectordb.ValidateVector(doc.Vector, tenant.dimension); err != nil {
			return nil, errs.Wrap(errs.KindValidation, fmt.Sprintf("document %d: invalid vector", i), err)
		}
		if doc.Chunk == "" {
			return nil, errs.New(errs.KindValidation, fmt.Sprintf("document %d: chunk must not be empty", i))
		}

		tokens := vectordb.Tokenize(doc.Chunk)
		corpus.Add(tokens)
		sparse := corpus.Score(tokens)

		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, fmt.Sprintf("document %d: invalid metadata", i), err)
		}

		rows = append(rows, vectordb.Row{
			"flouds_vector_id": doc.Key,
			"flouds_vector":    doc.Vector,
			"sparse":           sparse,
			"chunk":            doc.Chunk,
			"model":            req.ModelName,
			"meta":             string(metadataJSON),
		})
	}

	if err := engine.Insert(ctx, tenant.collectionName, rows); err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "inserting documents", err)
	}
	telemetry.InsertedVectorsTotal.WithLabelValues(tenantCode).Add(float64(len(rows)))

	flushed := false
	if s.autoFlushThreshold > 0 && len(rows) >= s.autoFlushThreshold {
		if err := engine.Flush(ctx, tenant.collectionName); err != nil {
			s.logger.Warn("auto-flush failed", "tenant_code", tenantCode, "model_name", req.ModelName, "error", err)
		} else {
			flushed = true
		}
	}

	return &InsertResult{Inserted: len(rows), Flushed: flushed}, nil
}

// Flush forces the tenant+model collection to persist buffered inserts.
func (s *Service) Flush(ctx context.Context, modelName string) error {
	tenantCode := auth.TenantFromContext(ctx)
	tenant, err := s.lookupTenantSchema(ctx, tenantCode, modelName)
	if err != nil {
		return err
	}

	engine, key, err := s.acquireEngine(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(key)

	if err := engine.Flush(ctx, tenant.collectionName); err != nil {
		return errs.Wrap(errs.KindUpstream, "flushing collection", err)
	}
	return nil
}

// Search runs a dense or hybrid search against the tenant's (tenant, model)
// collection, per SPEC_FULL.md §4.9.3.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	tenantCode := auth.TenantFromContext(ctx)
	tenant, err := s.lookupTenantSchema(ctx, tenantCode, req.ModelName)
	if err != nil {
		return nil, err
	}

	engine, key, err := s.acquireEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(key)

	mode := "dense"
	if req.HybridSearch {
		mode = "hybrid"
	}
	timer := prometheus.NewTimer(telemetry.SearchDuration.WithLabelValues(mode))
	defer timer.ObserveDuration()

	if !req.HybridSearch {
		hits, err := s.denseSearch(ctx, engine, tenant, req)
		if err != nil {
			return nil, err
		}
		return toHits(filterByScoreThreshold(hits, req.ScoreThreshold)), nil
	}

	return s.hybridSearch(ctx, engine, tenant, req)
}

// hybridSearch implements SPEC_FULL.md §4.9.3's hybrid path: tokenize and
// stop-word-filter text_filter, fall back to dense-only when too few tokens
// survive, otherwise run dense ANN and BM25 sparse search and fuse by RRF.
func (s *Service) hybridSearch(ctx context.Context, engine vectordb.Engine, tenant *tenantSchemaRecord, req SearchRequest) ([]Hit, error) {
	tokens := vectordb.TokenizeQuery(req.TextFilter, req.IncludeStopWords)

	if len(tokens) < req.MinimumWordsMatch {
		hits, err := s.denseSearch(ctx, engine, tenant, req)
		if err != nil {
			return nil, err
		}
		return toHits(filterByScoreThreshold(hits, req.ScoreThreshold)), nil
	}

	dense, err := s.denseSearch(ctx, engine, tenant, req)
	if err != nil {
		return nil, err
	}

	tenantCode := auth.TenantFromContext(ctx)
	corpus := s.corpusFor(tenantCode, req.ModelName)
	sparseQuery := corpus.Score(tokens)

	sparse, err := engine.Search(ctx, vectordb.SearchRequest{
		Collection:     tenant.collectionName,
		AnnsField:      "sparse",
		SparseQuery:    sparseQuery,
		TopK:           limitOrDefault(req.Limit),
		MetricType:     "IP",
		OutputFields:   []string{"chunk", "meta"},
		DropRatioBuild: sparseDropRatioBuild,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "sparse search", err)
	}

	fused := vectordb.FuseRRF(dense, sparse)
	if len(fused) > limitOrDefault(req.Limit) {
		fused = fused[:limitOrDefault(req.Limit)]
	}

	hits := make([]Hit, 0, len(fused))
	for _, f := range fused {
		hits = append(hits, Hit{ID: f.ID, Score: f.Score, Fields: f.Fields})
	}
	return hits, nil
}

func (s *Service) denseSearch(ctx context.Context, engine vectordb.Engine, tenant *tenantSchemaRecord, req SearchRequest) ([]vectordb.SearchHit, error) {
	if len(req.Vector) == 0 {
		return nil, errs.New(errs.KindValidation, "search requires a query vector")
	}
	if err := vectordb.ValidateVector(req.Vector, tenant.dimension); err != nil {
		return nil, errs.Wrap(errs.KindValidation, "invalid query vector", err)
	}

	metricType := req.MetricType
	if metricType == "" {
		metricType = "COSINE"
	}

	hits, err := engine.Search(ctx, vectordb.SearchRequest{
		Collection:   tenant.collectionName,
		AnnsField:    "flouds_vector",
		Vector:       req.Vector,
		TopK:         limitOrDefault(req.Limit),
		MetricType:   metricType,
		OutputFields: []string{"chunk", "meta"},
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "dense search", err)
	}
	return hits, nil
}

func (s *Service) acquireEngine(ctx context.Context) (vectordb.Engine, connpool.Key, error) {
	tok := auth.DBTokenFromContext(ctx)
	if tok == nil {
		return nil, connpool.Key{}, errs.New(errs.KindValidation, "Flouds-VectorDB-Token header is required")
	}

	key := connpool.Key{URI: tok.URI, User: tok.User, DB: tok.Database}
	engine, err := s.pool.Acquire(ctx, key)
	if err != nil {
		return nil, key, errs.Wrap(errs.KindPoolExhausted, "acquiring vector database connection", err)
	}
	return engine, key, nil
}

func (s *Service) lookupTenantSchema(ctx context.Context, tenantCode, modelName string) (*tenantSchemaRecord, error) {
	if tenantCode == "" {
		return nil, errs.New(errs.KindValidation, "X-Tenant-Code header is required")
	}
	if modelName == "" {
		return nil, errs.New(errs.KindValidation, "model_name is required")
	}

	var rec tenantSchemaRecord
	err := s.controlDB.QueryRow(ctx, `
		SELECT collection_name, dimension FROM tenant_schemas WHERE tenant_code = $1 AND model_name = $2
	`, tenantCode, modelName).Scan(&rec.collectionName, &rec.dimension)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.New(errs.KindNotFound, fmt.Sprintf("no collection for tenant %q model %q; call generate_schema first", tenantCode, modelName))
		}
		return nil, errs.Wrap(errs.KindInternal, "looking up tenant schema", err)
	}
	return &rec, nil
}

func (s *Service) corpusFor(tenantCode, modelName string) *vectordb.Corpus {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tenantCode + "|" + modelName
	c, ok := s.corpora[k]
	if !ok {
		c = vectordb.NewCorpus()
		s.corpora[k] = c
	}
	return c
}

// dedupeByKey keeps only the last document for each repeated key, per
// SPEC_FULL.md §4.9.2's "last write wins for duplicates within batch" rule.
func dedupeByKey(docs []Document) []Document {
	lastIndex := make(map[string]int, len(docs))
	for i, d := range docs {
		lastIndex[d.Key] = i
	}

	result := make([]Document, 0, len(lastIndex))
	for i, d := range docs {
		if lastIndex[d.Key] == i {
			result = append(result, d)
		}
	}
	return result
}

func filterByScoreThreshold(hits []vectordb.SearchHit, threshold float32) []vectordb.SearchHit {
	if threshold <= 0 {
		return hits
	}
	out := make([]vectordb.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}

func toHits(hits []vectordb.SearchHit) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		out = append(out, Hit{ID: h.ID, Score: h.Score, Fields: h.Fields})
	}
	return out
}
