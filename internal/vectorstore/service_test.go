package vectorstore

import (
	"context"
	"testing"

	"github.com/vectorgate/vectorgate/internal/vectordb"
)

type fakeEngine struct {
	vectordb.Engine
	searchFunc func(ctx context.Context, req vectordb.SearchRequest) ([]vectordb.SearchHit, error)
}

func (f *fakeEngine) Search(ctx context.Context, req vectordb.SearchRequest) ([]vectordb.SearchHit, error) {
	return f.searchFunc(ctx, req)
}

func TestDenseSearchRequiresVector(t *testing.T) {
	s := &Service{}
	tenant := &tenantSchemaRecord{collectionName: "acme_collection", dimension: 3}

	_, err := s.denseSearch(context.Background(), &fakeEngine{}, tenant, SearchRequest{})
	if err == nil {
		t.Fatal("expected an error for a missing query vector")
	}
}

func TestDenseSearchRejectsDimensionMismatch(t *testing.T) {
	s := &Service{}
	tenant := &tenantSchemaRecord{collectionName: "acme_collection", dimension: 3}

	_, err := s.denseSearch(context.Background(), &fakeEngine{}, tenant, SearchRequest{Vector: []float32{1, 2}})
	if err == nil {
		t.Fatal("expected an error for a dimension mismatch")
	}
}

func TestDenseSearchDelegatesToEngine(t *testing.T) {
	s := &Service{}
	tenant := &tenantSchemaRecord{collectionName: "acme_collection", dimension: 3}

	var gotField string
	engine := &fakeEngine{searchFunc: func(ctx context.Context, req vectordb.SearchRequest) ([]vectordb.SearchHit, error) {
		gotField = req.AnnsField
		return []vectordb.SearchHit{{ID: int64(1), Score: 0.9}}, nil
	}}

	hits, err := s.denseSearch(context.Background(), engine, tenant, SearchRequest{Vector: []float32{1, 2, 3}, Limit: 5})
	if err != nil {
		t.Fatalf("denseSearch: %v", err)
	}
	if gotField != "flouds_vector" {
		t.Errorf("expected AnnsField 'flouds_vector', got %q", gotField)
	}
	if len(hits) != 1 || hits[0].ID != int64(1) {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func TestFilterByScoreThresholdDropsLowScores(t *testing.T) {
	hits := []vectordb.SearchHit{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.2}}

	filtered := filterByScoreThreshold(hits, 0.5)
	if len(filtered) != 1 || filtered[0].ID != 1 {
		t.Errorf("expected only the high-scoring hit to survive, got %+v", filtered)
	}

	if got := filterByScoreThreshold(hits, 0); len(got) != 2 {
		t.Errorf("expected no filtering at threshold 0, got %+v", got)
	}
}

func TestLimitOrDefault(t *testing.T) {
	if got := limitOrDefault(0); got != 10 {
		t.Errorf("expected default 10, got %d", got)
	}
	if got := limitOrDefault(25); got != 25 {
		t.Errorf("expected 25, got %d", got)
	}
}

func TestCorpusForIsolatedPerTenantAndModel(t *testing.T) {
	s := New(nil, nil, 0, nil)

	a := s.corpusFor("acme", "text-embed-3")
	a.Add(vectordb.Tokenize("hello world"))

	b := s.corpusFor("acme", "other-model")
	if a == b {
		t.Fatal("expected distinct corpora per (tenant, model)")
	}

	c := s.corpusFor("other", "text-embed-3")
	if a == c {
		t.Fatal("expected distinct corpora across tenants")
	}

	if same := s.corpusFor("acme", "text-embed-3"); same != a {
		t.Fatal("expected corpusFor to reuse the existing corpus for (tenant, model)")
	}
}

func TestDedupeByKeyKeepsLastOccurrence(t *testing.T) {
	docs := []Document{
		{Key: "a", Chunk: "first"},
		{Key: "b", Chunk: "only"},
		{Key: "a", Chunk: "last"},
	}

	deduped := dedupeByKey(docs)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 documents after dedup, got %d", len(deduped))
	}

	byKey := make(map[string]Document, len(deduped))
	for _, d := range deduped {
		byKey[d.Key] = d
	}
	if byKey["a"].Chunk != "last" {
		t.Errorf("expected last-write-wins for key %q, got chunk %q", "a", byKey["a"].Chunk)
	}
	if byKey["b"].Chunk != "only" {
		t.Errorf("expected key %q untouched, got chunk %q", "b", byKey["b"].Chunk)
	}
}
