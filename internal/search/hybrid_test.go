package search

import (
	"math"
	"testing"
)

func TestSearchSemantic(t *testing.T) {
	indexer := newDefaultIndexer(t)

	results, err := indexer.SearchSemantic("github repository", 10)
	if err != nil {
		t.Fatalf("semantic search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected semantic results")
	}
	if results[0].ToolName != "github:create_repository" {
		t.Errorf("expected github:create_repository first, got %s", results[0].ToolName)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted at %d", i)
		}
		if results[i].Score < minSemanticScore {
			t.Errorf("result below threshold: %+v", results[i])
		}
	}

	empty, _ := indexer.SearchSemantic("1234", 10)
	if len(empty) != 0 {
		t.Errorf("expected no results for a query without letters, got %d", len(empty))
	}
}

func TestSearchHybridToleratesTypos(t *testing.T) {
	indexer := newDefaultIndexer(t)

	results, err := indexer.SearchHybrid("brnch", 3, DefaultFusionConfig)
	if err != nil {
		t.Fatalf("hybrid search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].ToolName != "github:create_branch" {
		t.Errorf("expected github:create_branch first, got %s", results[0].ToolName)
	}
	if len(results) > 3 {
		t.Errorf("expected at most 3 results, got %d", len(results))
	}
}

func TestFuseScores(t *testing.T) {
	bm25 := []SearchResult{
		{ToolName: "a", Score: 1.0},
		{ToolName: "b", Score: 0.5},
	}
	semantic := []SearchResult{
		{ToolName: "b", Score: 1.0},
		{ToolName: "c", Score: 0.8},
	}

	fused := fuseScores(bm25, semantic, FusionConfig{SemanticWeight: 0.3, KeywordWeight: 0.7})
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}

	want := map[string]float64{
		"a": 0.7,
		"b": 0.7*0.5 + 0.3,
		"c": 0.3 * 0.8,
	}
	for _, r := range fused {
		if math.Abs(r.Score-want[r.ToolName]) > 1e-9 {
			t.Errorf("%s: expected score %f, got %f", r.ToolName, want[r.ToolName], r.Score)
		}
	}
}

func TestNormalizeScores_Empty(t *testing.T) {
	if normalized := normalizeScores([]SearchResult{}); len(normalized) != 0 {
		t.Errorf("expected empty result, got %d items", len(normalized))
	}
}

func TestNormalizeScores_Single(t *testing.T) {
	normalized := normalizeScores([]SearchResult{{ToolName: "tool_a", Score: 0.5}})

	if len(normalized) != 1 {
		t.Fatalf("expected 1 result, got %d", len(normalized))
	}
	if normalized[0].Score != 1.0 {
		t.Errorf("expected score 1.0 for single result, got %f", normalized[0].Score)
	}
}

func TestNormalizeScores_Multiple(t *testing.T) {
	results := []SearchResult{
		{ToolName: "tool_a", Score: 2.0},
		{ToolName: "tool_b", Score: 3.0},
		{ToolName: "tool_c", Score: 4.0},
	}
	normalized := normalizeScores(results)

	expected := []float64{0.0, 0.5, 1.0}
	for i, exp := range expected {
		if math.Abs(normalized[i].Score-exp) > 1e-9 {
			t.Errorf("result %d: expected %f, got %f", i, exp, normalized[i].Score)
		}
	}
	if results[0].Score != 2.0 {
		t.Error("normalizeScores must not modify its input")
	}
}
