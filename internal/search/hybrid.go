package search

import (
	"sort"
)

// FusionConfig defines weights for hybrid score fusion.
type FusionConfig struct {
	SemanticWeight float64
	KeywordWeight  float64
}

// DefaultFusionConfig favors keyword matches; letter embeddings are a
// coarse signal.
var DefaultFusionConfig = FusionConfig{
	SemanticWeight: 0.3,
	KeywordWeight:  0.7,
}

// SearchHybrid performs hybrid search combining BM25 and semantic scores.
func (i *Indexer) SearchHybrid(q string, limit int, config FusionConfig) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	bm25Results, err := i.SearchBM25(q, limit*2)
	if err != nil {
		return nil, err
	}

	semanticResults, err := i.SearchSemantic(q, limit*2)
	if err != nil || len(semanticResults) == 0 {
		return truncate(bm25Results, limit), nil
	}

	fusedResults := fuseScores(normalizeScores(bm25Results), semanticResults, config)

	sort.SliceStable(fusedResults, func(a, b int) bool {
		if fusedResults[a].Score != fusedResults[b].Score {
			return fusedResults[a].Score > fusedResults[b].Score
		}
		return fusedResults[a].ToolName < fusedResults[b].ToolName
	})

	return truncate(fusedResults, limit), nil
}

func truncate(results []SearchResult, limit int) []SearchResult {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

// fuseScores combines BM25 and semantic results using weighted fusion.
// A tool found by only one method is scored by that method's weight alone.
func fuseScores(bm25Results, semanticResults []SearchResult, config FusionConfig) []SearchResult {
	semanticMap := make(map[string]SearchResult, len(semanticResults))
	for _, result := range semanticResults {
		semanticMap[result.ToolName] = result
	}

	seen := make(map[string]bool, len(bm25Results)+len(semanticResults))
	fusedResults := make([]SearchResult, 0, len(bm25Results)+len(semanticResults))

	for _, keyword := range bm25Results {
		seen[keyword.ToolName] = true
		fused := keyword
		fused.Score = config.KeywordWeight * keyword.Score
		if semantic, ok := semanticMap[keyword.ToolName]; ok {
			fused.Score += config.SemanticWeight * semantic.Score
		}
		fusedResults = append(fusedResults, fused)
	}

	for _, semantic := range semanticResults {
		if seen[semantic.ToolName] {
			continue
		}
		fused := semantic
		fused.Score = config.SemanticWeight * semantic.Score
		fusedResults = append(fusedResults, fused)
	}

	return fusedResults
}

// normalizeScores normalizes scores to [0, 1] range.
func normalizeScores(results []SearchResult) []SearchResult {
	if len(results) == 0 {
		return results
	}

	minScore := results[0].Score
	maxScore := results[0].Score

	for _, result := range results {
		if result.Score < minScore {
			minScore = result.Score
		}
		if result.Score > maxScore {
			maxScore = result.Score
		}
	}

	// All scores equal: treat every result as a full match.
	if maxScore == minScore {
		normalized := make([]SearchResult, len(results))
		for i, result := range results {
			normalized[i] = result
			normalized[i].Score = 1.0
		}
		return normalized
	}

	normalized := make([]SearchResult, len(results))
	for i, result := range results {
		normalized[i] = result
		normalized[i].Score = (result.Score - minScore) / (maxScore - minScore)
	}

	return normalized
}
