package search

import (
	"sort"

	"github.com/khanglvm/lunar-mcp/internal/cache"
)

// minSemanticScore drops tools that share almost no letters with the query.
const minSemanticScore = 0.5

// SearchSemantic ranks tools by cosine similarity between the query
// embedding and each tool's embedding. A query without letters returns no
// results.
func (i *Indexer) SearchSemantic(q string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	queryVector := i.embedder.Embed(splitWords(q))

	i.mu.RLock()
	results := make([]SearchResult, 0, len(i.order))
	for _, name := range i.order {
		score := cache.CosineSimilarity(queryVector, i.vectors[name])
		if score < minSemanticScore {
			continue
		}
		results = append(results, SearchResult{
			ToolName: name,
			Category: i.categories[name],
			JumpCode: i.jumpCodes[name],
			Score:    score,
		})
	}
	i.mu.RUnlock()

	// Stable keeps registry order among equal scores.
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
