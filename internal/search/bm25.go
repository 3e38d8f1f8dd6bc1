package search

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

var resultFields = []string{"name", "category"}

// SearchBM25 performs BM25 keyword search using Bleve.
func (i *Indexer) SearchBM25(q string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	return i.search(buildMatchQuery(q), limit)
}

// SearchByCategory performs BM25 search scoped to one category.
func (i *Indexer) SearchByCategory(q, category string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	categoryQuery := bleve.NewMatchQuery(category)
	categoryQuery.SetField("category")

	return i.search(bleve.NewConjunctionQuery(buildMatchQuery(q), categoryQuery), limit)
}

// GetAllTools returns up to limit indexed tools.
func (i *Indexer) GetAllTools(limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 100
	}
	return i.search(bleve.NewMatchAllQuery(), limit)
}

func (i *Indexer) search(q query.Query, limit int) ([]SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	searchRequest := bleve.NewSearchRequestOptions(q, limit, 0, false)
	searchRequest.Fields = resultFields

	results, err := i.bleveIndex.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	return i.convertBleveResults(results), nil
}

// convertBleveResults converts Bleve hits to SearchResults. Callers hold
// the read lock.
func (i *Indexer) convertBleveResults(results *bleve.SearchResult) []SearchResult {
	searchResults := make([]SearchResult, 0, len(results.Hits))

	for _, hit := range results.Hits {
		name, _ := hit.Fields["name"].(string)
		if name == "" {
			name = hit.ID
		}
		category, _ := hit.Fields["category"].(string)

		searchResults = append(searchResults, SearchResult{
			ToolName: name,
			Category: category,
			JumpCode: i.jumpCodes[name],
			Score:    hit.Score,
		})
	}

	return searchResults
}
