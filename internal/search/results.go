/*
Package search implements full-text search over the tool registry.

Tools are indexed in an in-memory Bleve index and ranked with BM25.
Hybrid search fuses the normalized BM25 score with the cosine similarity
of letter-frequency embeddings, which lets partial or misspelled queries
still surface a tool.
*/
package search

// SearchResult is a single ranked tool.
type SearchResult struct {
	ToolName string  `json:"name"`
	Category string  `json:"category"`
	JumpCode string  `json:"jumpCode,omitempty"`
	Score    float64 `json:"score"`
}

// toolDocument is a tool as stored in the index.
type toolDocument struct {
	Name     string
	Category string

	// Words is the name split into plain words, so that
	// "github:create_repository" matches "repository".
	Words string
}

func (d toolDocument) fields() map[string]interface{} {
	return map[string]interface{}{
		"name":     d.Name,
		"category": d.Category,
		"words":    d.Words,
	}
}
