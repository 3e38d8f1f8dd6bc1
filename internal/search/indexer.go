package search

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/cache"
	"github.com/khanglvm/lunar-mcp/internal/jumpcode"
	"github.com/khanglvm/lunar-mcp/internal/registry"
)

// Indexer manages the search index for one registry snapshot.
type Indexer struct {
	bleveIndex bleve.Index
	embedder   cache.Embedder
	logger     *zap.Logger

	mu        sync.RWMutex
	vectors    map[string][]float64
	jumpCodes  map[string]string
	categories map[string]string
	order      []string
}

// NewIndexer creates an empty in-memory index. A nil embedder selects
// cache.LetterEmbedder.
func NewIndexer(embedder cache.Embedder, logger *zap.Logger) (*Indexer, error) {
	if embedder == nil {
		embedder = cache.LetterEmbedder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	return &Indexer{
		bleveIndex: index,
		embedder:   embedder,
		logger:     logger,
		vectors:    make(map[string][]float64),
		jumpCodes:  make(map[string]string),
		categories: make(map[string]string),
	}, nil
}

// NewRegistryIndexer creates an index holding every tool of reg.
func NewRegistryIndexer(reg *registry.Registry, logger *zap.Logger) (*Indexer, error) {
	indexer, err := NewIndexer(nil, logger)
	if err != nil {
		return nil, err
	}
	if err := indexer.IndexRegistry(reg); err != nil {
		indexer.Close()
		return nil, err
	}
	return indexer, nil
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	toolMapping := bleve.NewDocumentMapping()

	// Name is stored for retrieval and matched exactly.
	nameFieldMapping := bleve.NewKeywordFieldMapping()
	toolMapping.AddFieldMappingsAt("name", nameFieldMapping)

	categoryFieldMapping := bleve.NewTextFieldMapping()
	toolMapping.AddFieldMappingsAt("category", categoryFieldMapping)

	wordsFieldMapping := bleve.NewTextFieldMapping()
	wordsFieldMapping.Store = false
	toolMapping.AddFieldMappingsAt("words", wordsFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = toolMapping

	return indexMapping
}

// IndexRegistry replaces the index contents with the tools of reg.
func (i *Indexer) IndexRegistry(reg *registry.Registry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.clearLocked(); err != nil {
		return err
	}

	codes := jumpcode.New(reg)
	batch := i.bleveIndex.NewBatch()

	for _, tool := range reg.Tools() {
		doc := toolDocument{
			Name:     tool.Name,
			Category: registry.CategoryOf(tool),
			Words:    splitWords(tool.Name),
		}

		if err := batch.Index(tool.Name, doc.fields()); err != nil {
			i.logger.Warn("failed to index tool", zap.String("tool", tool.Name), zap.Error(err))
			continue
		}

		i.vectors[tool.Name] = i.embedder.Embed(doc.Words + " " + doc.Category)
		i.categories[tool.Name] = doc.Category
		if code, ok := codes.CodeFor(tool.Name); ok {
			i.jumpCodes[tool.Name] = code
		}
		i.order = append(i.order, tool.Name)
	}

	if err := i.bleveIndex.Batch(batch); err != nil {
		return fmt.Errorf("failed to batch index tools: %w", err)
	}

	return nil
}

func (i *Indexer) clearLocked() error {
	if len(i.order) > 0 {
		batch := i.bleveIndex.NewBatch()
		for _, name := range i.order {
			batch.Delete(name)
		}
		if err := i.bleveIndex.Batch(batch); err != nil {
			return fmt.Errorf("failed to batch delete: %w", err)
		}
	}

	i.vectors = make(map[string][]float64)
	i.jumpCodes = make(map[string]string)
	i.categories = make(map[string]string)
	i.order = nil
	return nil
}

// Count returns the total number of indexed tools.
func (i *Indexer) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}

	return docCount, nil
}

// Close closes the index and releases resources.
func (i *Indexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex != nil {
		return i.bleveIndex.Close()
	}

	return nil
}

// buildMatchQuery matches the query words against category and name words.
func buildMatchQuery(searchText string) query.Query {
	words := splitWords(searchText)

	categoryQuery := bleve.NewMatchQuery(words)
	categoryQuery.SetField("category")

	wordsQuery := bleve.NewMatchQuery(words)
	wordsQuery.SetField("words")
	wordsQuery.SetFuzziness(1)

	return bleve.NewDisjunctionQuery(categoryQuery, wordsQuery)
}

// splitWords lowercases s and turns name separators into spaces.
func splitWords(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch r {
		case ':', '_', '-', '/', '.', ' ', '\t', '\n':
			return true
		}
		return false
	}), " ")
}
