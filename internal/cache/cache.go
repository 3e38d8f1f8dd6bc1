/*
Package cache implements the suggestion cache.

Entries are looked up by exact key first and then by approximate textual
similarity: every key is embedded when stored, and a lookup embeds the
query and scans all live entries for the highest cosine similarity at or
above the configured threshold. The scan is linear, which is fine for the
small bounded capacity the cache runs with.

Entries expire after a TTL. When the cache is full, inserting a new key
evicts the oldest entry by insertion order.
*/
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/khanglvm/lunar-mcp/internal/clock"
	"github.com/khanglvm/lunar-mcp/internal/models"
)

const (
	// DefaultTTL is how long an entry stays live.
	DefaultTTL = time.Hour

	// DefaultSimilarityThreshold is the minimum cosine similarity for an
	// approximate match.
	DefaultSimilarityThreshold = 0.85

	// DefaultCapacity is the maximum number of entries.
	DefaultCapacity = 1000
)

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	TTL                 time.Duration
	SimilarityThreshold float64
	Capacity            int
	Embedder            Embedder
	Clock               clock.Clock
}

// Source tells where GetOrCompute found its value.
type Source string

const (
	SourceExact    Source = "exact"
	SourceSimilar  Source = "similar"
	SourceComputed Source = "computed"
)

// ComputeFunc produces a suggestion on a cache miss.
type ComputeFunc func(ctx context.Context) (models.Suggestion, error)

// Stats is a snapshot of cache counters.
type Stats struct {
	Keys        int     `json:"keys"`
	Hits        int64   `json:"hits"`
	SimilarHits int64   `json:"similarHits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hitRate"`
}

type entry struct {
	key        string
	value      models.Suggestion
	embedding  []float64
	insertedAt time.Time
}

// Cache is a bounded, TTL-limited store of suggestions.
type Cache struct {
	mu sync.RWMutex

	ttl       time.Duration
	threshold float64
	capacity  int
	embedder  Embedder
	clock     clock.Clock

	// order holds *entry values oldest first.
	order   *list.List
	entries map[string]*list.Element

	hits        int64
	similarHits int64
	misses      int64
}

// New creates a cache with the given options.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Embedder == nil {
		opts.Embedder = LetterEmbedder{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	return &Cache{
		ttl:       opts.TTL,
		threshold: opts.SimilarityThreshold,
		capacity:  opts.Capacity,
		embedder:  opts.Embedder,
		clock:     opts.Clock,
		order:     list.New(),
		entries:   make(map[string]*list.Element),
	}
}

// Get returns the live value stored under exactly key.
func (c *Cache) Get(key string) (models.Suggestion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.getLocked(key)
	if ok {
		c.hits++
	}
	return value, ok
}

// FindSimilar returns the live value whose key is most similar to key,
// provided the similarity reaches the threshold. Ties go to the most
// recently inserted entry. The returned suggestion carries the similarity
// and the matched key.
func (c *Cache) FindSimilar(key string) (models.Suggestion, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, similarity, ok := c.findSimilarLocked(key)
	if ok {
		c.hits++
		c.similarHits++
	}
	return value, similarity, ok
}

// GetOrCompute returns the exact match for key, else the closest similar
// match, else the result of compute, which is then stored under key.
// Concurrent misses for the same key may each run compute. A compute
// error is returned as is and nothing is stored.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (models.Suggestion, Source, error) {
	c.mu.Lock()
	if value, ok := c.getLocked(key); ok {
		c.hits++
		c.mu.Unlock()
		return value, SourceExact, nil
	}
	if value, _, ok := c.findSimilarLocked(key); ok {
		c.hits++
		c.similarHits++
		c.mu.Unlock()
		return value, SourceSimilar, nil
	}
	c.misses++
	c.mu.Unlock()

	// compute runs without the lock held.
	value, err := compute(ctx)
	if err != nil {
		return models.Suggestion{}, SourceComputed, err
	}

	c.Set(key, value)
	return value.Clone(), SourceComputed, nil
}

// Set stores value under key. A new key inserted into a full cache first
// evicts the oldest live entry.
func (c *Cache) Set(key string, value models.Suggestion) {
	embedding := c.embedder.Embed(key)
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		c.order.Remove(elem)
		delete(c.entries, key)
	}

	if len(c.entries) >= c.capacity {
		c.purgeExpiredLocked(now)
	}
	if len(c.entries) >= c.capacity {
		c.removeLocked(c.order.Front())
	}

	c.entries[key] = c.order.PushBack(&entry{
		key:        key,
		value:      value.Clone(),
		embedding:  embedding,
		insertedAt: now,
	})
}

// Clear removes all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Len returns the number of stored entries, including expired ones not yet
// purged.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the stored keys oldest first.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry).key)
	}
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Keys:        len(c.entries),
		Hits:        c.hits,
		SimilarHits: c.similarHits,
		Misses:      c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

func (c *Cache) getLocked(key string) (models.Suggestion, bool) {
	elem, ok := c.entries[key]
	if !ok {
		return models.Suggestion{}, false
	}
	e := elem.Value.(*entry)
	if c.expired(e, c.clock.Now()) {
		c.removeLocked(elem)
		return models.Suggestion{}, false
	}
	return e.value.Clone(), true
}

func (c *Cache) findSimilarLocked(key string) (models.Suggestion, float64, bool) {
	query := c.embedder.Embed(key)
	now := c.clock.Now()

	var best *entry
	bestSimilarity := 0.0

	// Newest first, so equal scores keep the most recent entry.
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*entry)
		if c.expired(e, now) {
			continue
		}
		similarity := CosineSimilarity(query, e.embedding)
		if similarity < c.threshold {
			continue
		}
		if best == nil || similarity > bestSimilarity {
			best = e
			bestSimilarity = similarity
		}
	}

	if best == nil {
		return models.Suggestion{}, 0, false
	}

	value := best.value.Clone()
	value.Similarity = bestSimilarity
	value.MatchedQuery = best.key
	return value, bestSimilarity, true
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.ttl
}

func (c *Cache) purgeExpiredLocked(now time.Time) {
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if c.expired(elem.Value.(*entry), now) {
			c.removeLocked(elem)
		}
		elem = next
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*entry).key)
}
