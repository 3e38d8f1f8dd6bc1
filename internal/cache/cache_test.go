package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/lunar-mcp/internal/clock"
	"github.com/khanglvm/lunar-mcp/internal/models"
)

func suggestion(tool string) models.Suggestion {
	return models.Suggestion{PrimaryTool: tool, Confidence: 0.85, Reason: "test", Suggestions: []string{}}
}

func newTestCache(capacity int) (*Cache, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(Options{Capacity: capacity, TTL: time.Hour, Clock: clk}), clk
}

func TestLetterEmbedder(t *testing.T) {
	e := LetterEmbedder{}
	assert.Equal(t, 26, e.Dimensions())

	vec := e.Embed("Ab!b 9")
	// counts a=1, b=2 -> magnitude sqrt(5)
	assert.InDelta(t, 1/math.Sqrt(5), vec[0], 1e-9)
	assert.InDelta(t, 2/math.Sqrt(5), vec[1], 1e-9)

	zero := e.Embed("123 !?")
	for _, v := range zero {
		assert.Equal(t, 0.0, v)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 1}))
}

func TestDefaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, DefaultSimilarityThreshold, c.threshold)
	assert.Equal(t, DefaultCapacity, c.capacity)
}

func TestCapacityEvictsOldest(t *testing.T) {
	const capacity, extra = 5, 3
	c, _ := newTestCache(capacity)

	for i := 0; i < capacity+extra; i++ {
		c.Set(fmt.Sprintf("key-%d", i), suggestion(fmt.Sprintf("tool-%d", i)))
	}

	assert.Equal(t, capacity, c.Len())
	for i := 0; i < extra; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.False(t, ok, "key-%d should have been evicted", i)
	}
	for i := extra; i < capacity+extra; i++ {
		value, ok := c.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("tool-%d", i), value.PrimaryTool)
	}
}

func TestSetExistingKeyDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(2)
	c.Set("a", suggestion("one"))
	c.Set("b", suggestion("two"))
	c.Set("a", suggestion("three"))

	assert.Equal(t, []string{"b", "a"}, c.Keys())
	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "three", value.PrimaryTool)
}

func TestExpiredEntriesAreFreedBeforeEviction(t *testing.T) {
	c, clk := newTestCache(2)
	c.Set("old", suggestion("old"))
	clk.Advance(2 * time.Hour)
	c.Set("fresh", suggestion("fresh"))
	c.Set("newer", suggestion("newer"))

	assert.Equal(t, []string{"fresh", "newer"}, c.Keys())
}

func TestGetRespectsTTL(t *testing.T) {
	c, clk := newTestCache(10)
	c.Set("deploy the app", suggestion("docker-mcp:create-container"))

	clk.Advance(59 * time.Minute)
	_, ok := c.Get("deploy the app")
	assert.True(t, ok)

	clk.Advance(time.Minute)
	_, ok = c.Get("deploy the app")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestIdenticalKeysAlwaysMatchExactly(t *testing.T) {
	clk := clock.NewFake(time.Now())
	c := New(Options{SimilarityThreshold: 1, Clock: clk})
	c.Set("12345", suggestion("numbers"))

	value, ok := c.Get("12345")
	require.True(t, ok)
	assert.Equal(t, "numbers", value.PrimaryTool)

	// Letter-free keys embed to zero and never match approximately.
	_, _, ok = c.FindSimilar("12345")
	assert.False(t, ok)
}

func TestFindSimilarThresholdGating(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("aaaa", suggestion("a-tool"))

	_, _, ok := c.FindSimilar("bbbb")
	assert.False(t, ok)

	value, similarity, ok := c.FindSimilar("AAAA!")
	require.True(t, ok)
	assert.InDelta(t, 1.0, similarity, 1e-9)
	assert.Equal(t, "a-tool", value.PrimaryTool)
	assert.Equal(t, "aaaa", value.MatchedQuery)
	assert.InDelta(t, 1.0, value.Similarity, 1e-9)
}

func TestFindSimilarPicksHighest(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("deploy the app", suggestion("docker"))
	c.Set("deploy the application now", suggestion("other"))

	value, similarity, ok := c.FindSimilar("deploy the apps")
	require.True(t, ok)
	assert.Equal(t, "docker", value.PrimaryTool)
	assert.GreaterOrEqual(t, similarity, DefaultSimilarityThreshold)
}

func TestFindSimilarTieGoesToMostRecent(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("abc", suggestion("first"))
	c.Set("cab", suggestion("second"))

	value, _, ok := c.FindSimilar("bca")
	require.True(t, ok)
	assert.Equal(t, "second", value.PrimaryTool)
}

func TestFindSimilarSkipsExpired(t *testing.T) {
	c, clk := newTestCache(10)
	c.Set("abc", suggestion("first"))
	clk.Advance(2 * time.Hour)

	_, _, ok := c.FindSimilar("cba")
	assert.False(t, ok)
}

func TestGetOrComputeExactHit(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("deploy the app", models.Suggestion{PrimaryTool: "docker-mcp:create-container", Confidence: 0.85})

	called := false
	value, source, err := c.GetOrCompute(context.Background(), "deploy the app", func(context.Context) (models.Suggestion, error) {
		called = true
		return models.Suggestion{}, nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, SourceExact, source)
	assert.Equal(t, "docker-mcp:create-container", value.PrimaryTool)
}

func TestGetOrComputeSimilarHit(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("create a github repo", suggestion("github:create_repository"))

	value, source, err := c.GetOrCompute(context.Background(), "create a github repos", func(context.Context) (models.Suggestion, error) {
		t.Fatal("compute should not run on a similar hit")
		return models.Suggestion{}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, SourceSimilar, source)
	assert.Equal(t, "github:create_repository", value.PrimaryTool)
	assert.Equal(t, "create a github repo", value.MatchedQuery)
}

func TestGetOrComputeMissStores(t *testing.T) {
	c, _ := newTestCache(10)

	calls := 0
	compute := func(context.Context) (models.Suggestion, error) {
		calls++
		return suggestion("computed"), nil
	}

	value, source, err := c.GetOrCompute(context.Background(), "zzz", compute)
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, source)
	assert.Equal(t, "computed", value.PrimaryTool)

	_, source, err = c.GetOrCompute(context.Background(), "zzz", compute)
	require.NoError(t, err)
	assert.Equal(t, SourceExact, source)
	assert.Equal(t, 1, calls)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestGetOrComputeErrorNotStored(t *testing.T) {
	c, _ := newTestCache(10)
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(context.Background(), "key", func(context.Context) (models.Suggestion, error) {
		return models.Suggestion{}, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("a", suggestion("a"))
	c.Set("b", suggestion("b"))
	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, _, ok := c.FindSimilar("a")
	assert.False(t, ok)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	c, _ := newTestCache(10)
	c.Set("key", models.Suggestion{PrimaryTool: "x", Suggestions: []string{"y"}})

	value, ok := c.Get("key")
	require.True(t, ok)
	value.Suggestions[0] = "mutated"

	again, _ := c.Get("key")
	assert.Equal(t, "y", again.Suggestions[0])
}
