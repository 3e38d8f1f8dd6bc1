package learning

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/khanglvm/lunar-mcp/internal/clock"
	"github.com/khanglvm/lunar-mcp/internal/models"
)

const (
	// DefaultMaxHistory bounds the usage history.
	DefaultMaxHistory = 1000

	// DefaultSuggestLimit is used when Suggest is called with limit <= 0.
	DefaultSuggestLimit = 5

	// minTokenLength is the shortest context word that is associated with
	// tools. Shorter words are never stored and so never match.
	minTokenLength = 4

	topToolsLimit = 10
)

// ToolSuggestion is a tool ranked by how often it co-occurred with the
// words of a context.
type ToolSuggestion struct {
	Tool       string  `json:"tool"`
	Score      int     `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Prediction is a tool observed to follow another.
type Prediction struct {
	Tool        string  `json:"tool"`
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
}

// ToolCount pairs a tool with its accepted-use frequency.
type ToolCount struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// PatternStats summarizes what the learner has seen.
type PatternStats struct {
	TotalUsage      int         `json:"totalUsage"`
	UniqueTools     int         `json:"uniqueTools"`
	TopTools        []ToolCount `json:"topTools"`
	UniqueSequences int         `json:"uniqueSequences"`
	ContextWords    int         `json:"contextWords"`
}

type sequence struct {
	from, to string
}

// PatternLearner accumulates usage statistics in memory: accepted-use
// frequency per tool, counts of consecutive tool pairs, and counts of
// context words per tool.
//
// Only the history is bounded. The aggregate counters keep growing for the
// life of the learner, so they include records already dropped from the
// history.
type PatternLearner struct {
	mu sync.RWMutex

	maxHistory int
	clock      clock.Clock

	history   []models.UsageRecord
	frequency map[string]int
	sequences map[sequence]int
	words     map[string]map[string]int

	listeners []func(models.UsageRecord)
}

// NewPatternLearner creates a learner keeping at most maxHistory records.
// A maxHistory <= 0 selects DefaultMaxHistory; a nil clock uses real time.
func NewPatternLearner(maxHistory int, clk clock.Clock) *PatternLearner {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if clk == nil {
		clk = clock.Real()
	}

	return &PatternLearner{
		maxHistory: maxHistory,
		clock:      clk,
		history:    make([]models.UsageRecord, 0, 64),
		frequency:  make(map[string]int),
		sequences:  make(map[sequence]int),
		words:      make(map[string]map[string]int),
	}
}

// OnRecord registers fn to receive every logged record after the learner
// is updated. fn runs on the caller's goroutine and must not block.
func (l *PatternLearner) OnRecord(fn func(models.UsageRecord)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// LogUsage records that tool handled context.
func (l *PatternLearner) LogUsage(tool, context string, accepted bool, responseTime time.Duration) {
	record := models.UsageRecord{
		Tool:         tool,
		Context:      context,
		Accepted:     accepted,
		ResponseTime: responseTime,
		Timestamp:    l.clock.Now(),
	}

	l.mu.Lock()
	if n := len(l.history); n > 0 {
		l.sequences[sequence{from: l.history[n-1].Tool, to: tool}]++
	}

	l.history = append(l.history, record)

	if accepted {
		l.frequency[tool]++
	}

	for _, word := range tokenize(context) {
		if len(word) < minTokenLength {
			continue
		}
		tools, ok := l.words[word]
		if !ok {
			tools = make(map[string]int)
			l.words[word] = tools
		}
		tools[tool]++
	}

	if len(l.history) > l.maxHistory {
		// Shift in place to keep the backing array from growing.
		drop := len(l.history) - l.maxHistory
		copy(l.history, l.history[drop:])
		l.history = l.history[:l.maxHistory]
	}

	listeners := l.listeners
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(record)
	}
}

// Suggest ranks tools by the summed counts of the context words they were
// seen with. Ties are broken by tool name. A limit <= 0 selects
// DefaultSuggestLimit.
func (l *PatternLearner) Suggest(context string, limit int) []ToolSuggestion {
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}

	l.mu.RLock()
	scores := make(map[string]int)
	for _, word := range tokenize(context) {
		for tool, count := range l.words[word] {
			scores[tool] += count
		}
	}
	l.mu.RUnlock()

	suggestions := make([]ToolSuggestion, 0, len(scores))
	for tool, score := range scores {
		suggestions = append(suggestions, ToolSuggestion{
			Tool:       tool,
			Score:      score,
			Confidence: min(float64(score)/10, 1),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Tool < suggestions[j].Tool
	})

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

// PredictNext returns the tools observed immediately after previous,
// most frequent first. Probability is relative to the current history
// length.
func (l *PatternLearner) PredictNext(previous string) []Prediction {
	l.mu.RLock()
	total := len(l.history)
	predictions := []Prediction{}
	for seq, count := range l.sequences {
		if seq.from != previous {
			continue
		}
		p := Prediction{Tool: seq.to, Count: count}
		if total > 0 {
			p.Probability = float64(count) / float64(total)
		}
		predictions = append(predictions, p)
	}
	l.mu.RUnlock()

	sort.Slice(predictions, func(i, j int) bool {
		if predictions[i].Count != predictions[j].Count {
			return predictions[i].Count > predictions[j].Count
		}
		return predictions[i].Tool < predictions[j].Tool
	})
	return predictions
}

// History returns a copy of the retained usage records, oldest first.
func (l *PatternLearner) History() []models.UsageRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.UsageRecord, len(l.history))
	copy(out, l.history)
	return out
}

// Stats returns a summary of the learner's state.
func (l *PatternLearner) Stats() PatternStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	top := make([]ToolCount, 0, len(l.frequency))
	for tool, count := range l.frequency {
		top = append(top, ToolCount{Tool: tool, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Tool < top[j].Tool
	})
	if len(top) > topToolsLimit {
		top = top[:topToolsLimit]
	}

	return PatternStats{
		TotalUsage:      len(l.history),
		UniqueTools:     len(l.frequency),
		TopTools:        top,
		UniqueSequences: len(l.sequences),
		ContextWords:    len(l.words),
	}
}

// tokenize lowercases text and splits it on whitespace.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
