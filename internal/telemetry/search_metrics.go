// Package telemetry collects local search telemetry for tuning retrieval.
// All data stays in memory - no external reporting.
package telemetry

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SearchMode classifies how a query was answered.
type SearchMode string

const (
	ModeMixed        SearchMode = "mixed"
	ModeHybrid       SearchMode = "hybrid"
	ModeSemanticOnly SearchMode = "semantic_only"
	ModeKeywordOnly  SearchMode = "keyword_only"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP200  LatencyBucket = "p200"  // 50-200ms
	BucketP500  LatencyBucket = "p500"  // 200-500ms
	BucketP2000 LatencyBucket = "p2000" // 500ms-2s
	BucketSlow  LatencyBucket = "slow"  // >=2s
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketP50
	case ms < 200:
		return BucketP200
	case ms < 500:
		return BucketP500
	case ms < 2000:
		return BucketP2000
	default:
		return BucketSlow
	}
}

// SearchEvent records a single search for telemetry purposes.
type SearchEvent struct {
	Query         string
	Mode          SearchMode
	ResultCount   int
	SubQueryCount int
	GraphUsed     bool
	Degraded      bool
	Latency       time.Duration
	Timestamp     time.Time
}

// IsZeroResult reports whether the query returned no results.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms splits a query into lowercased terms for frequency tracking.
// Latin terms shorter than 2 runes are dropped; CJK text is kept per field.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(query) {
		if len([]rune(w)) >= 2 {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 {
		return nil
	}
	return terms
}

// TermCount pairs a term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	ModeCounts          map[SearchMode]int64    `json:"mode_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	DegradedCount       int64                   `json:"degraded_count"`
	GraphHitCount       int64                   `json:"graph_hit_count"`
	SubQueryCount       int64                   `json:"sub_query_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// DegradedPercentage returns the share of degraded searches.
func (s *Snapshot) DegradedPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.DegradedCount) / float64(s.TotalQueries) * 100
}

// Config sizes the collector's bounded structures.
type Config struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
	}
}

// SearchMetrics collects search telemetry. Safe for concurrent use.
type SearchMetrics struct {
	mu sync.RWMutex

	modes           map[SearchMode]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	degradedCount   int64
	graphHitCount   int64
	subQueryCount   int64
	startTime       time.Time
}

// NewSearchMetrics creates a collector with default configuration.
func NewSearchMetrics() *SearchMetrics {
	return NewSearchMetricsWithConfig(DefaultConfig())
}

// NewSearchMetricsWithConfig creates a collector with custom limits.
func NewSearchMetricsWithConfig(cfg Config) *SearchMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	return &SearchMetrics{
		modes:       make(map[SearchMode]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
	}
}

// Record captures metrics from a completed search.
func (m *SearchMetrics) Record(event SearchEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modes[event.Mode]++
	m.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	}
	if event.Degraded {
		m.degradedCount++
	}
	if event.GraphUsed {
		m.graphHitCount++
	}
	m.subQueryCount += int64(event.SubQueryCount)

	m.latencies[LatencyToBucket(event.Latency)]++
}

// Snapshot returns current metrics for reporting.
func (m *SearchMetrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	modeCounts := make(map[SearchMode]int64, len(m.modes))
	for k, v := range m.modes {
		modeCounts[k] = v
	}

	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	for i := 0; i < len(topTerms); i++ {
		for j := i + 1; j < len(topTerms); j++ {
			if topTerms[j].Count > topTerms[i].Count {
				topTerms[i], topTerms[j] = topTerms[j], topTerms[i]
			}
		}
	}

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return &Snapshot{
		ModeCounts:          modeCounts,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		DegradedCount:       m.degradedCount,
		GraphHitCount:       m.graphHitCount,
		SubQueryCount:       m.subQueryCount,
		Since:               m.startTime,
	}
}
