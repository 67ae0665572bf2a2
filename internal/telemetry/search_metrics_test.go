package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{10 * time.Millisecond, BucketP50},
		{100 * time.Millisecond, BucketP200},
		{300 * time.Millisecond, BucketP500},
		{time.Second, BucketP2000},
		{5 * time.Second, BucketSlow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), "latency %v", tt.latency)
	}
}

func TestCircularBufferEviction(t *testing.T) {
	buf := NewCircularBuffer[int](3)
	for i := 1; i <= 5; i++ {
		buf.Add(i)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []int{3, 4, 5}, buf.Items())
}

func TestCircularBufferPartial(t *testing.T) {
	buf := NewCircularBuffer[string](10)
	buf.Add("a")
	buf.Add("b")

	assert.Equal(t, []string{"a", "b"}, buf.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Nil(t, ExtractTerms("  "))
	assert.Equal(t, []string{"故意伤害", "量刑"}, ExtractTerms("故意伤害 量刑"))
	assert.Equal(t, []string{"theft", "law"}, ExtractTerms("Theft a Law"))
}

func TestRecordAndSnapshot(t *testing.T) {
	m := NewSearchMetrics()

	m.Record(SearchEvent{
		Query:       "盗窃罪",
		Mode:        ModeMixed,
		ResultCount: 10,
		GraphUsed:   true,
		Latency:     20 * time.Millisecond,
	})
	m.Record(SearchEvent{
		Query:       "某个没有结果的查询",
		Mode:        ModeKeywordOnly,
		ResultCount: 0,
		Degraded:    true,
		Latency:     700 * time.Millisecond,
	})

	snap := m.Snapshot()

	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ModeCounts[ModeMixed])
	assert.Equal(t, int64(1), snap.ModeCounts[ModeKeywordOnly])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(1), snap.DegradedCount)
	assert.Equal(t, int64(1), snap.GraphHitCount)
	assert.Equal(t, []string{"某个没有结果的查询"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP2000])
	assert.InDelta(t, 50.0, snap.ZeroResultPercentage(), 0.001)
	assert.InDelta(t, 50.0, snap.DegradedPercentage(), 0.001)
}

func TestTopTermsSorted(t *testing.T) {
	m := NewSearchMetrics()
	for i := 0; i < 3; i++ {
		m.Record(SearchEvent{Query: "合同 纠纷", Mode: ModeHybrid, ResultCount: 1})
	}
	m.Record(SearchEvent{Query: "合同", Mode: ModeHybrid, ResultCount: 1})

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, len(snap.TopTerms), 2)
	assert.Equal(t, "合同", snap.TopTerms[0].Term)
	assert.Equal(t, int64(4), snap.TopTerms[0].Count)
}

func TestConcurrentRecord(t *testing.T) {
	m := NewSearchMetrics()
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				m.Record(SearchEvent{
					Query:       fmt.Sprintf("query %d-%d", g, i),
					Mode:        ModeMixed,
					ResultCount: i,
				})
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	assert.Equal(t, int64(400), m.Snapshot().TotalQueries)
}
