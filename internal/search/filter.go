package search

import (
	"strings"
)

// ContentLengthFilter drops enriched results whose body is too short to
// be useful. Callers over-fetch candidates so dropped slots can be
// backfilled from the surplus; the filter never re-queries.
type ContentLengthFilter struct {
	minLength int
}

// NewContentLengthFilter creates a filter. Non-positive minLength uses
// the default.
func NewContentLengthFilter(minLength int) *ContentLengthFilter {
	if minLength <= 0 {
		minLength = DefaultConfig().MinContentLength
	}
	return &ContentLengthFilter{minLength: minLength}
}

// Filter returns at most targetCount results with adequate body text,
// preserving the input ranking. Length is counted in runes so CJK text
// is not penalized.
func (f *ContentLengthFilter) Filter(enriched []EnrichedResult, targetCount int) []EnrichedResult {
	if targetCount <= 0 {
		return nil
	}
	out := make([]EnrichedResult, 0, targetCount)
	for _, r := range enriched {
		if len(out) >= targetCount {
			break
		}
		if f.adequate(r.Body) {
			out = append(out, r)
		}
	}
	return out
}

func (f *ContentLengthFilter) adequate(body string) bool {
	return len([]rune(strings.TrimSpace(body))) >= f.minLength
}

// MinLength exposes the configured threshold.
func (f *ContentLengthFilter) MinLength() int {
	return f.minLength
}
