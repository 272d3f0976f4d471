package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmcdole/lectio/internal/domain"
)

func set(ns ...int) map[int]bool {
	m := make(map[int]bool, len(ns))
	for _, n := range ns {
		m[n] = true
	}
	return m
}

func TestGaps(t *testing.T) {
	tests := []struct {
		name  string
		span  domain.Span
		have  map[int]bool
		total int
		want  []domain.Span
	}{
		{"all missing", domain.Span{Start: 1, End: 5}, set(), 0, []domain.Span{{Start: 1, End: 5}}},
		{"complete", domain.Span{Start: 1, End: 3}, set(1, 2, 3), 0, nil},
		{"holes", domain.Span{Start: 1, End: 6}, set(2, 3, 5), 0, []domain.Span{{Start: 1, End: 1}, {Start: 4, End: 4}, {Start: 6, End: 6}}},
		{"open unknown empty", domain.Span{Start: 1}, set(), 0, []domain.Span{{Start: 1}}},
		{"open unknown tail", domain.Span{Start: 1}, set(1, 2, 4), 0, []domain.Span{{Start: 3, End: 3}, {Start: 5}}},
		{"open known total", domain.Span{Start: 1}, set(1, 2), 4, []domain.Span{{Start: 3, End: 4}}},
		{"open known complete", domain.Span{Start: 1}, set(1, 2, 3), 3, nil},
		{"closed beyond total", domain.Span{Start: 2, End: 10}, set(2), 3, []domain.Span{{Start: 3, End: 3}}},
		{"start beyond total", domain.Span{Start: 8, End: 10}, set(), 5, nil},
		{"zero start", domain.Span{Start: 0, End: 2}, set(1), 0, []domain.Span{{Start: 2, End: 2}}},
		{"wide span", domain.Span{Start: 1, End: 2_000_000_000}, set(1, 3), 0, []domain.Span{{Start: 2, End: 2}, {Start: 4, End: 2_000_000_000}}},
		{"units outside span", domain.Span{Start: 3, End: 5}, set(1, 4, 9), 0, []domain.Span{{Start: 3, End: 3}, {Start: 5, End: 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gaps(tt.span, tt.have, tt.total))
		})
	}
}

func TestClampSpan(t *testing.T) {
	assert.Equal(t, domain.Span{Start: 10, End: 509}, clampSpan(domain.Span{Start: 10, End: 2_000_000_000}, MaxSpanUnits))
	assert.Equal(t, domain.Span{Start: 1, End: 5}, clampSpan(domain.Span{Start: 1, End: 5}, MaxSpanUnits))
	assert.Equal(t, domain.Span{Start: 7}, clampSpan(domain.Span{Start: 7}, MaxSpanUnits))
}
