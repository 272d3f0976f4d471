package resolver

import (
	"sort"

	"github.com/mmcdole/lectio/internal/domain"
)

// MaxSpanUnits bounds one closed request. Longer spans are cut to their first
// MaxSpanUnits units; a chapter or a paragraph window never comes close.
const MaxSpanUnits = 500

// clampSpan limits a closed span to limit units starting at span.Start.
func clampSpan(span domain.Span, limit int) domain.Span {
	if !span.Open() && span.End-span.Start+1 > limit {
		span.End = span.Start + limit - 1
	}
	return span
}

// gaps returns the sub-spans of span whose units are not in have. A known
// total bounds the span; with an unknown total an open span keeps an open
// trailing gap after the last present unit. The cost depends on len(have),
// not on the width of span.
func gaps(span domain.Span, have map[int]bool, total int) []domain.Span {
	if span.Start <= 0 {
		span.Start = 1
	}
	end := span.End
	if total > 0 && (span.Open() || end > total) {
		end = total
	}
	if end != 0 && end < span.Start {
		return nil
	}

	present := make([]int, 0, len(have))
	for n, ok := range have {
		if ok && n >= span.Start && (end == 0 || n <= end) {
			present = append(present, n)
		}
	}
	sort.Ints(present)

	var out []domain.Span
	next := span.Start
	for _, n := range present {
		if n > next {
			out = append(out, domain.Span{Start: next, End: n - 1})
		}
		next = n + 1
	}

	switch {
	case end == 0:
		out = append(out, domain.Span{Start: next})
	case next <= end:
		out = append(out, domain.Span{Start: next, End: end})
	}
	return out
}
