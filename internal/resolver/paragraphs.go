package resolver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mmcdole/lectio/internal/domain"
)

// openParagraphWindow bounds an open paragraph span; the collection has no
// per-request length.
const openParagraphWindow = 50

// ParagraphRange is the assembled result of a paragraph span.
type ParagraphRange struct {
	Paragraphs []domain.Paragraph
	Missing    []domain.Span
	Source     domain.Source
}

// Paragraphs resolves numbered doctrinal paragraphs. Each paragraph is cached
// as its own entry.
type Paragraphs struct {
	*base
}

func NewParagraphs(deps Deps) *Paragraphs {
	return &Paragraphs{base: newBase(deps, "paragraphs")}
}

// EntryID is the cache id of paragraph n.
func (p *Paragraphs) EntryID(n int) string {
	return p.entryPrefix() + strconv.Itoa(n)
}

func (p *Paragraphs) entryPrefix() string { return "paragraph:" + p.deps.Locale + ":" }

// Range resolves paragraphs within span. Closed spans longer than
// MaxSpanUnits are cut.
func (p *Paragraphs) Range(ctx context.Context, span domain.Span) ParagraphRange {
	if span.Start <= 0 {
		span.Start = 1
	}
	if span.Open() {
		span.End = span.Start + openParagraphWindow - 1
	}
	if span.End < span.Start {
		return ParagraphRange{Source: domain.SourceNone}
	}
	span = clampSpan(span, MaxSpanUnits)

	res := coalesce(ctx, p.base, "paragraphs:"+p.deps.Locale+":"+span.String(), func(ctx context.Context) Result[ParagraphRange] {
		r := p.resolve(ctx, span)
		return Result[ParagraphRange]{Value: r, Source: r.Source}
	})
	if res.Value.Source == "" {
		return ParagraphRange{Missing: []domain.Span{span}, Source: domain.SourceNone}
	}
	return res.Value
}

func (p *Paragraphs) resolve(ctx context.Context, span domain.Span) ParagraphRange {
	ctx, tspan := p.tracer.Start(ctx, "paragraphs.range", attr("span", span.String()))
	defer tspan.End()

	found := make(map[int]domain.Paragraph)
	source := domain.SourceNone
	missing := func() []domain.Span {
		have := make(map[int]bool, len(found))
		for n := range found {
			have[n] = true
		}
		return gaps(span, have, 0)
	}
	result := func() ParagraphRange {
		r := ParagraphRange{Missing: missing(), Source: source}
		for _, para := range found {
			r.Paragraphs = append(r.Paragraphs, para)
		}
		sort.Slice(r.Paragraphs, func(i, j int) bool { return r.Paragraphs[i].Number < r.Paragraphs[j].Number })
		return r
	}
	merge := func(gap domain.Span, paragraphs []domain.Paragraph, src domain.Source) []string {
		var ids []string
		for _, para := range paragraphs {
			if !gap.Contains(para.Number) || para.Text == "" {
				continue
			}
			if _, ok := found[para.Number]; ok {
				continue
			}
			found[para.Number] = para
			source = source.Merge(src)
			id := p.EntryID(para.Number)
			if p.putEntry(ctx, id, domain.TypeParagraph, fmt.Sprintf("Paragraph %d", para.Number), para) {
				ids = append(ids, id)
			}
		}
		return ids
	}

	cctx, cspan := p.startTier(ctx, "cache")
	for _, n := range p.cachedNumbers(cctx, span) {
		var para domain.Paragraph
		if p.getEntry(cctx, p.EntryID(n), &para) && para.Text != "" {
			found[n] = para
			source = domain.SourceCache
		}
	}
	cspan.End()
	if len(missing()) == 0 {
		return result()
	}
	if !p.online() {
		return result()
	}

	rctx, rspan := p.startTier(ctx, "remote")
	var written []string
	for _, gap := range missing() {
		written = append(written, merge(gap, p.deps.Remote.Paragraphs(rctx, gap), domain.SourceRemote)...)
	}
	rspan.SetAttributes(attribute.Int("units", len(written)))
	rspan.End()
	p.publish(DomainParagraphs, written...)
	if len(missing()) == 0 || !p.online() {
		return result()
	}

	gctx, gspan := p.startTier(ctx, "generative")
	written = nil
	for _, gap := range missing() {
		written = append(written, merge(gap, p.deps.Generator.GenerateParagraphs(gctx, gap, p.deps.Locale), domain.SourceGenerative)...)
	}
	gspan.SetAttributes(attribute.Int("units", len(written)))
	gspan.End()
	p.publish(DomainParagraphs, written...)
	return result()
}

// cachedNumbers lists the paragraph numbers of this locale indexed in the
// cache within span.
func (p *Paragraphs) cachedNumbers(ctx context.Context, span domain.Span) []int {
	prefix := p.entryPrefix()
	var out []int
	for _, id := range p.deps.Cache.GetAllByType(ctx, domain.TypeParagraph) {
		rest, ok := strings.CutPrefix(id, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || !span.Contains(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}
