package resolver

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mmcdole/lectio/internal/domain"
)

// PassageRequest asks for a span of one chapter. An open span means the whole
// chapter from Span.Start.
type PassageRequest struct {
	Book    string
	Chapter int
	Span    domain.Span
}

// Passage is the assembled verses of a request. Missing lists what no tier
// could supply.
type Passage struct {
	Book    string
	Chapter int
	Verses  []domain.Verse
	Missing []domain.Span
	Source  domain.Source
}

// Complete reports whether every requested verse was resolved.
func (p Passage) Complete() bool { return len(p.Missing) == 0 && len(p.Verses) > 0 }

// Scripture resolves the canon, chapter lists and verse ranges.
type Scripture struct {
	*base
}

func NewScripture(deps Deps) *Scripture {
	return &Scripture{base: newBase(deps, "scripture")}
}

// RangeKey is where the verses of a chapter are cached.
func (s *Scripture) RangeKey(book string, chapter int) domain.RangeKey {
	return domain.RangeKey{Collection: s.deps.Locale + "/" + book, Unit: chapter}
}

func (s *Scripture) booksID() string { return "books:" + s.deps.Locale }

func (s *Scripture) chaptersID(book string) string {
	return fmt.Sprintf("chapters:%s:%s", s.deps.Locale, book)
}

// Books returns the canon. Catalogs have no generative tier.
func (s *Scripture) Books(ctx context.Context) Result[[]domain.Book] {
	id := s.booksID()
	return coalesce(ctx, s.base, id, func(ctx context.Context) Result[[]domain.Book] {
		ctx, span := s.tracer.Start(ctx, "scripture.books")
		defer span.End()

		var books []domain.Book
		if s.getEntry(ctx, id, &books) && len(books) > 0 {
			return Result[[]domain.Book]{Value: books, Source: domain.SourceCache}
		}
		if !s.online() {
			return Result[[]domain.Book]{Source: domain.SourceNone}
		}

		rctx, rspan := s.startTier(ctx, "remote")
		books = s.deps.Remote.Books(rctx)
		rspan.End()
		if len(books) == 0 {
			return Result[[]domain.Book]{Source: domain.SourceNone}
		}
		if s.putEntry(ctx, id, domain.TypeBookList, "Books", books) {
			s.publish(DomainScripture, id)
		}
		return Result[[]domain.Book]{Value: books, Source: domain.SourceRemote}
	})
}

// CachedBooks returns the canon from the local cache only.
func (s *Scripture) CachedBooks(ctx context.Context) []domain.Book {
	var books []domain.Book
	s.getEntry(ctx, s.booksID(), &books)
	return books
}

// Chapters returns the chapters of book. When neither tier has them but the
// cached canon knows the chapter count, numbered chapters are derived from it.
func (s *Scripture) Chapters(ctx context.Context, book string) Result[[]domain.Chapter] {
	id := s.chaptersID(book)
	return coalesce(ctx, s.base, id, func(ctx context.Context) Result[[]domain.Chapter] {
		ctx, span := s.tracer.Start(ctx, "scripture.chapters", attr("book", book))
		defer span.End()

		var chapters []domain.Chapter
		if s.getEntry(ctx, id, &chapters) && len(chapters) > 0 {
			return Result[[]domain.Chapter]{Value: chapters, Source: domain.SourceCache}
		}
		if s.online() {
			rctx, rspan := s.startTier(ctx, "remote")
			chapters = s.deps.Remote.Chapters(rctx, book)
			rspan.End()
			if len(chapters) > 0 {
				if s.putEntry(ctx, id, domain.TypeChapterList, book, chapters) {
					s.publish(DomainScripture, id)
				}
				return Result[[]domain.Chapter]{Value: chapters, Source: domain.SourceRemote}
			}
		}

		var books []domain.Book
		if s.getEntry(ctx, s.booksID(), &books) {
			for _, b := range books {
				if (b.ID == book || b.Name == book) && b.Chapters > 0 {
					for n := 1; n <= b.Chapters; n++ {
						chapters = append(chapters, domain.Chapter{Book: book, Number: n})
					}
					return Result[[]domain.Chapter]{Value: chapters, Source: domain.SourceCache}
				}
			}
		}
		return Result[[]domain.Chapter]{Source: domain.SourceNone}
	})
}

// Chapter resolves a whole chapter.
func (s *Scripture) Chapter(ctx context.Context, book string, chapter int) Passage {
	return s.Passage(ctx, PassageRequest{Book: book, Chapter: chapter, Span: domain.Span{Start: 1}})
}

// Passage resolves a verse range, requesting upstream only the sub-ranges the
// cache lacks. Closed spans longer than MaxSpanUnits are cut.
func (s *Scripture) Passage(ctx context.Context, req PassageRequest) Passage {
	if req.Span.Start <= 0 {
		req.Span.Start = 1
	}
	if req.Chapter <= 0 || req.Book == "" || (!req.Span.Open() && req.Span.End < req.Span.Start) {
		return Passage{Book: req.Book, Chapter: req.Chapter, Source: domain.SourceNone}
	}
	req.Span = clampSpan(req.Span, MaxSpanUnits)
	key := s.RangeKey(req.Book, req.Chapter)
	res := coalesce(ctx, s.base, key.String()+"/"+req.Span.String(), func(ctx context.Context) Result[Passage] {
		p := s.resolvePassage(ctx, key, req)
		return Result[Passage]{Value: p, Source: p.Source}
	})
	if !res.Found() && res.Value.Book == "" {
		return Passage{Book: req.Book, Chapter: req.Chapter, Missing: []domain.Span{req.Span}, Source: domain.SourceNone}
	}
	return res.Value
}

func (s *Scripture) resolvePassage(ctx context.Context, key domain.RangeKey, req PassageRequest) Passage {
	ctx, span := s.tracer.Start(ctx, "scripture.passage",
		attr("key", key.String()), attr("span", req.Span.String()))
	defer span.End()

	a := newAssembly(req.Span)

	cctx, cspan := s.startTier(ctx, "cache")
	cov := s.deps.Cache.GetRange(cctx, key, req.Span)
	stored := cov.Total
	a.total = cov.Total
	if a.total == 0 {
		a.total = s.cachedLength(cctx, req.Book, req.Chapter)
	}
	remoteKnown := false
	for _, rec := range cov.Records {
		a.add(rec.UnitIndex, rec.Text, domain.SourceCache)
		remoteKnown = remoteKnown || rec.Source == domain.SourceRemote
	}
	cspan.End()
	if a.complete() {
		s.writeBack(ctx, key, nil, a.total, &stored)
		return a.passage(req)
	}

	if !s.online() {
		s.logger.Debug("offline, returning cached coverage", "key", key.String(), "missing", len(a.missing()))
		return a.passage(req)
	}

	rctx, rspan := s.startTier(ctx, "remote")
	var written []domain.RangeRecord
	trailingEmpty := false
	for _, gap := range a.missing() {
		verses := s.deps.Remote.Verses(rctx, req.Book, req.Chapter, gap)
		recs := a.addVerses(gap, verses, domain.SourceRemote)
		if gap.Open() && len(recs) == 0 {
			trailingEmpty = true
		}
		written = append(written, recs...)
	}
	rspan.SetAttributes(attribute.Int("units", len(written)))
	rspan.End()

	// The remote holds this chapter, so an empty answer past the last known
	// verse is the end of the chapter.
	if a.total == 0 && trailingEmpty && (remoteKnown || len(written) > 0) {
		a.total = a.last()
	}
	s.writeBack(ctx, key, written, a.total, &stored)
	if a.complete() {
		return a.passage(req)
	}

	if a.total == 0 {
		if n := s.chapterLength(ctx, req.Book, req.Chapter); n > 0 {
			a.total = n
			s.writeBack(ctx, key, nil, a.total, &stored)
			if a.complete() {
				return a.passage(req)
			}
		}
	}

	if !s.online() {
		return a.passage(req)
	}

	gctx, gspan := s.startTier(ctx, "generative")
	written = nil
	for _, gap := range a.missing() {
		verses := s.deps.Generator.GenerateVerses(gctx, req.Book, req.Chapter, gap, s.deps.Locale)
		written = append(written, a.addVerses(gap, verses, domain.SourceGenerative)...)
	}
	gspan.SetAttributes(attribute.Int("units", len(written)))
	gspan.End()
	s.writeBack(ctx, key, written, a.total, &stored)
	return a.passage(req)
}

// cachedLength returns the verse count of a chapter from the cached chapter
// list, or 0.
func (s *Scripture) cachedLength(ctx context.Context, book string, chapter int) int {
	var chapters []domain.Chapter
	if !s.getEntry(ctx, s.chaptersID(book), &chapters) {
		return 0
	}
	return verseCount(chapters, chapter)
}

// chapterLength resolves the verse count of a chapter through the chapter list
// tiers.
func (s *Scripture) chapterLength(ctx context.Context, book string, chapter int) int {
	res := s.Chapters(ctx, book)
	if !res.Found() {
		return 0
	}
	return verseCount(res.Value, chapter)
}

func verseCount(chapters []domain.Chapter, chapter int) int {
	for _, ch := range chapters {
		if ch.Number == chapter && ch.Verses > 0 {
			return ch.Verses
		}
	}
	return 0
}

// writeBack caches records and any chapter length newer than stored.
func (s *Scripture) writeBack(ctx context.Context, key domain.RangeKey, records []domain.RangeRecord, total int, stored *int) {
	if len(records) == 0 && total <= *stored {
		return
	}
	s.deps.Cache.PutRange(ctx, key, records, total)
	*stored = max(*stored, total)
	s.publish(DomainScripture, key.String())
}

// assembly accumulates verses of one request across tiers.
type assembly struct {
	span   domain.Span
	total  int
	text   map[int]string
	source domain.Source
}

func newAssembly(span domain.Span) *assembly {
	return &assembly{span: span, text: make(map[int]string), source: domain.SourceNone}
}

func (a *assembly) add(n int, text string, src domain.Source) bool {
	if text == "" || !a.span.Contains(n) || (a.total > 0 && n > a.total) {
		return false
	}
	if _, ok := a.text[n]; ok {
		return false
	}
	a.text[n] = text
	a.source = a.source.Merge(src)
	return true
}

// addVerses merges a tier's answer for gap. An answer to an open gap runs to
// the end of the chapter, which fixes the chapter length.
func (a *assembly) addVerses(gap domain.Span, verses []domain.Verse, src domain.Source) []domain.RangeRecord {
	var records []domain.RangeRecord
	last := 0
	for _, v := range verses {
		if !gap.Contains(v.Number) {
			continue
		}
		if a.add(v.Number, v.Text, src) {
			records = append(records, domain.RangeRecord{UnitIndex: v.Number, Text: v.Text, Source: src})
		}
		last = max(last, v.Number)
	}
	if gap.Open() && last > 0 && a.total == 0 {
		a.total = last
	}
	return records
}

// last returns the highest assembled verse number.
func (a *assembly) last() int {
	n := 0
	for i := range a.text {
		n = max(n, i)
	}
	return n
}

func (a *assembly) have() map[int]bool {
	have := make(map[int]bool, len(a.text))
	for n := range a.text {
		have[n] = true
	}
	return have
}

func (a *assembly) missing() []domain.Span { return gaps(a.span, a.have(), a.total) }

func (a *assembly) complete() bool { return len(a.text) > 0 && len(a.missing()) == 0 }

func (a *assembly) passage(req PassageRequest) Passage {
	p := Passage{Book: req.Book, Chapter: req.Chapter, Missing: a.missing(), Source: a.source}
	for n, text := range a.text {
		p.Verses = append(p.Verses, domain.Verse{Book: req.Book, Chapter: req.Chapter, Number: n, Text: text})
	}
	sort.Slice(p.Verses, func(i, j int) bool { return p.Verses[i].Number < p.Verses[j].Number })
	return p
}
