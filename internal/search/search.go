// Package search finds content in the local cache. It never touches a network
// tier, so it works the same offline.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	sfuzzy "github.com/sahilm/fuzzy"

	"github.com/mmcdole/lectio/internal/domain"
)

// titleTypes are the knowledge types searched by title when none are given.
var titleTypes = []string{domain.TypeDocument, domain.TypeTrack}

// TitleResult is a knowledge item whose title matched.
type TitleResult struct {
	ID             string
	Type           string
	Title          string
	MatchedIndexes []int // rune positions in Title, for highlighting
	Score          int   // higher is better
}

// TextResult is a unit whose text matched.
type TextResult struct {
	Ref      string // "Genesis 1:3" or "CCC 27"
	Text     string
	Distance int // lower is better
}

// Service searches cached content of one locale.
type Service struct {
	cache  domain.Cache
	locale string
	logger *slog.Logger
}

// NewService creates a new search service
func NewService(cache domain.Cache, locale string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:  cache,
		locale: locale,
		logger: logger,
	}
}

// titleSource adapts cached entries to sahilm/fuzzy's Source.
type titleSource []domain.CacheEntry

func (t titleSource) String(i int) string { return t[i].Title }
func (t titleSource) Len() int            { return len(t) }

// Titles fuzzy-matches query against the titles of cached items of the given
// content types (documents and tracks when none are given).
func (s *Service) Titles(ctx context.Context, query string, types ...string) []TitleResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if len(types) == 0 {
		types = titleTypes
	}

	var entries titleSource
	for _, ct := range types {
		for _, id := range s.cache.GetAllByType(ctx, ct) {
			if e, ok := s.cache.Get(ctx, id); ok && e.Title != "" {
				entries = append(entries, e)
			}
		}
	}
	if len(entries) == 0 {
		return nil
	}

	matches := sfuzzy.FindFrom(query, entries)
	results := make([]TitleResult, len(matches))
	for i, m := range matches {
		e := entries[m.Index]
		results[i] = TitleResult{
			ID:             e.ID,
			Type:           e.ContentType,
			Title:          e.Title,
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}

// Verses searches the text of cached verses, optionally within one book.
func (s *Service) Verses(ctx context.Context, query, book string, limit int) []TextResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	prefix := s.locale + "/"
	if book != "" {
		prefix += book + ":"
	}

	var refs, texts []string
	for _, entry := range s.cache.Collections(ctx, prefix) {
		cov := s.cache.GetRange(ctx, entry.Key, domain.Span{Start: 1})
		name := strings.TrimPrefix(entry.Key.Collection, s.locale+"/")
		for _, rec := range cov.Records {
			refs = append(refs, verseRef(name, entry.Key.Unit, rec.UnitIndex))
			texts = append(texts, rec.Text)
		}
	}
	return rank(query, refs, texts, limit)
}

// Paragraphs searches the text of cached doctrinal paragraphs.
func (s *Service) Paragraphs(ctx context.Context, query string, limit int) []TextResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	owned := "paragraph:" + s.locale + ":"

	var refs, texts []string
	for _, id := range s.cache.GetAllByType(ctx, domain.TypeParagraph) {
		if !strings.HasPrefix(id, owned) {
			continue
		}
		e, ok := s.cache.Get(ctx, id)
		if !ok {
			continue
		}
		var p domain.Paragraph
		if err := e.DecodePayload(&p); err != nil {
			s.logger.Debug("skipping undecodable paragraph", "id", id, "error", err)
			continue
		}
		refs = append(refs, "CCC "+strconv.Itoa(p.Number))
		texts = append(texts, p.Text)
	}
	return rank(query, refs, texts, limit)
}

// rank orders texts by fuzzy distance to query. Whole-word substring matches
// rank ahead of scattered character matches.
func rank(query string, refs, texts []string, limit int) []TextResult {
	ranks := fuzzy.RankFindNormalizedFold(query, texts)
	if len(ranks) == 0 {
		return nil
	}
	lowerQuery := strings.ToLower(query)
	sort.SliceStable(ranks, func(i, j int) bool {
		ci := strings.Contains(strings.ToLower(ranks[i].Target), lowerQuery)
		cj := strings.Contains(strings.ToLower(ranks[j].Target), lowerQuery)
		if ci != cj {
			return ci
		}
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].OriginalIndex < ranks[j].OriginalIndex
	})
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}

	results := make([]TextResult, len(ranks))
	for i, r := range ranks {
		results[i] = TextResult{Ref: refs[r.OriginalIndex], Text: r.Target, Distance: r.Distance}
	}
	return results
}

func verseRef(book string, chapter, verse int) string {
	return fmt.Sprintf("%s %d:%d", book, chapter, verse)
}
