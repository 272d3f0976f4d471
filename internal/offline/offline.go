// Package offline prepares and inspects the local cache for use without a
// network: bulk prefetch, completeness audit and purge.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/resolver"
)

const defaultConcurrency = 4

// contentTypes are the knowledge types the audit counts.
var contentTypes = []string{
	domain.TypeBookList,
	domain.TypeChapterList,
	domain.TypeParagraph,
	domain.TypeDocument,
	domain.TypeDocumentIndex,
	domain.TypeTrack,
	domain.TypeTrackIndex,
	domain.TypeProgress,
	domain.TypeProgressPending,
}

// Tools operates on the cache of one locale.
type Tools struct {
	scripture   *resolver.Scripture
	cache       domain.Cache
	locale      string
	concurrency int
	logger      *slog.Logger
}

// New creates offline tooling. concurrency bounds parallel chapter
// resolutions during prefetch; 0 uses the default.
func New(scripture *resolver.Scripture, cache domain.Cache, locale string, concurrency int, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Tools{
		scripture:   scripture,
		cache:       cache,
		locale:      locale,
		concurrency: concurrency,
		logger:      logger.With("component", "offline"),
	}
}

// PrefetchReport summarizes a prefetch run.
type PrefetchReport struct {
	Book       string
	Chapters   int
	Complete   int
	Incomplete []int // chapter numbers some tier could not fill
}

// Prefetch resolves every chapter of book through the tier chain so it is
// readable offline afterwards.
func (t *Tools) Prefetch(ctx context.Context, book string, progress domain.ProgressFunc) (PrefetchReport, error) {
	report := PrefetchReport{Book: book}
	chapters := t.scripture.Chapters(ctx, book)
	if len(chapters.Value) == 0 {
		return report, fmt.Errorf("no chapters known for %s", book)
	}
	report.Chapters = len(chapters.Value)

	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for _, ch := range chapters.Value {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := t.scripture.Chapter(gctx, book, ch.Number)

			mu.Lock()
			defer mu.Unlock()
			done++
			if p.Complete() {
				report.Complete++
			} else {
				report.Incomplete = append(report.Incomplete, ch.Number)
			}
			if progress != nil {
				progress(done, report.Chapters)
			}
			return nil
		})
	}
	err := g.Wait()
	sort.Ints(report.Incomplete)

	t.logger.Info("prefetch finished",
		"book", book,
		"chapters", report.Chapters,
		"complete", report.Complete,
		"incomplete", len(report.Incomplete),
	)
	return report, err
}

// BookAudit is the cached state of one book.
type BookAudit struct {
	Book     string
	Chapters int // known chapter count, 0 if unknown
	Cached   int // chapters with at least one cached verse
	Complete int // chapters with every verse cached
}

// FullyCached reports whether every known chapter is complete.
func (b BookAudit) FullyCached() bool { return b.Chapters > 0 && b.Complete >= b.Chapters }

// AuditReport is the completeness of the local cache.
type AuditReport struct {
	Books        []BookAudit
	ContentTypes map[string]int
}

// Audit inspects the cache without touching any network tier.
func (t *Tools) Audit(ctx context.Context) AuditReport {
	report := AuditReport{ContentTypes: make(map[string]int)}
	for _, ct := range contentTypes {
		if n := len(t.cache.GetAllByType(ctx, ct)); n > 0 {
			report.ContentTypes[ct] = n
		}
	}

	byBook := make(map[string]*BookAudit)
	prefix := t.locale + "/"
	for _, entry := range t.cache.Collections(ctx, prefix) {
		book := strings.TrimPrefix(entry.Key.Collection, prefix)
		a, ok := byBook[book]
		if !ok {
			a = &BookAudit{Book: book}
			byBook[book] = a
		}
		if entry.Present > 0 {
			a.Cached++
		}
		if entry.Complete() {
			a.Complete++
		}
	}
	for _, b := range t.scripture.CachedBooks(ctx) {
		for _, name := range []string{b.ID, b.Name} {
			if a, ok := byBook[name]; ok {
				a.Chapters = b.Chapters
			}
		}
	}

	for _, a := range byBook {
		report.Books = append(report.Books, *a)
	}
	sort.Slice(report.Books, func(i, j int) bool { return report.Books[i].Book < report.Books[j].Book })
	return report
}

// Purge removes cached content matching filter.
func (t *Tools) Purge(ctx context.Context, filter domain.PurgeFilter) int {
	if filter.CollectionPrefix != "" && !strings.Contains(filter.CollectionPrefix, "/") {
		filter.CollectionPrefix = t.locale + "/" + filter.CollectionPrefix
	}
	return t.cache.Purge(ctx, filter)
}
