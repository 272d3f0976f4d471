package resolver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/events"
	"github.com/mmcdole/lectio/internal/generative"
	"github.com/mmcdole/lectio/internal/generative/mocks"
	"github.com/mmcdole/lectio/internal/log"
	"github.com/mmcdole/lectio/internal/resolver"
)

func seedVerses(t *testing.T, f *fixture, key domain.RangeKey, total int, indexes ...int) {
	t.Helper()
	var recs []domain.RangeRecord
	for _, n := range indexes {
		recs = append(recs, domain.RangeRecord{UnitIndex: n, Text: "cached"})
	}
	f.cache.PutRange(context.Background(), key, recs, total)
}

func TestPassage_OfflineMakesNoUpstreamCalls(t *testing.T) {
	f := newFixture(t, false)
	f.remote.verses = texts(31, "remote")
	f.gen.count = 31
	s := resolver.NewScripture(f.deps)

	p := s.Chapter(context.Background(), "Genesis", 1)

	assert.Empty(t, p.Verses)
	assert.Equal(t, domain.SourceNone, p.Source)
	assert.Equal(t, []domain.Span{{Start: 1}}, p.Missing)
	assert.Zero(t, f.remote.Total())
	assert.Zero(t, f.gen.calls.Load())
}

func TestPassage_OfflineReturnsPartialCoverage(t *testing.T) {
	f := newFixture(t, false)
	s := resolver.NewScripture(f.deps)
	seedVerses(t, f, s.RangeKey("Genesis", 1), 0, 1, 2, 4)

	p := s.Passage(context.Background(), resolver.PassageRequest{Book: "Genesis", Chapter: 1, Span: domain.Span{Start: 1, End: 5}})

	assert.Equal(t, []int{1, 2, 4}, numbers(p.Verses))
	assert.Equal(t, []domain.Span{{Start: 3, End: 3}, {Start: 5, End: 5}}, p.Missing)
	assert.Equal(t, domain.SourceCache, p.Source)
	assert.False(t, p.Complete())
	assert.Zero(t, f.remote.Total())
}

func TestPassage_FullCoverageShortCircuits(t *testing.T) {
	f := newFixture(t, true)
	s := resolver.NewScripture(f.deps)
	seedVerses(t, f, s.RangeKey("Genesis", 1), 5, 1, 2, 3, 4, 5)

	p := s.Chapter(context.Background(), "Genesis", 1)

	assert.True(t, p.Complete())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, numbers(p.Verses))
	assert.Equal(t, domain.SourceCache, p.Source)
	assert.Zero(t, f.remote.Total())
	assert.Zero(t, f.gen.calls.Load())
	assert.Empty(t, f.changes.All())
}

func TestPassage_RequestsOnlyMissingSpans(t *testing.T) {
	f := newFixture(t, true)
	f.remote.verses = texts(10, "remote")
	s := resolver.NewScripture(f.deps)
	key := s.RangeKey("Genesis", 1)
	seedVerses(t, f, key, 0, 1, 2, 3, 5)

	p := s.Passage(context.Background(), resolver.PassageRequest{Book: "Genesis", Chapter: 1, Span: domain.Span{Start: 1, End: 7}})

	assert.True(t, p.Complete())
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, numbers(p.Verses))
	assert.Equal(t, domain.SourceMixed, p.Source)
	assert.Equal(t, []domain.Span{{Start: 4, End: 4}, {Start: 6, End: 7}}, f.remote.Spans())
	assert.Zero(t, f.gen.calls.Load())

	cov := f.cache.GetRange(context.Background(), key, domain.Span{Start: 1, End: 7})
	assert.True(t, cov.Complete())
	assert.Equal(t, []events.ContentChanged{{Domain: resolver.DomainScripture, Keys: []string{key.String()}}}, f.changes.All())
}

func TestPassage_RemoteFullChapterRecordsLength(t *testing.T) {
	f := newFixture(t, true)
	f.remote.verses = texts(31, "remote")
	s := resolver.NewScripture(f.deps)

	p := s.Chapter(context.Background(), "Genesis", 1)
	require.True(t, p.Complete())
	assert.Len(t, p.Verses, 31)
	assert.Equal(t, domain.SourceRemote, p.Source)

	entries := f.cache.Collections(context.Background(), "en/Genesis")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Complete())
	assert.Equal(t, 31, entries[0].Total)

	// A second read is served entirely from the cache.
	again := s.Chapter(context.Background(), "Genesis", 1)
	assert.Equal(t, domain.SourceCache, again.Source)
	assert.Equal(t, 1, f.remote.Calls("verses"))
}

func TestPassage_GenerativeFallbackThenOfflineReplay(t *testing.T) {
	dir := t.TempDir()
	f := newFixtureAt(t, dir, true)
	f.gen.count = 5
	s := resolver.NewScripture(f.deps)

	p := s.Chapter(context.Background(), "Genesis", 1)

	require.Len(t, p.Verses, 5)
	assert.True(t, p.Complete())
	assert.Equal(t, domain.SourceGenerative, p.Source)
	assert.Equal(t, []domain.Span{{Start: 1}}, f.remote.Spans())
	assert.Equal(t, []domain.Span{{Start: 1}}, f.gen.Spans())
	require.NoError(t, f.cache.Close())

	// Same cache directory, new process, no network.
	replay := newFixtureAt(t, dir, false)
	rs := resolver.NewScripture(replay.deps)
	again := rs.Chapter(context.Background(), "Genesis", 1)

	assert.Equal(t, numbers(p.Verses), numbers(again.Verses))
	assert.True(t, again.Complete())
	assert.Equal(t, domain.SourceCache, again.Source)
	assert.Zero(t, replay.remote.Total())
	assert.Zero(t, replay.gen.calls.Load())
}

func TestPassage_ConnectivityDropStopsBeforeGeneration(t *testing.T) {
	f := newFixture(t, true)
	f.gen.count = 10
	f.conn.onCheck = func(n int32) {
		if n >= 2 {
			f.conn.online.Store(false) // the link drops while the remote call is in flight
		}
	}
	s := resolver.NewScripture(f.deps)
	seedVerses(t, f, s.RangeKey("Genesis", 1), 0, 1, 2)

	p := s.Passage(context.Background(), resolver.PassageRequest{Book: "Genesis", Chapter: 1, Span: domain.Span{Start: 1, End: 4}})

	assert.Equal(t, []int{1, 2}, numbers(p.Verses))
	assert.Equal(t, []domain.Span{{Start: 3, End: 4}}, p.Missing)
	assert.Equal(t, 1, f.remote.Calls("verses"))
	assert.Zero(t, f.gen.calls.Load())
}

func TestPassage_ClosedSpanThenFullChapterStopsAtChapterEnd(t *testing.T) {
	f := newFixture(t, true)
	f.remote.verses = texts(3, "remote")
	f.remote.chapters = []domain.Chapter{{Book: "Obadiah", Number: 1, Verses: 3}}
	f.gen.count = 5
	s := resolver.NewScripture(f.deps)

	first := s.Passage(context.Background(), resolver.PassageRequest{Book: "Obadiah", Chapter: 1, Span: domain.Span{Start: 1, End: 3}})
	require.True(t, first.Complete())

	p := s.Chapter(context.Background(), "Obadiah", 1)

	assert.Equal(t, []int{1, 2, 3}, numbers(p.Verses))
	assert.True(t, p.Complete())
	assert.Zero(t, f.gen.calls.Load())
	assert.Empty(t, f.gen.Spans())

	entries := f.cache.Collections(context.Background(), "en/Obadiah")
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Total)
	assert.True(t, entries[0].Complete())

	again := s.Chapter(context.Background(), "Obadiah", 1)
	assert.Equal(t, domain.SourceCache, again.Source)
	assert.Equal(t, 2, f.remote.Calls("verses"))
}

func TestPassage_ChapterListBoundsUnknownLength(t *testing.T) {
	f := newFixture(t, true)
	f.remote.chapters = []domain.Chapter{{Book: "Obadiah", Number: 1, Verses: 3}}
	f.gen.count = 5
	s := resolver.NewScripture(f.deps)
	seedVerses(t, f, s.RangeKey("Obadiah", 1), 0, 1, 2, 3)

	p := s.Chapter(context.Background(), "Obadiah", 1)

	assert.Equal(t, []int{1, 2, 3}, numbers(p.Verses))
	assert.True(t, p.Complete())
	assert.Equal(t, 1, f.remote.Calls("chapters"))
	assert.Zero(t, f.gen.calls.Load())
}

func TestPassage_CachedChapterListSkipsRemote(t *testing.T) {
	f := newFixture(t, true)
	f.remote.chapters = []domain.Chapter{{Book: "Obadiah", Number: 1, Verses: 3}}
	s := resolver.NewScripture(f.deps)
	require.True(t, s.Chapters(context.Background(), "Obadiah").Found())
	seedVerses(t, f, s.RangeKey("Obadiah", 1), 0, 1, 2, 3)

	p := s.Chapter(context.Background(), "Obadiah", 1)

	assert.True(t, p.Complete())
	assert.Equal(t, domain.SourceCache, p.Source)
	assert.Zero(t, f.remote.Calls("verses"))
	assert.Zero(t, f.gen.calls.Load())
}

func TestPassage_WideSpanIsCut(t *testing.T) {
	f := newFixture(t, false)
	s := resolver.NewScripture(f.deps)

	p := s.Passage(context.Background(), resolver.PassageRequest{Book: "Genesis", Chapter: 1, Span: domain.Span{Start: 1, End: 2_000_000_000}})

	assert.Equal(t, []domain.Span{{Start: 1, End: resolver.MaxSpanUnits}}, p.Missing)
}

func TestPassage_UnparseableGenerationIsEmpty(t *testing.T) {
	f := newFixture(t, true)
	ctrl := gomock.NewController(t)
	model := mocks.NewMockModel(ctrl)
	model.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("<html>rate limited</html>", nil)
	f.deps.Generator = generative.NewService(model, generative.Options{Timeout: time.Second}, log.NullLogger())
	s := resolver.NewScripture(f.deps)

	p := s.Chapter(context.Background(), "Genesis", 1)

	assert.Empty(t, p.Verses)
	assert.Equal(t, domain.SourceNone, p.Source)
	assert.Empty(t, f.cache.Collections(context.Background(), ""))
}

func TestPassage_ConcurrentRequestsCoalesce(t *testing.T) {
	f := newFixture(t, true)
	f.gen.count = 3
	f.gen.gate = make(chan struct{})
	s := resolver.NewScripture(f.deps)

	const callers = 8
	results := make([]resolver.Passage, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Chapter(context.Background(), "Genesis", 1)
		}(i)
	}

	require.Eventually(t, func() bool { return f.gen.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond) // let the other callers join the in-flight resolution
	close(f.gen.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.gen.calls.Load())
	assert.Equal(t, 1, f.remote.Calls("verses"))
	for _, r := range results {
		assert.Equal(t, []int{1, 2, 3}, numbers(r.Verses))
	}
}

func TestPassage_CallerCancellationDoesNotAbortSharedWork(t *testing.T) {
	f := newFixture(t, true)
	f.gen.count = 2
	f.gen.gate = make(chan struct{})
	s := resolver.NewScripture(f.deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan resolver.Passage)
	go func() { done <- s.Chapter(ctx, "Genesis", 2) }()

	require.Eventually(t, func() bool { return f.gen.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	p := <-done
	assert.Empty(t, p.Verses)

	close(f.gen.gate)
	require.Eventually(t, func() bool {
		return f.cache.GetRange(context.Background(), s.RangeKey("Genesis", 2), domain.Span{Start: 1}).Complete()
	}, time.Second, 5*time.Millisecond)
}

func TestPassage_InvalidRequest(t *testing.T) {
	f := newFixture(t, true)
	s := resolver.NewScripture(f.deps)

	p := s.Passage(context.Background(), resolver.PassageRequest{Book: "Genesis", Chapter: 0})
	assert.Equal(t, domain.SourceNone, p.Source)
	p = s.Passage(context.Background(), resolver.PassageRequest{Book: "Genesis", Chapter: 1, Span: domain.Span{Start: 5, End: 2}})
	assert.Equal(t, domain.SourceNone, p.Source)
	assert.Zero(t, f.remote.Total())
}

func TestBooks_CachedAfterRemote(t *testing.T) {
	f := newFixture(t, true)
	f.remote.books = []domain.Book{{ID: "genesis", Name: "Genesis", Position: 1, Chapters: 3}}
	s := resolver.NewScripture(f.deps)

	first := s.Books(context.Background())
	require.True(t, first.Found())
	assert.Equal(t, domain.SourceRemote, first.Source)

	second := s.Books(context.Background())
	assert.Equal(t, domain.SourceCache, second.Source)
	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, 1, f.remote.Calls("books"))
	assert.Equal(t, []string{"books:en"}, f.cache.GetAllByType(context.Background(), domain.TypeBookList))
}

func TestChapters_DerivedFromCachedCanonWhenOffline(t *testing.T) {
	f := newFixture(t, true)
	f.remote.books = []domain.Book{{ID: "genesis", Name: "Genesis", Chapters: 3}}
	s := resolver.NewScripture(f.deps)
	s.Books(context.Background())

	f.conn.online.Store(false)
	chapters := s.Chapters(context.Background(), "genesis")

	require.True(t, chapters.Found())
	assert.Len(t, chapters.Value, 3)
	assert.Equal(t, 3, chapters.Value[2].Number)
	assert.Zero(t, f.remote.Calls("chapters"))
}

func TestChapters_NothingAnywhere(t *testing.T) {
	f := newFixture(t, true)
	s := resolver.NewScripture(f.deps)

	res := s.Chapters(context.Background(), "tobit")
	assert.False(t, res.Found())
	assert.Equal(t, 1, f.remote.Calls("chapters"))
}
