package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/generative"
	"github.com/mmcdole/lectio/internal/resolver"
)

func TestParagraphs_TierChain(t *testing.T) {
	f := newFixture(t, true)
	f.remote.paragraphs = map[int]string{27: "The desire for God", 28: "In many ways"}
	f.gen.count = 10
	p := resolver.NewParagraphs(f.deps)

	r := p.Range(context.Background(), domain.Span{Start: 27, End: 30})

	require.Len(t, r.Paragraphs, 4)
	assert.Empty(t, r.Missing)
	assert.Equal(t, domain.SourceMixed, r.Source)
	assert.Equal(t, "The desire for God", r.Paragraphs[0].Text)
	assert.Equal(t, "generated", r.Paragraphs[3].Text)
	assert.Equal(t, []domain.Span{{Start: 29, End: 30}}, f.gen.Spans())

	ids := f.cache.GetAllByType(context.Background(), domain.TypeParagraph)
	assert.Len(t, ids, 4)
}

func TestParagraphs_PartialCacheQueriesOnlyGaps(t *testing.T) {
	f := newFixture(t, true)
	f.remote.paragraphs = texts(10, "remote")
	p := resolver.NewParagraphs(f.deps)
	for _, n := range []int{1, 2, 5} {
		e, err := domain.NewCacheEntry(p.EntryID(n), domain.TypeParagraph, "", domain.Paragraph{Number: n, Text: "cached"})
		require.NoError(t, err)
		f.cache.Put(context.Background(), e)
	}

	r := p.Range(context.Background(), domain.Span{Start: 1, End: 6})

	assert.Len(t, r.Paragraphs, 6)
	assert.Equal(t, []domain.Span{{Start: 3, End: 4}, {Start: 6, End: 6}}, f.remote.Spans())
	assert.Zero(t, f.gen.calls.Load())
}

func TestParagraphs_Offline(t *testing.T) {
	f := newFixture(t, false)
	f.remote.paragraphs = texts(10, "remote")
	p := resolver.NewParagraphs(f.deps)

	r := p.Range(context.Background(), domain.Span{Start: 1, End: 3})

	assert.Empty(t, r.Paragraphs)
	assert.Equal(t, []domain.Span{{Start: 1, End: 3}}, r.Missing)
	assert.Zero(t, f.remote.Total())
}

func TestParagraphs_WideSpanOffline(t *testing.T) {
	f := newFixture(t, false)
	p := resolver.NewParagraphs(f.deps)
	for _, n := range []int{3, 900} {
		e, err := domain.NewCacheEntry(p.EntryID(n), domain.TypeParagraph, "", domain.Paragraph{Number: n, Text: "cached"})
		require.NoError(t, err)
		f.cache.Put(context.Background(), e)
	}
	other, err := domain.NewCacheEntry("paragraph:la:4", domain.TypeParagraph, "", domain.Paragraph{Number: 4, Text: "latine"})
	require.NoError(t, err)
	f.cache.Put(context.Background(), other)

	r := p.Range(context.Background(), domain.Span{Start: 1, End: 2_000_000_000})

	require.Len(t, r.Paragraphs, 1)
	assert.Equal(t, 3, r.Paragraphs[0].Number)
	assert.Equal(t, []domain.Span{{Start: 1, End: 2}, {Start: 4, End: resolver.MaxSpanUnits}}, r.Missing)
	assert.Equal(t, domain.SourceCache, r.Source)
}

func TestDocuments_ByCategoryWritesIndexAndDocuments(t *testing.T) {
	f := newFixture(t, true)
	f.remote.documents = []domain.Document{
		{ID: "dei-verbum", Title: "Dei Verbum"},
		{ID: "lumen-gentium", Title: "Lumen Gentium"},
	}
	d := resolver.NewDocuments(f.deps)

	list := d.ByCategory(context.Background(), "constitution")
	require.Len(t, list.Value, 2)
	assert.Equal(t, domain.SourceRemote, list.Source)
	assert.Equal(t, "constitution", list.Value[0].Category)

	f.conn.online.Store(false)
	again := d.ByCategory(context.Background(), "constitution")
	assert.Equal(t, domain.SourceCache, again.Source)
	assert.Equal(t, "constitution", again.Value[0].Category)

	doc := d.Document(context.Background(), "lumen-gentium")
	require.NotNil(t, doc.Value)
	assert.Equal(t, domain.SourceCache, doc.Source)
	assert.Equal(t, 1, f.remote.Calls("documents_by_category"))
	assert.Zero(t, f.remote.Calls("document"))
}

func TestDocuments_GenerativeFallback(t *testing.T) {
	f := newFixture(t, true)
	f.gen.documents = []domain.Document{{ID: generative.DocumentID("encyclical", "Rerum Novarum"), Title: "Rerum Novarum"}}
	d := resolver.NewDocuments(f.deps)

	list := d.ByCategory(context.Background(), "encyclical")

	require.Len(t, list.Value, 1)
	assert.Equal(t, domain.SourceGenerative, list.Source)
	assert.Equal(t, "encyclical", list.Value[0].Category)
	assert.Equal(t, []string{"documents:en:encyclical"}, f.cache.GetAllByType(context.Background(), domain.TypeDocumentIndex))
}

func TestDocuments_DocumentHasNoGenerativeTier(t *testing.T) {
	f := newFixture(t, true)
	d := resolver.NewDocuments(f.deps)

	res := d.Document(context.Background(), "unknown")

	assert.False(t, res.Found())
	assert.Nil(t, res.Value)
	assert.Equal(t, 1, f.remote.Calls("document"))
	assert.Zero(t, f.gen.calls.Load())
}

func TestDocuments_DocumentFromRemote(t *testing.T) {
	f := newFixture(t, true)
	f.remote.documents = []domain.Document{{ID: "dei-verbum", Title: "Dei Verbum"}}
	d := resolver.NewDocuments(f.deps)

	res := d.Document(context.Background(), "dei-verbum")
	require.NotNil(t, res.Value)
	assert.Equal(t, domain.SourceRemote, res.Source)

	_, ok := f.cache.Get(context.Background(), resolver.DocumentID("dei-verbum"))
	assert.True(t, ok)
}

func creedTrack() domain.Track {
	return domain.Track{
		ID:    "creed",
		Title: "The Creed",
		Modules: []domain.Module{{
			ID: "m1", Title: "Father", Position: 1,
			Steps: []domain.Step{{ID: "s1", Title: "Creation", Position: 1, Kind: "reading", Reference: "Genesis 1:1-5"}},
		}},
	}
}

func TestTracks_ListAndTrackFromRemote(t *testing.T) {
	f := newFixture(t, true)
	f.remote.tracks = []domain.Track{creedTrack()}
	tr := resolver.NewTracks(f.deps)

	list := tr.List(context.Background())
	require.Len(t, list.Value, 1)
	assert.Equal(t, domain.SourceRemote, list.Source)

	track := tr.Track(context.Background(), resolver.TrackRequest{ID: "creed"})
	require.NotNil(t, track.Value)
	assert.Equal(t, domain.SourceCache, track.Source)
	assert.Equal(t, 1, f.remote.Calls("tracks"))
}

func TestTracks_GeneratedByTopicThenCached(t *testing.T) {
	f := newFixture(t, true)
	generated := creedTrack()
	generated.ID = generative.TrackID("prayer", "en")
	generated.Title = "Prayer"
	f.gen.track = &generated
	tr := resolver.NewTracks(f.deps)

	res := tr.Track(context.Background(), resolver.TrackRequest{Topic: "prayer"})
	require.NotNil(t, res.Value)
	assert.Equal(t, domain.SourceGenerative, res.Source)
	assert.Zero(t, f.remote.Calls("tracks"), "a topic-only request has no id to look up remotely")

	f.conn.online.Store(false)
	again := tr.Track(context.Background(), resolver.TrackRequest{Topic: "prayer"})
	require.NotNil(t, again.Value)
	assert.Equal(t, domain.SourceCache, again.Source)
	assert.Equal(t, int32(1), f.gen.calls.Load())

	list := tr.List(context.Background())
	require.Len(t, list.Value, 1, "offline listing falls back to cached tracks")
	assert.Equal(t, "Prayer", list.Value[0].Title)
}

func TestTracks_UnknownIDFallsBackToTopic(t *testing.T) {
	f := newFixture(t, true)
	f.remote.tracks = []domain.Track{creedTrack()}
	generated := creedTrack()
	generated.ID = "gen-1"
	f.gen.track = &generated
	tr := resolver.NewTracks(f.deps)

	res := tr.Track(context.Background(), resolver.TrackRequest{ID: "missing", Topic: "hope"})

	require.NotNil(t, res.Value)
	assert.Equal(t, "gen-1", res.Value.ID)
	assert.Equal(t, 1, f.remote.Calls("tracks"))
}

func TestTracks_OfflineUnknown(t *testing.T) {
	f := newFixture(t, false)
	tr := resolver.NewTracks(f.deps)

	assert.False(t, tr.Track(context.Background(), resolver.TrackRequest{ID: "creed", Topic: "creed"}).Found())
	assert.False(t, tr.List(context.Background()).Found())
	assert.Zero(t, f.remote.Total())
	assert.Zero(t, f.gen.calls.Load())
}
