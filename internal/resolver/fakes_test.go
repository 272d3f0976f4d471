package resolver_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/events"
	"github.com/mmcdole/lectio/internal/log"
	"github.com/mmcdole/lectio/internal/resolver"
	"github.com/mmcdole/lectio/internal/store"
)

// fakeConn is a switchable connectivity source. onCheck runs on every
// IsOnline call, before the answer is read.
type fakeConn struct {
	online  atomic.Bool
	checks  atomic.Int32
	onCheck func(n int32)
}

func newConn(online bool) *fakeConn {
	c := &fakeConn{}
	c.online.Store(online)
	return c
}

func (c *fakeConn) IsOnline() bool {
	n := c.checks.Add(1)
	if c.onCheck != nil {
		c.onCheck(n)
	}
	return c.online.Load()
}

func (c *fakeConn) State() domain.ConnectivityState {
	return domain.ConnectivityState{IsOnline: c.online.Load()}
}

func (c *fakeConn) Subscribe(func(domain.ConnectivityState)) func() { return func() {} }

// fakeRemote serves verses from a map and records every request.
type fakeRemote struct {
	mu         sync.Mutex
	verses     map[int]string // verse number -> text, for any book/chapter
	paragraphs map[int]string
	books      []domain.Book
	chapters   []domain.Chapter
	documents  []domain.Document
	tracks     []domain.Track
	spans      []domain.Span
	calls      map[string]int
}

func newRemote() *fakeRemote {
	return &fakeRemote{
		verses:     make(map[int]string),
		paragraphs: make(map[int]string),
		calls:      make(map[string]int),
	}
}

func (r *fakeRemote) count(op string) {
	r.mu.Lock()
	r.calls[op]++
	r.mu.Unlock()
}

func (r *fakeRemote) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *fakeRemote) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *fakeRemote) Spans() []domain.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Span(nil), r.spans...)
}

func serve(units map[int]string, span domain.Span) []int {
	var out []int
	for n := range units {
		if span.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

func (r *fakeRemote) Books(context.Context) []domain.Book {
	r.count("books")
	return r.books
}

func (r *fakeRemote) Chapters(context.Context, string) []domain.Chapter {
	r.count("chapters")
	return r.chapters
}

func (r *fakeRemote) Verses(_ context.Context, book string, chapter int, span domain.Span) []domain.Verse {
	r.count("verses")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, span)
	var out []domain.Verse
	for _, n := range serve(r.verses, span) {
		out = append(out, domain.Verse{Book: book, Chapter: chapter, Number: n, Text: r.verses[n]})
	}
	return out
}

func (r *fakeRemote) Paragraphs(_ context.Context, span domain.Span) []domain.Paragraph {
	r.count("paragraphs")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, span)
	var out []domain.Paragraph
	for _, n := range serve(r.paragraphs, span) {
		out = append(out, domain.Paragraph{Number: n, Text: r.paragraphs[n]})
	}
	return out
}

func (r *fakeRemote) DocumentsByCategory(context.Context, string) []domain.Document {
	r.count("documents_by_category")
	return r.documents
}

func (r *fakeRemote) Document(_ context.Context, id string) *domain.Document {
	r.count("document")
	for i := range r.documents {
		if r.documents[i].ID == id {
			doc := r.documents[i]
			return &doc
		}
	}
	return nil
}

func (r *fakeRemote) Tracks(context.Context) []domain.Track {
	r.count("tracks")
	return r.tracks
}

func (r *fakeRemote) UpsertProgress(context.Context, domain.Progress) bool {
	r.count("upsert_progress")
	return true
}

// fakeGenerator answers every verse or paragraph request with count units
// starting at the requested span start.
type fakeGenerator struct {
	mu        sync.Mutex
	count     int
	documents []domain.Document
	track     *domain.Track
	spans     []domain.Span
	calls     atomic.Int32
	gate      chan struct{} // when set, every call waits on it
}

func (g *fakeGenerator) wait() {
	g.calls.Add(1)
	if g.gate != nil {
		<-g.gate
	}
}

func (g *fakeGenerator) Spans() []domain.Span {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Span(nil), g.spans...)
}

func (g *fakeGenerator) units(span domain.Span) []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spans = append(g.spans, span)
	var out []int
	for n := span.Start; n < span.Start+g.count && span.Contains(n); n++ {
		out = append(out, n)
	}
	return out
}

func (g *fakeGenerator) GenerateVerses(_ context.Context, book string, chapter int, span domain.Span, _ string) []domain.Verse {
	g.wait()
	var out []domain.Verse
	for _, n := range g.units(span) {
		out = append(out, domain.Verse{Book: book, Chapter: chapter, Number: n, Text: "generated"})
	}
	return out
}

func (g *fakeGenerator) GenerateParagraphs(_ context.Context, span domain.Span, _ string) []domain.Paragraph {
	g.wait()
	var out []domain.Paragraph
	for _, n := range g.units(span) {
		out = append(out, domain.Paragraph{Number: n, Text: "generated"})
	}
	return out
}

func (g *fakeGenerator) GenerateDocuments(context.Context, string, string) []domain.Document {
	g.wait()
	return g.documents
}

func (g *fakeGenerator) GenerateTrack(context.Context, string, string) *domain.Track {
	g.wait()
	return g.track
}

// fixture wires resolvers over a real bbolt store.
type fixture struct {
	cache   *store.Store
	remote  *fakeRemote
	gen     *fakeGenerator
	conn    *fakeConn
	bus     *events.Broadcaster[events.ContentChanged]
	changes *changeLog
	deps    resolver.Deps
}

type changeLog struct {
	mu     sync.Mutex
	events []events.ContentChanged
}

func (c *changeLog) add(e events.ContentChanged) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *changeLog) All() []events.ContentChanged {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.ContentChanged(nil), c.events...)
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	return newFixtureAt(t, t.TempDir(), online)
}

func newFixtureAt(t *testing.T, dir string, online bool) *fixture {
	t.Helper()
	cache := store.New(dir, "", log.NullLogger())
	require.NoError(t, cache.Init(context.Background()))
	t.Cleanup(func() { cache.Close() })

	f := &fixture{
		cache:   cache,
		remote:  newRemote(),
		gen:     &fakeGenerator{},
		conn:    newConn(online),
		bus:     &events.Broadcaster[events.ContentChanged]{},
		changes: &changeLog{},
	}
	f.bus.Subscribe(f.changes.add)
	f.deps = resolver.Deps{
		Cache:        f.cache,
		Remote:       f.remote,
		Generator:    f.gen,
		Connectivity: f.conn,
		Events:       f.bus,
		Locale:       "en",
		Logger:       log.NullLogger(),
	}
	return f
}

func texts(n int, text string) map[int]string {
	m := make(map[int]string, n)
	for i := 1; i <= n; i++ {
		m[i] = text
	}
	return m
}

func numbers(verses []domain.Verse) []int {
	out := make([]int, len(verses))
	for i, v := range verses {
		out[i] = v.Number
	}
	return out
}
