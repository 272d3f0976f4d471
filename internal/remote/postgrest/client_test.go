package postgrest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/log"
	"github.com/mmcdole/lectio/internal/remote/postgrest"
)

type recorded struct {
	method string
	path   string
	query  map[string][]string
	header http.Header
	body   string
}

type server struct {
	mu       sync.Mutex
	requests []recorded
	status   int
	bodies   map[string]string
}

func newServer(t *testing.T) (*server, *postgrest.Client) {
	t.Helper()
	s := &server{status: http.StatusOK, bodies: make(map[string]string)}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			header: r.Header.Clone(),
			body:   string(data),
		})
		status, body := s.status, s.bodies[r.URL.Path]
		s.mu.Unlock()

		w.WriteHeader(status)
		if body == "" {
			body = "[]"
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return s, postgrest.NewClient(ts.URL+"/", "anon-key", "en", log.NullLogger())
}

func (s *server) respond(path, body string) {
	s.mu.Lock()
	s.bodies[path] = body
	s.mu.Unlock()
}

func (s *server) setStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *server) last(t *testing.T) recorded {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	s, c := newServer(t)

	_, err := c.Books(context.Background())
	require.NoError(t, err)

	req := s.last(t)
	assert.Equal(t, "/rest/v1/books", req.path)
	assert.Equal(t, "anon-key", req.header.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", req.header.Get("Authorization"))
	assert.Equal(t, []string{"eq.en"}, req.query["locale"])
	assert.Equal(t, []string{"position.asc"}, req.query["order"])
}

func TestClient_VersesFiltersBySpan(t *testing.T) {
	s, c := newServer(t)
	s.respond("/rest/v1/verses", `[
		{"book_id":"genesis","chapter":1,"verse":2,"text":"And the earth was without form"},
		{"book_id":"genesis","chapter":1,"verse":3,"text":""}
	]`)

	verses, err := c.Verses(context.Background(), "genesis", 1, domain.Span{Start: 2, End: 4})
	require.NoError(t, err)

	want := []domain.Verse{{Book: "genesis", Chapter: 1, Number: 2, Text: "And the earth was without form"}}
	if diff := cmp.Diff(want, verses); diff != "" {
		t.Errorf("verses mismatch (-want +got):\n%s", diff)
	}

	req := s.last(t)
	assert.Equal(t, []string{"eq.genesis"}, req.query["book_id"])
	assert.Equal(t, []string{"eq.1"}, req.query["chapter"])
	assert.Equal(t, []string{"gte.2", "lte.4"}, req.query["verse"])
}

func TestClient_OpenSpanHasNoUpperBound(t *testing.T) {
	s, c := newServer(t)

	_, err := c.Paragraphs(context.Background(), domain.Span{Start: 27})
	require.NoError(t, err)
	assert.Equal(t, []string{"gte.27"}, s.last(t).query["number"])
}

func TestClient_TracksEmbedAndOrder(t *testing.T) {
	s, c := newServer(t)
	s.respond("/rest/v1/tracks", `[{
		"id":"creed","title":"The Creed",
		"modules":[
			{"id":"m2","title":"Second","position":2,"steps":[]},
			{"id":"m1","title":"First","position":1,"steps":[
				{"id":"s2","title":"B","position":2},
				{"id":"s1","title":"A","position":1,"kind":"reading","reference":"Genesis 1:1-5"}
			]}
		]
	}]`)

	tracks, err := c.Tracks(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	track := tracks[0]
	require.Len(t, track.Modules, 2)
	assert.Equal(t, "m1", track.Modules[0].ID)
	assert.Equal(t, []string{"s1", "s2"}, []string{track.Modules[0].Steps[0].ID, track.Modules[0].Steps[1].ID})
	assert.Equal(t, 2, track.StepCount())
	assert.Contains(t, s.last(t).query["select"][0], "modules(")
}

func TestClient_DocumentNotFound(t *testing.T) {
	_, c := newServer(t)

	doc, err := c.Document(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestClient_DocumentFound(t *testing.T) {
	s, c := newServer(t)
	s.respond("/rest/v1/documents", `[{"id":"dei-verbum","title":"Dei Verbum","category":"constitution","year":1965}]`)

	doc, err := c.Document(context.Background(), "dei-verbum")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 1965, doc.Year)
	assert.Equal(t, []string{"eq.dei-verbum"}, s.last(t).query["id"])
}

func TestClient_ErrorStatus(t *testing.T) {
	s, c := newServer(t)
	s.setStatus(http.StatusServiceUnavailable)

	_, err := c.Books(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrRemoteStatus.Error())
}

func TestClient_MalformedBody(t *testing.T) {
	s, c := newServer(t)
	s.respond("/rest/v1/books", `{not json`)

	_, err := c.Books(context.Background())
	require.Error(t, err)
}

func TestClient_UpsertProgress(t *testing.T) {
	s, c := newServer(t)
	s.setStatus(http.StatusCreated)

	p := domain.Progress{UserID: "u1", TrackID: "creed", StepID: "s1", Completed: true, UpdatedAt: 1700000000000}
	require.NoError(t, c.UpsertProgress(context.Background(), p))

	req := s.last(t)
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/rest/v1/user_progress", req.path)
	assert.Equal(t, []string{"user_id,track_id,step_id"}, req.query["on_conflict"])
	assert.Contains(t, req.header.Get("Prefer"), "resolution=merge-duplicates")

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.body), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0]["step_id"])
	assert.Equal(t, true, rows[0]["completed"])
}
