// Package postgrest reads the authoritative dataset from a PostgREST
// (Supabase-compatible) endpoint.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

const trackSelect = "id,title,description,modules(id,title,position,steps(id,title,position,kind,reference,body))"

// Client implements remote.Backend over PostgREST.
type Client struct {
	baseURL    string
	apiKey     string
	locale     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for baseURL. Timeouts are applied per call by the
// caller's context, so the http.Client carries none.
func NewClient(baseURL, apiKey, locale string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		locale:     locale,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) Name() string { return "postgrest" }

// doRequest performs an authenticated request against /rest/v1/<table>.
func (c *Client) doRequest(ctx context.Context, method, table string, query url.Values, body any, prefer string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	if len(query) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, query.Encode())
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	c.logger.Debug("postgrest request", "method", method, "table", table, "query", query.Encode())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrRemoteUnavailable.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := zerr.With(domain.ErrRemoteStatus, "status", resp.StatusCode)
		return nil, zerr.With(err, "table", table)
	}
	return data, nil
}

func getJSON[T any](ctx context.Context, c *Client, table string, query url.Values) ([]T, error) {
	body, err := c.doRequest(ctx, http.MethodGet, table, query, nil, "")
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", table, err)
	}
	return rows, nil
}

func (c *Client) localeQuery() url.Values {
	q := url.Values{}
	if c.locale != "" {
		q.Set("locale", "eq."+c.locale)
	}
	return q
}

// Books returns the canon ordered by position.
func (c *Client) Books(ctx context.Context) ([]domain.Book, error) {
	q := c.localeQuery()
	q.Set("order", "position.asc")
	rows, err := getJSON[bookRow](ctx, c, "books", q)
	if err != nil {
		return nil, err
	}
	return mapBooks(rows), nil
}

// Chapters returns the chapters of book.
func (c *Client) Chapters(ctx context.Context, book string) ([]domain.Chapter, error) {
	q := url.Values{}
	q.Set("book_id", "eq."+book)
	q.Set("order", "number.asc")
	rows, err := getJSON[chapterRow](ctx, c, "chapters", q)
	if err != nil {
		return nil, err
	}
	return mapChapters(rows), nil
}

// Verses returns the verses of a chapter within span.
func (c *Client) Verses(ctx context.Context, book string, chapter int, span domain.Span) ([]domain.Verse, error) {
	q := c.localeQuery()
	q.Set("book_id", "eq."+book)
	q.Set("chapter", "eq."+strconv.Itoa(chapter))
	q.Add("verse", "gte."+strconv.Itoa(max(span.Start, 1)))
	if !span.Open() {
		q.Add("verse", "lte."+strconv.Itoa(span.End))
	}
	q.Set("order", "verse.asc")
	rows, err := getJSON[verseRow](ctx, c, "verses", q)
	if err != nil {
		return nil, err
	}
	return mapVerses(rows), nil
}

// Paragraphs returns the doctrinal paragraphs within span.
func (c *Client) Paragraphs(ctx context.Context, span domain.Span) ([]domain.Paragraph, error) {
	q := c.localeQuery()
	q.Add("number", "gte."+strconv.Itoa(max(span.Start, 1)))
	if !span.Open() {
		q.Add("number", "lte."+strconv.Itoa(span.End))
	}
	q.Set("order", "number.asc")
	rows, err := getJSON[paragraphRow](ctx, c, "paragraphs", q)
	if err != nil {
		return nil, err
	}
	return mapParagraphs(rows), nil
}

func (c *Client) DocumentsByCategory(ctx context.Context, category string) ([]domain.Document, error) {
	q := c.localeQuery()
	q.Set("category", "eq."+category)
	q.Set("order", "year.asc,title.asc")
	rows, err := getJSON[documentRow](ctx, c, "documents", q)
	if err != nil {
		return nil, err
	}
	return mapDocuments(rows), nil
}

// Document returns (nil, nil) when no document has id.
func (c *Client) Document(ctx context.Context, id string) (*domain.Document, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("limit", "1")
	rows, err := getJSON[documentRow](ctx, c, "documents", q)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	doc := mapDocument(rows[0])
	return &doc, nil
}

// Tracks returns every track with modules and steps embedded.
func (c *Client) Tracks(ctx context.Context) ([]domain.Track, error) {
	q := c.localeQuery()
	q.Set("select", trackSelect)
	q.Set("order", "title.asc")
	rows, err := getJSON[trackRow](ctx, c, "tracks", q)
	if err != nil {
		return nil, err
	}
	return mapTracks(rows), nil
}

// UpsertProgress merges p into user_progress on its natural key.
func (c *Client) UpsertProgress(ctx context.Context, p domain.Progress) error {
	q := url.Values{}
	q.Set("on_conflict", "user_id,track_id,step_id")
	_, err := c.doRequest(ctx, http.MethodPost, "user_progress", q,
		[]progressRow{progressToRow(p)}, "resolution=merge-duplicates,return=minimal")
	return err
}
