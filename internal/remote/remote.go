// Package remote is the authoritative-dataset tier. Backends report errors; the
// Client facade turns every failure into "no result" so resolvers only ever see
// hits and misses.
package remote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

const (
	defaultTimeout = 8 * time.Second
	retryDelay     = 250 * time.Millisecond
)

// Backend is a concrete dataset implementation. Not-found is (nil, nil).
type Backend interface {
	Name() string
	Books(ctx context.Context) ([]domain.Book, error)
	Chapters(ctx context.Context, book string) ([]domain.Chapter, error)
	Verses(ctx context.Context, book string, chapter int, span domain.Span) ([]domain.Verse, error)
	Paragraphs(ctx context.Context, span domain.Span) ([]domain.Paragraph, error)
	DocumentsByCategory(ctx context.Context, category string) ([]domain.Document, error)
	Document(ctx context.Context, id string) (*domain.Document, error)
	Tracks(ctx context.Context) ([]domain.Track, error)
	UpsertProgress(ctx context.Context, p domain.Progress) error
}

// Options bounds every backend call.
type Options struct {
	Timeout time.Duration // per attempt
	Retries int           // extra attempts after the first, capped at 1
}

// Client implements domain.RemoteStore over a Backend.
type Client struct {
	backend Backend
	timeout time.Duration
	retries int
	logger  *slog.Logger
}

// NewClient wraps backend with per-call timeouts and a single bounded retry.
func NewClient(backend Backend, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Retries > 1 {
		opts.Retries = 1
	}
	return &Client{
		backend: backend,
		timeout: opts.Timeout,
		retries: opts.Retries,
		logger:  logger,
	}
}

// call runs fn with a timeout, retrying once on failure. Any error becomes a
// zero value and false.
func call[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, bool) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if attempt > 0 {
			if !sleep(ctx, retryDelay) {
				lastErr = ctx.Err()
				break
			}
			c.logger.Debug("retrying remote query", "op", op, "attempt", attempt)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		v, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return v, true
		}
		lastErr = err
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			break
		}
	}

	c.logger.Warn("remote query failed",
		"op", op,
		"backend", c.backend.Name(),
		"error", zerr.Wrap(lastErr, domain.ErrRemoteUnavailable.Error()),
	)
	return zero, false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) Books(ctx context.Context) []domain.Book {
	v, _ := call(ctx, c, "books", c.backend.Books)
	return v
}

func (c *Client) Chapters(ctx context.Context, book string) []domain.Chapter {
	v, _ := call(ctx, c, "chapters", func(ctx context.Context) ([]domain.Chapter, error) {
		return c.backend.Chapters(ctx, book)
	})
	return v
}

func (c *Client) Verses(ctx context.Context, book string, chapter int, span domain.Span) []domain.Verse {
	v, _ := call(ctx, c, "verses", func(ctx context.Context) ([]domain.Verse, error) {
		return c.backend.Verses(ctx, book, chapter, span)
	})
	return v
}

func (c *Client) Paragraphs(ctx context.Context, span domain.Span) []domain.Paragraph {
	v, _ := call(ctx, c, "paragraphs", func(ctx context.Context) ([]domain.Paragraph, error) {
		return c.backend.Paragraphs(ctx, span)
	})
	return v
}

func (c *Client) DocumentsByCategory(ctx context.Context, category string) []domain.Document {
	v, _ := call(ctx, c, "documents_by_category", func(ctx context.Context) ([]domain.Document, error) {
		return c.backend.DocumentsByCategory(ctx, category)
	})
	return v
}

func (c *Client) Document(ctx context.Context, id string) *domain.Document {
	v, _ := call(ctx, c, "document", func(ctx context.Context) (*domain.Document, error) {
		return c.backend.Document(ctx, id)
	})
	return v
}

func (c *Client) Tracks(ctx context.Context) []domain.Track {
	v, _ := call(ctx, c, "tracks", c.backend.Tracks)
	return v
}

func (c *Client) UpsertProgress(ctx context.Context, p domain.Progress) bool {
	_, ok := call(ctx, c, "upsert_progress", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.backend.UpsertProgress(ctx, p)
	})
	return ok
}

// Disabled is the remote tier when no backend is configured. Every read misses.
type Disabled struct{}

func (Disabled) Books(context.Context) []domain.Book { return nil }
func (Disabled) Chapters(context.Context, string) []domain.Chapter { return nil }
func (Disabled) Verses(context.Context, string, int, domain.Span) []domain.Verse { return nil }
func (Disabled) Paragraphs(context.Context, domain.Span) []domain.Paragraph { return nil }
func (Disabled) DocumentsByCategory(context.Context, string) []domain.Document { return nil }
func (Disabled) Document(context.Context, string) *domain.Document { return nil }
func (Disabled) Tracks(context.Context) []domain.Track { return nil }
func (Disabled) UpsertProgress(context.Context, domain.Progress) bool { return false }
