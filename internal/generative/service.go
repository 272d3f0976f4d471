// Package generative is the last-resort synthesis tier. Generated output is
// parsed into the same shapes the other tiers produce; anything that does not
// parse is dropped.
package generative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

const (
	defaultTimeout = 45 * time.Second
	retryDelay     = 500 * time.Millisecond
)

// idNamespace scopes deterministic ids of generated documents and tracks.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("lectio/generated"))

const systemPrompt = "You are a careful assistant for a catechetical study app. " +
	"Answer only with JSON that matches the response schema. " +
	"Quote sources faithfully and never invent references."

// Options bounds every model call.
type Options struct {
	Timeout time.Duration // per attempt
	Retries int           // extra attempts after a transport error, capped at 1
}

// Service implements domain.Generator over a Model.
type Service struct {
	model   Model
	timeout time.Duration
	retries int
	logger  *slog.Logger
}

// NewService wraps model with timeouts, a single retry and output validation.
func NewService(model Model, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	opts.Retries = min(max(opts.Retries, 0), 1)
	return &Service{
		model:   model,
		timeout: opts.Timeout,
		retries: opts.Retries,
		logger:  logger,
	}
}

// generate returns the raw model text, or false on transport failure.
func (s *Service) generate(ctx context.Context, op string, req Request) (string, bool) {
	req.System = systemPrompt
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if attempt > 0 {
			if !sleep(ctx, retryDelay) {
				lastErr = ctx.Err()
				break
			}
			s.logger.Debug("retrying generation", "op", op, "attempt", attempt)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		text, err := s.model.Generate(attemptCtx, req)
		cancel()
		if err == nil {
			return text, true
		}
		lastErr = err
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			break
		}
	}
	s.logger.Warn("generation failed",
		"op", op,
		"error", zerr.Wrap(lastErr, domain.ErrGenerativeUnavailable.Error()),
	)
	return "", false
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

func (s *Service) parseFailed(op string, err error, raw string) {
	s.logger.Warn("discarding unparseable generated content",
		"op", op,
		"error", zerr.Wrap(err, domain.ErrGenerativeParse.Error()),
		"bytes", len(raw),
	)
}

// GenerateVerses synthesizes the verses of span. Units outside span or without
// text are dropped.
func (s *Service) GenerateVerses(ctx context.Context, book string, chapter int, span domain.Span, locale string) []domain.Verse {
	prompt := fmt.Sprintf("Give the text of %s chapter %d, verses %s, in locale %q. "+
		"Return one object per verse with its number and text.", book, chapter, spanPrompt(span), locale)
	raw, ok := s.generate(ctx, "verses", Request{Prompt: prompt, Schema: versesSchema})
	if !ok {
		return nil
	}

	var out []numberedText
	if err := decode(raw, &out); err != nil {
		s.parseFailed("verses", err, raw)
		return nil
	}
	var verses []domain.Verse
	for _, u := range keepInSpan(out, span) {
		verses = append(verses, domain.Verse{Book: book, Chapter: chapter, Number: u.Number, Text: u.Text})
	}
	return verses
}

// GenerateParagraphs synthesizes the doctrinal paragraphs of span.
func (s *Service) GenerateParagraphs(ctx context.Context, span domain.Span, locale string) []domain.Paragraph {
	prompt := fmt.Sprintf("Give the Catechism paragraphs %s in locale %q. "+
		"Return one object per paragraph with its number, text and section heading.", spanPrompt(span), locale)
	raw, ok := s.generate(ctx, "paragraphs", Request{Prompt: prompt, Schema: paragraphsSchema})
	if !ok {
		return nil
	}

	var out []numberedText
	if err := decode(raw, &out); err != nil {
		s.parseFailed("paragraphs", err, raw)
		return nil
	}
	var paragraphs []domain.Paragraph
	for _, u := range keepInSpan(out, span) {
		paragraphs = append(paragraphs, domain.Paragraph{Number: u.Number, Text: u.Text, Section: u.Section})
	}
	return paragraphs
}

// GenerateDocuments lists the documents of a category. Ids derive from
// category and title so a regenerated list maps onto the same cache entries.
func (s *Service) GenerateDocuments(ctx context.Context, category, locale string) []domain.Document {
	prompt := fmt.Sprintf("List the principal magisterial documents of category %q in locale %q "+
		"with title, author, year and a short summary.", category, locale)
	raw, ok := s.generate(ctx, "documents", Request{Prompt: prompt, Schema: documentsSchema})
	if !ok {
		return nil
	}

	var out []documentOut
	if err := decode(raw, &out); err != nil {
		s.parseFailed("documents", err, raw)
		return nil
	}
	seen := make(map[string]bool)
	var docs []domain.Document
	for _, d := range out {
		if d.Title == "" {
			continue
		}
		id := DocumentID(category, d.Title)
		if seen[id] {
			continue
		}
		seen[id] = true
		docs = append(docs, domain.Document{
			ID:       id,
			Title:    d.Title,
			Category: category,
			Author:   d.Author,
			Year:     d.Year,
			Summary:  d.Summary,
			Body:     d.Body,
		})
	}
	return docs
}

// GenerateTrack builds a learning track about topic. A track without any step
// is treated as unparseable.
func (s *Service) GenerateTrack(ctx context.Context, topic, locale string) *domain.Track {
	prompt := fmt.Sprintf("Design a short learning track about %q in locale %q. "+
		"Group steps into modules; each step is a reading, paragraphs, document or reflection "+
		"with a precise reference.", topic, locale)
	raw, ok := s.generate(ctx, "track", Request{Prompt: prompt, Schema: trackSchema})
	if !ok {
		return nil
	}

	var out trackOut
	if err := decode(raw, &out); err != nil {
		s.parseFailed("track", err, raw)
		return nil
	}
	track := out.toTrack(TrackID(topic, locale))
	if track.Title == "" || track.StepCount() == 0 {
		s.parseFailed("track", errors.New("track has no title or steps"), raw)
		return nil
	}
	return &track
}

// DocumentID is the deterministic id of a generated document.
func DocumentID(category, title string) string {
	return "gen-" + uuid.NewSHA1(idNamespace, []byte(category+"\x00"+title)).String()
}

// TrackID is the deterministic id of a generated track.
func TrackID(topic, locale string) string {
	return "gen-" + uuid.NewSHA1(idNamespace, []byte("track\x00"+locale+"\x00"+topic)).String()
}

func spanPrompt(span domain.Span) string {
	if span.Open() {
		return fmt.Sprintf("%d to the end", span.Start)
	}
	return fmt.Sprintf("%d to %d", span.Start, span.End)
}

// Disabled is the generative tier when no model is configured.
type Disabled struct{}

func (Disabled) GenerateVerses(context.Context, string, int, domain.Span, string) []domain.Verse {
	return nil
}

func (Disabled) GenerateParagraphs(context.Context, domain.Span, string) []domain.Paragraph {
	return nil
}

func (Disabled) GenerateDocuments(context.Context, string, string) []domain.Document { return nil }

func (Disabled) GenerateTrack(context.Context, string, string) *domain.Track { return nil }
