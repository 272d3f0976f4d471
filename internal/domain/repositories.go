package domain

import (
	"context"
)

// RemoteStore is the authoritative dataset. Every read returns nil both when the
// backend is unconfigured and when the query fails; callers treat nil or empty as
// "advance to the next tier".
type RemoteStore interface {
	Books(ctx context.Context) []Book
	Chapters(ctx context.Context, book string) []Chapter
	// Verses returns the verses of a chapter within span (open span = to the end).
	Verses(ctx context.Context, book string, chapter int, span Span) []Verse
	Paragraphs(ctx context.Context, span Span) []Paragraph
	DocumentsByCategory(ctx context.Context, category string) []Document
	Document(ctx context.Context, id string) *Document
	// Tracks returns every track with nested modules and steps.
	Tracks(ctx context.Context) []Track
	// UpsertProgress reports whether the remote accepted the write.
	UpsertProgress(ctx context.Context, p Progress) bool
}

// Generator is the last-resort synthesis tier. Malformed output yields an empty
// result, never an error.
type Generator interface {
	GenerateVerses(ctx context.Context, book string, chapter int, span Span, locale string) []Verse
	GenerateParagraphs(ctx context.Context, span Span, locale string) []Paragraph
	GenerateDocuments(ctx context.Context, category, locale string) []Document
	GenerateTrack(ctx context.Context, topic, locale string) *Track
}

// Connectivity reports whether network tiers may be attempted.
type Connectivity interface {
	State() ConnectivityState
	IsOnline() bool
	// Subscribe registers fn for every state change. The returned func cancels it.
	Subscribe(fn func(ConnectivityState)) (cancel func())
}
