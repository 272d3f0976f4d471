package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Content types used as the secondary index of the knowledge collection.
const (
	TypeBookList        = "book_list"
	TypeChapterList     = "chapter_list"
	TypeParagraph       = "paragraph"
	TypeDocument        = "document"
	TypeDocumentIndex   = "document_index"
	TypeTrack           = "track"
	TypeTrackIndex      = "track_index"
	TypeProgress        = "progress"
	TypeProgressPending = "progress_pending"
)

// Source tells which tier produced a resolution result.
type Source string

const (
	SourceNone       Source = "none"
	SourceCache      Source = "cache"
	SourceRemote     Source = "remote"
	SourceGenerative Source = "generative"
	SourceMixed      Source = "mixed"
)

// Merge combines the source of an already assembled result with a new tier.
func (s Source) Merge(next Source) Source {
	switch {
	case s == "" || s == SourceNone:
		return next
	case next == "" || next == SourceNone || s == next:
		return s
	default:
		return SourceMixed
	}
}

// CacheEntry is a generic knowledge unit stored by id.
type CacheEntry struct {
	ID          string          `json:"id"`
	ContentType string          `json:"content_type"`
	Title       string          `json:"title"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   int64           `json:"timestamp"` // Unix milliseconds
}

// NewCacheEntry encodes v as the payload of a new entry stamped with the current time.
func NewCacheEntry(id, contentType, title string, v any) (CacheEntry, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("encode payload for %s: %w", id, err)
	}
	return CacheEntry{
		ID:          id,
		ContentType: contentType,
		Title:       title,
		Payload:     payload,
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}

// DecodePayload unmarshals the entry payload into v.
func (e CacheEntry) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("entry %s has no payload", e.ID)
	}
	return json.Unmarshal(e.Payload, v)
}

// RangeKey addresses one unit-indexed collection, e.g. a chapter of a book.
type RangeKey struct {
	Collection string `json:"collection"` // e.g. "en/Genesis"
	Unit       int    `json:"unit"`       // e.g. chapter number
}

func (k RangeKey) String() string {
	return fmt.Sprintf("%s:%d", k.Collection, k.Unit)
}

// RangeRecord is one fine-grained unit (e.g. a verse) inside a RangeKey.
type RangeRecord struct {
	Key       RangeKey `json:"key"`
	UnitIndex int      `json:"unit_index"`
	Text      string   `json:"text"`
	Source    Source   `json:"source,omitempty"` // tier that first produced the unit
}

// Span is an inclusive range of unit indexes. End == 0 means open-ended.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Open reports whether the span runs to an unknown end.
func (s Span) Open() bool { return s.End == 0 }

// Contains reports whether n lies within the span.
func (s Span) Contains(n int) bool {
	return n >= s.Start && (s.Open() || n <= s.End)
}

// Len returns the number of units in a closed span, or -1 for an open one.
func (s Span) Len() int {
	if s.Open() {
		return -1
	}
	return s.End - s.Start + 1
}

func (s Span) String() string {
	if s.Open() {
		return fmt.Sprintf("%d-", s.Start)
	}
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// RangeCoverage is the cached subset of a requested span.
type RangeCoverage struct {
	Key     RangeKey
	Records []RangeRecord // sorted by UnitIndex
	Missing []Span
	Total   int // known unit length of Key, 0 if unknown
}

// Complete reports whether every requested unit is present.
func (c RangeCoverage) Complete() bool { return len(c.Missing) == 0 }

// ConnectivityState is the tri-state emitted by the connectivity monitor.
type ConnectivityState struct {
	IsOnline   bool `json:"is_online"`
	IsSyncing  bool `json:"is_syncing"`
	WasOffline bool `json:"was_offline"`
}

func (s ConnectivityState) String() string {
	switch {
	case !s.IsOnline:
		return "offline"
	case s.IsSyncing:
		return "syncing"
	default:
		return "online"
	}
}

// Book is one entry of the scripture canon.
type Book struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Testament string `json:"testament"`
	Position  int    `json:"position"`
	Chapters  int    `json:"chapters"`
}

// Chapter describes one chapter of a book.
type Chapter struct {
	Book   string `json:"book"`
	Number int    `json:"number"`
	Verses int    `json:"verses"` // 0 if unknown
}

// Verse is a single scripture unit.
type Verse struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Number  int    `json:"number"`
	Text    string `json:"text"`
}

// Paragraph is a numbered doctrinal paragraph.
type Paragraph struct {
	Number  int    `json:"number"`
	Text    string `json:"text"`
	Section string `json:"section,omitempty"`
}

// Document is a magisterial document.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Author   string `json:"author,omitempty"`
	Year     int    `json:"year,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Body     string `json:"body,omitempty"`
}

// Track is a curated learning track with nested modules.
type Track struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Modules     []Module `json:"modules"`
}

// Step returns the step with the given id and whether it exists.
func (t Track) Step(stepID string) (Step, bool) {
	for _, m := range t.Modules {
		for _, s := range m.Steps {
			if s.ID == stepID {
				return s, true
			}
		}
	}
	return Step{}, false
}

// StepCount returns the number of steps across all modules.
func (t Track) StepCount() int {
	n := 0
	for _, m := range t.Modules {
		n += len(m.Steps)
	}
	return n
}

// Module groups the steps of a track.
type Module struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	Steps    []Step `json:"steps"`
}

// Step is a single learning unit of a module.
type Step struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	Kind      string `json:"kind,omitempty"`      // "reading", "paragraphs", "document", "reflection"
	Reference string `json:"reference,omitempty"` // e.g. "Genesis 1:1-5" or "ccc:27-49"
	Body      string `json:"body,omitempty"`
}
