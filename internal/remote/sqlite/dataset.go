// Package sqlite reads the authoritative dataset from a bundled SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.trai.ch/zerr"
	_ "modernc.org/sqlite"

	"github.com/mmcdole/lectio/internal/domain"
)

// Schema is the dataset layout. Open applies it with IF NOT EXISTS, so an
// existing dataset is left untouched and an empty file becomes a valid one.
const Schema = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT NOT NULL,
	locale TEXT NOT NULL DEFAULT 'en',
	name TEXT NOT NULL,
	testament TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	chapter_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (id, locale)
);

CREATE TABLE IF NOT EXISTS chapters (
	book_id TEXT NOT NULL,
	number INTEGER NOT NULL,
	verse_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (book_id, number)
);

CREATE TABLE IF NOT EXISTS verses (
	book_id TEXT NOT NULL,
	locale TEXT NOT NULL DEFAULT 'en',
	chapter INTEGER NOT NULL,
	verse INTEGER NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (book_id, locale, chapter, verse)
);

CREATE TABLE IF NOT EXISTS paragraphs (
	number INTEGER NOT NULL,
	locale TEXT NOT NULL DEFAULT 'en',
	text TEXT NOT NULL,
	section TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (number, locale)
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	locale TEXT NOT NULL DEFAULT 'en',
	title TEXT NOT NULL,
	category TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	year INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tracks (
	id TEXT PRIMARY KEY,
	locale TEXT NOT NULL DEFAULT 'en',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS modules (
	id TEXT PRIMARY KEY,
	track_id TEXT NOT NULL,
	title TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS steps (
	id TEXT PRIMARY KEY,
	module_id TEXT NOT NULL,
	title TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	kind TEXT NOT NULL DEFAULT '',
	reference TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS user_progress (
	user_id TEXT NOT NULL,
	track_id TEXT NOT NULL,
	step_id TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, track_id, step_id)
);
`

// Dataset implements remote.Backend over a SQLite file.
type Dataset struct {
	db     *sql.DB
	locale string
	logger *slog.Logger
}

// Open opens the dataset at path.
func Open(path, locale string, logger *slog.Logger) (*Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrRemoteUnavailable.Error()), "path", path)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, zerr.With(zerr.Wrap(err, "failed to init dataset schema"), "path", path)
	}
	return &Dataset{db: db, locale: locale, logger: logger}, nil
}

// DB exposes the underlying handle for seeding.
func (d *Dataset) DB() *sql.DB { return d.db }

func (d *Dataset) Close() error { return d.db.Close() }

func (d *Dataset) Name() string { return "sqlite" }

func (d *Dataset) Books(ctx context.Context) ([]domain.Book, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, testament, position, chapter_count FROM books WHERE locale = ? ORDER BY position`,
		d.locale)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Name, &b.Testament, &b.Position, &b.Chapters); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (d *Dataset) Chapters(ctx context.Context, book string) ([]domain.Chapter, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT book_id, number, verse_count FROM chapters WHERE book_id = ? ORDER BY number`, book)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	var chapters []domain.Chapter
	for rows.Next() {
		var c domain.Chapter
		if err := rows.Scan(&c.Book, &c.Number, &c.Verses); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// spanBounds turns an open span into an unbounded upper limit.
func spanBounds(span domain.Span) (int, int) {
	start, end := max(span.Start, 1), span.End
	if span.Open() {
		end = 1<<31 - 1
	}
	return start, end
}

func (d *Dataset) Verses(ctx context.Context, book string, chapter int, span domain.Span) ([]domain.Verse, error) {
	start, end := spanBounds(span)
	rows, err := d.db.QueryContext(ctx,
		`SELECT book_id, chapter, verse, text FROM verses
		 WHERE book_id = ? AND locale = ? AND chapter = ? AND verse BETWEEN ? AND ? AND text <> ''
		 ORDER BY verse`,
		book, d.locale, chapter, start, end)
	if err != nil {
		return nil, fmt.Errorf("query verses: %w", err)
	}
	defer rows.Close()

	var verses []domain.Verse
	for rows.Next() {
		var v domain.Verse
		if err := rows.Scan(&v.Book, &v.Chapter, &v.Number, &v.Text); err != nil {
			return nil, fmt.Errorf("scan verse: %w", err)
		}
		verses = append(verses, v)
	}
	return verses, rows.Err()
}

func (d *Dataset) Paragraphs(ctx context.Context, span domain.Span) ([]domain.Paragraph, error) {
	start, end := spanBounds(span)
	rows, err := d.db.QueryContext(ctx,
		`SELECT number, text, section FROM paragraphs
		 WHERE locale = ? AND number BETWEEN ? AND ? AND text <> ''
		 ORDER BY number`,
		d.locale, start, end)
	if err != nil {
		return nil, fmt.Errorf("query paragraphs: %w", err)
	}
	defer rows.Close()

	var paragraphs []domain.Paragraph
	for rows.Next() {
		var p domain.Paragraph
		if err := rows.Scan(&p.Number, &p.Text, &p.Section); err != nil {
			return nil, fmt.Errorf("scan paragraph: %w", err)
		}
		paragraphs = append(paragraphs, p)
	}
	return paragraphs, rows.Err()
}

const documentColumns = `id, title, category, author, year, summary, body`

func scanDocument(scan func(dest ...any) error) (domain.Document, error) {
	var doc domain.Document
	err := scan(&doc.ID, &doc.Title, &doc.Category, &doc.Author, &doc.Year, &doc.Summary, &doc.Body)
	return doc, err
}

func (d *Dataset) DocumentsByCategory(ctx context.Context, category string) ([]domain.Document, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE locale = ? AND category = ? ORDER BY year, title`,
		d.locale, category)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (d *Dataset) Document(ctx context.Context, id string) (*domain.Document, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return &doc, nil
}

// Tracks loads tracks, modules and steps in three queries and stitches them.
func (d *Dataset) Tracks(ctx context.Context) ([]domain.Track, error) {
	trackRows, err := d.db.QueryContext(ctx,
		`SELECT id, title, description FROM tracks WHERE locale = ? ORDER BY title`, d.locale)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	var tracks []domain.Track
	index := make(map[string]int)
	for trackRows.Next() {
		var t domain.Track
		if err := trackRows.Scan(&t.ID, &t.Title, &t.Description); err != nil {
			trackRows.Close()
			return nil, fmt.Errorf("scan track: %w", err)
		}
		index[t.ID] = len(tracks)
		tracks = append(tracks, t)
	}
	trackRows.Close()
	if len(tracks) == 0 {
		return nil, trackRows.Err()
	}

	moduleRows, err := d.db.QueryContext(ctx,
		`SELECT id, track_id, title, position FROM modules ORDER BY track_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	type modRef struct{ track, module int }
	modules := make(map[string]modRef)
	for moduleRows.Next() {
		var m domain.Module
		var trackID string
		if err := moduleRows.Scan(&m.ID, &trackID, &m.Title, &m.Position); err != nil {
			moduleRows.Close()
			return nil, fmt.Errorf("scan module: %w", err)
		}
		ti, ok := index[trackID]
		if !ok {
			continue
		}
		modules[m.ID] = modRef{track: ti, module: len(tracks[ti].Modules)}
		tracks[ti].Modules = append(tracks[ti].Modules, m)
	}
	moduleRows.Close()

	stepRows, err := d.db.QueryContext(ctx,
		`SELECT id, module_id, title, position, kind, reference, body FROM steps ORDER BY module_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var s domain.Step
		var moduleID string
		if err := stepRows.Scan(&s.ID, &moduleID, &s.Title, &s.Position, &s.Kind, &s.Reference, &s.Body); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		ref, ok := modules[moduleID]
		if !ok {
			continue
		}
		mod := &tracks[ref.track].Modules[ref.module]
		mod.Steps = append(mod.Steps, s)
	}
	return tracks, stepRows.Err()
}

// UpsertProgress writes p unless the stored row is newer.
func (d *Dataset) UpsertProgress(ctx context.Context, p domain.Progress) error {
	updated := p.UpdatedAt
	if updated == 0 {
		updated = time.Now().UnixMilli()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO user_progress (user_id, track_id, step_id, completed, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, track_id, step_id) DO UPDATE SET
		   completed = excluded.completed,
		   updated_at = excluded.updated_at
		 WHERE excluded.updated_at >= user_progress.updated_at`,
		p.UserID, p.TrackID, p.StepID, p.Completed, updated)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}
