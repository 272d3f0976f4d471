package postgrest

import (
	"sort"
	"time"

	"github.com/mmcdole/lectio/internal/domain"
)

func mapBooks(rows []bookRow) []domain.Book {
	books := make([]domain.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, domain.Book{
			ID:        r.ID,
			Name:      r.Name,
			Testament: r.Testament,
			Position:  r.Position,
			Chapters:  r.Chapters,
		})
	}
	return books
}

func mapChapters(rows []chapterRow) []domain.Chapter {
	chapters := make([]domain.Chapter, 0, len(rows))
	for _, r := range rows {
		chapters = append(chapters, domain.Chapter{Book: r.BookID, Number: r.Number, Verses: r.Verses})
	}
	return chapters
}

func mapVerses(rows []verseRow) []domain.Verse {
	verses := make([]domain.Verse, 0, len(rows))
	for _, r := range rows {
		if r.Text == "" {
			continue
		}
		verses = append(verses, domain.Verse{Book: r.BookID, Chapter: r.Chapter, Number: r.Verse, Text: r.Text})
	}
	return verses
}

func mapParagraphs(rows []paragraphRow) []domain.Paragraph {
	paragraphs := make([]domain.Paragraph, 0, len(rows))
	for _, r := range rows {
		if r.Text == "" {
			continue
		}
		paragraphs = append(paragraphs, domain.Paragraph{Number: r.Number, Text: r.Text, Section: r.Section})
	}
	return paragraphs
}

func mapDocument(r documentRow) domain.Document {
	return domain.Document{
		ID:       r.ID,
		Title:    r.Title,
		Category: r.Category,
		Author:   r.Author,
		Year:     r.Year,
		Summary:  r.Summary,
		Body:     r.Body,
	}
}

func mapDocuments(rows []documentRow) []domain.Document {
	docs := make([]domain.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, mapDocument(r))
	}
	return docs
}

// mapTracks orders embedded modules and steps by position; PostgREST does not
// guarantee order for embedded resources.
func mapTracks(rows []trackRow) []domain.Track {
	tracks := make([]domain.Track, 0, len(rows))
	for _, r := range rows {
		t := domain.Track{ID: r.ID, Title: r.Title, Description: r.Description}
		for _, m := range r.Modules {
			mod := domain.Module{ID: m.ID, Title: m.Title, Position: m.Position}
			for _, s := range m.Steps {
				mod.Steps = append(mod.Steps, domain.Step{
					ID:        s.ID,
					Title:     s.Title,
					Position:  s.Position,
					Kind:      s.Kind,
					Reference: s.Reference,
					Body:      s.Body,
				})
			}
			sort.SliceStable(mod.Steps, func(i, j int) bool { return mod.Steps[i].Position < mod.Steps[j].Position })
			t.Modules = append(t.Modules, mod)
		}
		sort.SliceStable(t.Modules, func(i, j int) bool { return t.Modules[i].Position < t.Modules[j].Position })
		tracks = append(tracks, t)
	}
	return tracks
}

func progressToRow(p domain.Progress) progressRow {
	updated := time.UnixMilli(p.UpdatedAt).UTC()
	if p.UpdatedAt == 0 {
		updated = time.Now().UTC()
	}
	return progressRow{
		UserID:    p.UserID,
		TrackID:   p.TrackID,
		StepID:    p.StepID,
		Completed: p.Completed,
		UpdatedAt: updated.Format(time.RFC3339Nano),
	}
}
