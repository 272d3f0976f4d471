package generative

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mmcdole/lectio/internal/domain"
)

type numberedText struct {
	Number  int    `json:"number"`
	Text    string `json:"text"`
	Section string `json:"section"`
}

type documentOut struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Year    int    `json:"year"`
	Summary string `json:"summary"`
	Body    string `json:"body"`
}

type trackOut struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Modules     []struct {
		Title string `json:"title"`
		Steps []struct {
			Title     string `json:"title"`
			Kind      string `json:"kind"`
			Reference string `json:"reference"`
			Body      string `json:"body"`
		} `json:"steps"`
	} `json:"modules"`
}

// toTrack assigns ids and positions from the generated order. Steps without
// a title and modules left without steps are dropped.
func (t trackOut) toTrack(id string) domain.Track {
	track := domain.Track{ID: id, Title: strings.TrimSpace(t.Title), Description: t.Description}
	for _, m := range t.Modules {
		mod := domain.Module{
			ID:       fmt.Sprintf("%s/m%d", id, len(track.Modules)+1),
			Title:    m.Title,
			Position: len(track.Modules) + 1,
		}
		for _, st := range m.Steps {
			if strings.TrimSpace(st.Title) == "" {
				continue
			}
			pos := len(mod.Steps) + 1
			mod.Steps = append(mod.Steps, domain.Step{
				ID:        fmt.Sprintf("%s/s%d", mod.ID, pos),
				Title:     st.Title,
				Position:  pos,
				Kind:      st.Kind,
				Reference: st.Reference,
				Body:      st.Body,
			})
		}
		if len(mod.Steps) > 0 {
			track.Modules = append(track.Modules, mod)
		}
	}
	return track
}

var errNoJSON = errors.New("no JSON value in response")

// decode unmarshals the JSON value in raw, tolerating markdown code fences
// and prose around it.
func decode(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return errNoJSON
	}
	closer := byte(']')
	if text[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return errNoJSON
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

// keepInSpan drops units outside span, units without text and duplicates,
// and sorts the rest by number.
func keepInSpan(units []numberedText, span domain.Span) []numberedText {
	seen := make(map[int]bool)
	var out []numberedText
	for _, u := range units {
		u.Text = strings.TrimSpace(u.Text)
		if u.Number <= 0 || u.Text == "" || !span.Contains(u.Number) || seen[u.Number] {
			continue
		}
		seen[u.Number] = true
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
