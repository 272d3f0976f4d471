package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/resolver"
)

func (c *CLI) newParagraphsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paragraphs <from> [to]",
		Short: "Show numbered doctrinal paragraphs",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			span, err := parseSpan(args)
			if err != nil {
				return err
			}
			p := c.printer(cmd)
			res := c.app.Paragraphs.Range(cmd.Context(), span)
			if len(res.Paragraphs) == 0 {
				p.none("paragraphs")
				p.missing(res.Missing)
				return nil
			}
			for _, para := range res.Paragraphs {
				p.item(fmt.Sprintf("%4d", para.Number), para.Text)
			}
			p.missing(res.Missing)
			p.source(res.Source)
			return nil
		},
	}
}

func (c *CLI) newDocumentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "documents <category>",
		Short: "List documents of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := c.printer(cmd)
			res := c.app.Documents.ByCategory(cmd.Context(), args[0])
			if !res.Found() {
				p.none("documents")
				return nil
			}
			for _, d := range res.Value {
				p.item(d.ID, documentLine(d))
			}
			p.source(res.Source)
			return nil
		},
	}
}

func (c *CLI) newDocumentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "document <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := c.printer(cmd)
			res := c.app.Documents.Document(cmd.Context(), args[0])
			if !res.Found() {
				p.none("document")
				return nil
			}
			d := res.Value
			p.heading("%s", d.Title)
			p.field("category", d.Category)
			if d.Author != "" {
				p.field("author", d.Author)
			}
			if d.Year > 0 {
				p.field("year", d.Year)
			}
			if d.Summary != "" {
				p.item("summary", d.Summary)
			}
			if d.Body != "" {
				p.line("")
				p.item("", d.Body)
			}
			p.source(res.Source)
			return nil
		},
	}
}

func documentLine(d domain.Document) string {
	if d.Year > 0 {
		return fmt.Sprintf("%s (%d)", d.Title, d.Year)
	}
	return d.Title
}

func (c *CLI) newTracksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tracks",
		Short: "List learning tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := c.printer(cmd)
			res := c.app.Tracks.List(cmd.Context())
			if !res.Found() {
				p.none("tracks")
				return nil
			}
			for _, t := range res.Value {
				p.item(t.ID, fmt.Sprintf("%s (%d steps)", t.Title, t.StepCount()))
			}
			p.source(res.Source)
			return nil
		},
	}
}

func (c *CLI) newTrackCmd() *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "track [id]",
		Short: "Show a learning track; --topic generates one when none is known",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := resolver.TrackRequest{Topic: topic}
			if len(args) == 1 {
				req.ID = args[0]
			}
			if req.ID == "" && req.Topic == "" {
				return fmt.Errorf("track needs an id or --topic")
			}
			p := c.printer(cmd)
			res := c.app.Tracks.Track(cmd.Context(), req)
			if !res.Found() {
				p.none("track")
				return nil
			}
			printTrack(p, *res.Value)
			done, total := c.app.Progress.Completion(cmd.Context(), c.app.Config.UserID, *res.Value)
			p.field("progress", fmt.Sprintf("%d/%d", done, total))
			p.source(res.Source)
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to generate a track about")
	return cmd
}

func printTrack(p *printer, t domain.Track) {
	p.heading("%s", t.Title)
	if t.Description != "" {
		p.line(p.dim.Render(t.Description))
	}
	for _, m := range t.Modules {
		p.line("")
		p.line(p.info.Render(fmt.Sprintf("%d. %s", m.Position, m.Title)))
		for _, s := range m.Steps {
			text := s.Title
			if s.Reference != "" {
				text += " " + p.dim.Render("["+s.Reference+"]")
			}
			p.item(fmt.Sprintf("  %s", s.ID), text)
		}
	}
}

func (c *CLI) newProgressCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "progress <track> [step]",
		Short: "Show track progress, or mark a step complete",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := c.printer(cmd)
			user := c.app.Config.UserID
			trackID := args[0]

			if len(args) == 2 {
				rec := domain.Progress{UserID: user, TrackID: trackID, StepID: args[1], Completed: !undo}
				if c.app.Progress.Record(ctx, rec) {
					p.ok("recorded %s", args[1])
				} else {
					p.line(p.accent.Render("saved locally, will sync when online"))
				}
			}

			steps := c.app.Progress.Get(ctx, user, trackID)
			if len(steps) == 0 {
				p.none("progress")
				return nil
			}
			for _, s := range steps {
				mark := p.dim.Render("·")
				if s.Completed {
					mark = p.success.Render("✓")
				}
				p.line(mark + " " + s.StepID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Mark the step incomplete")
	return cmd
}
