package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/resolver"
)

func (c *CLI) newBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List the books of the canon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := c.printer(cmd)
			res := c.app.Scripture.Books(cmd.Context())
			if !res.Found() {
				p.none("books")
				return nil
			}
			for _, b := range res.Value {
				p.item(fmt.Sprintf("%3d", b.Position), fmt.Sprintf("%s (%s) %d chapters", b.Name, b.ID, b.Chapters))
			}
			p.source(res.Source)
			return nil
		},
	}
}

func (c *CLI) newChaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chapters <book>",
		Short: "List the chapters of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := c.printer(cmd)
			res := c.app.Scripture.Chapters(cmd.Context(), args[0])
			if !res.Found() {
				p.none("chapters")
				return nil
			}
			for _, ch := range res.Value {
				verses := "unknown length"
				if ch.Verses > 0 {
					verses = strconv.Itoa(ch.Verses) + " verses"
				}
				p.item(fmt.Sprintf("%3d", ch.Number), verses)
			}
			p.source(res.Source)
			return nil
		},
	}
}

func (c *CLI) newChapterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chapter <book> <chapter>",
		Short: "Show a whole chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chapter, err := positiveInt("chapter", args[1])
			if err != nil {
				return err
			}
			printPassage(c.printer(cmd), c.app.Scripture.Chapter(cmd.Context(), args[0], chapter))
			return nil
		},
	}
}

func (c *CLI) newPassageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passage <book> <chapter> <from> [to]",
		Short: "Show a verse range; without <to> the range runs to the end of the chapter",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			chapter, err := positiveInt("chapter", args[1])
			if err != nil {
				return err
			}
			span, err := parseSpan(args[2:])
			if err != nil {
				return err
			}
			req := resolver.PassageRequest{Book: args[0], Chapter: chapter, Span: span}
			printPassage(c.printer(cmd), c.app.Scripture.Passage(cmd.Context(), req))
			return nil
		},
	}
}

func printPassage(p *printer, passage resolver.Passage) {
	if len(passage.Verses) == 0 {
		p.none("verses")
		p.missing(passage.Missing)
		return
	}
	p.heading("%s %d", passage.Book, passage.Chapter)
	for _, v := range passage.Verses {
		p.item(fmt.Sprintf("%3d", v.Number), v.Text)
	}
	p.missing(passage.Missing)
	p.source(passage.Source)
}

// parseSpan reads "<from> [to]".
func parseSpan(args []string) (domain.Span, error) {
	from, err := positiveInt("start", args[0])
	if err != nil {
		return domain.Span{}, err
	}
	span := domain.Span{Start: from}
	if len(args) > 1 {
		to, err := positiveInt("end", args[1])
		if err != nil {
			return domain.Span{}, err
		}
		if to < from {
			return domain.Span{}, fmt.Errorf("invalid range %d-%d", from, to)
		}
		span.End = to
	}
	return span, nil
}
