package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmcdole/lectio/internal/domain"
)

func (c *CLI) newPrefetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefetch <book>",
		Short: "Download every chapter of a book for offline reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := c.printer(cmd)
			errOut := cmd.ErrOrStderr()
			report, err := c.app.Offline.Prefetch(cmd.Context(), args[0], func(done, total int) {
				fmt.Fprintf(errOut, "\r%d/%d chapters", done, total)
			})
			if report.Chapters > 0 {
				fmt.Fprintln(errOut)
			}
			if err != nil {
				return err
			}
			p.ok("%s: %d of %d chapters complete", report.Book, report.Complete, report.Chapters)
			if len(report.Incomplete) > 0 {
				parts := make([]string, len(report.Incomplete))
				for i, n := range report.Incomplete {
					parts[i] = fmt.Sprint(n)
				}
				p.line(p.failure.Render("incomplete chapters: " + strings.Join(parts, ", ")))
			}
			return nil
		},
	}
}

func (c *CLI) newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report what is available offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := c.printer(cmd)
			report := c.app.Offline.Audit(cmd.Context())
			if len(report.Books) == 0 && len(report.ContentTypes) == 0 {
				p.none("cached content")
				return nil
			}

			if len(report.Books) > 0 {
				p.heading("Scripture")
				for _, b := range report.Books {
					known := "?"
					if b.Chapters > 0 {
						known = fmt.Sprint(b.Chapters)
					}
					line := fmt.Sprintf("%d/%s complete, %d started", b.Complete, known, b.Cached)
					if b.FullyCached() {
						line = p.success.Render(line)
					}
					p.item(b.Book, line)
				}
			}

			if len(report.ContentTypes) > 0 {
				p.heading("Knowledge items")
				types := make([]string, 0, len(report.ContentTypes))
				for ct := range report.ContentTypes {
					types = append(types, ct)
				}
				sort.Strings(types)
				for _, ct := range types {
					p.item(ct, fmt.Sprint(report.ContentTypes[ct]))
				}
			}
			return nil
		},
	}
}

func (c *CLI) newSearchCmd() *cobra.Command {
	var (
		book  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search cached titles, verses and paragraphs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := c.printer(cmd)
			query := strings.Join(args, " ")
			found := false

			if titles := c.app.Search.Titles(ctx, query); len(titles) > 0 {
				found = true
				p.heading("Titles")
				for i, t := range titles {
					if limit > 0 && i >= limit {
						break
					}
					p.item(t.Type, highlight(p, t.Title, t.MatchedIndexes)+" "+p.dim.Render(t.ID))
				}
			}
			if verses := c.app.Search.Verses(ctx, query, book, limit); len(verses) > 0 {
				found = true
				p.heading("Verses")
				for _, v := range verses {
					p.item(v.Ref, v.Text)
				}
			}
			if paras := c.app.Search.Paragraphs(ctx, query, limit); len(paras) > 0 {
				found = true
				p.heading("Paragraphs")
				for _, r := range paras {
					p.item(r.Ref, r.Text)
				}
			}
			if !found {
				p.none("matches")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&book, "book", "b", "", "Only search verses of this book")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results per section")
	return cmd
}

// highlight accents the matched rune positions of s.
func highlight(p *printer, s string, matched []int) string {
	if len(matched) == 0 {
		return s
	}
	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}
	var b strings.Builder
	for i, r := range []rune(s) {
		if hit[i] {
			b.WriteString(p.accent.Render(string(r)))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *CLI) newPurgeCmd() *cobra.Command {
	var filter domain.PurgeFilter
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if filter.Empty() {
				return fmt.Errorf("purge needs --type, --collection or --all")
			}
			removed := c.app.Offline.Purge(cmd.Context(), filter)
			c.printer(cmd).ok("removed %d records", removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.ContentType, "type", "", "Content type to remove, e.g. document or track")
	cmd.Flags().StringVar(&filter.CollectionPrefix, "collection", "", "Scripture collection prefix, e.g. Genesis")
	cmd.Flags().BoolVar(&filter.All, "all", false, "Remove everything")
	return cmd
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and tier availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := c.printer(cmd)
			s := c.app.Status(cmd.Context())
			p.field("connectivity", p.state(s.Connectivity))
			p.field("local store", availability(p, s.StoreAvailable))
			p.field("schema version", s.SchemaVersion)
			p.field("remote", availability(p, s.Remote))
			p.field("generative", availability(p, s.Generative))
			p.field("pending writes", s.PendingWrites)
			p.field("locale", c.app.Config.Locale)
			return nil
		},
	}
}

func availability(p *printer, ok bool) string {
	if ok {
		return p.success.Render("available")
	}
	return p.dim.Render("unavailable")
}
