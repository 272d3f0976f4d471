package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/mmcdole/lectio/internal/domain"
)

const (
	defaultWidth = 80
	maxWidth     = 100
)

// Color palette
var (
	gold     = lipgloss.Color("#E5A00D")
	dimGray  = lipgloss.Color("#6B7280")
	green    = lipgloss.Color("#10B981")
	red      = lipgloss.Color("#EF4444")
	blue     = lipgloss.Color("#3B82F6")
	offWhite = lipgloss.Color("#F9FAFB")
)

// printer writes styled output sized to the terminal. Output that is not a
// terminal gets plain text at the default width.
type printer struct {
	w     io.Writer
	width int

	title   lipgloss.Style
	dim     lipgloss.Style
	accent  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	info    lipgloss.Style
	body    lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	width := defaultWidth
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			width = min(cols, maxWidth)
		}
	}

	r := lipgloss.NewRenderer(w)
	return &printer{
		w:       w,
		width:   width,
		title:   r.NewStyle().Foreground(offWhite).Bold(true),
		dim:     r.NewStyle().Foreground(dimGray),
		accent:  r.NewStyle().Foreground(gold),
		success: r.NewStyle().Foreground(green),
		failure: r.NewStyle().Foreground(red),
		info:    r.NewStyle().Foreground(blue),
		body:    r.NewStyle(),
	}
}

func (p *printer) line(s string) {
	fmt.Fprintln(p.w, s)
}

func (p *printer) heading(format string, args ...any) {
	p.line(p.title.Render(fmt.Sprintf(format, args...)))
}

// item prints a label followed by text wrapped under the remaining width.
func (p *printer) item(label, text string) {
	gutter := len(label) + 1
	wrapped := p.body.Width(max(p.width-gutter, 20)).Render(text)
	indent := strings.Repeat(" ", gutter)
	for i, l := range strings.Split(wrapped, "\n") {
		if i == 0 {
			p.line(p.accent.Render(label) + " " + l)
			continue
		}
		p.line(indent + l)
	}
}

func (p *printer) field(name string, value any) {
	p.line(p.dim.Render(name+":") + " " + fmt.Sprint(value))
}

func (p *printer) source(src domain.Source) {
	p.line(p.dim.Render("source: " + string(src)))
}

func (p *printer) missing(spans []domain.Span) {
	if len(spans) == 0 {
		return
	}
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = s.String()
	}
	p.line(p.failure.Render("missing: " + strings.Join(parts, ", ")))
}

// none reports an empty result. Nothing found is an outcome, not an error.
func (p *printer) none(what string) {
	p.line(p.dim.Render("no " + what + " found"))
}

func (p *printer) ok(format string, args ...any) {
	p.line(p.success.Render("✓ " + fmt.Sprintf(format, args...)))
}

func (p *printer) state(s domain.ConnectivityState) string {
	switch {
	case !s.IsOnline:
		return p.failure.Render(s.String())
	case s.IsSyncing:
		return p.info.Render(s.String())
	default:
		return p.success.Render(s.String())
	}
}
