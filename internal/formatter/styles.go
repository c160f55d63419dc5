package formatter

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/taskmirror/internal/models"
)

// DefaultPalette styles status labels for terminal output.
var DefaultPalette = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a small stylesheet built with named [lipgloss.Style] fields.
//
// A nil *Palette renders everything unstyled.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
}

func NewPalette(t, s, e, w, m string) *Palette {
	return &Palette{
		title: newBold(t),
		ok:    newBold(s),
		err:   newBold(e),
		warn:  newStyle(w),
		muted: newStyle(m).Italic(true),
	}
}

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}

// Title renders a heading.
func (p *Palette) Title(s string) string {
	if p == nil {
		return s
	}
	return p.title.Render(s)
}

// Muted renders secondary text.
func (p *Palette) Muted(s string) string {
	if p == nil {
		return s
	}
	return p.muted.Render(s)
}

// RunStatus renders a run log status: completed in green, failed in red, started in orange.
func (p *Palette) RunStatus(s models.RunStatus) string {
	if p == nil {
		return string(s)
	}
	switch s {
	case models.RunCompleted:
		return p.ok.Render(string(s))
	case models.RunFailed:
		return p.err.Render(string(s))
	default:
		return p.warn.Render(string(s))
	}
}

// Outcome renders a mirror record outcome.
func (p *Palette) Outcome(o models.SyncOutcome) string {
	if p == nil {
		return string(o)
	}
	switch o {
	case models.OutcomeSuccess:
		return p.ok.Render(string(o))
	case models.OutcomeError:
		return p.err.Render(string(o))
	default:
		return p.warn.Render(string(o))
	}
}
