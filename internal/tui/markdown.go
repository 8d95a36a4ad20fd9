package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown renders model output for the transcript view.
type Markdown struct {
	r *glamour.TermRenderer
}

// NewMarkdown creates a renderer styled for theme and wrapped at width.
func NewMarkdown(theme TermTheme, width int) (*Markdown, error) {
	if width <= 0 || width > 120 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme.Name),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return nil, err
	}
	return &Markdown{r: r}, nil
}

// Render returns md rendered for the terminal, or md unchanged if rendering
// fails.
func (m *Markdown) Render(md string) string {
	if m == nil || m.r == nil {
		return md
	}
	out, err := m.r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
