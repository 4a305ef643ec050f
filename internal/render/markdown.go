// Package render wraps the terminal Markdown renderer used for replies,
// session history, and info displays.
package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// MarkdownRender renders Markdown for the terminal. When highlighting is
// disabled, or the renderer cannot be constructed (e.g. no usable TTY
// profile), it degrades to plain passthrough.
type MarkdownRender struct {
	renderer *glamour.TermRenderer
}

// New builds a renderer wrapped to width columns. Pass highlight=false for
// plain text output.
func New(highlight bool, width int) *MarkdownRender {
	if !highlight {
		return &MarkdownRender{}
	}
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &MarkdownRender{}
	}
	return &MarkdownRender{renderer: renderer}
}

// Render returns the terminal rendering of text, or text itself when the
// renderer is in passthrough mode or fails.
func (r *MarkdownRender) Render(text string) string {
	if r.renderer == nil {
		return text
	}
	out, err := r.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
