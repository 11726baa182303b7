package cmd

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	header lipgloss.Style
	title  lipgloss.Style
	warn   lipgloss.Style
	dim    lipgloss.Style
}

// newStyles detects the color profile of w, so output piped into pacman's
// log or a test buffer stays plain text.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header: r.NewStyle().Bold(true).Underline(true),
		title:  r.NewStyle().Bold(true),
		warn:   r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		dim:    r.NewStyle().Faint(true),
	}
}
