// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors rlm uses for terminal summaries, as
// lipgloss ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color

	// Run status colors.
	StatusCompleted lipgloss.Color
	StatusPartial   lipgloss.Color
	StatusError     lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),

	StatusCompleted: lipgloss.Color("114"), // green
	StatusPartial:   lipgloss.Color("220"), // amber
	StatusError:     lipgloss.Color("196"), // red
}

// StatusColor returns the color for a run status, FaintText for
// unknown values.
func (theme Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case "completed":
		return theme.StatusCompleted
	case "partial":
		return theme.StatusPartial
	case "error":
		return theme.StatusError
	default:
		return theme.FaintText
	}
}

// Styles is a Theme bound to one output. Rendering through Styles
// emits no escape sequences when the output is not a terminal.
type Styles struct {
	Header lipgloss.Style
	Faint  lipgloss.Style
	Label  lipgloss.Style

	theme    Theme
	renderer *lipgloss.Renderer
}

// NewStyles returns theme's styles for w.
func NewStyles(w io.Writer, theme Theme) *Styles {
	renderer := lipgloss.NewRenderer(w)
	return &Styles{
		Header:   renderer.NewStyle().Bold(true).Foreground(theme.HeaderForeground),
		Faint:    renderer.NewStyle().Foreground(theme.FaintText),
		Label:    renderer.NewStyle().Foreground(theme.NormalText),
		theme:    theme,
		renderer: renderer,
	}
}

// Status renders status in its color.
func (styles *Styles) Status(status string) string {
	return styles.renderer.NewStyle().Bold(true).Foreground(styles.theme.StatusColor(status)).Render(status)
}
