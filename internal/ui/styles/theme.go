// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the dashboard and the CLI.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LAYOUT
	// ==========================================================================

	App    lipgloss.Style
	Header lipgloss.Style
	Brand  lipgloss.Style
	Panel  lipgloss.Style
	Footer lipgloss.Style

	// ==========================================================================
	// TEXT
	// ==========================================================================

	Title    lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Muted    lipgloss.Style
	KeyHint  lipgloss.Style
	Badge    lipgloss.Style
	BadgeOff lipgloss.Style

	// ==========================================================================
	// FORM
	// ==========================================================================

	InputFocused lipgloss.Style
	InputBlurred lipgloss.Style
	Button       lipgloss.Style
	ButtonActive lipgloss.Style

	// ==========================================================================
	// STATUS
	// ==========================================================================

	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	InfoStyle    lipgloss.Style
}

// NewTheme detects the terminal and builds the styles.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()
	return NewThemeFor(profile, termenv.HasDarkBackground())
}

// NewThemeFor builds the styles for an explicit profile. With termenv.Ascii
// every style renders plain text.
func NewThemeFor(profile termenv.Profile, isDark bool) *Theme {
	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// Plain reports whether the terminal cannot render colour.
func (t *Theme) Plain() bool {
	return t.ColorProfile == termenv.Ascii
}

func (t *Theme) initStyles() {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(t.ColorProfile)
	r.SetHasDarkBackground(t.IsDark)
	s := r.NewStyle

	t.App = s().Padding(0, 1)

	t.Header = s().
		Bold(true).
		Foreground(Cyan).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 2)

	t.Brand = s().Bold(true).Foreground(Cyan)

	t.Panel = s().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(1, 2)

	t.Footer = s().Foreground(TextMuted).Padding(0, 1)

	t.Title = s().Bold(true).Foreground(Purple)
	t.Label = s().Foreground(TextSecondary).Width(16)
	t.Value = s().Foreground(TextPrimary)
	t.Muted = s().Foreground(TextMuted).Italic(true)
	t.KeyHint = s().Foreground(Cyan).Bold(true)
	t.Badge = s().Bold(true).Foreground(Emerald)
	t.BadgeOff = s().Bold(true).Foreground(TextMuted)

	t.InputFocused = s().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.InputBlurred = s().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.Button = s().Foreground(TextSecondary).Padding(0, 2)
	t.ButtonActive = s().Bold(true).Foreground(Purple).Underline(true).Padding(0, 2)

	t.SuccessStyle = s().Foreground(SuccessHighContrast).Bold(true)
	t.ErrorStyle = s().Foreground(ErrorHighContrast).Bold(true)
	t.WarningStyle = s().Foreground(WarningHighContrast).Bold(true)
	t.InfoStyle = s().Foreground(InfoHighContrast).Bold(true)
}

// Success renders message with the success indicator.
func (t *Theme) Success(message string) string {
	return t.SuccessStyle.Render(StatusIndicators.Success + " " + message)
}

// Error renders message with the error indicator.
func (t *Theme) Error(message string) string {
	return t.ErrorStyle.Render(StatusIndicators.Error + " " + message)
}

// Warning renders message with the warning indicator.
func (t *Theme) Warning(message string) string {
	return t.WarningStyle.Render(StatusIndicators.Warning + " " + message)
}

// Info renders message with the info indicator.
func (t *Theme) Info(message string) string {
	return t.InfoStyle.Render(StatusIndicators.Info + " " + message)
}

// Field renders a label/value row.
func (t *Theme) Field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, t.Label.Render(label), t.Value.Render(value))
}
