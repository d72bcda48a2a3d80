// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/portalctl/internal/ui/components"
	"github.com/jeranaias/portalctl/internal/util"
)

// View renders the dashboard.
func (m Model) View() string {
	var body string
	switch {
	case m.warning.IsVisible():
		body = m.warning.View()
	case m.state.IsAuthenticated:
		body = m.viewAccount()
	default:
		body = m.viewLogin()
	}

	help := m.keys.loginHelp()
	if m.state.IsAuthenticated {
		help = m.keys.accountHelp()
	}

	parts := []string{m.viewHeader(), body}
	if toasts := components.RenderToastStack(m.theme, m.toasts.Toasts(), m.width); toasts != "" {
		parts = append(parts, toasts)
	}
	parts = append(parts, m.viewHelp(help))
	return m.theme.App.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) viewHeader() string {
	badge := m.theme.BadgeOff.Render("signed out")
	if m.state.IsAuthenticated {
		badge = m.theme.Badge.Render("signed in")
	}
	line := m.theme.Brand.Render("portalctl") + "  " + m.theme.Muted.Render(m.baseURL) + "  " + badge
	return m.theme.Header.Render(line)
}

func (m Model) viewLogin() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("Sign in"))
	b.WriteString("\n\n")

	labels := []string{"Email", "Password"}
	for i, in := range m.inputs {
		box := m.theme.InputBlurred
		if i == m.focus {
			box = m.theme.InputFocused
		}
		b.WriteString(m.theme.Label.Render(labels[i]))
		b.WriteString("\n")
		b.WriteString(box.Width(40).Render(in.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.state.IsLoading:
		b.WriteString(m.spinner.View() + " " + m.theme.Muted.Render("Signing in..."))
	case m.state.Error != "":
		b.WriteString(m.theme.Error(m.state.Error))
	default:
		b.WriteString(m.theme.Muted.Render("Press enter to sign in"))
	}
	return m.theme.Panel.Render(b.String())
}

func (m Model) viewAccount() string {
	var rows []string
	rows = append(rows, m.theme.Title.Render("Account"), "")

	if u := m.state.User; u != nil {
		verified := "no"
		if u.IsVerified {
			verified = "yes"
		}
		rows = append(rows,
			m.theme.Field("Name", util.FitWidth(u.DisplayName(), 40)),
			m.theme.Field("Email", util.FitWidth(u.Email, 40)),
			m.theme.Field("User ID", string(u.ID)),
			m.theme.Field("Verified", verified),
		)
		if u.LastLogin != "" {
			rows = append(rows, m.theme.Field("Last login", u.LastLogin))
		}
	}

	rows = append(rows, "", m.theme.Title.Render("Session"), "")
	if info := m.info; info != nil {
		rows = append(rows,
			m.theme.Field("Idle timeout", util.Countdown(info.TimeUntilTimeout)),
			m.theme.Field("Last activity", info.LastActivity.Local().Format("15:04:05")),
		)
		if info.HasExpiry() {
			rows = append(rows,
				m.theme.Field("Expires", info.ExpiresAt.Local().Format("2006-01-02 15:04")),
				m.theme.Field("Expires in", util.HumanDuration(info.TimeUntilExpiry)),
			)
		}
	} else {
		rows = append(rows, m.theme.Muted.Render("No session data"))
	}

	if m.state.Error != "" {
		rows = append(rows, "", m.theme.Error(m.state.Error))
	}
	return m.theme.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) viewHelp(bindings []key.Binding) string {
	items := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		items = append(items, m.theme.KeyHint.Render(h.Key)+" "+h.Desc)
	}
	return m.theme.Footer.Render(strings.Join(items, "  "))
}
