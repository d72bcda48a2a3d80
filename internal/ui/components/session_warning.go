// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/ui/styles"
	"github.com/jeranaias/portalctl/internal/util"
)

const (
	// DefaultWarningThreshold is when the box appears.
	DefaultWarningThreshold = 2 * time.Minute

	// DefaultWarningPoll is the store polling cadence while hidden.
	DefaultWarningPoll = 10 * time.Second

	// countdownTick is the refresh cadence while the box is visible.
	countdownTick = time.Second
)

// SessionSource is what the warning reads and extends.
type SessionSource interface {
	Info() *session.Info
	RefreshSession() error
}

// =============================================================================
// MESSAGES
// =============================================================================

// SessionPollMsg triggers one poll of the store.
type SessionPollMsg struct {
	id int
}

// SessionExpiredMsg reports that the remaining time reached zero.
type SessionExpiredMsg struct{}

// SessionExtendedMsg reports an Extend key press. Err is set when the store
// could not be refreshed.
type SessionExtendedMsg struct {
	Err error
}

// =============================================================================
// SESSION WARNING
// =============================================================================

// SessionWarning floats a countdown when the session is about to end.
type SessionWarning struct {
	source    SessionSource
	theme     *styles.Theme
	threshold time.Duration
	poll      time.Duration
	extendKey key.Binding

	visible   bool
	remaining time.Duration
	expired   bool
	id        int

	width  int
	height int
}

// NewSessionWarning creates a hidden warning over source.
func NewSessionWarning(source SessionSource, theme *styles.Theme) SessionWarning {
	return SessionWarning{
		source:    source,
		theme:     theme,
		threshold: DefaultWarningThreshold,
		poll:      DefaultWarningPoll,
		extendKey: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "extend session")),
		id:        1,
	}
}

// SetSize sets the area the box is centred in.
func (w *SessionWarning) SetSize(width, height int) {
	w.width = width
	w.height = height
}

// SetWarningThreshold sets when the box appears.
func (w *SessionWarning) SetWarningThreshold(d time.Duration) {
	if d > 0 {
		w.threshold = d
	}
}

// SetPollInterval sets the polling cadence while hidden.
func (w *SessionWarning) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.poll = d
	}
}

// SetExtendKey rebinds the Extend key.
func (w *SessionWarning) SetExtendKey(k string) {
	if k != "" {
		w.extendKey = key.NewBinding(key.WithKeys(k), key.WithHelp(k, "extend session"))
	}
}

// ExtendKey returns the Extend binding for help rendering.
func (w SessionWarning) ExtendKey() key.Binding {
	return w.extendKey
}

// IsVisible reports whether the box is showing.
func (w SessionWarning) IsVisible() bool {
	return w.visible
}

// Remaining returns the time left at the last poll.
func (w SessionWarning) Remaining() time.Duration {
	return w.remaining
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts polling.
func (w SessionWarning) Init() tea.Cmd {
	return w.schedule(0)
}

// Update handles polls, extend presses and resizes.
func (w SessionWarning) Update(msg tea.Msg) (SessionWarning, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height

	case SessionPollMsg:
		if msg.id != w.id {
			return w, nil
		}
		return w.refresh()

	case tea.KeyMsg:
		if w.visible && !w.expired && key.Matches(msg, w.extendKey) {
			return w.Extend()
		}
	}
	return w, nil
}

// Extend refreshes the session and hides the box.
func (w SessionWarning) Extend() (SessionWarning, tea.Cmd) {
	err := w.source.RefreshSession()
	if err == nil {
		w.visible = false
	}
	// Restart the poll loop so the old one dies.
	w.id++
	extended := func() tea.Msg { return SessionExtendedMsg{Err: err} }
	return w, tea.Batch(extended, w.schedule(0))
}

func (w SessionWarning) refresh() (SessionWarning, tea.Cmd) {
	info := w.source.Info()
	if info == nil {
		w.visible = false
		w.expired = false
		w.remaining = 0
		return w, w.schedule(w.poll)
	}

	w.remaining = info.Remaining()
	if !info.IsValid {
		w.remaining = 0
	}
	w.visible = w.remaining < w.threshold

	var cmds []tea.Cmd
	if w.remaining <= 0 {
		if !w.expired {
			w.expired = true
			cmds = append(cmds, func() tea.Msg { return SessionExpiredMsg{} })
		}
	} else {
		w.expired = false
	}

	next := w.poll
	if w.visible && !w.expired {
		next = countdownTick
		if w.remaining < next {
			next = w.remaining
		}
	}
	cmds = append(cmds, w.schedule(next))
	return w, tea.Batch(cmds...)
}

func (w SessionWarning) schedule(d time.Duration) tea.Cmd {
	id := w.id
	if d <= 0 {
		return func() tea.Msg { return SessionPollMsg{id: id} }
	}
	return tea.Tick(d, func(time.Time) tea.Msg { return SessionPollMsg{id: id} })
}

// =============================================================================
// RENDERING
// =============================================================================

// View renders the box centred in the configured area, or "" when hidden.
func (w SessionWarning) View() string {
	if !w.visible {
		return ""
	}

	width, height := w.width, w.height
	if width == 0 {
		width = 60
	}
	if height == 0 {
		height = 12
	}

	maxWidth := width - 8
	if maxWidth < 36 {
		maxWidth = 36
	}
	if maxWidth > 56 {
		maxWidth = 56
	}

	accent := styles.Amber
	title := w.theme.WarningStyle.Render(styles.StatusIndicators.Warning + " Session ending soon")
	body := "Your session will end in " + w.theme.WarningStyle.Render(util.Countdown(w.remaining))
	hint := w.theme.Muted.Render("Press " + w.extendKey.Help().Key + " to stay signed in")
	if w.expired {
		accent = styles.Rose
		title = w.theme.ErrorStyle.Render(styles.StatusIndicators.Error + " Session expired")
		body = "Please sign in again."
		hint = ""
	}

	parts := []string{title, "", lipgloss.NewStyle().Width(maxWidth - 8).Align(lipgloss.Center).Render(body)}
	if hint != "" {
		parts = append(parts, "", hint)
	}
	content := lipgloss.JoinVertical(lipgloss.Center, parts...)

	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(accent).
		Padding(1, 3).
		Width(maxWidth).
		Align(lipgloss.Center).
		Render(content)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
