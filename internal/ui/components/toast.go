// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/portalctl/internal/ui/styles"
)

// =============================================================================
// TOAST TYPES
// =============================================================================

// ToastKind represents the type of toast notification.
type ToastKind int

const (
	// ToastKindStatus is an informational toast (cyan).
	ToastKindStatus ToastKind = iota
	// ToastKindError is an error toast (rose).
	ToastKindError
	// ToastKindWarning is a warning toast (amber).
	ToastKindWarning
	// ToastKindSuccess is a success toast (emerald).
	ToastKindSuccess
)

// Auto-dismiss durations. Errors stay longer so they can be read.
const (
	DefaultToastDuration = 4 * time.Second
	ErrorToastDuration   = 8 * time.Second
	WarningToastDuration = 6 * time.Second
)

// maxToasts is how many toasts are visible at once.
const maxToasts = 4

// Toast is one notification.
type Toast struct {
	ID        int
	Message   string
	Kind      ToastKind
	CreatedAt time.Time
	Duration  time.Duration
}

// expired reports whether the toast should be dismissed at now.
func (t Toast) expired(now time.Time) bool {
	return now.Sub(t.CreatedAt) >= t.Duration
}

func durationFor(kind ToastKind) time.Duration {
	switch kind {
	case ToastKindError:
		return ErrorToastDuration
	case ToastKindWarning:
		return WarningToastDuration
	default:
		return DefaultToastDuration
	}
}

// =============================================================================
// TOAST MANAGER
// =============================================================================

// ToastManager holds the visible toasts. It is a value owned by the Bubble
// Tea model, so it needs no locking.
type ToastManager struct {
	toasts []Toast
	nextID int
	now    func() time.Time
}

// NewToastManager creates an empty manager.
func NewToastManager() ToastManager {
	return ToastManager{nextID: 1, now: time.Now}
}

// WithClock returns a copy of m that reads time from now.
func (m ToastManager) WithClock(now func() time.Time) ToastManager {
	m.now = now
	return m
}

// Add pushes a toast, newest last, and returns the tick command that
// dismisses it.
func (m *ToastManager) Add(kind ToastKind, message string) tea.Cmd {
	if m.now == nil {
		m.now = time.Now
	}
	if m.nextID == 0 {
		m.nextID = 1
	}
	t := Toast{
		ID:        m.nextID,
		Message:   message,
		Kind:      kind,
		CreatedAt: m.now(),
		Duration:  durationFor(kind),
	}
	m.nextID++

	m.toasts = append(m.toasts, t)
	if len(m.toasts) > maxToasts {
		m.toasts = m.toasts[len(m.toasts)-maxToasts:]
	}
	return tea.Tick(t.Duration, func(time.Time) tea.Msg { return ToastExpireMsg{} })
}

// Prune drops expired toasts.
func (m *ToastManager) Prune() {
	now := m.now()
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if !t.expired(now) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// Dismiss removes every toast.
func (m *ToastManager) Dismiss() {
	m.toasts = nil
}

// Toasts returns a copy of the visible toasts.
func (m ToastManager) Toasts() []Toast {
	return append([]Toast(nil), m.toasts...)
}

// ToastExpireMsg asks the host to Prune.
type ToastExpireMsg struct{}

// =============================================================================
// RENDERING
// =============================================================================

// RenderToast renders one toast at most width cells wide.
func RenderToast(theme *styles.Theme, t Toast, width int) string {
	maxWidth := 48
	if width > 0 && width-4 < maxWidth {
		maxWidth = width - 4
	}
	if maxWidth < 24 {
		maxWidth = 24
	}

	var (
		border lipgloss.AdaptiveColor
		line   string
	)
	switch t.Kind {
	case ToastKindError:
		border, line = styles.Rose, theme.Error(t.Message)
	case ToastKindWarning:
		border, line = styles.Amber, theme.Warning(t.Message)
	case ToastKindSuccess:
		border, line = styles.Emerald, theme.Success(t.Message)
	default:
		border, line = styles.Cyan, theme.Info(t.Message)
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(maxWidth).
		Render(line)
}

// RenderToastStack renders the toasts right-aligned, newest at the bottom.
func RenderToastStack(theme *styles.Theme, toasts []Toast, width int) string {
	if len(toasts) == 0 {
		return ""
	}
	rendered := make([]string, 0, len(toasts))
	for _, t := range toasts {
		rendered = append(rendered, RenderToast(theme, t, width))
	}
	stack := lipgloss.JoinVertical(lipgloss.Right, rendered...)
	if width > 0 {
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, stack)
	}
	return stack
}
