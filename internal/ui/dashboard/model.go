// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/auth"
	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/ui/components"
	"github.com/jeranaias/portalctl/internal/ui/styles"
)

// Form fields in focus order.
const (
	fieldEmail = iota
	fieldPassword
	fieldCount
)

// Options wires the dashboard to the application.
type Options struct {
	Context    context.Context
	Controller *auth.Controller
	Store      *session.Store
	Monitor    *session.Monitor
	Theme      *styles.Theme
	BaseURL    string

	WarningThreshold time.Duration
	WarningPoll      time.Duration
	ExtendKey        string
}

// Model is the dashboard program state.
type Model struct {
	ctx     context.Context
	ctrl    *auth.Controller
	store   *session.Store
	monitor *session.Monitor
	theme   *styles.Theme
	baseURL string
	keys    KeyMap

	state auth.State
	info  *session.Info

	inputs  []textinput.Model
	focus   int
	spinner spinner.Model
	warning components.SessionWarning
	toasts  components.ToastManager

	width  int
	height int
}

// New builds the dashboard model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}

	email := textinput.New()
	email.Placeholder = "you@agency.example"
	email.Prompt = ""
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = ""
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'
	password.CharLimit = 128

	warning := components.NewSessionWarning(opts.Store, theme)
	warning.SetWarningThreshold(opts.WarningThreshold)
	warning.SetPollInterval(opts.WarningPoll)
	warning.SetExtendKey(opts.ExtendKey)

	return Model{
		ctx:     ctx,
		ctrl:    opts.Controller,
		store:   opts.Store,
		monitor: opts.Monitor,
		theme:   theme,
		baseURL: opts.BaseURL,
		keys:    DefaultKeyMap(opts.ExtendKey),
		state:   opts.Controller.State(),
		info:    opts.Store.Info(),
		inputs:  []textinput.Model{email, password},
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.KeyHint)),
		warning: warning,
		toasts:  components.NewToastManager(),
	}
}

// Init starts the cursor blink, the session warning poll and the clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.warning.Init(), clock())
}

func clock() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg{at: t} })
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.warning.SetSize(msg.Width, msg.Height/2)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		// Deliveries may arrive out of order; the controller is the truth.
		m.applyState(m.ctrl.State())
		return m, nil

	case resultMsg:
		m.applyState(m.ctrl.State())
		cmd := m.handleResult(msg)
		return m, cmd

	case ExpiredMsg:
		m.applyState(m.ctrl.Sync())
		cmd := m.toasts.Add(components.ToastKindWarning, msg.Reason.Describe())
		return m, cmd

	case components.SessionExpiredMsg:
		// The countdown reached zero; let the monitor clear it now instead
		// of waiting for its next tick.
		if m.monitor != nil {
			m.monitor.Check()
		}
		m.applyState(m.ctrl.Sync())
		return m, nil

	case components.SessionExtendedMsg:
		m.info = m.store.Info()
		if msg.Err != nil {
			cmd := m.toasts.Add(components.ToastKindError, "Could not extend the session.")
			return m, cmd
		}
		cmd := m.toasts.Add(components.ToastKindSuccess, "Session extended.")
		return m, cmd

	case components.SessionPollMsg:
		var cmd tea.Cmd
		m.warning, cmd = m.warning.Update(msg)
		return m, cmd

	case components.ToastExpireMsg:
		m.toasts.Prune()
		return m, nil

	case clockMsg:
		m.info = m.store.Info()
		return m, clock()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if !m.state.IsAuthenticated {
		cmds = append(cmds, m.updateInputs(msg))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}

	if m.state.IsAuthenticated && m.monitor != nil {
		m.monitor.RecordActivity()
	}

	if m.warning.IsVisible() {
		var cmd tea.Cmd
		m.warning, cmd = m.warning.Update(msg)
		if cmd != nil {
			return m, cmd
		}
	}

	if key.Matches(msg, m.keys.Dismiss) {
		m.toasts.Dismiss()
		m.ctrl.ClearError()
		m.state = m.ctrl.State()
		return m, nil
	}

	if m.state.IsAuthenticated {
		return m.handleAccountKey(msg)
	}
	return m.handleLoginKey(msg)
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Next):
		cmd := m.setFocus((m.focus + 1) % fieldCount)
		return m, cmd

	case key.Matches(msg, m.keys.Prev):
		cmd := m.setFocus((m.focus + fieldCount - 1) % fieldCount)
		return m, cmd

	case key.Matches(msg, m.keys.Submit):
		if m.focus == fieldEmail && m.inputs[fieldPassword].Value() == "" {
			cmd := m.setFocus(fieldPassword)
			return m, cmd
		}
		if m.state.IsLoading {
			return m, nil
		}
		cmd := m.login()
		return m, cmd
	}

	cmd := m.updateInputs(msg)
	return m, cmd
}

func (m Model) handleAccountKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Refresh):
		return m, m.run("refresh", func(ctx context.Context) auth.Result { return m.ctrl.RefreshUser(ctx) })

	case key.Matches(msg, m.keys.Logout):
		return m, m.run("logout", func(ctx context.Context) auth.Result { return m.ctrl.Logout(ctx) })

	case key.Matches(msg, m.keys.Extend):
		var cmd tea.Cmd
		m.warning, cmd = m.warning.Extend()
		return m, cmd
	}
	return m, nil
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.focus = i
	var cmd tea.Cmd
	for j := range m.inputs {
		if j == i {
			cmd = m.inputs[j].Focus()
			continue
		}
		m.inputs[j].Blur()
	}
	return cmd
}

func (m *Model) updateInputs(msg tea.Msg) tea.Cmd {
	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return tea.Batch(cmds...)
}

// login submits the form. The password field is cleared right away.
func (m *Model) login() tea.Cmd {
	email := m.inputs[fieldEmail].Value()
	password := m.inputs[fieldPassword].Value()
	m.inputs[fieldPassword].Reset()
	m.state.IsLoading = true

	return tea.Batch(
		m.spinner.Tick,
		m.run("login", func(ctx context.Context) auth.Result { return m.ctrl.Login(ctx, email, password) }),
	)
}

// run executes op off the update loop.
func (m Model) run(op string, fn func(ctx context.Context) auth.Result) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return resultMsg{op: op, result: fn(ctx)}
	}
}

func (m *Model) handleResult(msg resultMsg) tea.Cmd {
	res := msg.result
	switch {
	case res.Stale:
		return nil
	case !res.Success:
		if res.Kind == api.KindSessionExpired {
			return m.toasts.Add(components.ToastKindWarning, res.Message)
		}
		return m.toasts.Add(components.ToastKindError, res.Message)
	}

	switch msg.op {
	case "login":
		m.inputs[fieldEmail].Reset()
		m.info = m.store.Info()
	case "logout":
		m.info = nil
	}
	return m.toasts.Add(components.ToastKindSuccess, res.Message)
}

// applyState adopts a controller state, resetting the form on sign-out.
func (m *Model) applyState(st auth.State) {
	signedOut := m.state.IsAuthenticated && !st.IsAuthenticated
	m.state = st
	m.info = m.store.Info()
	if signedOut {
		m.inputs[fieldPassword].Reset()
		m.setFocus(fieldEmail)
	}
}
