// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/auth"
	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/storage"
	"github.com/jeranaias/portalctl/internal/ui/components"
	"github.com/jeranaias/portalctl/internal/ui/styles"
)

// stubAPI accepts one password and fails everything else.
type stubAPI struct {
	password string
	logouts  int
}

func (s *stubAPI) Login(_ context.Context, email, password string) (*api.AuthResponse, error) {
	if password != s.password {
		return nil, &api.Error{Kind: api.KindValidation, Status: 400, Message: "Invalid credentials"}
	}
	return &api.AuthResponse{Token: "tok1", User: &session.User{ID: "1", Email: email, FirstName: "Ada"}}, nil
}

func (s *stubAPI) Register(context.Context, string, string) (*api.AuthResponse, error) {
	return &api.AuthResponse{}, nil
}

func (s *stubAPI) VerifyEmail(context.Context, string) (*api.AuthResponse, error) {
	return &api.AuthResponse{}, nil
}

func (s *stubAPI) PasswordReset(context.Context, string) error { return nil }

func (s *stubAPI) Google(context.Context, string) (*api.AuthResponse, error) {
	return &api.AuthResponse{}, nil
}

func (s *stubAPI) Logout(context.Context, string) error {
	s.logouts++
	return nil
}

func (s *stubAPI) CurrentUser(_ context.Context, _ string) (*session.User, error) {
	return &session.User{ID: "1", Email: "a@b.com", FirstName: "Augusta"}, nil
}

type fixture struct {
	model   Model
	api     *stubAPI
	store   *session.Store
	monitor *session.Monitor
	ctrl    *auth.Controller
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{api: &stubAPI{password: "pw"}, now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.store = session.NewStore(storage.NewMemoryStore(), storage.NewMemoryStore(),
		session.WithClock(func() time.Time { return f.now }))
	f.monitor = session.NewMonitor(f.store, session.WithInterval(0))
	f.monitor.Init(nil)
	t.Cleanup(f.monitor.Destroy)

	f.ctrl = auth.NewController(f.api, f.store)
	f.ctrl.Initialize()

	f.model = New(Options{
		Controller: f.ctrl,
		Store:      f.store,
		Monitor:    f.monitor,
		Theme:      styles.NewThemeFor(termenv.Ascii, true),
		BaseURL:    "https://api.example.com",
	})
	return f
}

func (f *fixture) send(msg tea.Msg) tea.Cmd {
	next, cmd := f.model.Update(msg)
	f.model = next.(Model)
	return cmd
}

func (f *fixture) typeText(s string) {
	for _, r := range s {
		f.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

// drain runs cmd and feeds back every resultMsg it yields.
func (f *fixture) drain(cmd tea.Cmd) {
	for _, msg := range flatten(cmd) {
		if res, ok := msg.(resultMsg); ok {
			f.send(res)
		}
	}
}

func flatten(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(100 * time.Millisecond):
		return nil
	}
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, flatten(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func (f *fixture) signIn(t *testing.T, password string) {
	t.Helper()
	f.typeText("a@b.com")
	f.send(tea.KeyMsg{Type: tea.KeyTab})
	f.typeText(password)
	f.drain(f.send(tea.KeyMsg{Type: tea.KeyEnter}))
}

func TestLoginForm_SignsIn(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.model.View(), "Sign in")

	f.signIn(t, "pw")

	require.True(t, f.model.state.IsAuthenticated)
	view := f.model.View()
	assert.Contains(t, view, "Account")
	assert.Contains(t, view, "Ada")
	assert.Contains(t, view, "signed in")
	assert.Empty(t, f.model.inputs[fieldPassword].Value(), "password never lingers")
}

func TestLoginForm_ShowsError(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "wrong")

	assert.False(t, f.model.state.IsAuthenticated)
	assert.Contains(t, f.model.View(), "Invalid credentials")
	assert.False(t, f.store.HasSession())

	f.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotContains(t, f.model.View(), "[X] Invalid credentials")
}

func TestLoginForm_EnterOnEmailMovesFocus(t *testing.T) {
	f := newFixture(t)
	f.typeText("a@b.com")
	f.send(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, fieldPassword, f.model.focus)
}

func TestAccount_RefreshAndLogout(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "pw")
	require.True(t, f.model.state.IsAuthenticated)

	f.drain(f.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}}))
	assert.Contains(t, f.model.View(), "Augusta")

	f.drain(f.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'l'}}))
	assert.False(t, f.model.state.IsAuthenticated)
	assert.Equal(t, 1, f.api.logouts)
	assert.Contains(t, f.model.View(), "Sign in")
	assert.Equal(t, fieldEmail, f.model.focus)
}

func TestMonitorExpiryReturnsToLogin(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "pw")
	require.True(t, f.model.state.IsAuthenticated)

	f.now = f.now.Add(16 * time.Minute)
	require.True(t, f.monitor.Check())
	f.send(ExpiredMsg{Reason: session.ReasonInactivity})

	assert.False(t, f.model.state.IsAuthenticated)
	assert.Contains(t, f.model.View(), "inactivity")
}

func TestCountdownExpiryClearsThroughMonitor(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "pw")

	f.now = f.now.Add(20 * time.Minute)
	f.send(components.SessionExpiredMsg{})

	assert.False(t, f.store.HasSession())
	assert.False(t, f.model.state.IsAuthenticated)
}

func TestKeysRecordActivity(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "pw")
	before := f.store.Info().LastActivity

	f.now = f.now.Add(3 * time.Minute)
	f.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})

	assert.True(t, f.store.Info().LastActivity.After(before))
}

func TestStateMsgReadsController(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetSession("tok9", session.User{ID: "9", Email: "z@b.com"}, 0))
	f.ctrl.Sync()

	f.send(StateMsg{})
	assert.True(t, f.model.state.IsAuthenticated)
	assert.Equal(t, "z@b.com", f.model.state.User.Email)
}

func TestCtrlCQuits(t *testing.T) {
	f := newFixture(t)
	cmd := f.send(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
