// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/app"
	"github.com/jeranaias/portalctl/internal/auth"
	"github.com/jeranaias/portalctl/internal/config"
	"github.com/jeranaias/portalctl/internal/ui/styles"
)

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		bools    []string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name: "flag with value",
			args: []string{"--email", "a@b.com"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "a@b.com", p.Flag("email"))
				assert.Equal(t, 0, p.PositionalCount())
			},
		},
		{
			name: "flag with equals",
			args: []string{"--email=a@b.com"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "a@b.com", p.Flag("--email"))
			},
		},
		{
			name:  "registered boolean does not consume next arg",
			args:  []string{"--password-stdin", "a@b.com"},
			bools: []string{"password-stdin"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("password-stdin"))
				assert.Equal(t, "a@b.com", p.Positional(0))
			},
		},
		{
			name: "trailing flag is boolean",
			args: []string{"show", "--offline"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("offline"))
				assert.Equal(t, "show", p.Positional(0))
			},
		},
		{
			name: "explicit boolean value",
			args: []string{"--offline=false"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.False(t, p.BoolFlag("offline"))
				assert.True(t, p.HasFlag("offline"))
			},
		},
		{
			name: "double dash ends flags",
			args: []string{"--", "-not-a-flag"},
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "-not-a-flag", p.Positional(0))
			},
		},
		{
			name: "out of range positional",
			args: nil,
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "", p.Positional(3))
				assert.Equal(t, "fallback", p.FlagOrDefault("code", "fallback"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, NewArgParser(tt.args, tt.bools...))
		})
	}
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"true", "YES", "y", "1", "on"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	for _, s := range []string{"false", "no", "N", "0", "off"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.False(t, v, s)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}

// =============================================================================
// COMMAND PARSING TESTS
// =============================================================================

func TestParse_Commands(t *testing.T) {
	tests := []struct {
		argv []string
		want Command
	}{
		{nil, CmdTUI},
		{[]string{"tui"}, CmdTUI},
		{[]string{"login"}, CmdLogin},
		{[]string{"signin"}, CmdLogin},
		{[]string{"register"}, CmdRegister},
		{[]string{"verify", "abc"}, CmdVerify},
		{[]string{"reset", "a@b.com"}, CmdReset},
		{[]string{"google", "tok"}, CmdGoogle},
		{[]string{"logout"}, CmdLogout},
		{[]string{"whoami"}, CmdWhoami},
		{[]string{"s"}, CmdStatus},
		{[]string{"STATUS"}, CmdStatus},
		{[]string{"refresh"}, CmdRefresh},
		{[]string{"extend"}, CmdExtend},
		{[]string{"config", "path"}, CmdConfig},
		{[]string{"--version"}, CmdVersion},
		{[]string{"-h"}, CmdHelp},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.argv, " "), func(t *testing.T) {
			cmd, _, err := Parse(tt.argv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParse_GlobalFlagsAnywhere(t *testing.T) {
	cmd, args, err := Parse([]string{"verify", "--json", "abc", "--config=/tmp/c.toml", "-v"})
	require.NoError(t, err)

	assert.Equal(t, CmdVerify, cmd)
	assert.True(t, args.JSON)
	assert.True(t, args.Verbose)
	assert.Equal(t, "/tmp/c.toml", args.ConfigPath)
	assert.Equal(t, []string{"abc"}, args.Raw)
	assert.Equal(t, "abc", args.Parser.Positional(0))
}

func TestParse_Errors(t *testing.T) {
	_, _, err := Parse([]string{"frobnicate"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "frobnicate", verr.Value)

	_, _, err = Parse([]string{"status", "--config"})
	require.ErrorAs(t, err, &verr)
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "login", CmdLogin.String())
	assert.Equal(t, "tui", CmdTUI.String())
	assert.Equal(t, "unknown", Command(99).String())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &ValidationError{Field: "x", Reason: "bad"}, ExitUsageError},
		{"config", &ConfigError{Err: errors.New("boom")}, ExitConfigError},
		{"aborted", ErrAborted, ExitAbortedError},
		{"auth", &api.Error{Kind: api.KindAuth}, ExitAuthError},
		{"expired", &api.Error{Kind: api.KindSessionExpired}, ExitAuthError},
		{"network", &api.Error{Kind: api.KindNetwork}, ExitNetworkError},
		{"validation", &api.Error{Kind: api.KindValidation}, ExitGeneralError},
		{"server", &api.Error{Kind: api.KindServer}, ExitGeneralError},
		{"other", errors.New("x"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

// =============================================================================
// RUNNER HARNESS
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// backend is a scripted auth API.
type backend struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]func(w http.ResponseWriter, body map[string]string)
	bodies map[string]map[string]string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		routes: make(map[string]func(http.ResponseWriter, map[string]string)),
		bodies: make(map[string]map[string]string),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		b.bodies[r.URL.Path] = body
		fn := b.routes[r.URL.Path]
		b.mu.Unlock()

		if fn == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fn(w, body)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) reply(path string, status int, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[path] = func(w http.ResponseWriter, _ map[string]string) {
		w.WriteHeader(status)
		io.WriteString(w, payload)
	}
}

func (b *backend) bodyFor(path string) map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[path]
}

const loginOK = `{"key":"tok-1","user":{"pk":7,"email":"a@b.com","first_name":"Ada","is_verified":true}}`

type harness struct {
	t       *testing.T
	backend *backend
	cfg     *config.Config
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := newBackend(t)
	cfg := config.Default()
	cfg.API.BaseURL = b.URL
	cfg.Storage.Dir = t.TempDir()
	cfg.Session.TabScope = "cli-test"
	return &harness{
		t:       t,
		backend: b,
		cfg:     cfg,
		clock:   &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
}

type runResult struct {
	code   int
	stdout string
	stderr string
}

// run executes argv with input fed to both the prompter and stdin.
func (h *harness) run(input string, argv ...string) runResult {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	r := &Runner{
		Stdin:      strings.NewReader(input),
		Stdout:     &stdout,
		Stderr:     &stderr,
		Prompter:   NewReaderPrompter(strings.NewReader(input)),
		Theme:      styles.NewThemeFor(termenv.Ascii, true),
		LoadConfig: func(string) (*config.Config, error) { return h.cfg, nil },
		AppOptions: app.Options{Logger: zap.NewNop(), Clock: h.clock.Now},
	}
	code := r.Run(context.Background(), argv)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

type envelope struct {
	Success bool            `json:"success"`
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
	Error   *JSONError      `json:"error"`
}

func decodeEnvelope(t *testing.T, out string) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	return env
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestLogin_PromptsThenStatusAndLogout(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/login/", http.StatusOK, loginOK)
	h.backend.reply("/auth/logout/", http.StatusOK, `{"detail":"ok"}`)

	res := h.run("A@B.com\npw\n", "login")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "[OK] "+auth.MsgSignedIn)
	assert.Contains(t, res.stdout, "a@b.com")
	assert.Equal(t, map[string]string{"email": "a@b.com", "password": "pw"}, h.backend.bodyFor("/auth/login/"))

	res = h.run("", "status")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "signed in")
	assert.Contains(t, res.stdout, "15:00 of 15m")

	res = h.run("", "logout")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, auth.MsgSignedOut)

	res = h.run("", "status", "--json")
	env := decodeEnvelope(t, res.stdout)
	require.True(t, env.Success)
	var data StatusData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.False(t, data.Session.Authenticated)
	assert.Equal(t, "cli-test", data.TabScope)
}

func TestLogin_PasswordStdin(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/login/", http.StatusOK, loginOK)

	res := h.run("s3cret\n", "login", "--email", "a@b.com", "--password-stdin", "--json")
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	assert.Equal(t, "s3cret", h.backend.bodyFor("/auth/login/")["password"])

	env := decodeEnvelope(t, res.stdout)
	var data ResultData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotNil(t, data.User)
	assert.Equal(t, "7", data.User.ID)
	assert.Equal(t, "Ada", data.User.Name)
}

func TestLogin_PasswordStdinRequiresEmail(t *testing.T) {
	h := newHarness(t)
	res := h.run("pw\n", "login", "--password-stdin")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "--email")
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantKind api.Kind
		wantMsg  string
	}{
		{"bad credentials", http.StatusBadRequest, `{"non_field_errors":["Unable to log in with provided credentials."]}`,
			ExitGeneralError, api.KindValidation, "Unable to log in with provided credentials."},
		{"unauthorized", http.StatusUnauthorized, `{"detail":"nope"}`, ExitAuthError, api.KindAuth, "nope"},
		{"server error", http.StatusInternalServerError, `oops`, ExitGeneralError, api.KindServer, api.MsgServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.reply("/auth/login/", tt.status, tt.body)

			res := h.run("pw\n", "login", "--email", "a@b.com", "--password-stdin", "--json")
			assert.Equal(t, tt.wantCode, res.code)

			env := decodeEnvelope(t, res.stdout)
			assert.False(t, env.Success)
			assert.Equal(t, "login", env.Command)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.wantKind), env.Error.Kind)
			if tt.wantKind != api.KindAuth {
				assert.Equal(t, tt.wantMsg, env.Error.Message)
			}

			status := h.run("", "status", "--json")
			var data StatusData
			require.NoError(t, json.Unmarshal(decodeEnvelope(t, status.stdout).Data, &data))
			assert.False(t, data.Session.Authenticated, "nothing stored on failure")
		})
	}
}

func TestLogin_FieldErrorsPrinted(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/login/", http.StatusBadRequest, `{"email":["Enter a valid email address."],"password":["Too short."]}`)

	res := h.run("a@b.com\npw\n", "login")
	assert.Equal(t, ExitGeneralError, res.code)
	assert.Contains(t, res.stderr, "[X] ")
	assert.Contains(t, res.stderr, "  email: Enter a valid email address.")
	assert.Contains(t, res.stderr, "  password: Too short.")
}

func TestLogin_AbortedPrompt(t *testing.T) {
	h := newHarness(t)
	res := h.run("", "login")
	assert.Equal(t, ExitAbortedError, res.code)
	assert.Contains(t, res.stderr, "Cancelled.")
}

func TestRegister_VerifiesInSameProcess(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/registration/", http.StatusCreated, `{"detail":"Verification e-mail sent."}`)
	h.backend.reply("/auth/registration/verify-email/", http.StatusOK, `{"detail":"ok"}`)
	h.backend.reply("/auth/login/", http.StatusOK, loginOK)

	res := h.run("a@b.com\npw\npw\ncode-42\n", "register")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Verification e-mail sent.")
	assert.Contains(t, res.stdout, auth.MsgSignedIn)
	assert.Equal(t, "code-42", h.backend.bodyFor("/auth/registration/verify-email/")["key"])
	assert.Equal(t, "pw", h.backend.bodyFor("/auth/registration/")["password1"])
}

func TestRegister_SkipVerification(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/registration/", http.StatusCreated, `{"detail":"Verification e-mail sent."}`)

	res := h.run("pw\n", "register", "--email", "a@b.com", "--password-stdin", "--no-verify")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "portalctl verify CODE")
	assert.Nil(t, h.backend.bodyFor("/auth/registration/verify-email/"))
}

func TestRegister_PasswordMismatch(t *testing.T) {
	h := newHarness(t)
	res := h.run("a@b.com\npw\nother\n", "register")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "passwords do not match")
	assert.Nil(t, h.backend.bodyFor("/auth/registration/"))
}

func TestVerify_RequiresCode(t *testing.T) {
	h := newHarness(t)
	res := h.run("", "verify")
	assert.Equal(t, ExitUsageError, res.code)

	h.backend.reply("/auth/registration/verify-email/", http.StatusOK, `{"detail":"ok"}`)
	res = h.run("", "verify", "abc")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, auth.MsgEmailVerified)
}

func TestReset_GenericMessage(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/password/reset/", http.StatusBadRequest, `{"email":["No account."]}`)

	res := h.run("", "reset", "nobody@b.com")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, auth.MsgResetSent)
	assert.NotContains(t, res.stdout, "No account")
}

func TestGoogle_SignsIn(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/google/", http.StatusOK, loginOK)

	res := h.run("", "google", "opaque-access-token")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "opaque-access-token", h.backend.bodyFor("/auth/google/")["access_token"])
}

func TestWhoami(t *testing.T) {
	h := newHarness(t)
	res := h.run("", "whoami")
	assert.Equal(t, ExitAuthError, res.code)
	assert.Contains(t, res.stderr, MsgNotSignedIn)

	h.backend.reply("/auth/login/", http.StatusOK, loginOK)
	h.backend.reply("/auth/user/", http.StatusOK, `{"pk":7,"email":"a@b.com","first_name":"Grace"}`)
	require.Equal(t, ExitSuccess, h.run("pw\n", "login", "--email", "a@b.com", "--password-stdin").code)

	res = h.run("", "whoami", "--offline")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "Ada")

	res = h.run("", "whoami")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Grace")
}

func TestRefresh_UnauthorizedEndsSession(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/login/", http.StatusOK, loginOK)
	require.Equal(t, ExitSuccess, h.run("pw\n", "login", "--email", "a@b.com", "--password-stdin").code)

	h.backend.reply("/auth/user/", http.StatusUnauthorized, `{"detail":"Invalid token."}`)
	res := h.run("", "refresh")
	assert.Equal(t, ExitAuthError, res.code)
	assert.Contains(t, res.stderr, api.MsgSessionExpired)

	res = h.run("", "status")
	assert.Contains(t, res.stdout, "signed out")
}

func TestExtend(t *testing.T) {
	h := newHarness(t)
	res := h.run("", "extend")
	assert.Equal(t, ExitAuthError, res.code)

	h.backend.reply("/auth/login/", http.StatusOK, loginOK)
	require.Equal(t, ExitSuccess, h.run("pw\n", "login", "--email", "a@b.com", "--password-stdin").code)

	h.clock.Advance(10 * time.Minute)
	res = h.run("", "extend", "--json")
	require.Equal(t, ExitSuccess, res.code, res.stdout)

	var data SessionData
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, res.stdout).Data, &data))
	assert.Equal(t, int64(15*60), data.IdleRemainingSec)
}

func TestStatus_ReportsLapsedSession(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("/auth/login/", http.StatusOK, loginOK)
	require.Equal(t, ExitSuccess, h.run("pw\n", "login", "--email", "a@b.com", "--password-stdin").code)

	h.clock.Advance(16 * time.Minute)
	res := h.run("", "status", "--json")
	require.Equal(t, ExitSuccess, res.code)

	var data StatusData
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, res.stdout).Data, &data))
	assert.Equal(t, "inactivity", data.Expired)
	assert.False(t, data.Session.Authenticated)

	// The sweep already cleared it; the next run has nothing to report.
	res = h.run("", "status")
	assert.NotContains(t, res.stdout, "inactivity")
}

func TestConfigAndVersion(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "config", "show")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, h.backend.URL)

	res = h.run("", "config", "path", "--config", "/nonexistent/portal.toml", "--json")
	require.Equal(t, ExitSuccess, res.code)
	var pd ConfigPathData
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, res.stdout).Data, &pd))
	assert.Equal(t, "/nonexistent/portal.toml", pd.Path)
	assert.False(t, pd.Exists)

	res = h.run("", "config", "edit")
	assert.Equal(t, ExitUsageError, res.code)

	res = h.run("", "version", "--json")
	var vd VersionData
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, res.stdout).Data, &vd))
	assert.Equal(t, Version, vd.Version)
	assert.NotEmpty(t, vd.GoVersion)

	res = h.run("", "help")
	assert.Contains(t, res.stdout, "portalctl login")
}

func TestRun_ConfigLoadFailure(t *testing.T) {
	var stderr bytes.Buffer
	r := &Runner{
		Stdout:     io.Discard,
		Stderr:     &stderr,
		Theme:      styles.NewThemeFor(termenv.Ascii, true),
		LoadConfig: func(string) (*config.Config, error) { return nil, errors.New("broken toml") },
	}
	code := r.Run(context.Background(), []string{"status"})
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr.String(), "broken toml")
}

func TestRun_InvalidConfigIsConfigError(t *testing.T) {
	h := newHarness(t)
	h.cfg.API.BaseURL = "ftp://example.com"
	assert.Equal(t, ExitConfigError, h.run("", "status").code)
}

func TestTUI_RejectsJSON(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, ExitUsageError, h.run("", "--json").code)
}

func TestReaderPrompter(t *testing.T) {
	p := NewReaderPrompter(strings.NewReader("  a@b.com \r\n pass word \nlast"))

	line, err := p.Line("Email: ")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", line)

	pw, err := p.Password("Password: ")
	require.NoError(t, err)
	assert.Equal(t, " pass word ", pw)

	last, err := p.Line("")
	require.NoError(t, err)
	assert.Equal(t, "last", last)

	_, err = p.Line("")
	assert.ErrorIs(t, err, ErrAborted)
}
