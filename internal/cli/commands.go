// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Handlers for the auth and session commands.

package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/auth"
	"github.com/jeranaias/portalctl/internal/config"
	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/ui/styles"
	"github.com/jeranaias/portalctl/internal/util"
)

// MsgNotSignedIn is returned by commands that need a session.
const MsgNotSignedIn = "Not signed in. Run `portalctl login` first."

func errNotSignedIn() error {
	return &api.Error{Kind: api.KindSessionExpired, Message: MsgNotSignedIn}
}

// =============================================================================
// SIGN-IN COMMANDS
// =============================================================================

func handleLogin(r *Runner, e *env) (interface{}, error) {
	email, password, err := r.credentials(e, false)
	if err != nil {
		return nil, err
	}

	res := e.app.Controller.Login(e.ctx, email, password)
	return renderResult(e, res)
}

func handleRegister(r *Runner, e *env) (interface{}, error) {
	email, password, err := r.credentials(e, true)
	if err != nil {
		return nil, err
	}

	res := e.app.Controller.Register(e.ctx, email, password)
	if !res.VerificationRequired {
		return renderResult(e, res)
	}

	fmt.Fprintln(e.out, e.theme.Info(res.Message))
	if e.args.JSON || e.args.Parser.BoolFlag("no-verify") {
		fmt.Fprintln(e.out, "Run `portalctl verify CODE`, then `portalctl login`.")
		return ResultData{Message: res.Message, VerificationRequired: true}, nil
	}

	code, err := r.Prompter.Line("Verification code (blank to skip): ")
	if err != nil {
		return nil, err
	}
	if code == "" {
		fmt.Fprintln(e.out, "Run `portalctl verify CODE`, then `portalctl login`.")
		return ResultData{Message: res.Message, VerificationRequired: true}, nil
	}

	// Verifying in the same process lets the controller sign in with the
	// credentials it remembered from Register.
	return renderResult(e, e.app.Controller.VerifyEmail(e.ctx, code))
}

func handleVerify(r *Runner, e *env) (interface{}, error) {
	code := e.args.Parser.FlagOrDefault("code", e.args.Parser.Positional(0))
	if code == "" {
		return nil, usageError("code", "portalctl verify 3f9c2a")
	}
	return renderResult(e, e.app.Controller.VerifyEmail(e.ctx, code))
}

func handleReset(r *Runner, e *env) (interface{}, error) {
	email := e.args.Parser.FlagOrDefault("email", e.args.Parser.Positional(0))
	if email == "" && !e.args.JSON {
		var err error
		if email, err = r.Prompter.Line("Email: "); err != nil {
			return nil, err
		}
	}
	return renderResult(e, e.app.Controller.ResetPassword(e.ctx, email))
}

func handleGoogle(r *Runner, e *env) (interface{}, error) {
	credential := e.args.Parser.FlagOrDefault("token", e.args.Parser.Positional(0))
	if credential == "" && !e.args.JSON {
		var err error
		if credential, err = r.Prompter.Password("Google token: "); err != nil {
			return nil, err
		}
	}
	return renderResult(e, e.app.Controller.GoogleAuth(e.ctx, credential))
}

func handleLogout(r *Runner, e *env) (interface{}, error) {
	wasSignedIn := e.app.Store.HasSession()
	res := e.app.Controller.Logout(e.ctx)
	if !wasSignedIn {
		res.Message = "No session on this device."
	}
	return renderResult(e, res)
}

// credentials collects email and password from flags, stdin or prompts.
// confirm asks for the password twice when prompting.
func (r *Runner) credentials(e *env, confirm bool) (string, string, error) {
	p := e.args.Parser
	email := p.FlagOrDefault("email", p.Positional(0))

	if p.BoolFlag("password-stdin") {
		if email == "" {
			return "", "", usageError("--email", "echo \"$PW\" | portalctl login --email a@b.com --password-stdin")
		}
		password, err := NewReaderPrompter(r.Stdin).Password("")
		return email, password, err
	}

	var err error
	if email == "" {
		if email, err = r.Prompter.Line("Email: "); err != nil {
			return "", "", err
		}
	}
	password, err := r.Prompter.Password("Password: ")
	if err != nil {
		return "", "", err
	}
	if confirm {
		again, err := r.Prompter.Password("Confirm password: ")
		if err != nil {
			return "", "", err
		}
		if again != password {
			return "", "", &ValidationError{Field: "password", Reason: "passwords do not match"}
		}
	}
	return email, password, nil
}

// renderResult prints a controller result and converts failure into an error.
func renderResult(e *env, res auth.Result) (interface{}, error) {
	if err := res.Err(); err != nil {
		return nil, err
	}
	if res.Stale {
		fmt.Fprintln(e.out, e.theme.Warning(res.Message))
		return ResultData{Message: res.Message}, nil
	}

	fmt.Fprintln(e.out, e.theme.Success(res.Message))
	if res.User != nil {
		printUser(e.out, e.theme, res.User)
	}
	return ResultData{Message: res.Message, User: userData(res.User)}, nil
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func handleWhoami(r *Runner, e *env) (interface{}, error) {
	if e.args.Parser.BoolFlag("offline") {
		user, ok := e.app.Store.User()
		if !ok || !e.app.Store.CheckValidity() {
			return nil, errNotSignedIn()
		}
		printUser(e.out, e.theme, user)
		return userData(user), nil
	}

	if !e.app.Controller.State().IsAuthenticated {
		return nil, errNotSignedIn()
	}
	e.app.Monitor.RecordActivity()
	res := e.app.Controller.RefreshUser(e.ctx)
	if err := res.Err(); err != nil {
		return nil, err
	}
	printUser(e.out, e.theme, res.User)
	return userData(res.User), nil
}

func handleRefresh(r *Runner, e *env) (interface{}, error) {
	if !e.app.Controller.State().IsAuthenticated {
		return nil, errNotSignedIn()
	}
	e.app.Monitor.RecordActivity()
	return renderResult(e, e.app.Controller.RefreshUser(e.ctx))
}

func handleExtend(r *Runner, e *env) (interface{}, error) {
	if !e.app.Store.CheckValidity() {
		return nil, errNotSignedIn()
	}
	if err := e.app.Store.RefreshSession(); err != nil {
		return nil, &api.Error{Kind: api.KindStorage, Message: auth.MsgStorage, Err: err}
	}

	user, _ := e.app.Store.User()
	sd := sessionData(e.app.Store.Info(), user, e.app.Store.Timeout())
	fmt.Fprintln(e.out, e.theme.Success("Session extended."))
	fmt.Fprintln(e.out, e.theme.Field("Idle timeout", util.Countdown(time.Duration(sd.IdleRemainingSec)*time.Second)))
	return sd, nil
}

func handleStatus(r *Runner, e *env) (interface{}, error) {
	a := e.app
	user, _ := a.Store.User()
	info := a.Store.Info()
	data := StatusData{
		Session:  sessionData(info, user, a.Store.Timeout()),
		BaseURL:  a.Client.BaseURL(),
		Backend:  e.cfg.Storage.Backend,
		TabScope: session.TabScope(e.cfg.Session.TabScope),
		Expired:  string(e.expired),
	}

	t := e.theme
	if e.expired != session.ReasonNone {
		fmt.Fprintln(e.out, t.Warning(e.expired.Describe()))
	}
	fmt.Fprintln(e.out, t.Field("API", data.BaseURL))
	if !data.Session.Authenticated {
		fmt.Fprintln(e.out, t.Field("Session", "signed out"))
	} else {
		fmt.Fprintln(e.out, t.Field("Session", "signed in"))
		fmt.Fprintln(e.out, t.Field("User", user.Email))
		fmt.Fprintln(e.out, t.Field("Idle timeout", fmt.Sprintf("%s of %s",
			util.Countdown(info.TimeUntilTimeout), util.HumanDuration(a.Store.Timeout()))))
		fmt.Fprintln(e.out, t.Field("Last activity", info.LastActivity.Local().Format("15:04:05")))
		if info.HasExpiry() {
			fmt.Fprintln(e.out, t.Field("Expires", fmt.Sprintf("%s (in %s)",
				info.ExpiresAt.Local().Format("2006-01-02 15:04"), util.HumanDuration(info.TimeUntilExpiry))))
		}
	}
	fmt.Fprintln(e.out, t.Field("Storage", data.Backend))
	fmt.Fprintln(e.out, t.Field("Tab scope", data.TabScope))
	return data, nil
}

func printUser(w io.Writer, t *styles.Theme, u *session.User) {
	if u == nil {
		return
	}
	fmt.Fprintln(w, t.Field("Email", u.Email))
	if name := u.DisplayName(); name != "" && name != u.Email {
		fmt.Fprintln(w, t.Field("Name", name))
	}
	fmt.Fprintln(w, t.Field("ID", string(u.ID)))
	verified := "no"
	if u.IsVerified {
		verified = "yes"
	}
	fmt.Fprintln(w, t.Field("Verified", verified))
}

// =============================================================================
// STATIC COMMANDS
// =============================================================================

func handleConfig(r *Runner, e *env) (interface{}, error) {
	switch sub := e.args.Parser.Positional(0); sub {
	case "", "show":
		fmt.Fprint(e.out, e.cfg.String())
		return e.cfg, nil
	case "path":
		path := e.args.ConfigPath
		if path == "" {
			var err error
			if path, err = config.ConfigPathTOML(); err != nil {
				return nil, &ConfigError{Err: err}
			}
		}
		_, statErr := os.Stat(path)
		fmt.Fprintln(e.out, path)
		return ConfigPathData{Path: path, Exists: statErr == nil}, nil
	default:
		return nil, &ValidationError{Field: "config subcommand", Value: sub, Reason: "expected show or path"}
	}
}

func handleVersion(r *Runner, e *env) (interface{}, error) {
	data := VersionData{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	fmt.Fprintf(e.out, "portalctl version %s\n", data.Version)
	fmt.Fprintf(e.out, "  Git commit: %s\n", data.GitCommit)
	fmt.Fprintf(e.out, "  Build date: %s\n", data.BuildDate)
	return data, nil
}

func handleHelp(r *Runner, e *env) (interface{}, error) {
	PrintUsage(e.out)
	return nil, nil
}
