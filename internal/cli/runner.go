// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runner.go - Command dispatch and output rendering.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/app"
	"github.com/jeranaias/portalctl/internal/config"
	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/ui/styles"
)

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes one command line. The zero value is not usable; build it
// with NewRunner and override fields in tests.
type Runner struct {
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	Prompter Prompter
	Theme    *styles.Theme

	// LoadConfig loads the configuration. path is empty unless --config
	// was given.
	LoadConfig func(path string) (*config.Config, error)
	// AppOptions is passed to app.New.
	AppOptions app.Options
}

// NewRunner returns a Runner bound to the process streams.
func NewRunner() *Runner {
	return &Runner{
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Prompter:   NewPrompter(os.Stderr),
		Theme:      OutputTheme(),
		LoadConfig: loadConfig,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// env is what a handler sees.
type env struct {
	ctx   context.Context
	app   *app.App
	cfg   *config.Config
	args  Args
	out   io.Writer
	theme *styles.Theme
	// expired is set when the startup sweep ended a stale session.
	expired session.ExpiryReason
}

type handler func(r *Runner, e *env) (interface{}, error)

// handlers maps each command to its implementation. needsApp is false for
// commands that only read the configuration or print static text.
var handlers = map[Command]struct {
	run      handler
	needsApp bool
}{
	CmdLogin:    {handleLogin, true},
	CmdRegister: {handleRegister, true},
	CmdVerify:   {handleVerify, true},
	CmdReset:    {handleReset, true},
	CmdGoogle:   {handleGoogle, true},
	CmdLogout:   {handleLogout, true},
	CmdWhoami:   {handleWhoami, true},
	CmdStatus:   {handleStatus, true},
	CmdRefresh:  {handleRefresh, true},
	CmdExtend:   {handleExtend, true},
	CmdConfig:   {handleConfig, false},
	CmdVersion:  {handleVersion, false},
	CmdHelp:     {handleHelp, false},
}

// Run parses argv, runs the command and returns the process exit code.
func (r *Runner) Run(ctx context.Context, argv []string) int {
	cmd, args, err := Parse(argv)
	if err != nil {
		r.report(cmd, args, nil, err)
		return ExitCode(err)
	}

	data, err := r.dispatch(ctx, cmd, args)
	r.report(cmd, args, data, err)
	return ExitCode(err)
}

func (r *Runner) dispatch(ctx context.Context, cmd Command, args Args) (interface{}, error) {
	if cmd == CmdHelp || cmd == CmdVersion {
		return handlers[cmd].run(r, r.newEnv(ctx, nil, nil, args))
	}

	cfg, err := r.LoadConfig(args.ConfigPath)
	if err != nil {
		return nil, &ConfigError{Path: args.ConfigPath, Err: err}
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}

	if cmd == CmdTUI {
		return nil, r.runTUI(ctx, cfg, args)
	}

	h, ok := handlers[cmd]
	if !ok {
		return nil, &ValidationError{Field: "command", Value: cmd.String(), Reason: "unknown command"}
	}
	if !h.needsApp {
		return h.run(r, r.newEnv(ctx, nil, cfg, args))
	}

	opts := r.AppOptions
	if args.Verbose && opts.Console == nil {
		opts.Console = zapcore.Lock(zapcore.AddSync(r.Stderr))
	}
	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		return nil, startupError(args.ConfigPath, err)
	}
	defer a.Close()

	e := r.newEnv(ctx, a, cfg, args)
	a.Start(func(reason session.ExpiryReason) { e.expired = reason })
	return h.run(r, e)
}

func (r *Runner) runTUI(ctx context.Context, cfg *config.Config, args Args) error {
	if args.JSON {
		return &ValidationError{Field: "--json", Reason: "not supported by the dashboard"}
	}
	// The dashboard owns the terminal, so logs only go to the file.
	opts := r.AppOptions
	opts.Console = nil

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		return startupError(args.ConfigPath, err)
	}
	defer a.Close()
	return a.RunTUI(ctx, nil)
}

// startupError classifies an app.New failure. Validation problems are
// configuration errors; anything else is a storage or logging failure.
func startupError(path string, err error) error {
	var verrs config.ValidateErrors
	if errors.As(err, &verrs) {
		return &ConfigError{Path: path, Err: err}
	}
	return fmt.Errorf("startup failed: %w", err)
}

func (r *Runner) newEnv(ctx context.Context, a *app.App, cfg *config.Config, args Args) *env {
	out := r.Stdout
	if args.JSON {
		out = io.Discard
	}
	return &env{ctx: ctx, app: a, cfg: cfg, args: args, out: out, theme: r.Theme}
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *Runner) report(cmd Command, args Args, data interface{}, err error) {
	if args.JSON {
		resp := NewJSONResponse(cmd.String(), data)
		if err != nil {
			resp = NewJSONErrorResponse(cmd.String(), err, data)
		}
		if werr := resp.Write(r.Stdout); werr != nil {
			fmt.Fprintf(r.Stderr, "failed to write JSON output: %v\n", werr)
		}
		return
	}
	if err != nil {
		printError(r.Stderr, r.Theme, err)
	}
}

// printError renders err with any field messages underneath.
func printError(w io.Writer, theme *styles.Theme, err error) {
	if errors.Is(err, ErrAborted) {
		fmt.Fprintln(w, theme.Warning("Cancelled."))
		return
	}

	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		fmt.Fprintln(w, theme.Error(err.Error()))
		return
	}

	fmt.Fprintln(w, theme.Error(apiErr.Message))
	fields := make([]string, 0, len(apiErr.Fields))
	for f := range apiErr.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, msg := range apiErr.Fields[f] {
			fmt.Fprintf(w, "  %s: %s\n", f, msg)
		}
	}
}
