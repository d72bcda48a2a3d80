// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command table, global flags and help text.

package cli

import (
	"fmt"
	"io"
	"strings"
)

// Version information (overridden by main at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdRegister
	CmdVerify
	CmdReset
	CmdGoogle
	CmdLogout
	CmdWhoami
	CmdStatus
	CmdRefresh
	CmdExtend
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[Command]string{
	CmdTUI:      "tui",
	CmdLogin:    "login",
	CmdRegister: "register",
	CmdVerify:   "verify",
	CmdReset:    "reset",
	CmdGoogle:   "google",
	CmdLogout:   "logout",
	CmdWhoami:   "whoami",
	CmdStatus:   "status",
	CmdRefresh:  "refresh",
	CmdExtend:   "extend",
	CmdConfig:   "config",
	CmdVersion:  "version",
	CmdHelp:     "help",
}

// String returns the command name used on the command line.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON       bool
	Verbose    bool
	ConfigPath string

	// Raw holds the arguments after the command name.
	Raw []string
	// Parser parses Raw with the command's boolean flags registered.
	Parser *ArgParser
}

// boolFlags lists the command flags that never take a value.
var boolFlags = map[Command][]string{
	CmdLogin:    {"password-stdin"},
	CmdRegister: {"password-stdin", "no-verify"},
	CmdWhoami:   {"offline"},
}

const usageText = `portalctl - terminal client for the agency dashboard auth API

Usage:
  portalctl [tui]                  Start the dashboard (default)
  portalctl login                  Sign in with email and password
      --email ADDRESS              Email (prompted when omitted)
      --password-stdin             Read the password from stdin
  portalctl register               Create an account
      --email ADDRESS
      --password-stdin
      --no-verify                  Do not prompt for the verification code
  portalctl verify CODE            Confirm an email verification code
  portalctl reset EMAIL            Request a password reset link
  portalctl google TOKEN           Sign in with a Google ID or access token
  portalctl logout                 Sign out on this device and the server
  portalctl whoami [--offline]     Show the signed-in user
  portalctl status, s              Show the local session
  portalctl refresh                Refetch the account from the server
  portalctl extend                 Reset the inactivity timer
  portalctl config [show|path]     Show the effective configuration
  portalctl version                Show version information
  portalctl help                   Show this help

Global flags:
  --json                           Write a JSON response to stdout
  --config PATH                    Use a specific config file
  -v, --verbose                    Log to stderr at debug level

Environment:
  PORTAL_HOME                      Config and data directory (~/.portalctl)
  PORTAL_API_URL                   Backend base URL
  PORTAL_TAB_ID                    Session scope for this terminal
  PORTAL_TOKEN_PASSPHRASE          Passphrase for security.encrypt_token

Version: %s
`

// PrintUsage writes the help text to w.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Command, Args, error) {
	remaining, args, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, args, err
	}

	cmd := CmdTUI
	if len(remaining) > 0 {
		name := strings.ToLower(remaining[0])
		remaining = remaining[1:]

		switch name {
		case "tui":
			cmd = CmdTUI
		case "login", "signin":
			cmd = CmdLogin
		case "register", "signup":
			cmd = CmdRegister
		case "verify", "verify-email":
			cmd = CmdVerify
		case "reset", "reset-password":
			cmd = CmdReset
		case "google":
			cmd = CmdGoogle
		case "logout", "signout":
			cmd = CmdLogout
		case "whoami", "me":
			cmd = CmdWhoami
		case "status", "s":
			cmd = CmdStatus
		case "refresh":
			cmd = CmdRefresh
		case "extend":
			cmd = CmdExtend
		case "config":
			cmd = CmdConfig
		case "version", "--version":
			cmd = CmdVersion
		case "help", "-h", "--help":
			cmd = CmdHelp
		default:
			return CmdHelp, args, &ValidationError{
				Field:   "command",
				Value:   name,
				Reason:  "unknown command",
				Example: "portalctl help",
			}
		}
	}

	args.Raw = remaining
	args.Parser = NewArgParser(remaining, boolFlags[cmd]...)
	return cmd, args, nil
}

// parseGlobalFlags extracts global flags wherever they appear.
func parseGlobalFlags(argv []string) ([]string, Args, error) {
	var args Args
	var remaining []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--json":
			args.JSON = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "--config":
			if i+1 >= len(argv) {
				return nil, args, usageError("--config", "portalctl --config ~/.portalctl/config.toml status")
			}
			i++
			args.ConfigPath = argv[i]
		case strings.HasPrefix(arg, "--config="):
			args.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, args, nil
}
