// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the portalctl command line and runs each command
// against an app.App.
//
// Every command except tui is one-shot: it builds the app, arms the
// activity monitor for one sweep, runs the operation and exits with a code
// derived from the error kind. With --json the outcome is written to stdout
// as a JSONResponse and human-readable text goes to stderr.
package cli
