// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the composition root. It builds one explicit instance of
// every component from a *config.Config and hands them to the CLI and the
// TUI. Nothing below this package reads global state.
package app
