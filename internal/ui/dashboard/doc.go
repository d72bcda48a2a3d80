// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dashboard is the Bubble Tea program behind `portalctl tui`.
//
// Signed out it shows a login form; signed in it shows the account and
// session panel. The session warning floats over either screen, and every
// key press counts as activity for the inactivity timeout.
//
// The host feeds two messages in from outside the program: StateMsg for
// auth controller changes and ExpiredMsg when the activity monitor ends the
// session.
package dashboard
