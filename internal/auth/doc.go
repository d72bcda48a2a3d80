// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth holds the auth controller: the single place where API calls
// turn into session writes and observable state.
//
// Every operation returns a Result value. Transport failures, validation
// errors and storage problems all arrive as data, so callers render them
// without type switches.
//
// Session-writing requests (login, register, Google sign-in, email
// verification) draw tickets from one sequence and Logout advances it. A
// response that comes back after a newer request started is dropped and
// reported as Result.Stale, so a slow login can never resurrect a session the
// user already signed out of.
package auth
