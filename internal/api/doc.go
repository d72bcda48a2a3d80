// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the dashboard's REST auth endpoints.
//
// Every failure is returned as *Error carrying a Kind, a user-facing message,
// the HTTP status and any field-level validation messages. Callers switch on
// Kind; they never need to inspect transport errors.
//
// # Endpoints
//
//	POST /auth/login/                        {email, password}
//	POST /auth/registration/                 {email, password1, password2}
//	POST /auth/registration/verify-email/    {key}
//	POST /auth/password/reset/               {email}
//	POST /auth/google/                       {id_token} or {access_token}
//	POST /auth/logout/
//	GET  /auth/user/
//
// Paths are configurable. Every request carries X-Request-ID and User-Agent,
// and a client-side token bucket rejects bursts before they reach the network.
package api
