// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the client-side session lifecycle.
//
// # Key Types
//
//   - Store: persists the token (durable store) and the user plus timing
//     metadata (tab-scoped store), and evaluates validity
//   - Monitor: checks the Store on an interval and fires a callback when the
//     session times out or expires
//   - Info: derived read-only view of the current session
//
// # Persisted Layout
//
//	durable  auth_token    bearer token
//	tab      auth_user     User JSON
//	tab      auth_session  {"token","user","expiresAt","lastActivity"} (ms)
//
// A session is present only when all three keys decode and the metadata token
// matches the durable token. Reads never mutate state; ExpireIfInvalid is the
// clearing action and is driven by the Monitor.
//
// # Usage
//
//	store := session.NewStore(durable, tab, session.WithTimeout(15*time.Minute))
//	mon := session.NewMonitor(store, session.WithInterval(time.Minute))
//	mon.Init(func(r session.ExpiryReason) { showLogin(r) })
//	defer mon.Destroy()
package session
