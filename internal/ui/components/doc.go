// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the Bubble Tea components hosted by the
portalctl dashboard.

# Components

SessionWarning (session_warning.go) - Polls the session store and floats a
countdown box once the session is about to end. The Extend key refreshes the
session; reaching zero emits SessionExpiredMsg.

ToastManager (toast.go) - Non-blocking notifications for operation results.
Toasts stack in the bottom-right corner and auto-dismiss.

# Bubble Tea Integration

Components follow the value-receiver Update pattern:

	warning, cmd = warning.Update(msg)

Hosts forward every message; components ignore what they do not handle.
*/
package components
