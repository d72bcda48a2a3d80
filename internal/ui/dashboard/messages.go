// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"time"

	"github.com/jeranaias/portalctl/internal/auth"
	"github.com/jeranaias/portalctl/internal/session"
)

// StateMsg signals an auth controller state change. Hosts send it from a
// goroutine since controller listeners may run inside Update.
type StateMsg struct {
	State auth.State
}

// ExpiredMsg reports that the activity monitor ended the session.
type ExpiredMsg struct {
	Reason session.ExpiryReason
}

// resultMsg carries the outcome of a controller operation.
type resultMsg struct {
	op     string
	result auth.Result
}

// clockMsg refreshes the session panel once a second.
type clockMsg struct {
	at time.Time
}
