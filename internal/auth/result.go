// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/session"
)

// Messages shown for outcomes the backend does not word itself.
const (
	MsgResetSent          = "If an account exists for that address, a reset link has been sent."
	MsgVerificationSent   = "Check your email for a verification code."
	MsgEmailVerified      = "Email verified. You can now sign in."
	MsgSignedOut          = "Signed out."
	MsgSignedIn           = "Signed in."
	MsgUserRefreshed      = "Account details updated."
	MsgStale              = "Superseded by a newer request."
	MsgStorage            = "Could not save your session on this device."
	MsgEmailRequired      = "Email is required."
	MsgEmailInvalid       = "Enter a valid email address."
	MsgPasswordRequired   = "Password is required."
	MsgCodeRequired       = "Verification code is required."
	MsgCredentialRequired = "Google credential is required."
	MsgExpiredToken       = "The server issued a token that has already expired."
)

// Result is the outcome of a controller operation.
type Result struct {
	Success bool
	Kind    api.Kind
	Message string
	// Status is the HTTP status when a response was received.
	Status int
	// Errors holds field-keyed validation messages.
	Errors map[string][]string
	// User is the signed-in user after a successful session write.
	User *session.User
	// VerificationRequired is set when registration succeeded but the
	// account must be verified before signing in.
	VerificationRequired bool
	// Stale is set when a newer request superseded this one. Nothing was
	// written and the state was not changed.
	Stale bool
}

// Err returns the failure as *api.Error, or nil for success and stale
// results.
func (r Result) Err() error {
	if r.Success || r.Stale {
		return nil
	}
	return &api.Error{Kind: r.Kind, Message: r.Message, Status: r.Status, Fields: r.Errors}
}

func resultFromError(e *api.Error) Result {
	return Result{
		Kind:    e.Kind,
		Message: e.Message,
		Status:  e.Status,
		Errors:  e.Fields,
	}
}

func invalid(field, message string) Result {
	return Result{
		Kind:    api.KindValidation,
		Message: message,
		Errors:  map[string][]string{field: {message}},
	}
}
