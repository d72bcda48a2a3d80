// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - Machine-readable output for --json.

package cli

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/session"
)

// JSONResponse is the envelope every command writes in --json mode.
type JSONResponse struct {
	Success bool        `json:"success"`
	Command string      `json:"command"`
	Data    interface{} `json:"data"`
	Error   *JSONError  `json:"error"`
	// Timestamp is RFC3339 UTC.
	Timestamp string `json:"timestamp"`
}

// JSONError describes a failure.
type JSONError struct {
	Kind    string              `json:"kind,omitempty"`
	Message string              `json:"message"`
	Status  int                 `json:"status,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Command:   command,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewJSONErrorResponse creates a failed response. data may carry partial
// output such as the session state after a rejected request.
func NewJSONErrorResponse(command string, err error, data interface{}) *JSONResponse {
	jerr := &JSONError{Message: err.Error()}
	if apiErr := asAPIError(err); apiErr != nil {
		jerr = &JSONError{
			Kind:    string(apiErr.Kind),
			Message: apiErr.Message,
			Status:  apiErr.Status,
			Fields:  apiErr.Fields,
		}
	}
	return &JSONResponse{
		Command:   command,
		Data:      data,
		Error:     jerr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Write encodes the response to w with indentation.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// UserData is the JSON form of a session.User.
type UserData struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	IsVerified bool   `json:"is_verified"`
	DateJoined string `json:"date_joined,omitempty"`
	LastLogin  string `json:"last_login,omitempty"`
}

func userData(u *session.User) *UserData {
	if u == nil {
		return nil
	}
	return &UserData{
		ID:         string(u.ID),
		Email:      u.Email,
		Name:       u.DisplayName(),
		IsVerified: u.IsVerified,
		DateJoined: u.DateJoined,
		LastLogin:  u.LastLogin,
	}
}

// SessionData describes the local session.
type SessionData struct {
	Authenticated bool      `json:"authenticated"`
	User          *UserData `json:"user,omitempty"`
	// TimeoutSecs is the inactivity timeout in force.
	TimeoutSecs      int64  `json:"timeout_secs"`
	IdleRemainingSec int64  `json:"idle_remaining_secs,omitempty"`
	ExpiresAt        string `json:"expires_at,omitempty"`
	ExpiryRemainSec  int64  `json:"expiry_remaining_secs,omitempty"`
	LastActivity     string `json:"last_activity,omitempty"`
}

// StatusData is returned by the status command.
type StatusData struct {
	Session  SessionData `json:"session"`
	BaseURL  string      `json:"base_url"`
	Backend  string      `json:"backend"`
	TabScope string      `json:"tab_scope"`
	Expired  string      `json:"expired,omitempty"`
}

// ResultData is returned by commands that run a controller operation.
type ResultData struct {
	Message              string    `json:"message"`
	User                 *UserData `json:"user,omitempty"`
	VerificationRequired bool      `json:"verification_required,omitempty"`
}

// VersionData is returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// ConfigPathData is returned by "config path".
type ConfigPathData struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func sessionData(info *session.Info, user *session.User, timeout time.Duration) SessionData {
	sd := SessionData{TimeoutSecs: int64(timeout / time.Second)}
	if info == nil || !info.IsValid {
		return sd
	}
	sd.Authenticated = user != nil
	sd.User = userData(user)
	sd.IdleRemainingSec = int64(info.TimeUntilTimeout / time.Second)
	if !info.LastActivity.IsZero() {
		sd.LastActivity = info.LastActivity.UTC().Format(time.RFC3339)
	}
	if info.HasExpiry() {
		sd.ExpiresAt = info.ExpiresAt.UTC().Format(time.RFC3339)
		sd.ExpiryRemainSec = int64(info.TimeUntilExpiry / time.Second)
	}
	return sd
}

func asAPIError(err error) *api.Error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
