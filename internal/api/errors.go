// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindRateLimited    Kind = "rate_limited"
	KindServer         Kind = "server"
	KindDecode         Kind = "decode"
	KindStorage        Kind = "storage"
	KindSessionExpired Kind = "session_expired"
)

// User-facing messages for failures the backend does not describe itself.
const (
	MsgNetwork        = "Network error. Check your connection and try again."
	MsgServer         = "Something went wrong on our side. Please try again later."
	MsgDecode         = "Unexpected response from the server."
	MsgRateLimited    = "Too many attempts. Please wait a moment and try again."
	MsgAuth           = "Invalid credentials."
	MsgSessionExpired = "Your session has expired. Please sign in again."
)

// Error is the only error type returned by Client.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status, 0 when the request never got a response.
	Status int
	// Fields holds field-keyed validation messages.
	Fields map[string][]string
	// RetryAfter is set from the Retry-After header on 429 responses.
	RetryAfter time.Duration
	// RequestID is the X-Request-ID sent with the request.
	RequestID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindNetwork for foreign errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// AsError converts any error into *Error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
}

// =============================================================================
// RESPONSE MAPPING
// =============================================================================

// kindForStatus maps a non-2xx status onto a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// errorFromResponse builds an *Error from a non-2xx response. The body is
// read as a DRF error payload: {"detail": ...}, {"non_field_errors": [...]}
// or {"field": [...]}.
func errorFromResponse(status int, body []byte, header http.Header) *Error {
	e := &Error{Kind: kindForStatus(status), Status: status}

	if e.Kind == KindRateLimited {
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}

	var payload map[string]json.RawMessage
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		e.Fields = fieldErrors(payload)
		e.Message = messageFrom(payload, e.Fields)
	}

	// Server detail is never shown; it only reaches debug logs.
	if e.Kind == KindServer || e.Message == "" {
		e.Message = defaultMessage(e.Kind, status)
	}
	return e
}

func defaultMessage(kind Kind, status int) string {
	switch kind {
	case KindAuth:
		return MsgAuth
	case KindRateLimited:
		return MsgRateLimited
	case KindServer:
		return MsgServer
	case KindNetwork:
		return MsgNetwork
	case KindDecode:
		return MsgDecode
	case KindSessionExpired:
		return MsgSessionExpired
	default:
		return fmt.Sprintf("Request failed (HTTP %d).", status)
	}
}

// messageFrom picks the most specific human message from a DRF payload.
func messageFrom(payload map[string]json.RawMessage, fields map[string][]string) string {
	for _, key := range []string{"detail", "non_field_errors", "error", "message"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		if msgs := stringsOf(raw); len(msgs) > 0 {
			return msgs[0]
		}
	}

	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s", names[0], fields[names[0]][0])
}

// fieldErrors collects per-field messages, skipping the general keys.
func fieldErrors(payload map[string]json.RawMessage) map[string][]string {
	var fields map[string][]string
	for key, raw := range payload {
		switch key {
		case "detail", "non_field_errors", "error", "message", "code":
			continue
		}
		msgs := stringsOf(raw)
		if len(msgs) == 0 {
			continue
		}
		if fields == nil {
			fields = make(map[string][]string)
		}
		fields[key] = msgs
	}
	return fields
}

// stringsOf accepts a string or a list of strings.
func stringsOf(raw json.RawMessage) []string {
	var one string
	if json.Unmarshal(raw, &one) == nil {
		if one = strings.TrimSpace(one); one != "" {
			return []string{one}
		}
		return nil
	}
	var many []string
	if json.Unmarshal(raw, &many) == nil {
		out := many[:0]
		for _, m := range many {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
