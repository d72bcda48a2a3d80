// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UserID is the backend's primary key. It accepts JSON numbers and strings.
type UserID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// MarshalJSON writes integer ids as numbers so the persisted form matches
// what the backend sent.
func (id UserID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// User is the account record returned by the backend. The backend is
// authoritative; portalctl only caches it.
type User struct {
	ID         UserID `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	IsVerified bool   `json:"is_verified,omitempty"`
	DateJoined string `json:"date_joined,omitempty"`
	LastLogin  string `json:"last_login,omitempty"`
}

// UnmarshalJSON accepts "pk" as an alias for "id", as emitted by the
// user-details serializer.
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var aux struct {
		plain
		PK *UserID `json:"pk"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" && aux.PK != nil {
		u.ID = *aux.PK
	}
	return nil
}

// DisplayName returns the full name, falling back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Valid reports whether the record carries the fields a session needs.
func (u User) Valid() bool {
	return u.ID != "" && u.Email != ""
}
