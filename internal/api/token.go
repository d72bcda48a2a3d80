// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IsJWT reports whether s parses as a JSON Web Token. The signature is not
// checked.
func IsJWT(s string) bool {
	if strings.Count(s, ".") != 2 {
		return false
	}
	_, _, err := jwt.NewParser().ParseUnverified(s, jwt.MapClaims{})
	return err == nil
}

// JWTExpiry returns the exp claim of a JWT without verifying the signature.
// The backend remains the authority; the client only uses exp to schedule
// its own expiry.
func JWTExpiry(s string) (time.Time, bool) {
	if strings.Count(s, ".") != 2 {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
