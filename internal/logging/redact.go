// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

// RedactedPlaceholder replaces sensitive values.
const RedactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// JWTs (header.payload.signature, header always starts eyJ)
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`),
	// Authorization header values
	regexp.MustCompile(`(?i)\b(bearer|token)\s+[A-Za-z0-9._~+/-]{20,}=*`),
	// DRF-style 40 char hex tokens
	regexp.MustCompile(`\b[a-f0-9]{40}\b`),
	// key=value assignments
	regexp.MustCompile(`(?i)\b(password[12]?|passphrase|secret|token|key)\s*[:=]\s*[^\s,;&]+`),
}

// sensitiveKeys are field names whose value is dropped regardless of content.
var sensitiveKeys = map[string]bool{
	"password":     true,
	"password1":    true,
	"password2":    true,
	"passphrase":   true,
	"token":        true,
	"key":          true,
	"access":       true,
	"refresh":      true,
	"access_token": true,
	"id_token":     true,
	"credential":   true,
	"auth_token":   true,
}

// RedactString scrubs credentials out of free text.
func RedactString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, RedactedPlaceholder)
	}
	return s
}

// IsSensitiveKey reports whether a field with this name must never be logged.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case IsSensitiveKey(f.Key):
			out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: RedactedPlaceholder}
		case f.Type == zapcore.StringType:
			f.String = RedactString(f.String)
			out[i] = f
		default:
			out[i] = f
		}
	}
	return out
}

// =============================================================================
// REDACTING CORE
// =============================================================================

type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so messages and string fields are scrubbed
// before they are encoded.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	e.Message = RedactString(e.Message)
	return c.Core.Write(e, redactFields(fields))
}
