// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Exit codes and error types for CLI commands.
//
// Handlers always return errors and never print them. Run renders the error
// once and maps it to an exit code.

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/portalctl/internal/api"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a rejected request or an unexpected failure
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates missing, rejected or expired credentials
	ExitAuthError = 4
	// ExitNetworkError indicates the backend could not be reached
	ExitNetworkError = 5
	// ExitAbortedError indicates the user cancelled a prompt
	ExitAbortedError = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrAborted is returned when the user cancels an interactive prompt.
var ErrAborted = errors.New("aborted")

// ValidationError reports bad command usage.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// ConfigError wraps a configuration load failure.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// usageError builds a ValidationError for a missing argument.
func usageError(field, example string) error {
	return &ValidationError{Field: field, Reason: "is required", Example: example}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return ExitUsageError
	}
	var cerr *ConfigError
	if errors.As(err, &cerr) {
		return ExitConfigError
	}
	if errors.Is(err, ErrAborted) {
		return ExitAbortedError
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case api.KindAuth, api.KindSessionExpired:
			return ExitAuthError
		case api.KindNetwork:
			return ExitNetworkError
		}
	}
	return ExitGeneralError
}
