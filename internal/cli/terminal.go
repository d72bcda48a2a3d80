// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - TTY and colour detection.

package cli

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/portalctl/internal/ui/styles"
)

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ColorsEnabled reports whether styled output should be used.
// NO_COLOR wins over FORCE_COLOR, which wins over TTY detection.
// See https://no-color.org/.
func ColorsEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return IsStdoutTTY()
}

// GetColorProfile returns Ascii when colours are disabled and the detected
// terminal profile otherwise.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// OutputTheme returns the theme for one-shot command output.
func OutputTheme() *styles.Theme {
	profile := GetColorProfile()
	dark := true
	if profile != termenv.Ascii {
		dark = termenv.HasDarkBackground()
	}
	return styles.NewThemeFor(profile, dark)
}
