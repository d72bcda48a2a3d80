// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mattn/go-runewidth"
)

// FitWidth truncates s to at most maxWidth terminal cells, appending "..."
// when something was cut. CJK and emoji count as two cells.
func FitWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// CellWidth returns the display width of s in terminal cells.
func CellWidth(s string) int {
	return runewidth.StringWidth(s)
}

// Countdown formats d as M:SS. Negative durations render as 0:00.
func Countdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// HumanDuration renders d as "45s", "4m" or "4m 30s". Hours roll into
// minutes; session lifetimes never need more.
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return strconv.Itoa(int(d/time.Second)) + "s"
	}
	mins := int(d / time.Minute)
	secs := int(d/time.Second) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
