// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the portalctl packages.
//
// # Key Functions
//
// File Operations:
//   - WriteFileAtomic: crash-safe file writing with fsync and rename
//
// Display:
//   - FitWidth: display-width aware truncation (wide runes count as 2 cells)
//   - Countdown: M:SS rendering for session countdowns
//   - HumanDuration: "4m 30s" style durations for status output
//
// # Usage
//
//	// Persist a store snapshot without ever leaving a torn file
//	err := util.WriteFileAtomic(path, data, 0600, 0700)
//
//	// Render the warning countdown
//	label := util.Countdown(info.TimeUntilTimeout)
package util
