// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling for portalctl.
//
// Colors are Lip Gloss AdaptiveColors so light and dark terminals both read
// well. Theme binds them to a renderer for one termenv profile; the CLI and
// the dashboard share the same Theme, and piping output to a file selects
// the Ascii profile so no escape codes leak.
//
// Status text always carries an ASCII indicator ([OK], [X], [!], [i]) in
// addition to colour.
package styles
