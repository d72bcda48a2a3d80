// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/portalctl/internal/storage"
)

// TabDirName is the directory under the storage dir holding tab-scoped files.
const TabDirName = "tabs"

// TabScope returns the identifier of the current terminal. An explicit value
// wins, then PORTAL_TAB_ID, then the parent process id (the shell that runs
// each command).
func TabScope(explicit string) string {
	if explicit != "" {
		return sanitizeScope(explicit)
	}
	if v := os.Getenv("PORTAL_TAB_ID"); v != "" {
		return sanitizeScope(v)
	}
	return "ppid-" + strconv.Itoa(os.Getppid())
}

func sanitizeScope(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "default"
	}
	return out
}

// TabStorePath returns the file backing scope under dir.
func TabStorePath(dir, scope string) string {
	return filepath.Join(dir, TabDirName, sanitizeScope(scope)+".json")
}

// OpenTabStore returns the tab-scoped store for scope under dir.
func OpenTabStore(dir, scope string, logger *zap.Logger) *storage.FileStore {
	return storage.NewFileStore(TabStorePath(dir, scope), storage.WithFileLogger(logger))
}
