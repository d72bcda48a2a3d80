// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Store is a string key/value store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Close releases the backend.
	Close() error
}

// Watcher is implemented by stores that can report changes made by other
// processes.
type Watcher interface {
	// Watch emits an Event for every key that changes until ctx is done.
	// The channel is closed when watching stops.
	Watch(ctx context.Context) (<-chan Event, error)
}

// Event describes one key change.
type Event struct {
	Key     string
	Value   string
	Deleted bool
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnavailable indicates the backend cannot be reached or opened.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrCorrupt indicates stored data could not be decoded.
	ErrCorrupt = errors.New("stored data is corrupt")
	// ErrWatchUnsupported is returned by Watch on backends without change events.
	ErrWatchUnsupported = errors.New("backend does not support change notification")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// =============================================================================
// OPEN
// =============================================================================

// Options selects and configures a durable backend.
type Options struct {
	// Backend is "file", "sqlite", "redis" or "memory".
	Backend string
	// Dir holds the file and SQLite backends.
	Dir string

	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

// DurableFileName and DatabaseFileName are the file names used inside Dir.
const (
	DurableFileName  = "store.json"
	DatabaseFileName = "store.db"
)

// Open returns the durable backend described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileStore(filepath.Join(opts.Dir, DurableFileName)), nil
	case "sqlite":
		return OpenSQLite(ctx, filepath.Join(opts.Dir, DatabaseFileName))
	case "redis":
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisDB, opts.RedisPrefix)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
