// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the key/value backends behind the session store.
//
// # Backends
//
//   - MemoryStore: process-local map, used for tests and ephemeral tab scopes
//   - FileStore: a single JSON object written atomically, watchable via fsnotify
//   - SQLiteStore: a kv table in a pure Go SQLite database
//   - RedisStore: prefixed keys on a Redis server, shared between machines
//
// SealedStore wraps any backend and encrypts selected keys at rest.
//
// # Usage
//
//	st, err := storage.Open(storage.Options{Backend: "file", Dir: dir})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//	err = st.Set(ctx, "auth_token", token)
package storage
