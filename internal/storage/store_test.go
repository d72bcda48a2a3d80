// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedisStore(client, "portalctl:")
	t.Cleanup(func() { st.Close() })
	return st, mr
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	sqlite, err := OpenSQLite(ctx, filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	rs, _ := newRedisTestStore(t)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "store.json")),
		"sqlite": sqlite,
		"redis":  rs,
	}
}

func TestStore_Conformance(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := st.Get(ctx, "auth_token")
			require.NoError(t, err)
			assert.False(t, ok, "empty store should not have key")

			require.NoError(t, st.Set(ctx, "auth_token", "tok1"))
			require.NoError(t, st.Set(ctx, "orders_cache", "[]"))

			v, ok, err := st.Get(ctx, "auth_token")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "tok1", v)

			require.NoError(t, st.Set(ctx, "auth_token", "tok2"))
			v, _, _ = st.Get(ctx, "auth_token")
			assert.Equal(t, "tok2", v, "set should overwrite")

			require.NoError(t, st.Delete(ctx, "auth_token", "orders_cache", "never_set"))
			_, ok, err = st.Get(ctx, "auth_token")
			require.NoError(t, err)
			assert.False(t, ok)

			// Idempotent delete
			require.NoError(t, st.Delete(ctx, "auth_token"))
			require.NoError(t, st.Delete(ctx))
		})
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	st := NewMemoryStore()
	require.NoError(t, st.Close())

	_, _, err := st.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, st.Set(context.Background(), "k", "v"), ErrClosed)
}

func TestFileStore_SharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")
	a := NewFileStore(path)
	b := NewFileStore(path)

	require.NoError(t, a.Set(ctx, "auth_token", "shared"))
	v, ok, err := b.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "shared", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	st := NewFileStore(path)
	_, _, err := st.Get(ctx, "auth_token")
	assert.ErrorIs(t, err, ErrCorrupt)

	// Writes recover by replacing the file.
	require.NoError(t, st.Set(ctx, "auth_token", "fresh"))
	v, ok, err := st.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestFileStore_DeleteLastKeyRemovesFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")
	st := NewFileStore(path)

	require.NoError(t, st.Set(ctx, "auth_token", "tok"))
	require.NoError(t, st.Delete(ctx, "auth_token"))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "store.json")
	watched := NewFileStore(path)
	other := NewFileStore(path)

	events, err := watched.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, other.Set(ctx, "auth_token", "from-other-tab"))
	ev := waitEvent(t, events, "auth_token")
	assert.False(t, ev.Deleted)
	assert.Equal(t, "from-other-tab", ev.Value)

	require.NoError(t, other.Delete(ctx, "auth_token"))
	ev = waitEvent(t, events, "auth_token")
	assert.True(t, ev.Deleted)

	cancel()
	for range events {
		// drain until closed
	}
}

func waitEvent(t *testing.T, events <-chan Event, key string) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "watch channel closed early")
			if ev.Key == key {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event on %q", key)
		}
	}
}

func TestRedisStore_UsesPrefix(t *testing.T) {
	ctx := context.Background()
	st, mr := newRedisTestStore(t)

	require.NoError(t, st.Set(ctx, "auth_token", "tok"))
	got, err := mr.Get("portalctl:auth_token")
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
	assert.False(t, mr.Exists("auth_token"))
}

func TestRedisStore_ServerDown(t *testing.T) {
	ctx := context.Background()
	st, mr := newRedisTestStore(t)
	mr.Close()

	_, _, err := st.Get(ctx, "auth_token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := OpenRedis(ctx, "127.0.0.1:1", 0, "p:")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := Open(ctx, Options{Backend: "file", Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)

	st, err = Open(ctx, Options{Backend: "sqlite", Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	mr := miniredis.RunT(t)
	st, err = Open(ctx, Options{Backend: "redis", RedisAddr: mr.Addr(), RedisPrefix: "x:"})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.Error(t, err)
}

// rot13Sealer is a reversible stand-in for the real AES sealer.
type rot13Sealer struct{ failOpen bool }

func (r rot13Sealer) Seal(p string) (string, error) { return "ENC:" + rot13(p), nil }

func (r rot13Sealer) Open(s string) (string, error) {
	if r.failOpen || !strings.HasPrefix(s, "ENC:") {
		return "", errors.New("bad seal")
	}
	return rot13(strings.TrimPrefix(s, "ENC:")), nil
}

func rot13(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		}
		return r
	}, s)
}

func TestSealedStore(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	st := NewSealed(inner, rot13Sealer{}, "auth_token")

	require.NoError(t, st.Set(ctx, "auth_token", "secret"))
	require.NoError(t, st.Set(ctx, "auth_user", "plain"))

	raw, _, _ := inner.Get(ctx, "auth_token")
	assert.Equal(t, "ENC:frperg", raw)
	raw, _, _ = inner.Get(ctx, "auth_user")
	assert.Equal(t, "plain", raw)

	v, ok, err := st.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secret", v)
}

func TestSealedStore_OpenFailureIsCorrupt(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Set(ctx, "auth_token", "ENC:garbage"))

	st := NewSealed(inner, rot13Sealer{failOpen: true}, "auth_token")
	_, ok, err := st.Get(ctx, "auth_token")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSealedStore_WatchUnsupported(t *testing.T) {
	st := NewSealed(NewMemoryStore(), rot13Sealer{}, "auth_token")
	_, err := st.Watch(context.Background())
	assert.ErrorIs(t, err, ErrWatchUnsupported)
}

func TestSealedStore_WatchOpensValues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "store.json")
	st := NewSealed(NewFileStore(path), rot13Sealer{}, "auth_token")
	other := NewSealed(NewFileStore(path), rot13Sealer{}, "auth_token")

	events, err := st.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, other.Set(ctx, "auth_token", "rotated"))
	ev := waitEvent(t, events, "auth_token")
	assert.Equal(t, "rotated", ev.Value)
}
