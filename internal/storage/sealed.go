// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
)

// Sealer encrypts and decrypts individual values.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// SealedStore encrypts the values of selected keys before they reach the
// wrapped store. Other keys pass through unchanged.
type SealedStore struct {
	inner  Store
	sealer Sealer
	keys   map[string]bool
}

// NewSealed wraps inner so the listed keys are sealed at rest.
func NewSealed(inner Store, sealer Sealer, keys ...string) *SealedStore {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return &SealedStore{inner: inner, sealer: sealer, keys: set}
}

// Get implements Store.
func (s *SealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok || !s.keys[key] {
		return v, ok, err
	}
	plain, err := s.sealer.Open(v)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return plain, true, nil
}

// Set implements Store.
func (s *SealedStore) Set(ctx context.Context, key, value string) error {
	if !s.keys[key] {
		return s.inner.Set(ctx, key, value)
	}
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

// Delete implements Store.
func (s *SealedStore) Delete(ctx context.Context, keys ...string) error {
	return s.inner.Delete(ctx, keys...)
}

// Close implements Store.
func (s *SealedStore) Close() error {
	return s.inner.Close()
}

// Watch implements Watcher when the wrapped store does. Sealed values are
// opened before delivery; values that fail to open are dropped.
func (s *SealedStore) Watch(ctx context.Context) (<-chan Event, error) {
	w, ok := s.inner.(Watcher)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	in, err := w.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, cap(in))
	go func() {
		defer close(out)
		for ev := range in {
			if s.keys[ev.Key] && !ev.Deleted {
				plain, err := s.sealer.Open(ev.Value)
				if err != nil {
					continue
				}
				ev.Value = plain
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
