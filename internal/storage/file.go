// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jeranaias/portalctl/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps every key in one JSON object on disk. Each access re-reads the
// file so writes from other processes are visible; writes replace the file
// atomically.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileLogger sets the logger used by Watch.
func WithFileLogger(l *zap.Logger) FileOption {
	return func(f *FileStore) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFileStore returns a store backed by path. The file is created on first write.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	f := &FileStore{
		path:   filepath.Clean(path),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readAll()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

// Set implements Store.
func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readAll()
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		// A corrupt file is replaced rather than wedging every write.
		f.logger.Warn("replacing corrupt store file", zap.String("path", f.path), zap.Error(err))
		data = make(map[string]string)
	}
	data[key] = value
	return f.writeAll(data)
}

// Delete implements Store.
func (f *FileStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readAll()
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			return os.Remove(f.path)
		}
		return err
	}

	changed := false
	for _, k := range keys {
		if _, ok := data[k]; ok {
			delete(data, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if len(data) == 0 {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}
	return f.writeAll(data)
}

// Close implements Store.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) readAll() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) == 0 {
		return make(map[string]string), nil
	}

	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return data, nil
}

func (f *FileStore) writeAll(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if err := util.WriteFileAtomic(f.path, raw, 0600, 0700); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// =============================================================================
// WATCH
// =============================================================================

// Watch implements Watcher. It watches the parent directory so atomic
// replacements are seen, and diffs the file against the last snapshot.
func (f *FileStore) Watch(ctx context.Context) (<-chan Event, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	f.mu.Lock()
	snapshot, err := f.readAll()
	f.mu.Unlock()
	if err != nil {
		snapshot = make(map[string]string)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != f.path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
					!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}

				f.mu.Lock()
				next, err := f.readAll()
				f.mu.Unlock()
				if err != nil {
					// Partial write from a non-atomic writer; the next event retries.
					f.logger.Debug("store file unreadable during watch", zap.Error(err))
					continue
				}

				for _, e := range diff(snapshot, next) {
					select {
					case out <- e:
					case <-ctx.Done():
						return
					}
				}
				snapshot = next

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("store watcher error", zap.Error(err))
			}
		}
	}()

	return out, nil
}

func diff(prev, next map[string]string) []Event {
	var events []Event
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			events = append(events, Event{Key: k, Value: v})
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			events = append(events, Event{Key: k, Deleted: true})
		}
	}
	return events
}
