// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/jeranaias/portalctl/internal/storage"
)

// =============================================================================
// CROSS-TAB SYNC
// =============================================================================

// Watch follows durable token changes made by other terminals until ctx is
// done. When the token is removed elsewhere this tab's session is dropped
// (ReasonRemoved); when it is replaced by a different token this tab's
// metadata is dropped (ReasonRotated). The new durable token is never touched.
// onChange runs on the watch goroutine after the store has been updated.
//
// Without Watch each tab is authoritative for its own metadata and only
// notices external changes on its next read.
func (s *Store) Watch(ctx context.Context, onChange func(ExpiryReason)) error {
	w, ok := s.durable.(storage.Watcher)
	if !ok {
		return storage.ErrWatchUnsupported
	}
	events, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	go func() {
		for ev := range events {
			if ev.Key != TokenKey {
				continue
			}
			reason, changed := s.applyExternal(ev)
			if changed && onChange != nil {
				onChange(reason)
			}
		}
	}()
	return nil
}

func (s *Store) applyExternal(ev storage.Event) (ExpiryReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	var reason ExpiryReason
	switch snap := s.load(ctx); {
	case snap.state == partial && ev.Deleted:
		reason = ReasonRemoved
	case snap.state == mismatched:
		reason = ReasonRotated
	default:
		return ReasonNone, false
	}

	if err := s.clearLocked(false); err != nil {
		return reason, false
	}
	s.logger.Info("session changed in another terminal", zap.String("reason", string(reason)))
	return reason, true
}
