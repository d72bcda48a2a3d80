// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/portalctl/internal/storage"
	"github.com/jeranaias/portalctl/internal/telemetry"
)

// =============================================================================
// KEYS AND DEFAULTS
// =============================================================================

const (
	// TokenKey holds the bearer token in the durable store.
	TokenKey = "auth_token"
	// UserKey holds the User JSON in the tab store.
	UserKey = "auth_user"
	// SessionKey holds the session metadata JSON in the tab store.
	SessionKey = "auth_session"
)

// AuxiliaryKeys are dashboard caches removed together with the session.
var AuxiliaryKeys = []string{"orders_cache", "payments_cache", "services_cache", "projects_cache"}

const (
	// DefaultTimeout is the inactivity timeout.
	DefaultTimeout = 15 * time.Minute
	// DefaultWarningBefore is how long before timeout the warning appears.
	DefaultWarningBefore = 2 * time.Minute

	storageTimeout = 3 * time.Second
)

var (
	// ErrNoSession is returned by operations that need a valid session.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidSession is returned by SetSession for unusable input.
	ErrInvalidSession = errors.New("session requires a token and a user with id and email")
)

// =============================================================================
// TYPES
// =============================================================================

// metadata is the tab-scoped record. Times are milliseconds since epoch.
type metadata struct {
	Token        string `json:"token"`
	User         User   `json:"user"`
	ExpiresAt    int64  `json:"expiresAt"`
	LastActivity int64  `json:"lastActivity"`
}

// Info is the derived view of the current session. It is never persisted.
type Info struct {
	IsValid bool
	// TimeUntilExpiry is zero when the session has no absolute expiry.
	TimeUntilExpiry  time.Duration
	TimeUntilTimeout time.Duration
	LastActivity     time.Time
	// ExpiresAt is the zero time when there is no absolute expiry.
	ExpiresAt time.Time
}

// HasExpiry reports whether an absolute expiry applies.
func (i *Info) HasExpiry() bool {
	return !i.ExpiresAt.IsZero()
}

// Remaining returns the time left before either limit ends the session.
func (i *Info) Remaining() time.Duration {
	r := i.TimeUntilTimeout
	if i.HasExpiry() && i.TimeUntilExpiry < r {
		r = i.TimeUntilExpiry
	}
	return r
}

// ExpiryReason says why a session stopped being valid.
type ExpiryReason string

const (
	ReasonNone       ExpiryReason = ""
	ReasonInactivity ExpiryReason = "inactivity"
	ReasonExpired    ExpiryReason = "absolute"
	ReasonPartial    ExpiryReason = "partial"
	ReasonRotated    ExpiryReason = "rotated"
	ReasonRemoved    ExpiryReason = "removed"
)

// Describe words the reason for the user.
func (r ExpiryReason) Describe() string {
	switch r {
	case ReasonInactivity:
		return "Signed out after a period of inactivity."
	case ReasonExpired:
		return "Your session reached its time limit."
	case ReasonRotated:
		return "You signed in elsewhere, so this session ended."
	case ReasonRemoved:
		return "You signed out in another window."
	default:
		return "Your session has ended. Please sign in again."
	}
}

type presence int

const (
	absent     presence = iota // no tab data at all
	partial                    // some keys missing or undecodable
	mismatched                 // complete tab data for a token that is no longer durable
	present
)

type snapshot struct {
	token string
	meta  metadata
	state presence
}

// =============================================================================
// STORE
// =============================================================================

// Store persists the session across a durable store and a tab-scoped store
// and evaluates its validity. It is safe for concurrent use.
type Store struct {
	durable storage.Store
	tab     storage.Store

	timeout       time.Duration
	clearOnRead   bool
	writeInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger
	metrics       *telemetry.Metrics

	mu sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTimeout sets the inactivity timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClearOnRead makes IsAuthenticated clear an invalid session as a side
// effect, matching the legacy dashboard behaviour.
func WithClearOnRead(enabled bool) StoreOption {
	return func(s *Store) { s.clearOnRead = enabled }
}

// WithActivityWriteInterval skips activity writes that land within d of the
// previous one. Zero writes every call.
func WithActivityWriteInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		if d >= 0 {
			s.writeInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m *telemetry.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a Store over the given durable and tab-scoped backends.
func NewStore(durable, tab storage.Store, opts ...StoreOption) *Store {
	s := &Store{
		durable: durable,
		tab:     tab,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the inactivity timeout.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// =============================================================================
// WRITES
// =============================================================================

// SetSession replaces any existing session. expiresIn <= 0 means no absolute
// expiry. Storage failures are logged and returned; the caller must not assume
// the session was written.
func (s *Store) SetSession(token string, user User, expiresIn time.Duration) error {
	if token == "" || !user.Valid() {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	meta := metadata{
		Token:        token,
		User:         user,
		LastActivity: now.UnixMilli(),
	}
	if expiresIn > 0 {
		meta.ExpiresAt = now.Add(expiresIn).UnixMilli()
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := s.durable.Set(ctx, TokenKey, token); err != nil {
		return s.storageFailure("set_session", err)
	}
	if err := s.writeTab(ctx, meta); err != nil {
		return s.storageFailure("set_session", err)
	}

	s.logger.Info("session started",
		zap.String("user_id", string(user.ID)),
		zap.Bool("absolute_expiry", meta.ExpiresAt != 0),
	)
	return nil
}

// ReplaceUser swaps the cached user without touching lastActivity or expiresAt.
func (s *Store) ReplaceUser(user User) error {
	if !user.Valid() {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	snap := s.load(ctx)
	if snap.state != present || !s.valid(snap.meta, s.now()) {
		return ErrNoSession
	}

	snap.meta.User = user
	if err := s.writeTab(ctx, snap.meta); err != nil {
		return s.storageFailure("replace_user", err)
	}
	return nil
}

// UpdateLastActivity bumps lastActivity to now when a valid session exists.
// It never moves the timestamp backwards and never revives an invalid session.
func (s *Store) UpdateLastActivity() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	snap := s.load(ctx)
	now := s.now()
	if snap.state != present || !s.valid(snap.meta, now) {
		return nil
	}

	next := now.UnixMilli()
	if next <= snap.meta.LastActivity {
		return nil
	}
	if s.writeInterval > 0 && time.Duration(next-snap.meta.LastActivity)*time.Millisecond < s.writeInterval {
		return nil
	}

	snap.meta.LastActivity = next
	raw, err := json.Marshal(snap.meta)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.tab.Set(ctx, SessionKey, string(raw)); err != nil {
		return s.storageFailure("update_activity", err)
	}
	s.metrics.ActivityWritten()
	return nil
}

// RefreshSession extends the session. It is the "extend" user action.
func (s *Store) RefreshSession() error {
	return s.UpdateLastActivity()
}

// ClearSession removes every session key and the auxiliary caches. It is
// idempotent.
func (s *Store) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(true)
}

func (s *Store) clearLocked(includeDurable bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	var errs []error
	tabKeys := append([]string{UserKey, SessionKey}, AuxiliaryKeys...)
	if err := s.tab.Delete(ctx, tabKeys...); err != nil {
		errs = append(errs, err)
	}
	if includeDurable {
		durableKeys := append([]string{TokenKey}, AuxiliaryKeys...)
		if err := s.durable.Delete(ctx, durableKeys...); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return s.storageFailure("clear_session", err)
	}
	return nil
}

func (s *Store) writeTab(ctx context.Context, meta metadata) error {
	userRaw, err := json.Marshal(meta.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.tab.Set(ctx, UserKey, string(userRaw)); err != nil {
		return err
	}
	return s.tab.Set(ctx, SessionKey, string(metaRaw))
}

func (s *Store) storageFailure(op string, err error) error {
	s.logger.Error("session storage failure", zap.String("op", op), zap.Error(err))
	s.metrics.StorageError(op)
	return fmt.Errorf("session %s: %w", op, err)
}

// =============================================================================
// READS
// =============================================================================

// load reads all three keys. Read and decode failures count as missing data.
func (s *Store) load(ctx context.Context) snapshot {
	var snap snapshot

	token, hasToken, err := s.durable.Get(ctx, TokenKey)
	if err != nil {
		s.logger.Warn("durable store read failed", zap.Error(err))
		hasToken = false
	}
	userRaw, hasUser, err := s.tab.Get(ctx, UserKey)
	if err != nil {
		s.logger.Warn("tab store read failed", zap.Error(err))
		hasUser = false
	}
	metaRaw, hasMeta, err := s.tab.Get(ctx, SessionKey)
	if err != nil {
		s.logger.Warn("tab store read failed", zap.Error(err))
		hasMeta = false
	}

	if !hasUser && !hasMeta {
		snap.state = absent
		return snap
	}

	var user User
	if !hasUser || json.Unmarshal([]byte(userRaw), &user) != nil || !user.Valid() {
		snap.state = partial
		return snap
	}
	if !hasMeta || json.Unmarshal([]byte(metaRaw), &snap.meta) != nil || snap.meta.Token == "" {
		snap.state = partial
		return snap
	}
	if !hasToken || token == "" {
		snap.state = partial
		return snap
	}
	if snap.meta.Token != token {
		snap.state = mismatched
		return snap
	}

	snap.token = token
	snap.state = present
	return snap
}

func (s *Store) valid(meta metadata, now time.Time) bool {
	return s.reason(meta, now) == ReasonNone
}

func (s *Store) reason(meta metadata, now time.Time) ExpiryReason {
	ms := now.UnixMilli()
	if meta.ExpiresAt != 0 && ms > meta.ExpiresAt {
		return ReasonExpired
	}
	if time.Duration(ms-meta.LastActivity)*time.Millisecond > s.timeout {
		return ReasonInactivity
	}
	return ReasonNone
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	return s.load(ctx)
}

// Token returns the bearer token of a valid session. An invalid session reads
// as absent even before it is cleared.
func (s *Store) Token() (string, bool) {
	snap := s.snapshot()
	if snap.state != present || !s.valid(snap.meta, s.now()) {
		return "", false
	}
	return snap.token, true
}

// User returns the cached user of a valid session.
func (s *Store) User() (*User, bool) {
	snap := s.snapshot()
	if snap.state != present || !s.valid(snap.meta, s.now()) {
		return nil, false
	}
	u := snap.meta.User
	return &u, true
}

// CheckValidity reports whether a complete session exists, has not passed its
// absolute expiry and has seen activity within the timeout. It never writes.
func (s *Store) CheckValidity() bool {
	snap := s.snapshot()
	return snap.state == present && s.valid(snap.meta, s.now())
}

// IsAuthenticated is CheckValidity, plus ExpireIfInvalid when the store was
// built WithClearOnRead.
func (s *Store) IsAuthenticated() bool {
	if s.CheckValidity() {
		return true
	}
	if s.clearOnRead {
		s.ExpireIfInvalid()
	}
	return false
}

// HasSession reports whether this tab holds any session data, valid or not.
func (s *Store) HasSession() bool {
	return s.snapshot().state != absent
}

// Info returns the derived session view, or nil when there is no complete
// session.
func (s *Store) Info() *Info {
	snap := s.snapshot()
	if snap.state != present {
		return nil
	}

	now := s.now()
	meta := snap.meta
	last := time.UnixMilli(meta.LastActivity)

	info := &Info{
		IsValid:          s.valid(meta, now),
		LastActivity:     last,
		TimeUntilTimeout: clampDuration(last.Add(s.timeout).Sub(now)),
	}
	if meta.ExpiresAt != 0 {
		info.ExpiresAt = time.UnixMilli(meta.ExpiresAt)
		info.TimeUntilExpiry = clampDuration(info.ExpiresAt.Sub(now))
	}
	return info
}

func clampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// =============================================================================
// EXPIRY
// =============================================================================

// ExpireIfInvalid clears the session when it is timed out, expired, or only
// partly present. A tab whose metadata belongs to a token that was replaced
// elsewhere loses its own keys but leaves the new durable token alone. It
// returns the reason when something was cleared.
func (s *Store) ExpireIfInvalid() (ExpiryReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	snap := s.load(ctx)
	var reason ExpiryReason
	includeDurable := true

	switch snap.state {
	case absent:
		return ReasonNone, false
	case partial:
		reason = ReasonPartial
	case mismatched:
		reason = ReasonRotated
		includeDurable = false
	case present:
		reason = s.reason(snap.meta, s.now())
		if reason == ReasonNone {
			return ReasonNone, false
		}
	}

	if err := s.clearLocked(includeDurable); err != nil {
		return reason, false
	}
	s.logger.Info("session expired", zap.String("reason", string(reason)))
	return reason, true
}
