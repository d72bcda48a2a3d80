// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/portalctl/internal/api"
	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/telemetry"
)

// DefaultLogoutTimeout bounds the best-effort server logout.
const DefaultLogoutTimeout = 5 * time.Second

// API is the subset of *api.Client the controller drives.
type API interface {
	Login(ctx context.Context, email, password string) (*api.AuthResponse, error)
	Register(ctx context.Context, email, password string) (*api.AuthResponse, error)
	VerifyEmail(ctx context.Context, key string) (*api.AuthResponse, error)
	PasswordReset(ctx context.Context, email string) error
	Google(ctx context.Context, credential string) (*api.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*session.User, error)
}

// State is the observable auth state.
type State struct {
	User            *session.User
	IsLoading       bool
	IsAuthenticated bool
	Error           string
	IsInitialized   bool
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

type credentials struct {
	email    string
	password string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller coordinates the API client and the session store.
type Controller struct {
	api           API
	store         *session.Store
	logger        *zap.Logger
	metrics       *telemetry.Metrics
	logoutTimeout time.Duration
	tokenTTL      time.Duration
	now           func() time.Time

	mu       sync.Mutex
	state    State
	inflight int
	seq      uint64 // session-writing tickets
	userSeq  uint64 // RefreshUser tickets
	pending  *credentials

	pubMu     sync.Mutex
	subMu     sync.Mutex
	listeners map[int]func(State)
	nextID    int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogoutTimeout bounds the server logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.logoutTimeout = d
		}
	}
}

// WithTokenTTL sets the absolute expiry applied to tokens that do not carry
// their own. Zero means none.
func WithTokenTTL(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.tokenTTL = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates a controller. Call Initialize before use.
func NewController(client API, store *session.Store, opts ...Option) *Controller {
	c := &Controller{
		api:           client,
		store:         store,
		logger:        zap.NewNop(),
		logoutTimeout: DefaultLogoutTimeout,
		now:           time.Now,
		listeners:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// STATE
// =============================================================================

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn runs on the goroutine that made the change and must not call
// controller operations synchronously.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.listeners, id)
			c.subMu.Unlock()
		})
	}
}

// publish delivers the current state. Deliveries are serialized and always
// carry the latest state, so listeners never observe it going backwards.
func (c *Controller) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	snap := c.State()

	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Initialize restores state from the store.
func (c *Controller) Initialize() State {
	c.mu.Lock()
	c.syncLocked()
	c.state.IsInitialized = true
	c.mu.Unlock()

	c.publish()
	st := c.State()
	c.logger.Debug("auth controller initialized", zap.Bool("authenticated", st.IsAuthenticated))
	return st
}

// Sync re-reads the store. Hosts call it when the monitor or another scope
// changed the session underneath the controller.
func (c *Controller) Sync() State {
	c.mu.Lock()
	c.syncLocked()
	c.mu.Unlock()

	c.publish()
	return c.State()
}

func (c *Controller) syncLocked() {
	if c.store.IsAuthenticated() {
		user, _ := c.store.User()
		c.state.User = user
		c.state.IsAuthenticated = user != nil
		return
	}
	c.state.User = nil
	c.state.IsAuthenticated = false
}

// ClearError resets the error message.
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.state.Error = ""
	c.mu.Unlock()
	c.publish()
}

// =============================================================================
// SESSION-WRITING OPERATIONS
// =============================================================================

// Login signs in with email and password.
func (c *Controller) Login(ctx context.Context, email, password string) Result {
	email = NormalizeEmail(email)
	if res, ok := c.checkCredentials(email, password); !ok {
		return res
	}

	ticket := c.begin()
	resp, err := c.api.Login(ctx, email, password)
	if err == nil {
		resp, err = c.withUser(ctx, resp)
	}

	return c.settle(ticket, "login", func() Result {
		if err != nil {
			return c.failLocked(err)
		}
		return c.establishLocked(resp)
	})
}

// Register creates an account. When the backend withholds a token until the
// email is verified, the credentials are kept in memory for the login that
// follows VerifyEmail.
func (c *Controller) Register(ctx context.Context, email, password string) Result {
	email = NormalizeEmail(email)
	if res, ok := c.checkCredentials(email, password); !ok {
		return res
	}

	ticket := c.begin()
	resp, err := c.api.Register(ctx, email, password)
	if err == nil && resp.Token != "" {
		resp, err = c.withUser(ctx, resp)
	}

	return c.settle(ticket, "register", func() Result {
		if err != nil {
			return c.failLocked(err)
		}
		if resp.Token == "" {
			c.pending = &credentials{email: email, password: password}
			msg := resp.Detail
			if msg == "" {
				msg = MsgVerificationSent
			}
			c.logger.Info("registration pending verification")
			return Result{Success: true, VerificationRequired: true, Message: msg}
		}
		return c.establishLocked(resp)
	})
}

// GoogleAuth signs in with a Google ID token or access token.
func (c *Controller) GoogleAuth(ctx context.Context, credential string) Result {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return c.reject(invalid("credential", MsgCredentialRequired))
	}

	ticket := c.begin()
	resp, err := c.api.Google(ctx, credential)
	if err == nil {
		resp, err = c.withUser(ctx, resp)
	}

	return c.settle(ticket, "google", func() Result {
		if err != nil {
			return c.failLocked(err)
		}
		return c.establishLocked(resp)
	})
}

// VerifyEmail confirms a verification code. The session comes from the
// response when it carries a token, otherwise from signing in with the
// credentials remembered by Register.
func (c *Controller) VerifyEmail(ctx context.Context, code string) Result {
	code = strings.TrimSpace(code)
	if code == "" {
		return c.reject(invalid("key", MsgCodeRequired))
	}

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	ticket := c.begin()
	verified := false
	resp, err := c.api.VerifyEmail(ctx, code)
	if err == nil {
		verified = true
		switch {
		case resp.Token != "":
			resp, err = c.withUser(ctx, resp)
		case pending != nil:
			resp, err = c.api.Login(ctx, pending.email, pending.password)
			if err == nil {
				resp, err = c.withUser(ctx, resp)
			}
		}
	}

	return c.settle(ticket, "verify_email", func() Result {
		if err != nil {
			// The code is spent once verified; a failed sign-in after it
			// leaves the user to sign in by hand.
			if verified {
				c.pending = nil
			}
			return c.failLocked(err)
		}
		if resp.Token == "" {
			c.pending = nil
			return Result{Success: true, Message: MsgEmailVerified}
		}
		return c.establishLocked(resp)
	})
}

// begin takes a session ticket and marks the controller busy.
func (c *Controller) begin() uint64 {
	c.mu.Lock()
	c.seq++
	ticket := c.seq
	c.inflight++
	c.state.IsLoading = true
	c.state.Error = ""
	c.mu.Unlock()

	c.publish()
	return ticket
}

// settle ends a session-writing request. apply runs under the controller
// lock, and only when ticket is still the latest.
func (c *Controller) settle(ticket uint64, op string, apply func() Result) Result {
	c.mu.Lock()
	c.inflight--
	c.state.IsLoading = c.inflight > 0

	if ticket != c.seq {
		latest := c.seq
		c.mu.Unlock()

		c.metrics.StaleResponse(op)
		c.logger.Debug("dropping stale response",
			zap.String("op", op),
			zap.Uint64("ticket", ticket),
			zap.Uint64("latest", latest),
		)
		c.publish()
		return Result{Stale: true, Message: MsgStale}
	}

	res := apply()
	c.mu.Unlock()

	c.publish()
	return res
}

// withUser fills in the user when the auth response did not embed one.
func (c *Controller) withUser(ctx context.Context, resp *api.AuthResponse) (*api.AuthResponse, error) {
	if resp.Token == "" {
		return nil, &api.Error{Kind: api.KindDecode, Message: api.MsgDecode, Status: http.StatusOK,
			Err: errors.New("response carried no session key")}
	}
	if resp.User != nil {
		return resp, nil
	}
	user, err := c.api.CurrentUser(ctx, resp.Token)
	if err != nil {
		return nil, err
	}
	resp.User = user
	return resp, nil
}

// establishLocked writes the session. Caller holds c.mu.
func (c *Controller) establishLocked(resp *api.AuthResponse) Result {
	expiresIn := c.tokenTTL
	if !resp.ExpiresAt.IsZero() {
		expiresIn = resp.ExpiresAt.Sub(c.now())
		if expiresIn <= 0 {
			return c.failLocked(&api.Error{Kind: api.KindAuth, Message: MsgExpiredToken})
		}
	}

	if err := c.store.SetSession(resp.Token, *resp.User, expiresIn); err != nil {
		c.logger.Warn("session not persisted", zap.Error(err))
		return c.failLocked(&api.Error{Kind: api.KindStorage, Message: MsgStorage, Err: err})
	}

	user := *resp.User
	c.pending = nil
	c.state.User = &user
	c.state.IsAuthenticated = true
	c.state.Error = ""

	out := user
	return Result{Success: true, Message: MsgSignedIn, User: &out}
}

// failLocked records err as the form error. Caller holds c.mu.
func (c *Controller) failLocked(err error) Result {
	apiErr := api.AsError(err)
	c.state.Error = apiErr.Message
	c.logger.Debug("auth operation failed",
		zap.String("kind", string(apiErr.Kind)),
		zap.Int("status", apiErr.Status),
		zap.String("request_id", apiErr.RequestID),
		zap.Error(apiErr.Err),
	)
	return resultFromError(apiErr)
}

// reject publishes a local validation failure.
func (c *Controller) reject(res Result) Result {
	c.mu.Lock()
	c.state.Error = res.Message
	c.mu.Unlock()
	c.publish()
	return res
}

func (c *Controller) checkCredentials(email, password string) (Result, bool) {
	switch {
	case email == "":
		return c.reject(invalid("email", MsgEmailRequired)), false
	case !plausibleEmail(email):
		return c.reject(invalid("email", MsgEmailInvalid)), false
	case password == "":
		return c.reject(invalid("password", MsgPasswordRequired)), false
	}
	return Result{}, true
}

// =============================================================================
// OTHER OPERATIONS
// =============================================================================

// ResetPassword requests a reset email. The message never reveals whether
// the address has an account.
func (c *Controller) ResetPassword(ctx context.Context, email string) Result {
	email = NormalizeEmail(email)
	if email == "" {
		return c.reject(invalid("email", MsgEmailRequired))
	}

	c.mu.Lock()
	c.inflight++
	c.state.IsLoading = true
	c.state.Error = ""
	c.mu.Unlock()
	c.publish()

	err := c.api.PasswordReset(ctx, email)

	c.mu.Lock()
	c.inflight--
	c.state.IsLoading = c.inflight > 0
	var res Result
	if err != nil && api.KindOf(err) == api.KindRateLimited {
		res = c.failLocked(err)
	} else {
		if err != nil {
			c.logger.Debug("password reset request failed", zap.String("kind", string(api.KindOf(err))))
		}
		res = Result{Success: true, Message: MsgResetSent}
	}
	c.mu.Unlock()

	c.publish()
	return res
}

// Logout ends the session. The local session is cleared first and always;
// the server call is best-effort and bounded by the logout timeout.
func (c *Controller) Logout(ctx context.Context) Result {
	c.mu.Lock()
	c.seq++
	c.userSeq++
	c.pending = nil

	token, _ := c.store.Token()
	if err := c.store.ClearSession(); err != nil {
		c.logger.Warn("local session clear failed", zap.Error(err))
	}
	c.state.User = nil
	c.state.IsAuthenticated = false
	c.state.Error = ""
	c.mu.Unlock()
	c.publish()

	if token != "" {
		lctx, cancel := context.WithTimeout(ctx, c.logoutTimeout)
		defer cancel()
		if err := c.api.Logout(lctx, token); err != nil {
			c.logger.Info("server logout failed", zap.String("kind", string(api.KindOf(err))))
		}
	}

	c.logger.Info("signed out")
	return Result{Success: true, Message: MsgSignedOut}
}

// RefreshUser refetches the current user. The session timing is untouched.
// A 401 means the server no longer honours the token and ends the session.
func (c *Controller) RefreshUser(ctx context.Context) Result {
	token, ok := c.store.Token()
	if !ok {
		c.Sync()
		return Result{Kind: api.KindSessionExpired, Message: api.MsgSessionExpired}
	}

	c.mu.Lock()
	c.userSeq++
	ticket, sessionTicket := c.userSeq, c.seq
	c.mu.Unlock()

	user, err := c.api.CurrentUser(ctx, token)

	c.mu.Lock()
	if ticket != c.userSeq || sessionTicket != c.seq {
		c.mu.Unlock()
		c.metrics.StaleResponse("refresh_user")
		return Result{Stale: true, Message: MsgStale}
	}

	var res Result
	switch {
	case err != nil:
		apiErr := api.AsError(err)
		if apiErr.Status == http.StatusUnauthorized {
			if cerr := c.store.ClearSession(); cerr != nil {
				c.logger.Warn("local session clear failed", zap.Error(cerr))
			}
			c.state.User = nil
			c.state.IsAuthenticated = false
			c.metrics.SessionExpired("unauthorized")
			c.logger.Info("session rejected by server")
			res = Result{Kind: api.KindSessionExpired, Message: api.MsgSessionExpired, Status: apiErr.Status}
		} else {
			res = c.failLocked(apiErr)
		}
	default:
		if rerr := c.store.ReplaceUser(*user); rerr != nil {
			c.logger.Warn("user not persisted", zap.Error(rerr))
			res = Result{Kind: api.KindStorage, Message: MsgStorage}
			break
		}
		u := *user
		c.state.User = &u
		out := u
		res = Result{Success: true, Message: MsgUserRefreshed, User: &out}
	}
	c.mu.Unlock()

	c.publish()
	return res
}
