// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/telemetry"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 15 * time.Second

	// DefaultUserAgent identifies the client to the backend.
	DefaultUserAgent = "portalctl"

	// MaxResponseSize caps response bodies.
	MaxResponseSize = 1 * 1024 * 1024

	// RequestIDHeader is the correlation header sent with every request.
	RequestIDHeader = "X-Request-ID"
)

// Scheme is the Authorization header scheme.
const (
	SchemeBearer = "Bearer"
	SchemeToken  = "Token"
)

// Endpoints holds endpoint paths relative to the base URL.
type Endpoints struct {
	Login         string
	Logout        string
	Register      string
	VerifyEmail   string
	PasswordReset string
	Google        string
	User          string
}

// DefaultEndpoints returns the dj-rest-auth style paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:         "/auth/login/",
		Logout:        "/auth/logout/",
		Register:      "/auth/registration/",
		VerifyEmail:   "/auth/registration/verify-email/",
		PasswordReset: "/auth/password/reset/",
		Google:        "/auth/google/",
		User:          "/auth/user/",
	}
}

// AuthResponse is a decoded successful auth call.
type AuthResponse struct {
	// Token is the session key, empty when the backend issued none
	// (registration pending verification, plain verify-email).
	Token string
	// Refresh is the JWT refresh token, when issued.
	Refresh string
	// User is the embedded user, nil when the backend omitted it.
	User *session.User
	// ExpiresAt is the access token expiry, zero when unknown.
	ExpiresAt time.Time
	// Detail is the backend's informational message.
	Detail string
}

// authBody covers the token shapes dj-rest-auth produces.
type authBody struct {
	Key              string          `json:"key"`
	Token            string          `json:"token"`
	Access           string          `json:"access"`
	AccessToken      string          `json:"access_token"`
	Refresh          string          `json:"refresh"`
	AccessExpiration string          `json:"access_expiration"`
	User             json.RawMessage `json:"user"`
	Detail           string          `json:"detail"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the auth endpoints.
type Client struct {
	baseURL   string
	endpoints Endpoints
	scheme    string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithEndpoints overrides endpoint paths. Empty fields keep the defaults.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		fill := func(dst *string, v string) {
			if v != "" {
				*dst = v
			}
		}
		fill(&c.endpoints.Login, e.Login)
		fill(&c.endpoints.Logout, e.Logout)
		fill(&c.endpoints.Register, e.Register)
		fill(&c.endpoints.VerifyEmail, e.VerifyEmail)
		fill(&c.endpoints.PasswordReset, e.PasswordReset)
		fill(&c.endpoints.Google, e.Google)
		fill(&c.endpoints.User, e.User)
	}
}

// WithScheme sets the Authorization scheme, Bearer or Token.
func WithScheme(scheme string) Option {
	return func(c *Client) {
		if scheme != "" {
			c.scheme = scheme
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit installs a client-side token bucket. A non-positive rate
// disables it.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: DefaultEndpoints(),
		scheme:    SchemeBearer,
		userAgent: DefaultUserAgent,
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Login exchanges credentials for a session key.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authCall(ctx, "login", c.endpoints.Login, body)
}

// Register creates an account. The response carries no token when the
// backend requires email verification first.
func (c *Client) Register(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password1": password, "password2": password}
	return c.authCall(ctx, "register", c.endpoints.Register, body)
}

// VerifyEmail confirms a verification key.
func (c *Client) VerifyEmail(ctx context.Context, key string) (*AuthResponse, error) {
	return c.authCall(ctx, "verify_email", c.endpoints.VerifyEmail, map[string]string{"key": key})
}

// PasswordReset requests a reset email.
func (c *Client) PasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, "password_reset", http.MethodPost, c.endpoints.PasswordReset, "", map[string]string{"email": email}, nil)
}

// Google exchanges a Google credential for a session key. JWT credentials
// are sent as id_token, anything else as access_token.
func (c *Client) Google(ctx context.Context, credential string) (*AuthResponse, error) {
	field := "access_token"
	if IsJWT(credential) {
		field = "id_token"
	}
	return c.authCall(ctx, "google", c.endpoints.Google, map[string]string{field: credential})
}

// Logout invalidates token on the server.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, "logout", http.MethodPost, c.endpoints.Logout, token, struct{}{}, nil)
}

// CurrentUser fetches the user bound to token.
func (c *Client) CurrentUser(ctx context.Context, token string) (*session.User, error) {
	var user session.User
	if err := c.do(ctx, "user", http.MethodGet, c.endpoints.User, token, nil, &user); err != nil {
		return nil, err
	}
	if !user.Valid() {
		return nil, &Error{Kind: KindDecode, Message: MsgDecode, Status: http.StatusOK,
			Err: errors.New("user payload missing id or email")}
	}
	return &user, nil
}

func (c *Client) authCall(ctx context.Context, op, path string, payload any) (*AuthResponse, error) {
	var body authBody
	if err := c.do(ctx, op, http.MethodPost, path, "", payload, &body); err != nil {
		return nil, err
	}
	return c.decodeAuth(body)
}

func (c *Client) decodeAuth(body authBody) (*AuthResponse, error) {
	resp := &AuthResponse{Refresh: body.Refresh, Detail: body.Detail}

	for _, candidate := range []string{body.Key, body.Token, body.Access, body.AccessToken} {
		if candidate != "" {
			resp.Token = candidate
			break
		}
	}

	if resp.Token != "" {
		if exp, ok := JWTExpiry(resp.Token); ok {
			resp.ExpiresAt = exp
		} else if body.AccessExpiration != "" {
			if exp, err := time.Parse(time.RFC3339, body.AccessExpiration); err == nil {
				resp.ExpiresAt = exp
			}
		}
	}

	if len(body.User) > 0 && string(body.User) != "null" {
		var user session.User
		if err := json.Unmarshal(body.User, &user); err != nil || !user.Valid() {
			// An unusable embedded user is refetched by the caller.
			c.logger.Debug("ignoring embedded user", zap.Error(err))
		} else {
			resp.User = &user
		}
	}
	return resp, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do sends one request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op, method, path, token string, payload, out any) error {
	requestID := uuid.NewString()
	start := c.now()
	err := c.send(ctx, requestID, method, path, token, payload, out)

	outcome := "ok"
	if err != nil {
		apiErr := AsError(err)
		apiErr.RequestID = requestID
		err = apiErr
		outcome = string(apiErr.Kind)
	}
	c.metrics.ObserveAuth(op, outcome, c.now().Sub(start))
	return err
}

func (c *Client) send(ctx context.Context, requestID, method, path, token string, payload, out any) error {
	if c.limiter != nil && !c.limiter.Allow() {
		return &Error{Kind: KindRateLimited, Message: MsgRateLimited}
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &Error{Kind: KindDecode, Message: MsgDecode, Err: fmt.Errorf("encode request: %w", err)}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", c.scheme+" "+token)
	}

	log := c.logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug("request failed", zap.Error(err))
		return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		log.Debug("response unreadable", zap.Int("status", resp.StatusCode), zap.Error(err))
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &Error{Kind: KindDecode, Message: MsgDecode, Status: resp.StatusCode, Err: err}
		}
		return &Error{Kind: kindForStatus(resp.StatusCode), Message: defaultMessage(kindForStatus(resp.StatusCode), resp.StatusCode),
			Status: resp.StatusCode, Err: err}
	}

	log.Debug("response", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(body)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := errorFromResponse(resp.StatusCode, body, resp.Header)
		if apiErr.Kind == KindServer {
			log.Debug("server error body", zap.ByteString("body", truncate(body, 512)))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindDecode, Message: MsgDecode, Status: resp.StatusCode, Err: err}
	}
	return nil
}

// readResponse reads at most MaxResponseSize bytes of the body.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
