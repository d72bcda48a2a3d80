// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/portalctl/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete portalctl configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API       APIConfig       `toml:"api" json:"api"`
	Auth      AuthConfig      `toml:"auth" json:"auth"`
	Session   SessionConfig   `toml:"session" json:"session"`
	Storage   StorageConfig   `toml:"storage" json:"storage"`
	Security  SecurityConfig  `toml:"security" json:"security"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry"`
	UI        UIConfig        `toml:"ui" json:"ui"`
}

// APIConfig describes the REST backend.
type APIConfig struct {
	// BaseURL is the backend root, e.g. "https://api.example.com/api".
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs bounds a single request.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// LogoutTimeoutSecs bounds the best-effort logout call.
	LogoutTimeoutSecs int `toml:"logout_timeout_secs" json:"logout_timeout_secs"`
	// RateLimitPerSec and RateBurst configure the client-side token bucket.
	// 0 disables throttling.
	RateLimitPerSec float64 `toml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	RateBurst       int     `toml:"rate_burst" json:"rate_burst"`
	// UserAgent is sent on every request.
	UserAgent string `toml:"user_agent" json:"user_agent"`

	Endpoints EndpointsConfig `toml:"endpoints" json:"endpoints"`
}

// EndpointsConfig holds the auth endpoint paths relative to BaseURL.
type EndpointsConfig struct {
	Login         string `toml:"login" json:"login"`
	Logout        string `toml:"logout" json:"logout"`
	Register      string `toml:"register" json:"register"`
	VerifyEmail   string `toml:"verify_email" json:"verify_email"`
	PasswordReset string `toml:"password_reset" json:"password_reset"`
	Google        string `toml:"google" json:"google"`
	User          string `toml:"user" json:"user"`
}

// AuthConfig controls how credentials are presented to the backend.
type AuthConfig struct {
	// Scheme is the Authorization header scheme: "Bearer" or "Token".
	Scheme string `toml:"scheme" json:"scheme"`
	// TokenTTLSecs is the absolute expiry applied to opaque tokens.
	// 0 means no absolute expiry; only the inactivity timeout applies.
	// JWT access tokens use their own exp claim instead.
	TokenTTLSecs int `toml:"token_ttl_secs" json:"token_ttl_secs"`
}

// SessionConfig holds the inactivity and monitor settings.
type SessionConfig struct {
	// TimeoutMinutes is the inactivity timeout. Clamped to 1..240.
	TimeoutMinutes int `toml:"timeout_minutes" json:"timeout_minutes"`
	// CheckIntervalSecs is the monitor tick cadence.
	CheckIntervalSecs int `toml:"check_interval_secs" json:"check_interval_secs"`
	// WarningSecs is how long before timeout the warning appears.
	WarningSecs int `toml:"warning_secs" json:"warning_secs"`
	// WarningPollSecs is how often the warning surface re-reads the session.
	WarningPollSecs int `toml:"warning_poll_secs" json:"warning_poll_secs"`
	// ActivityWriteIntervalMs throttles activity writes. 0 writes every event.
	ActivityWriteIntervalMs int `toml:"activity_write_interval_ms" json:"activity_write_interval_ms"`
	// ClearOnRead restores the legacy behaviour where IsAuthenticated clears
	// an invalid session as a side effect.
	ClearOnRead bool `toml:"clear_on_read" json:"clear_on_read"`
	// CrossTabSync propagates durable token changes made by other terminals.
	CrossTabSync bool `toml:"cross_tab_sync" json:"cross_tab_sync"`
	// TabScope pins the tab-scoped store. Empty derives it from PORTAL_TAB_ID
	// or the parent process.
	TabScope string `toml:"tab_scope" json:"tab_scope"`
}

// StorageConfig selects the durable store backend.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "redis".
	Backend string `toml:"backend" json:"backend"`
	// Dir holds the file store, the tab files and the SQLite database.
	// Empty means the config directory.
	Dir string `toml:"dir" json:"dir"`
	// RedisAddr, RedisDB and RedisPrefix configure the redis backend.
	RedisAddr   string `toml:"redis_addr" json:"redis_addr"`
	RedisDB     int    `toml:"redis_db" json:"redis_db"`
	RedisPrefix string `toml:"redis_prefix" json:"redis_prefix"`
}

// SecurityConfig contains at-rest protection settings.
type SecurityConfig struct {
	// EncryptToken seals the durable token with a key derived from
	// PORTAL_TOKEN_PASSPHRASE.
	EncryptToken bool `toml:"encrypt_token" json:"encrypt_token"`
	// TokenPassphrase is normally supplied through the environment only.
	TokenPassphrase string `toml:"-" json:"-"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`
	// Development enables console encoding and full server error detail.
	Development bool `toml:"development" json:"development"`
	// File is the rotated JSON log. Empty means <config dir>/logs/portalctl.log.
	File       string `toml:"file" json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	// MetricsFile receives a Prometheus text exposition on exit, for the
	// node_exporter textfile collector. Empty disables export.
	MetricsFile string `toml:"metrics_file" json:"metrics_file"`
}

// UIConfig contains TUI preferences.
type UIConfig struct {
	// ExtendKey is the key that extends the session from the warning box.
	ExtendKey string `toml:"extend_key" json:"extend_key"`
	// AltScreen runs the TUI in the alternate screen buffer.
	AltScreen bool `toml:"alt_screen" json:"alt_screen"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// MinTimeoutMinutes and MaxTimeoutMinutes bound the inactivity timeout.
	MinTimeoutMinutes = 1
	MaxTimeoutMinutes = 240

	defaultBackend = "file"
)

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		API: APIConfig{
			BaseURL:           "http://localhost:8000/api",
			TimeoutSecs:       15,
			LogoutTimeoutSecs: 5,
			RateLimitPerSec:   2,
			RateBurst:         4,
			UserAgent:         "portalctl",
			Endpoints:         defaultEndpoints(),
		},
		Auth: AuthConfig{
			Scheme: "Bearer",
		},
		Session: SessionConfig{
			TimeoutMinutes:    15,
			CheckIntervalSecs: 60,
			WarningSecs:       120,
			WarningPollSecs:   10,
		},
		Storage: StorageConfig{
			Backend:     defaultBackend,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "portalctl:",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		UI: UIConfig{
			ExtendKey: "e",
			AltScreen: true,
		},
	}
}

func defaultEndpoints() EndpointsConfig {
	return EndpointsConfig{
		Login:         "/auth/login/",
		Logout:        "/auth/logout/",
		Register:      "/auth/registration/",
		VerifyEmail:   "/auth/registration/verify-email/",
		PasswordReset: "/auth/password/reset/",
		Google:        "/auth/google/",
		User:          "/auth/user/",
	}
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	c.API.BaseURL = strings.TrimSuffix(c.API.BaseURL, "/")
	if c.API.TimeoutSecs <= 0 {
		c.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if c.API.LogoutTimeoutSecs <= 0 {
		c.API.LogoutTimeoutSecs = d.API.LogoutTimeoutSecs
	}
	if c.API.RateBurst <= 0 {
		c.API.RateBurst = d.API.RateBurst
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = d.API.UserAgent
	}
	fillEndpoint(&c.API.Endpoints.Login, d.API.Endpoints.Login)
	fillEndpoint(&c.API.Endpoints.Logout, d.API.Endpoints.Logout)
	fillEndpoint(&c.API.Endpoints.Register, d.API.Endpoints.Register)
	fillEndpoint(&c.API.Endpoints.VerifyEmail, d.API.Endpoints.VerifyEmail)
	fillEndpoint(&c.API.Endpoints.PasswordReset, d.API.Endpoints.PasswordReset)
	fillEndpoint(&c.API.Endpoints.Google, d.API.Endpoints.Google)
	fillEndpoint(&c.API.Endpoints.User, d.API.Endpoints.User)

	if c.Auth.Scheme == "" {
		c.Auth.Scheme = d.Auth.Scheme
	}

	if c.Session.TimeoutMinutes == 0 {
		c.Session.TimeoutMinutes = d.Session.TimeoutMinutes
	}
	if c.Session.TimeoutMinutes < MinTimeoutMinutes {
		c.Session.TimeoutMinutes = MinTimeoutMinutes
	}
	if c.Session.TimeoutMinutes > MaxTimeoutMinutes {
		c.Session.TimeoutMinutes = MaxTimeoutMinutes
	}
	if c.Session.CheckIntervalSecs <= 0 {
		c.Session.CheckIntervalSecs = d.Session.CheckIntervalSecs
	}
	if c.Session.WarningSecs <= 0 {
		c.Session.WarningSecs = d.Session.WarningSecs
	}
	if c.Session.WarningPollSecs <= 0 {
		c.Session.WarningPollSecs = d.Session.WarningPollSecs
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = d.Storage.RedisAddr
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = d.Storage.RedisPrefix
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = d.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = d.Logging.MaxBackups
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = d.Logging.MaxAgeDays
	}

	if c.UI.ExtendKey == "" {
		c.UI.ExtendKey = d.UI.ExtendKey
	}
}

func fillEndpoint(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// SessionTimeout returns the inactivity timeout.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}

// CheckInterval returns the monitor tick cadence.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Session.CheckIntervalSecs) * time.Second
}

// WarningThreshold returns how long before timeout the warning is shown.
func (c *Config) WarningThreshold() time.Duration {
	return time.Duration(c.Session.WarningSecs) * time.Second
}

// WarningPoll returns the warning surface poll cadence.
func (c *Config) WarningPoll() time.Duration {
	return time.Duration(c.Session.WarningPollSecs) * time.Second
}

// ActivityWriteInterval returns the activity write throttle.
func (c *Config) ActivityWriteInterval() time.Duration {
	return time.Duration(c.Session.ActivityWriteIntervalMs) * time.Millisecond
}

// RequestTimeout returns the per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// LogoutTimeout returns the timeout for the best-effort logout call.
func (c *Config) LogoutTimeout() time.Duration {
	return time.Duration(c.API.LogoutTimeoutSecs) * time.Second
}

// TokenTTL returns the absolute expiry for opaque tokens (0 = none).
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLSecs) * time.Second
}

// StorageDir returns the directory for store files, falling back to the
// config directory.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	return ConfigDir()
}

// LogFile returns the log file path, falling back to <config dir>/logs.
func (c *Config) LogFile() (string, error) {
	if c.Logging.File != "" {
		return c.Logging.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs", "portalctl.log"), nil
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the portalctl home directory. PORTAL_HOME overrides it.
func ConfigDir() (string, error) {
	if home := os.Getenv("PORTAL_HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".portalctl"), nil
}

// ConfigPathTOML returns the default TOML config path.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the default JSON config path.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the default config location, applies .env files, environment
// overrides and defaults, and validates the result. A missing file is not an
// error.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return finish(cfg, LoadTOML(cfg, tomlPath))
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return finish(cfg, LoadJSON(cfg, jsonPath))
		}
	}

	return finish(cfg, nil)
}

// LoadFromPath reads a specific config file. The format follows the extension.
func LoadFromPath(path string) (*Config, error) {
	loadDotEnv()

	cfg := Default()
	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg, nil)
}

func finish(cfg *Config, loadErr error) (*Config, error) {
	if loadErr != nil {
		return nil, loadErr
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// loadDotEnv loads ~/.portalctl/.env and ./.env. Existing environment
// variables win, and missing files are ignored.
func loadDotEnv() {
	var files []string
	if dir, err := ConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, ".env"))
	}
	files = append(files, ".env")

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", f, err)
		}
	}
}

// ApplyEnvOverrides applies PORTAL_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PORTAL_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("PORTAL_AUTH_SCHEME"); v != "" {
		c.Auth.Scheme = v
	}
	if v := os.Getenv("PORTAL_SESSION_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.TimeoutMinutes = n
		}
	}
	if v := os.Getenv("PORTAL_CROSS_TAB_SYNC"); v != "" {
		c.Session.CrossTabSync = parseBool(v)
	}
	if v := os.Getenv("PORTAL_TAB_ID"); v != "" {
		c.Session.TabScope = v
	}
	if v := os.Getenv("PORTAL_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("PORTAL_REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("PORTAL_TOKEN_PASSPHRASE"); v != "" {
		c.Security.TokenPassphrase = v
	}
	if v := os.Getenv("PORTAL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PORTAL_DEV"); v != "" {
		c.Logging.Development = parseBool(v)
	}
	if v := os.Getenv("PORTAL_METRICS_FILE"); v != "" {
		c.Telemetry.MetricsFile = v
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ErrPassphraseRequired is reported when token sealing is on without a passphrase.
var ErrPassphraseRequired = errors.New("PORTAL_TOKEN_PASSPHRASE must be set when security.encrypt_token is enabled")

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "api.base_url",
			Message: fmt.Sprintf("invalid URL '%s'", c.API.BaseURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "api.base_url",
			Message: fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme),
		})
	}

	if c.API.RateLimitPerSec < 0 {
		errs = append(errs, ValidationError{Field: "api.rate_limit_per_sec", Message: "must not be negative"})
	}

	switch c.Auth.Scheme {
	case "Bearer", "Token":
	default:
		errs = append(errs, ValidationError{
			Field:   "auth.scheme",
			Message: fmt.Sprintf("invalid scheme '%s', must be Bearer or Token", c.Auth.Scheme),
		})
	}
	if c.Auth.TokenTTLSecs < 0 {
		errs = append(errs, ValidationError{Field: "auth.token_ttl_secs", Message: "must not be negative"})
	}

	if c.WarningThreshold() >= c.SessionTimeout() {
		errs = append(errs, ValidationError{
			Field:   "session.warning_secs",
			Message: "must be shorter than the session timeout",
		})
	}
	if c.Session.ActivityWriteIntervalMs < 0 {
		errs = append(errs, ValidationError{Field: "session.activity_write_interval_ms", Message: "must not be negative"})
	}

	switch c.Storage.Backend {
	case "file", "sqlite", "redis":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite, redis", c.Storage.Backend),
		})
	}

	if c.Security.EncryptToken && c.Security.TokenPassphrase == "" {
		errs = append(errs, ValidationError{Field: "security.encrypt_token", Message: ErrPassphraseRequired.Error()})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// SaveTOML writes cfg to path with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# portalctl configuration\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	if err := util.WriteFileAtomic(path, []byte(b.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// String renders the effective configuration as TOML.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("<config encode error: %v>", err)
	}
	return b.String()
}
