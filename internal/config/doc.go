// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads portalctl settings.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Backend URL, endpoint paths and client throttling
//   - SessionConfig: Inactivity timeout and monitor cadence
//   - StorageConfig: Durable store backend selection
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (PORTAL_*), including those from .env files
//   - --config PATH, or ~/.portalctl/config.toml
//   - ~/.portalctl/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.SessionTimeout()
package config
