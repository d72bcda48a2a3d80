// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security seals credentials at rest.
//
// Sealer implements AES-256-GCM with a PBKDF2-SHA-256 key derived from the
// PORTAL_TOKEN_PASSPHRASE passphrase and a per-installation salt. Sealed
// values carry the ENC: prefix.
package security
