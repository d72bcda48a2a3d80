// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/portalctl/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// EncryptedPrefix marks a sealed value (format: ENC:base64(nonce|ciphertext|tag))
const EncryptedPrefix = "ENC:"

// NonceSize is the size of the nonce/IV for AES-GCM (12 bytes / 96 bits)
const NonceSize = 12

// KeySize is the size of the AES-256 key (32 bytes / 256 bits)
const KeySize = 32

// SaltSize is the size of the salt for key derivation (32 bytes)
const SaltSize = 32

// PBKDF2Iterations is the number of iterations for PBKDF2-SHA-256.
// OWASP 2023 recommends 600,000+.
const PBKDF2Iterations = 600000

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyPassphrase indicates no passphrase was supplied.
	ErrEmptyPassphrase = errors.New("token passphrase is empty")
	// ErrInvalidCiphertext indicates the sealed value format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	// ErrDecryptionFailed indicates decryption failed (wrong passphrase or tampered data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// SEALER
// =============================================================================

// Sealer encrypts short string values with AES-256-GCM under a key derived
// once from a passphrase and a persisted salt.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key from passphrase and the salt stored at saltPath,
// creating the salt file on first use.
func NewSealer(passphrase, saltPath string) (*Sealer, error) {
	return newSealer(passphrase, saltPath, PBKDF2Iterations)
}

func newSealer(passphrase, saltPath string, iterations int) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	salt, err := loadOrCreateSalt(saltPath)
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)
	// Zero key material once the cipher holds its own schedule.
	defer ZeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != SaltSize {
			return nil, fmt.Errorf("salt file %s has wrong size %d", path, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	salt = make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := util.WriteFileAtomic(path, salt, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to write salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plaintext and returns it with the ENC: prefix.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a sealed value. Values without the ENC: prefix are returned
// as-is so tokens written before sealing was enabled keep working.
func (s *Sealer) Open(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(data) < NonceSize+s.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	plain, err := s.aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// IsEncrypted checks if a string value is sealed (has ENC: prefix).
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// ZeroBytes zeros sensitive byte slices.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
