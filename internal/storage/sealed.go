// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// EncryptedPrefix marks a sealed value (format: ENC:base64(nonce|ciphertext|tag)).
const EncryptedPrefix = "ENC:"

const (
	// NonceSize is the AES-GCM nonce size.
	NonceSize = 12

	// KeySize is the AES-256 key size.
	KeySize = 32

	// SaltSize is the PBKDF2 salt size.
	SaltSize = 32

	// PBKDF2Iterations follows the OWASP 2023 guidance for PBKDF2-SHA-256.
	PBKDF2Iterations = 600000
)

var (
	// ErrInvalidCiphertext indicates a sealed value that cannot be decoded.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed indicates the wrong key or a tampered value.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// ZeroBytes overwrites key material once it is no longer needed.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// DeriveKey derives an AES-256 key from a passphrase with PBKDF2-SHA-256.
// iterations <= 0 selects PBKDF2Iterations.
func DeriveKey(passphrase string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = PBKDF2Iterations
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)
}

// =============================================================================
// SEALED STORE
// =============================================================================

// Sealed wraps a Store and encrypts the values of selected keys with
// AES-256-GCM. Values of other keys pass through unchanged, as do stored
// values without the ENC: prefix (written before sealing was enabled).
type Sealed struct {
	inner Store
	aead  cipher.AEAD
	keys  map[string]bool
}

// NewSealed wraps inner. key must be KeySize bytes; sealedKeys lists the keys
// whose values are encrypted.
func NewSealed(inner Store, key []byte, sealedKeys ...string) (*Sealed, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealed store key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	keys := make(map[string]bool, len(sealedKeys))
	for _, k := range sealedKeys {
		keys[k] = true
	}
	return &Sealed{inner: inner, aead: aead, keys: keys}, nil
}

// Get implements Store. A sealed value that fails to open returns
// ErrDecryptionFailed or ErrInvalidCiphertext.
func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.inner.Get(ctx, key)
	if err != nil || !s.keys[key] {
		return v, err
	}
	return s.open(v)
}

// Set implements Store.
func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	if !s.keys[key] {
		return s.inner.Set(ctx, key, value)
	}
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

// Delete implements Store.
func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Update implements Store. fn sees and returns plaintext.
func (s *Sealed) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if !s.keys[key] {
		return s.inner.Update(ctx, key, fn)
	}
	return s.inner.Update(ctx, key, func(cur []byte, found bool) ([]byte, error) {
		var plain []byte
		if found {
			p, err := s.open(cur)
			if err != nil {
				return nil, err
			}
			plain = p
		}
		next, err := fn(plain, found)
		if err != nil || next == nil {
			return next, err
		}
		if found && bytes.Equal(plain, next) {
			// Unchanged; keep the existing ciphertext so backends skip the write.
			return cur, nil
		}
		return s.seal(next)
	})
}

// Close implements Store.
func (s *Sealed) Close() error {
	return s.inner.Close()
}

func (s *Sealed) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ct := s.aead.Seal(nonce, nonce, plain, nil)
	out := make([]byte, 0, len(EncryptedPrefix)+base64.StdEncoding.EncodedLen(len(ct)))
	out = append(out, EncryptedPrefix...)
	out = base64.StdEncoding.AppendEncode(out, ct)
	return out, nil
}

func (s *Sealed) open(v []byte) ([]byte, error) {
	if !bytes.HasPrefix(v, []byte(EncryptedPrefix)) {
		return v, nil
	}
	data, err := base64.StdEncoding.DecodeString(string(v[len(EncryptedPrefix):]))
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	if len(data) < NonceSize {
		return nil, ErrInvalidCiphertext
	}
	plain, err := s.aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}
