// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"errors"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: store closed")

	// ErrEmptyKey is returned for operations on the empty key.
	ErrEmptyKey = errors.New("storage: empty key")
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// UpdateFunc computes the next value of a key from its current value.
// found is false when the key does not exist. Returning a nil slice deletes
// the key. Returning an error aborts the update and leaves the key as it was.
//
// The function may be called more than once when a backend retries after a
// concurrent modification, so it must not have side effects.
type UpdateFunc func(cur []byte, found bool) ([]byte, error)

// Store is a small persistent key-value store shared between processes.
type Store interface {
	// Get returns the value of key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Update atomically replaces the value of key with fn's result.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Close releases backend resources.
	Close() error
}

// applyUpdate runs fn and reports whether the stored value must change.
func applyUpdate(fn UpdateFunc, cur []byte, found bool) (next []byte, changed bool, err error) {
	next, err = fn(cur, found)
	if err != nil {
		return nil, false, err
	}
	if next == nil {
		return nil, found, nil
	}
	if found && bytes.Equal(cur, next) {
		return next, false, nil
	}
	return next, true, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
