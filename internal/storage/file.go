// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeranaias/bcard-tui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// fileDocumentVersion is written into every state document.
	fileDocumentVersion = 1

	// lockPollInterval is how often a blocked caller retries the OS lock.
	lockPollInterval = 10 * time.Millisecond

	// DefaultLockTimeout bounds how long an operation waits for the lock.
	DefaultLockTimeout = 5 * time.Second
)

// ErrLockTimeout is returned when another process holds the store lock
// for longer than the lock timeout.
var ErrLockTimeout = errors.New("storage: timed out waiting for file lock")

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Version int               `json:"version"`
	Entries map[string][]byte `json:"entries"`
}

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps every key in a single JSON document.
//
// Each operation takes an exclusive OS lock on a sibling ".lock" file,
// re-reads the document, and writes it back with util.AtomicWriteFile, so
// concurrent bcard processes see each other's changes immediately.
type FileStore struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLockTimeout sets how long operations wait for the OS lock.
func WithLockTimeout(d time.Duration) FileOption {
	return func(s *FileStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithFileLogger sets the logger used for corruption warnings.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFile creates a FileStore backed by path. The parent directory is
// created with 0700 if missing; the document itself is created lazily.
func NewFile(path string, opts ...FileOption) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{
		path:        abs,
		lockPath:    abs + ".lock",
		lockTimeout: DefaultLockTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the document path.
func (s *FileStore) Path() string {
	return s.path
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	var out []byte
	err := s.withLock(ctx, func(doc *fileDocument) (bool, error) {
		v, ok := doc.Entries[key]
		if !ok {
			return false, ErrNotFound
		}
		out = cloneBytes(v)
		return false, nil
	})
	return out, err
}

// Set implements Store.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, key, func([]byte, bool) ([]byte, error) {
		if value == nil {
			return []byte{}, nil
		}
		return value, nil
	})
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.Update(ctx, key, func([]byte, bool) ([]byte, error) {
		return nil, nil
	})
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.withLock(ctx, func(doc *fileDocument) (bool, error) {
		cur, found := doc.Entries[key]
		next, changed, err := applyUpdate(fn, cloneBytes(cur), found)
		if err != nil || !changed {
			return false, err
		}
		if next == nil {
			delete(doc.Entries, key)
		} else {
			doc.Entries[key] = cloneBytes(next)
		}
		return true, nil
	})
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// =============================================================================
// LOCKING AND DOCUMENT I/O
// =============================================================================

// withLock runs fn with the document loaded under the OS lock and writes the
// document back when fn reports a change.
func (s *FileStore) withLock(ctx context.Context, fn func(doc *fileDocument) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	lf, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lf.Close()

	if err := s.acquire(ctx, lf); err != nil {
		return err
	}
	defer unlockFile(lf)

	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	dirty, err := fn(doc)
	if err != nil || !dirty {
		return err
	}
	return s.writeDocument(doc)
}

func (s *FileStore) acquire(ctx context.Context, lf *os.File) error {
	deadline := time.Now().Add(s.lockTimeout)
	for {
		ok, err := tryLockFile(lf)
		if err != nil {
			return fmt.Errorf("failed to lock store: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// readDocument loads the document. A document that cannot be parsed is moved
// aside to path+".corrupt" and replaced by an empty one.
func (s *FileStore) readDocument() (*fileDocument, error) {
	empty := &fileDocument{Version: fileDocumentVersion, Entries: make(map[string][]byte)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	if len(data) == 0 {
		return empty, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.quarantine(err)
		return empty, nil
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string][]byte)
	}
	return &doc, nil
}

func (s *FileStore) quarantine(cause error) {
	aside := s.path + ".corrupt"
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Warn("STORE_DOCUMENT_CORRUPT", "path", s.path, "error", cause, "quarantine_error", err)
		return
	}
	s.logger.Warn("STORE_DOCUMENT_CORRUPT", "path", s.path, "error", cause, "moved_to", aside)
}

func (s *FileStore) writeDocument(doc *fileDocument) error {
	doc.Version = fileDocumentVersion
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	return nil
}
