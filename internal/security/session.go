// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jeranaias/bcard-tui/internal/storage"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// TokenKey is the storage key holding the bearer token.
	TokenKey = "token"

	// DefaultAuthHeader is the request header the bcard API reads the token from.
	DefaultAuthHeader = "x-auth-token"
)

var (
	// ErrNoSession is returned when an operation needs a signed-in session.
	ErrNoSession = errors.New("no active session")

	// ErrIdentityMismatch is returned when profile attributes belong to a
	// different subject than the session token.
	ErrIdentityMismatch = errors.New("profile does not match session identity")
)

// =============================================================================
// SESSION TYPES
// =============================================================================

// Attributes are the authorization-relevant profile fields, fetched from the
// API for the token's subject.
type Attributes struct {
	SubjectID   string `json:"subject_id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Admin       bool   `json:"admin"`
	Business    bool   `json:"business"`
}

// Session is a signed-in identity. Attributes stay nil until the profile has
// been fetched and matched against the token subject.
type Session struct {
	Token      string      `json:"-"`
	Identity   Identity    `json:"identity"`
	Attributes *Attributes `json:"attributes,omitempty"`
}

// Confirmed reports whether profile attributes have been attached.
func (s *Session) Confirmed() bool {
	return s != nil && s.Attributes != nil
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Attributes != nil {
		a := *s.Attributes
		c.Attributes = &a
	}
	return &c
}

// =============================================================================
// SESSION STORE
// =============================================================================

// SessionStore is the only owner of the current session. It keeps the session
// in memory and the token in a storage.Store.
type SessionStore struct {
	store  storage.Store
	clock  Clock
	logger *slog.Logger
	header string

	mu      sync.RWMutex
	current *Session
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithSessionClock sets the clock used for token expiry.
func WithSessionClock(c Clock) SessionOption {
	return func(s *SessionStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuthHeader sets the request header AttachAuth writes.
func WithAuthHeader(name string) SessionOption {
	return func(s *SessionStore) {
		if name != "" {
			s.header = name
		}
	}
}

// NewSessionStore creates a SessionStore with no current session.
func NewSessionStore(store storage.Store, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		store:  store,
		clock:  SystemClock{},
		logger: slog.Default(),
		header: DefaultAuthHeader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the persisted token. It returns (nil, nil) when none is
// stored. A token that cannot be decoded or has expired is deleted and
// reported as ErrMalformedToken or ErrTokenExpired; the caller should treat
// the user as signed out.
func (s *SessionStore) Restore(ctx context.Context) (*Session, error) {
	raw, err := s.store.Get(ctx, TokenKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.setCurrent(nil)
		return nil, nil
	case errors.Is(err, storage.ErrDecryptionFailed), errors.Is(err, storage.ErrInvalidCiphertext):
		s.discard(ctx, "unreadable", err)
		return nil, errors.Join(ErrMalformedToken, err)
	case err != nil:
		return nil, err
	}

	token := string(raw)
	id, err := DecodeToken(token)
	if err != nil {
		s.discard(ctx, "malformed", err)
		return nil, err
	}
	if id.Expired(s.clock.Now()) {
		s.discard(ctx, "expired", ErrTokenExpired)
		return nil, ErrTokenExpired
	}

	s.mu.Lock()
	sess := &Session{Token: token, Identity: id}
	if s.current != nil && s.current.Token == token {
		// Same token as before; keep the confirmed attributes.
		sess.Attributes = s.current.Attributes
	}
	s.current = sess
	out := sess.clone()
	s.mu.Unlock()

	logEvent(ctx, s.logger, slog.LevelInfo, "SESSION_RESTORED", "subject", MaskIdentifier(id.Subject))
	return out, nil
}

// Login installs token as the current session and persists it. A token that
// does not decode leaves any existing session untouched.
//
// A failed write is logged and the session stays installed for this process.
func (s *SessionStore) Login(ctx context.Context, token string) (*Session, error) {
	id, err := DecodeToken(token)
	if err != nil {
		logEvent(ctx, s.logger, slog.LevelWarn, "SESSION_LOGIN_REJECTED", "error", err)
		return nil, err
	}
	if id.Expired(s.clock.Now()) {
		logEvent(ctx, s.logger, slog.LevelWarn, "SESSION_LOGIN_REJECTED", "error", ErrTokenExpired)
		return nil, ErrTokenExpired
	}

	sess := &Session{Token: token, Identity: id}
	s.setCurrent(sess)

	if err := s.store.Set(ctx, TokenKey, []byte(token)); err != nil {
		logEvent(ctx, s.logger, slog.LevelWarn, "SESSION_PERSIST_FAILED", "error", err)
	}
	logEvent(ctx, s.logger, slog.LevelInfo, "SESSION_LOGIN", "subject", MaskIdentifier(id.Subject))
	return sess.clone(), nil
}

// Logout clears the session and the persisted token. Logging out when
// signed out is a no-op.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if err := s.store.Delete(ctx, TokenKey); err != nil {
		logEvent(ctx, s.logger, slog.LevelWarn, "SESSION_PERSIST_FAILED", "error", err)
		return err
	}
	if prev != nil {
		logEvent(ctx, s.logger, slog.LevelInfo, "SESSION_LOGOUT", "subject", MaskIdentifier(prev.Identity.Subject))
	}
	return nil
}

// Current returns a copy of the in-memory session, or nil. It does no I/O.
func (s *SessionStore) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// AttachAuth adds the token header to req when signed in.
func (s *SessionStore) AttachAuth(req *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return
	}
	req.Header.Set(s.header, s.current.Token)
}

// ConfirmAttributes attaches profile attributes to the session after checking
// they belong to the token subject.
func (s *SessionStore) ConfirmAttributes(attrs Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoSession
	}
	if attrs.SubjectID == "" || attrs.SubjectID != s.current.Identity.Subject {
		logEvent(context.Background(), s.logger, slog.LevelWarn, "SESSION_IDENTITY_MISMATCH",
			"subject", MaskIdentifier(s.current.Identity.Subject),
			"profile", MaskIdentifier(attrs.SubjectID),
		)
		return ErrIdentityMismatch
	}
	a := attrs
	s.current.Attributes = &a
	return nil
}

// Reload re-reads the persisted token after another process may have changed
// it. changed reports whether the signed-in token differs from before.
func (s *SessionStore) Reload(ctx context.Context) (sess *Session, changed bool, err error) {
	before := s.Current()
	sess, err = s.Restore(ctx)
	return sess, tokenOf(before) != tokenOf(sess), err
}

func tokenOf(s *Session) string {
	if s == nil {
		return ""
	}
	return s.Token
}

func (s *SessionStore) setCurrent(sess *Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

// discard drops an unusable persisted token.
func (s *SessionStore) discard(ctx context.Context, reason string, cause error) {
	s.setCurrent(nil)
	if err := s.store.Delete(ctx, TokenKey); err != nil {
		logEvent(ctx, s.logger, slog.LevelWarn, "SESSION_PERSIST_FAILED", "error", err)
	}
	logEvent(ctx, s.logger, slog.LevelWarn, "SESSION_DISCARDED", "reason", reason, "error", cause)
}
