// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jeranaias/bcard-tui/internal/security"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Authenticator exchanges credentials for a session token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// ProfileFetcher loads the profile attributes of subject.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, subject string) (security.Attributes, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service runs sign-in, sign-out and startup session recovery.
type Service struct {
	guard    *security.AttemptGuard
	sessions *security.SessionStore
	authn    Authenticator
	profiles ProfileFetcher
	notifier security.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the receiver of sign-in events.
func WithNotifier(n security.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used to timestamp events.
func WithClock(c security.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.now = c.Now
		}
	}
}

// NewService wires the sign-in flow.
func NewService(guard *security.AttemptGuard, sessions *security.SessionStore, authn Authenticator, profiles ProfileFetcher, opts ...Option) *Service {
	s := &Service{
		guard:    guard,
		sessions: sessions,
		authn:    authn,
		profiles: profiles,
		notifier: security.NotifierFunc(func(security.Event) {}),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Guard returns the attempt guard.
func (s *Service) Guard() *security.AttemptGuard { return s.guard }

// Sessions returns the session store.
func (s *Service) Sessions() *security.SessionStore { return s.sessions }

// SignIn authenticates creds.
//
// Input that fails validation returns ErrInvalidCredentials without counting
// an attempt. While locked out it returns *LockedOutError without calling the
// authenticator. Every other failure, including network errors, counts as one
// failed attempt and is returned as *SignInError. If ctx is cancelled while
// the authenticator is in flight the attempt is abandoned and not counted.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (*security.Session, error) {
	creds, err := creds.Normalize()
	if err != nil {
		return nil, err
	}

	if !s.guard.CanAttempt(ctx) {
		st := s.guard.Status(ctx)
		if st.Locked {
			s.logger.Warn("AUTH_SIGNIN_REFUSED", "reason", "locked", "retry_after", st.RetryAfter.String())
			s.notifier.Notify(security.Event{
				Kind:       security.EventLockedOut,
				Message:    security.LockedOutMessage(st.RetryAfter),
				RetryAfter: st.RetryAfter,
				At:         s.now(),
			})
			return nil, &LockedOutError{RetryAfter: st.RetryAfter}
		}
	}

	token, err := s.authn.Authenticate(ctx, creds)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Info("AUTH_SIGNIN_ABANDONED", "error", err)
			return nil, ctx.Err()
		}
		return nil, s.fail(ctx, StageAuthenticate, err)
	}

	sess, err := s.sessions.Login(ctx, token)
	if err != nil {
		return nil, s.fail(ctx, StageToken, err)
	}

	if err := s.confirm(ctx, sess.Identity.Subject); err != nil {
		if lerr := s.sessions.Logout(ctx); lerr != nil {
			s.logger.Warn("AUTH_ROLLBACK_FAILED", "error", lerr)
		}
		return nil, s.fail(ctx, StageProfile, err)
	}

	s.guard.RecordSuccess(ctx)
	s.logger.Info("AUTH_SIGNIN", "subject", security.MaskIdentifier(sess.Identity.Subject))
	s.notifier.Notify(security.Event{Kind: security.EventSignedIn, Message: security.MessageSignedIn, At: s.now()})
	return s.sessions.Current(), nil
}

// SignOut ends the session. Signing out while signed out is a no-op.
func (s *Service) SignOut(ctx context.Context) error {
	wasSignedIn := s.sessions.Current() != nil
	if err := s.sessions.Logout(ctx); err != nil {
		return err
	}
	if wasSignedIn {
		s.notifier.Notify(security.Event{Kind: security.EventSignedOut, Message: security.MessageSignedOut, At: s.now()})
	}
	return nil
}

// Resume runs at startup: it lets the guard expire a finished lockout,
// restores the persisted session, and re-confirms its profile.
//
// A token the server rejects, or whose profile belongs to someone else, ends
// the session. A profile that cannot be fetched for other reasons leaves the
// session signed in but unconfirmed.
func (s *Service) Resume(ctx context.Context) (*security.Session, error) {
	s.guard.CheckAndMaybeExpire(ctx)

	sess, err := s.sessions.Restore(ctx)
	if err != nil {
		s.notifier.Notify(security.Event{Kind: security.EventSessionDiscarded, Message: security.MessageSessionEnded, At: s.now()})
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	if err := s.confirm(ctx, sess.Identity.Subject); err != nil {
		if errors.Is(err, ErrSessionRejected) || errors.Is(err, security.ErrIdentityMismatch) {
			if lerr := s.sessions.Logout(ctx); lerr != nil {
				s.logger.Warn("AUTH_ROLLBACK_FAILED", "error", lerr)
			}
			s.notifier.Notify(security.Event{Kind: security.EventSessionDiscarded, Message: security.MessageSessionEnded, At: s.now()})
			return nil, err
		}
		s.logger.Warn("AUTH_PROFILE_UNAVAILABLE", "error", err)
		return s.sessions.Current(), nil
	}
	return s.sessions.Current(), nil
}

// Refresh re-fetches the profile of the current session, for example after
// another process signed in.
func (s *Service) Refresh(ctx context.Context) (*security.Session, error) {
	sess := s.sessions.Current()
	if sess == nil {
		return nil, security.ErrNoSession
	}
	if err := s.confirm(ctx, sess.Identity.Subject); err != nil {
		return s.sessions.Current(), err
	}
	return s.sessions.Current(), nil
}

func (s *Service) confirm(ctx context.Context, subject string) error {
	attrs, err := s.profiles.FetchProfile(ctx, subject)
	if err != nil {
		return err
	}
	return s.sessions.ConfirmAttributes(attrs)
}

// fail records one failed attempt. The guard notifies the user.
func (s *Service) fail(ctx context.Context, stage string, cause error) error {
	outcome := s.guard.RecordFailure(ctx)
	s.logger.Warn("AUTH_SIGNIN_FAILED",
		"stage", stage,
		"attempt", outcome.Attempt,
		"locked", outcome.Locked,
		"error", cause,
	)
	return &SignInError{Stage: stage, Outcome: outcome, Err: cause}
}
