// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/bcard-tui/internal/security"
)

var (
	// ErrInvalidCredentials is returned for input rejected before any
	// attempt is made. It does not count as a failed attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLockedOut matches any *LockedOutError with errors.Is.
	ErrLockedOut = errors.New("sign-in locked out")

	// ErrSessionRejected marks errors where the API refused the session
	// token. Adapters wrap their unauthorized errors with it.
	ErrSessionRejected = errors.New("session rejected by server")
)

// LockedOutError is returned when sign-in is refused because a lockout
// window is active. The authenticator was not called.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts: retry in %d minutes", security.CeilMinutes(e.RetryAfter))
}

// Is lets errors.Is(err, ErrLockedOut) match.
func (e *LockedOutError) Is(target error) bool {
	return target == ErrLockedOut
}

// Sign-in stages reported by SignInError.
const (
	StageAuthenticate = "authenticate"
	StageToken        = "token"
	StageProfile      = "profile"
)

// SignInError is a failed sign-in that was counted against the guard.
type SignInError struct {
	Stage   string
	Outcome security.LockoutOutcome
	Err     error
}

func (e *SignInError) Error() string {
	return fmt.Sprintf("sign-in failed at %s (attempt %d of %d): %v",
		e.Stage, e.Outcome.Attempt, e.Outcome.Attempt+e.Outcome.AttemptsRemaining, e.Err)
}

func (e *SignInError) Unwrap() error {
	return e.Err
}
