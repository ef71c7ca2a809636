// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// USER-FACING EVENTS
// =============================================================================

// EventKind identifies a user-facing signal.
type EventKind string

const (
	EventAttemptsReset    EventKind = "attempts_reset"
	EventAttemptFailed    EventKind = "attempt_failed"
	EventLockedOut        EventKind = "locked_out"
	EventSignedIn         EventKind = "signed_in"
	EventSignedOut        EventKind = "signed_out"
	EventSessionDiscarded EventKind = "session_discarded"
)

// Event is a signal for the notification surface. The core never renders it.
type Event struct {
	Kind              EventKind
	Message           string
	AttemptsRemaining int
	RetryAfter        time.Duration
	At                time.Time
}

// IsError reports whether the event should be presented as an error.
func (e Event) IsError() bool {
	switch e.Kind {
	case EventAttemptFailed, EventLockedOut, EventSessionDiscarded:
		return true
	}
	return false
}

// Notifier receives Events.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(e Event) { f(e) }

type discardNotifier struct{}

func (discardNotifier) Notify(Event) {}

// =============================================================================
// MESSAGES
// =============================================================================

const (
	MessageSignedIn      = "Sign In Successful"
	MessageSignedOut     = "Signed Out"
	MessageAttemptsReset = "Login attempts reset. Please try again."
	MessageSessionEnded  = "Your session has ended. Please sign in again."
)

// FailedAttemptMessage reports attempt n of max.
func FailedAttemptMessage(n, max int) string {
	return fmt.Sprintf("Sign In Failed. Attempt %d of %d.", n, max)
}

// LockedOutMessage states the remaining lockout time in whole minutes,
// rounded up so the user is never told to retry too early.
func LockedOutMessage(remaining time.Duration) string {
	mins := CeilMinutes(remaining)
	unit := "minutes"
	if mins == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Too many failed attempts. Please try again in %d %s.", mins, unit)
}

// CeilMinutes rounds d up to whole minutes. Non-positive durations give 0.
func CeilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

// =============================================================================
// AUDIT LOGGING
// =============================================================================

// logEvent writes a security event under a stable event name.
func logEvent(ctx context.Context, logger *slog.Logger, level slog.Level, eventType string, attrs ...any) {
	logger.Log(ctx, level, eventType, attrs...)
}

// MaskIdentifier returns a stable, non-reversible form of id for logs.
func MaskIdentifier(id string) string {
	if id == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(id))
	return "hash:" + hex.EncodeToString(hash[:])[:12]
}
