// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security implements bcard's sign-in throttling and session
// lifecycle.
//
// # Key Types
//
//   - AttemptGuard: Failed-attempt counter and lockout window (3 attempts, 15 minutes)
//   - SessionStore: Owns the bearer token, persists and restores it
//   - RoleView: Affordances derived from the current session
//   - Clock: Time source, replaced by ManualClock in tests
//   - Notifier: Receives user-facing Events (attempts reset, locked out, ...)
//
// # Lockout Policy
//
// After DefaultMaxAttempts consecutive failures the guard refuses further
// attempts for DefaultLockoutDuration. Expiry is evaluated lazily whenever the
// guard is consulted; there is no background timer. The record is kept in a
// storage.Store shared by every bcard process, and each guard call is one
// atomic read-modify-write of that record, so two processes never lose or
// double-count a failure.
//
// # Usage
//
//	guard := security.NewAttemptGuard(store, security.WithNotifier(toasts))
//	if !guard.CanAttempt(ctx) {
//	    return // locked; guard.Status(ctx).RetryAfter says for how long
//	}
//	if err := authenticate(); err != nil {
//	    outcome := guard.RecordFailure(ctx)
//	    ...
//	}
//	guard.RecordSuccess(ctx)
//
// Sessions:
//
//	sessions := security.NewSessionStore(store)
//	sess, err := sessions.Restore(ctx)     // nil session when signed out
//	view := security.View(sessions.Current())
//	if view.Allows(security.PermCRMView) { ... }
package security
