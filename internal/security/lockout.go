// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/bcard-tui/internal/storage"
)

// =============================================================================
// LOCKOUT CONSTANTS
// =============================================================================

const (
	// DefaultMaxAttempts is the number of consecutive failures that starts a
	// lockout window.
	DefaultMaxAttempts = 3

	// DefaultLockoutDuration is how long sign-in is refused after the
	// threshold is reached.
	DefaultLockoutDuration = 15 * time.Minute

	// AttemptsKey is the storage key holding the attempt record.
	AttemptsKey = "attempts"
)

// =============================================================================
// ATTEMPT RECORD
// =============================================================================

// AttemptRecord is the persisted failure counter.
// LockoutStartedAt is set exactly when Count has reached the threshold.
type AttemptRecord struct {
	Count            int
	LockoutStartedAt time.Time
}

// IsZero reports whether r is the initial record.
func (r AttemptRecord) IsZero() bool {
	return r.Count == 0 && r.LockoutStartedAt.IsZero()
}

// persistedRecord is the stored JSON form. Timestamps are Unix milliseconds.
type persistedRecord struct {
	Count            int    `json:"count"`
	LockoutStartedAt *int64 `json:"lockoutStartedAt,omitempty"`
}

func encodeRecord(r AttemptRecord) ([]byte, error) {
	p := persistedRecord{Count: r.Count}
	if !r.LockoutStartedAt.IsZero() {
		ms := r.LockoutStartedAt.UnixMilli()
		p.LockoutStartedAt = &ms
	}
	return json.Marshal(p)
}

// decodeRecord parses and validates a stored record. A non-empty reason means
// the data is corrupt and must be reset.
func (g *AttemptGuard) decodeRecord(data []byte, now time.Time) (rec AttemptRecord, reason string) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return AttemptRecord{}, "not a JSON object"
	}

	if c, ok := raw["count"]; ok {
		n, ok := wholeNumber(c)
		if !ok {
			return AttemptRecord{}, "count is not a whole number"
		}
		if n < 0 {
			return AttemptRecord{}, "count is negative"
		}
		if n > int64(g.maxAttempts) {
			return AttemptRecord{}, "count exceeds threshold"
		}
		rec.Count = int(n)
	}

	if s, ok := raw["lockoutStartedAt"]; ok && !isJSONNull(s) {
		ms, ok := wholeNumber(s)
		if !ok {
			return AttemptRecord{}, "lockoutStartedAt is not a timestamp"
		}
		rec.LockoutStartedAt = time.UnixMilli(ms)
	}

	locked := !rec.LockoutStartedAt.IsZero()
	switch {
	case locked && rec.Count < g.maxAttempts:
		return AttemptRecord{}, "lockout recorded below threshold"
	case !locked && rec.Count >= g.maxAttempts:
		return AttemptRecord{}, "threshold reached without lockout"
	case locked && rec.LockoutStartedAt.After(now.Add(g.lockoutDuration)):
		return AttemptRecord{}, "lockout starts more than one window in the future"
	}
	return rec, ""
}

func wholeNumber(raw json.RawMessage) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// =============================================================================
// OUTCOMES
// =============================================================================

// LockoutOutcome is the result of RecordFailure.
type LockoutOutcome struct {
	// Locked is true when a lockout window is active after the call.
	Locked bool

	// Blocked is true when the failure arrived during an active window and
	// was not counted.
	Blocked bool

	// Attempt is the number of consecutive failures recorded so far.
	Attempt int

	// AttemptsRemaining is how many more failures start a lockout.
	AttemptsRemaining int

	// RetryAfter is the remaining lockout time, zero when not locked.
	RetryAfter time.Duration
}

// Status is a point-in-time view of the guard. Front ends render it through
// their own types; it has no wire form.
type Status struct {
	Count             int
	MaxAttempts       int
	AttemptsRemaining int
	Locked            bool

	// LockoutStartedAt, LockedUntil and RetryAfter are zero unless Locked.
	LockoutStartedAt time.Time
	LockedUntil      time.Time
	RetryAfter       time.Duration

	LockoutDuration time.Duration
}

// =============================================================================
// ATTEMPT GUARD
// =============================================================================

// AttemptGuard limits consecutive failed sign-in attempts.
//
// The persisted record is the authority: every call reloads it, expires a
// finished window first, applies its change, and writes it back in a single
// storage.Store Update. If the store is unavailable the guard keeps working
// from the last record it saw.
type AttemptGuard struct {
	store           storage.Store
	clock           Clock
	notifier        Notifier
	logger          *slog.Logger
	maxAttempts     int
	lockoutDuration time.Duration

	mu     sync.Mutex
	cached AttemptRecord
}

// AttemptGuardOption configures an AttemptGuard.
type AttemptGuardOption func(*AttemptGuard)

// WithMaxAttempts sets the failure threshold. Values below 1 are ignored.
func WithMaxAttempts(max int) AttemptGuardOption {
	return func(g *AttemptGuard) {
		if max >= 1 {
			g.maxAttempts = max
		}
	}
}

// WithLockoutDuration sets the lockout window length.
func WithLockoutDuration(d time.Duration) AttemptGuardOption {
	return func(g *AttemptGuard) {
		if d > 0 {
			g.lockoutDuration = d
		}
	}
}

// WithClock sets the time source.
func WithClock(c Clock) AttemptGuardOption {
	return func(g *AttemptGuard) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithNotifier sets the receiver of user-facing events.
func WithNotifier(n Notifier) AttemptGuardOption {
	return func(g *AttemptGuard) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithLogger sets the logger for security events.
func WithLogger(l *slog.Logger) AttemptGuardOption {
	return func(g *AttemptGuard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewAttemptGuard creates a guard over store.
func NewAttemptGuard(store storage.Store, opts ...AttemptGuardOption) *AttemptGuard {
	g := &AttemptGuard{
		store:           store,
		clock:           SystemClock{},
		notifier:        discardNotifier{},
		logger:          slog.Default(),
		maxAttempts:     DefaultMaxAttempts,
		lockoutDuration: DefaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxAttempts returns the configured threshold.
func (g *AttemptGuard) MaxAttempts() int { return g.maxAttempts }

// LockoutDuration returns the configured window length.
func (g *AttemptGuard) LockoutDuration() time.Duration { return g.lockoutDuration }

// CanAttempt reports whether a sign-in attempt may be made now.
func (g *AttemptGuard) CanAttempt(ctx context.Context) bool {
	return !g.CheckAndMaybeExpire(ctx).Locked
}

// CheckAndMaybeExpire reloads the record, clears an expired window, and
// returns the resulting status. Only the call that clears the window emits
// EventAttemptsReset.
func (g *AttemptGuard) CheckAndMaybeExpire(ctx context.Context) Status {
	now := g.clock.Now()
	tr := g.apply(ctx, now, nil)
	return g.status(tr.after, now)
}

// Status is CheckAndMaybeExpire under the name status displays use.
func (g *AttemptGuard) Status(ctx context.Context) Status {
	return g.CheckAndMaybeExpire(ctx)
}

// RecordFailure counts a failed attempt. Reaching the threshold starts the
// lockout window. A failure recorded while a window is active is not counted
// and does not restart the window.
func (g *AttemptGuard) RecordFailure(ctx context.Context) LockoutOutcome {
	now := g.clock.Now()
	blocked := false
	tr := g.apply(ctx, now, func(rec AttemptRecord) AttemptRecord {
		blocked = false
		if !rec.LockoutStartedAt.IsZero() {
			blocked = true
			return rec
		}
		rec.Count++
		if rec.Count >= g.maxAttempts {
			rec.Count = g.maxAttempts
			rec.LockoutStartedAt = now
		}
		return rec
	})

	st := g.status(tr.after, now)
	outcome := LockoutOutcome{
		Locked:            st.Locked,
		Blocked:           blocked,
		Attempt:           st.Count,
		AttemptsRemaining: st.AttemptsRemaining,
		RetryAfter:        st.RetryAfter,
	}

	if blocked {
		logEvent(ctx, g.logger, slog.LevelWarn, "AUTH_ATTEMPT_BLOCKED",
			"reason", "locked",
			"time_remaining", st.RetryAfter.String(),
		)
		return outcome
	}

	logEvent(ctx, g.logger, slog.LevelInfo, "AUTH_ATTEMPT",
		"success", false,
		"attempt_count", outcome.Attempt,
		"max_attempts", g.maxAttempts,
	)
	g.notify(Event{
		Kind:              EventAttemptFailed,
		Message:           FailedAttemptMessage(outcome.Attempt, g.maxAttempts),
		AttemptsRemaining: outcome.AttemptsRemaining,
		At:                now,
	})

	if outcome.Locked {
		logEvent(ctx, g.logger, slog.LevelWarn, "AUTH_LOCKOUT",
			"duration", g.lockoutDuration.String(),
			"until", st.LockedUntil.Format(time.RFC3339),
		)
		g.notify(Event{
			Kind:       EventLockedOut,
			Message:    LockedOutMessage(outcome.RetryAfter),
			RetryAfter: outcome.RetryAfter,
			At:         now,
		})
	}
	return outcome
}

// RecordSuccess clears the record. Calling it again has no further effect.
func (g *AttemptGuard) RecordSuccess(ctx context.Context) {
	now := g.clock.Now()
	tr := g.apply(ctx, now, func(AttemptRecord) AttemptRecord {
		return AttemptRecord{}
	})
	if !tr.before.IsZero() {
		logEvent(ctx, g.logger, slog.LevelInfo, "AUTH_ATTEMPT",
			"success", true,
			"cleared_count", tr.before.Count,
		)
	}
}

// =============================================================================
// RECORD TRANSITIONS
// =============================================================================

// transition describes one atomic guard step.
type transition struct {
	before        AttemptRecord // after corruption handling and expiry
	after         AttemptRecord
	expired       bool
	skew          time.Duration // how far a stored start was ahead of now
	corruptReason string
}

// apply runs op against the freshly loaded record inside one store Update.
// Events are emitted after the update commits; the update function may run
// more than once.
func (g *AttemptGuard) apply(ctx context.Context, now time.Time, op func(AttemptRecord) AttemptRecord) transition {
	tr := g.commit(ctx, now, op)

	if tr.corruptReason != "" {
		logEvent(ctx, g.logger, slog.LevelWarn, "LOCKOUT_STATE_CORRUPT",
			"reason", tr.corruptReason,
			"action", "reset",
		)
	}
	if tr.skew > 0 {
		logEvent(ctx, g.logger, slog.LevelWarn, "LOCKOUT_CLOCK_SKEW",
			"ahead_by", tr.skew.String(),
			"action", "clamped to now",
		)
	}
	if tr.expired {
		logEvent(ctx, g.logger, slog.LevelInfo, "AUTH_RESET",
			"reason", "lockout window expired",
		)
		g.notify(Event{Kind: EventAttemptsReset, Message: MessageAttemptsReset, At: now})
	}
	return tr
}

func (g *AttemptGuard) commit(ctx context.Context, now time.Time, op func(AttemptRecord) AttemptRecord) transition {
	g.mu.Lock()
	defer g.mu.Unlock()

	var tr transition
	err := g.store.Update(ctx, AttemptsKey, func(cur []byte, found bool) ([]byte, error) {
		var rec AttemptRecord
		var reason string
		if found {
			rec, reason = g.decodeRecord(cur, now)
		}
		tr = g.step(transition{corruptReason: reason}, rec, now, op)
		if tr.after.IsZero() {
			return nil, nil
		}
		return encodeRecord(tr.after)
	})
	if err != nil {
		logEvent(ctx, g.logger, slog.LevelWarn, "LOCKOUT_STATE_UNAVAILABLE",
			"error", err,
			"fallback", "in-memory",
		)
		tr = g.step(transition{}, g.cached, now, op)
	}
	g.cached = tr.after
	return tr
}

// step moves a start that lies ahead of now back to now, expires a finished
// window and then applies op. The clamped start is what gets written back, so
// the window ends no later than the RetryAfter reported for it.
func (g *AttemptGuard) step(tr transition, rec AttemptRecord, now time.Time, op func(AttemptRecord) AttemptRecord) transition {
	if rec.LockoutStartedAt.After(now) {
		tr.skew = rec.LockoutStartedAt.Sub(now)
		rec.LockoutStartedAt = now
	}
	if !rec.LockoutStartedAt.IsZero() && now.Sub(rec.LockoutStartedAt) >= g.lockoutDuration {
		rec = AttemptRecord{}
		tr.expired = true
	}
	tr.before = rec
	tr.after = rec
	if op != nil {
		tr.after = op(rec)
	}
	return tr
}

func (g *AttemptGuard) status(rec AttemptRecord, now time.Time) Status {
	st := Status{
		Count:             rec.Count,
		MaxAttempts:       g.maxAttempts,
		AttemptsRemaining: g.maxAttempts - rec.Count,
		LockoutDuration:   g.lockoutDuration,
	}
	if st.AttemptsRemaining < 0 {
		st.AttemptsRemaining = 0
	}
	if rec.LockoutStartedAt.IsZero() {
		return st
	}

	remaining := g.lockoutDuration - now.Sub(rec.LockoutStartedAt)
	if remaining <= 0 {
		return st
	}
	st.Locked = true
	st.LockoutStartedAt = rec.LockoutStartedAt
	st.LockedUntil = now.Add(remaining)
	st.RetryAfter = remaining
	return st
}

func (g *AttemptGuard) notify(e Event) {
	g.notifier.Notify(e)
}
