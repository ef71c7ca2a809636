// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bcard-tui/internal/security"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time { return f.t }

func newTestManager() (*ToastManager, *fakeNow) {
	clock := &fakeNow{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewToastManager(clock.now), clock
}

func TestKindForEvent(t *testing.T) {
	tests := []struct {
		name  string
		event security.Event
		want  ToastKind
	}{
		{"signed in", security.Event{Kind: security.EventSignedIn}, ToastKindSuccess},
		{"signed out", security.Event{Kind: security.EventSignedOut}, ToastKindStatus},
		{"first failure", security.Event{Kind: security.EventAttemptFailed, AttemptsRemaining: 2}, ToastKindError},
		{"last chance", security.Event{Kind: security.EventAttemptFailed, AttemptsRemaining: 1}, ToastKindWarning},
		{"locked", security.Event{Kind: security.EventLockedOut}, ToastKindError},
		{"discarded", security.Event{Kind: security.EventSessionDiscarded}, ToastKindError},
		{"reset", security.Event{Kind: security.EventAttemptsReset}, ToastKindStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindForEvent(tt.event))
		})
	}
}

func TestToastManager_NewestFirstAndCapped(t *testing.T) {
	m, _ := newTestManager()
	for i := 0; i < maxToasts+2; i++ {
		m.Add("toast "+string(rune('a'+i)), ToastKindStatus)
	}
	toasts := m.Toasts()
	require.Len(t, toasts, maxToasts)
	assert.Equal(t, "toast g", toasts[0].Message)
}

func TestToastManager_TickExpires(t *testing.T) {
	m, clock := newTestManager()
	m.Add("saved", ToastKindSuccess)
	m.AddError("failed")

	clock.t = clock.t.Add(DefaultToastDuration)
	toasts := m.Tick()
	require.Len(t, toasts, 1)
	assert.Equal(t, "failed", toasts[0].Message)

	clock.t = clock.t.Add(ErrorToastDuration)
	assert.Empty(t, m.Tick())
}

func TestToastManager_LockoutReplacesAttemptToasts(t *testing.T) {
	m, _ := newTestManager()
	m.AddEvent(security.Event{Kind: security.EventSignedOut, Message: security.MessageSignedOut})
	m.AddEvent(security.Event{Kind: security.EventAttemptFailed, Message: security.FailedAttemptMessage(1, 3), AttemptsRemaining: 2})
	m.AddEvent(security.Event{Kind: security.EventAttemptFailed, Message: security.FailedAttemptMessage(2, 3), AttemptsRemaining: 1})
	m.AddEvent(security.Event{Kind: security.EventLockedOut, Message: security.LockedOutMessage(15 * time.Minute)})

	toasts := m.Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, security.LockedOutMessage(15*time.Minute), toasts[0].Message)
	assert.Equal(t, security.MessageSignedOut, toasts[1].Message)
}

func TestToastManager_RemoveAndDismiss(t *testing.T) {
	m, _ := newTestManager()
	first := m.Add("one", ToastKindStatus)
	m.Add("two", ToastKindStatus)
	m.Add("three", ToastKindStatus)

	m.Remove(first)
	m.DismissNewest()
	toasts := m.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, "two", toasts[0].Message)
	assert.Equal(t, 1, m.Len())
}

func TestRenderToastStack(t *testing.T) {
	m, clock := newTestManager()
	assert.Empty(t, RenderToastStack(nil, 80, clock.t))

	m.AddEvent(security.Event{Kind: security.EventAttemptFailed, Message: security.FailedAttemptMessage(1, 3), AttemptsRemaining: 2})
	out := RenderToastStack(m.Toasts(), 80, clock.t)
	assert.Contains(t, out, "Sign In Failed. Attempt 1 of 3.")
	assert.Contains(t, out, "[X]")
	assert.Contains(t, out, "8s")
	assert.True(t, strings.Contains(out, "Dismiss"))
}
