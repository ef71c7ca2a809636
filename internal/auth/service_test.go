// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/storage"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// =============================================================================
// FAKES
// =============================================================================

type fakeAPI struct {
	mu       sync.Mutex
	calls    int
	password string
	tokens   map[string]string // email -> token
	authErr  error
	profiles map[string]security.Attributes
	fetchErr error
	block    chan struct{}
}

func (f *fakeAPI) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.authErr != nil {
		return "", f.authErr
	}
	if creds.Password != f.password {
		return "", errors.New("Invalid email or password")
	}
	return f.tokens[creds.Email], nil
}

func (f *fakeAPI) FetchProfile(_ context.Context, subject string) (security.Attributes, error) {
	if f.fetchErr != nil {
		return security.Attributes{}, f.fetchErr
	}
	a, ok := f.profiles[subject]
	if !ok {
		return security.Attributes{}, errors.New("user not found")
	}
	return a, nil
}

func (f *fakeAPI) authCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu     sync.Mutex
	events []security.Event
}

func (r *recorder) Notify(e security.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Message
	}
	return out
}

func token(t *testing.T, id string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"_id": id, "isAdmin": true}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

type fixture struct {
	svc   *Service
	api   *fakeAPI
	store *storage.MemoryStore
	clock *security.ManualClock
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	clock := security.NewManualClock(t0)
	rec := &recorder{}
	api := &fakeAPI{
		password: "Abc!1234",
		tokens:   map[string]string{"alice@example.com": token(t, "u-alice")},
		profiles: map[string]security.Attributes{
			"u-alice": {SubjectID: "u-alice", DisplayName: "Alice", Business: true},
		},
	}
	guard := security.NewAttemptGuard(store,
		security.WithClock(clock), security.WithNotifier(rec), security.WithLogger(logger))
	sessions := security.NewSessionStore(store,
		security.WithSessionClock(clock), security.WithSessionLogger(logger))
	svc := NewService(guard, sessions, api, api,
		WithNotifier(rec), WithLogger(logger), WithClock(clock))
	return &fixture{svc: svc, api: api, store: store, clock: clock, rec: rec}
}

var (
	good = Credentials{Email: "alice@example.com", Password: "Abc!1234"}
	bad  = Credentials{Email: "alice@example.com", Password: "wrong"}
)

// =============================================================================
// SIGN IN
// =============================================================================

func TestSignIn_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.svc.SignIn(ctx, Credentials{Email: "  Alice@Example.com ", Password: "Abc!1234"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "u-alice", sess.Identity.Subject)
	assert.True(t, sess.Confirmed())

	view := security.View(sess)
	assert.Equal(t, security.RoleBusiness, view.Role(), "isAdmin in the token is ignored")
	assert.Equal(t, []string{security.MessageSignedIn}, f.rec.messages())
}

func TestSignIn_InvalidInputNotCounted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, c := range []Credentials{
		{Email: "", Password: "x"},
		{Email: "not-an-email", Password: "x"},
		{Email: "alice@example.com", Password: ""},
	} {
		_, err := f.svc.SignIn(ctx, c)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	assert.Equal(t, 0, f.api.authCalls())
	assert.Equal(t, 0, f.svc.Guard().Status(ctx).Count)
}

// Scenario A through the service.
func TestSignIn_LockoutAfterThreeFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 1; i <= 3; i++ {
		_, err := f.svc.SignIn(ctx, bad)
		var sie *SignInError
		require.ErrorAs(t, err, &sie)
		assert.Equal(t, StageAuthenticate, sie.Stage)
		assert.Equal(t, i, sie.Outcome.Attempt)
		assert.Equal(t, i == 3, sie.Outcome.Locked)
	}

	f.clock.Advance(time.Minute)
	_, err := f.svc.SignIn(ctx, good)
	var locked *LockedOutError
	require.ErrorAs(t, err, &locked)
	assert.ErrorIs(t, err, ErrLockedOut)
	assert.Equal(t, 14*time.Minute, locked.RetryAfter)
	assert.Equal(t, 3, f.api.authCalls(), "authenticator not called while locked")

	assert.Equal(t, []string{
		"Sign In Failed. Attempt 1 of 3.",
		"Sign In Failed. Attempt 2 of 3.",
		"Sign In Failed. Attempt 3 of 3.",
		"Too many failed attempts. Please try again in 15 minutes.",
		"Too many failed attempts. Please try again in 14 minutes.",
	}, f.rec.messages())
}

// Scenario B through the service.
func TestSignIn_SuccessAfterTwoFailuresResets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _ = f.svc.SignIn(ctx, bad)
	_, _ = f.svc.SignIn(ctx, bad)
	_, err := f.svc.SignIn(ctx, good)
	require.NoError(t, err)

	assert.Equal(t, 0, f.svc.Guard().Status(ctx).Count)
	assert.True(t, f.svc.Guard().CanAttempt(ctx))
}

func TestSignIn_SucceedsAfterWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, _ = f.svc.SignIn(ctx, bad)
	}

	f.clock.Advance(15*time.Minute + time.Second)
	_, err := f.svc.SignIn(ctx, good)
	require.NoError(t, err)
	assert.Contains(t, f.rec.messages(), security.MessageAttemptsReset)
}

func TestSignIn_NetworkErrorCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.api.authErr = fmt.Errorf("dial tcp: connection refused")

	_, err := f.svc.SignIn(ctx, good)
	var sie *SignInError
	require.ErrorAs(t, err, &sie)
	assert.Equal(t, 1, f.svc.Guard().Status(ctx).Count)
}

func TestSignIn_MalformedTokenCountsAndKeepsPriorSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.SignIn(ctx, good)
	require.NoError(t, err)
	prior := f.svc.Sessions().Current()

	f.api.tokens["alice@example.com"] = "not-a-valid-token"
	_, err = f.svc.SignIn(ctx, good)

	var sie *SignInError
	require.ErrorAs(t, err, &sie)
	assert.Equal(t, StageToken, sie.Stage)
	assert.ErrorIs(t, err, security.ErrMalformedToken)
	assert.Equal(t, prior, f.svc.Sessions().Current())
	assert.Equal(t, 1, f.svc.Guard().Status(ctx).Count)
}

func TestSignIn_ProfileFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.api.fetchErr = errors.New("503 service unavailable")

	_, err := f.svc.SignIn(ctx, good)
	var sie *SignInError
	require.ErrorAs(t, err, &sie)
	assert.Equal(t, StageProfile, sie.Stage)
	assert.Nil(t, f.svc.Sessions().Current())

	_, err = f.store.Get(ctx, security.TokenKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, f.svc.Guard().Status(ctx).Count)
}

func TestSignIn_IdentityMismatchRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.api.profiles["u-alice"] = security.Attributes{SubjectID: "u-mallory", Admin: true}

	_, err := f.svc.SignIn(ctx, good)
	assert.ErrorIs(t, err, security.ErrIdentityMismatch)
	assert.Nil(t, f.svc.Sessions().Current())
}

func TestSignIn_CancelledAttemptNotCounted(t *testing.T) {
	f := newFixture(t)
	f.api.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SignIn(ctx, good)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.api.authCalls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.svc.Guard().Status(context.Background()).Count)
}

// =============================================================================
// SIGN OUT / RESUME
// =============================================================================

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.SignIn(ctx, good)
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx))
	require.NoError(t, f.svc.SignOut(ctx))
	assert.Nil(t, f.svc.Sessions().Current())

	n := 0
	for _, m := range f.rec.messages() {
		if m == security.MessageSignedOut {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestResume_RestoresAndConfirms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Set(ctx, security.TokenKey, []byte(token(t, "u-alice"))))

	sess, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.Confirmed())
}

func TestResume_NothingStored(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Resume(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestResume_MalformedTokenDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Set(ctx, security.TokenKey, []byte("garbage")))

	sess, err := f.svc.Resume(ctx)
	assert.ErrorIs(t, err, security.ErrMalformedToken)
	assert.Nil(t, sess)
	assert.Contains(t, f.rec.messages(), security.MessageSessionEnded)
}

func TestResume_RejectedTokenSignsOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Set(ctx, security.TokenKey, []byte(token(t, "u-alice"))))
	f.api.fetchErr = fmt.Errorf("%w: 401", ErrSessionRejected)

	sess, err := f.svc.Resume(ctx)
	assert.ErrorIs(t, err, ErrSessionRejected)
	assert.Nil(t, sess)
	assert.Nil(t, f.svc.Sessions().Current())
}

func TestResume_TransientProfileErrorKeepsUnconfirmedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Set(ctx, security.TokenKey, []byte(token(t, "u-alice"))))
	f.api.fetchErr = errors.New("timeout")

	sess, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.False(t, sess.Confirmed())
	assert.Equal(t, security.RoleUser, security.View(sess).Role())
}

// Scenario C through the service.
func TestResume_ExpiresOldLockout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, _ = f.svc.SignIn(ctx, bad)
	}

	f.clock.Advance(16 * time.Minute)
	_, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, f.svc.Guard().CanAttempt(ctx))
	assert.Equal(t, 0, f.svc.Guard().Status(ctx).Count)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Refresh(ctx)
	assert.ErrorIs(t, err, security.ErrNoSession)

	_, err = f.svc.SignIn(ctx, good)
	require.NoError(t, err)
	f.api.profiles["u-alice"] = security.Attributes{SubjectID: "u-alice", Admin: true}

	sess, err := f.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, security.View(sess).CanSeeCRM)
}
