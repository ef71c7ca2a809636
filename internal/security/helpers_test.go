// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bcard-tui/internal/storage"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newTestGuard(store storage.Store, clock Clock, rec *recorder) *AttemptGuard {
	return NewAttemptGuard(store,
		WithClock(clock),
		WithNotifier(rec),
		WithLogger(quietLogger()),
	)
}

// signToken builds a JWT with the given claims. The signature is irrelevant
// to the client, which never verifies it.
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func userToken(t *testing.T, id string) string {
	return signToken(t, jwt.MapClaims{"_id": id, "isBusiness": false, "isAdmin": false, "iat": t0.Unix()})
}

// failingStore fails every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }
func (failingStore) Set(context.Context, string, []byte) error { return errStoreDown }
func (failingStore) Delete(context.Context, string) error { return errStoreDown }
func (failingStore) Update(context.Context, string, storage.UpdateFunc) error { return errStoreDown }
func (failingStore) Close() error { return nil }
