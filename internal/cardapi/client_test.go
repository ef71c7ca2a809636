// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cardapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bcard-tui/internal/auth"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	base := []Option{
		WithHTTPClient(srv.Client()),
		WithLogger(quietLogger()),
		WithRetryBackoff(time.Millisecond, 5*time.Millisecond),
	}
	return NewClient(srv.URL, append(base, opts...)...), srv
}

func signToken(t *testing.T, id string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"_id": id, "isAdmin": false, "isBusiness": true, "iat": time.Now().Unix(),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

type staticAuth string

func (s staticAuth) AttachAuth(req *http.Request) { req.Header.Set("x-auth-token", string(s)) }

// =============================================================================
// AUTHENTICATE
// =============================================================================

func TestAuthenticate_PostsCredentials(t *testing.T) {
	var got loginRequest
	var reqID, contentType string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/login", r.URL.Path)
		reqID = r.Header.Get(RequestIDHeader)
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, "tok-123\n")
	})

	tok, err := c.Authenticate(context.Background(), auth.Credentials{Email: "a@b.co", Password: "Secret1!"})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
	assert.Equal(t, "a@b.co", got.Email)
	assert.Equal(t, "Secret1!", got.Password)
	assert.Equal(t, "application/json", contentType)
	_, err = uuid.Parse(reqID)
	assert.NoError(t, err, "request id should be a uuid")
}

func TestAuthenticate_JSONQuotedToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `"tok-quoted"`)
	})
	tok, err := c.Authenticate(context.Background(), auth.Credentials{Email: "a@b.co", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "tok-quoted", tok)
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `""`)
	})
	_, err := c.Authenticate(context.Background(), auth.Credentials{Email: "a@b.co", Password: "x"})
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestAuthenticate_RejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "Invalid email or password")
	})
	_, err := c.Authenticate(context.Background(), auth.Credentials{Email: "a@b.co", Password: "x"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAuthenticate_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Authenticate(context.Background(), auth.Credentials{Email: "a@b.co", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

// =============================================================================
// RETRY AND ERROR MAPPING
// =============================================================================

func TestGet_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	ids := map[string]bool{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids[r.Header.Get(RequestIDHeader)] = true
		mu.Unlock()
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[{"_id":"c1","title":"Bakery"}]`)
	})

	cards, err := c.ListCards(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Bakery", cards[0].Title)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, ids, 1, "retries share the request id")
}

func TestGet_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"boom"}`)
	}, WithMaxRetries(2))

	_, err := c.ListCards(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.GetCard(context.Background(), "c1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnauthorizedMatchesSessionRejected(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "Access denied. No token provided")
	})
	_, err := c.FetchProfile(context.Background(), "u1")
	assert.ErrorIs(t, err, auth.ErrSessionRejected)
	assert.Contains(t, err.Error(), "Access denied")
}

func TestRateLimitedIsRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})
	cards, err := c.ListCards(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.Equal(t, int32(2), calls.Load())
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryBackoff(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ListCards(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResponseSizeLimit(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", MaxResponseSize+1)))
	})
	_, err := c.ListCards(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestEmptyIDMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	ctx := context.Background()

	_, err := c.GetCard(ctx, " ")
	assert.ErrorIs(t, err, ErrEmptyID)
	_, err = c.GetUser(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.ErrorIs(t, c.DeleteCard(ctx, ""), ErrEmptyID)
	assert.ErrorIs(t, c.DeleteUser(ctx, ""), ErrEmptyID)
	_, err = c.ToggleLike(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.Zero(t, calls.Load())
}

func TestErrorMessage_HTMLBodyDropped(t *testing.T) {
	assert.Empty(t, errorMessage([]byte("<html><body>502</body></html>")))
	assert.Equal(t, "plain", errorMessage([]byte(" plain ")))
	assert.Equal(t, "from error", errorMessage([]byte(`{"error":"from error"}`)))
}

// =============================================================================
// ENDPOINTS
// =============================================================================

func TestAttachAuthHeader(t *testing.T) {
	var got string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("x-auth-token")
		_, _ = io.WriteString(w, `[]`)
	}, WithAuth(staticAuth("tok")))
	_, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}

func TestAttachAuth_FromSessionStore(t *testing.T) {
	ctx := context.Background()
	sessions := security.NewSessionStore(storage.NewMemory(), security.WithSessionLogger(quietLogger()))
	tok := signToken(t, "u1")
	_, err := sessions.Login(ctx, tok)
	require.NoError(t, err)

	var got string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(security.DefaultAuthHeader)
		_, _ = io.WriteString(w, `{"_id":"c1"}`)
	}, WithAuth(sessions))
	_, err = c.GetCard(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, tok, got)

	require.NoError(t, sessions.Logout(ctx))
	_, err = c.GetCard(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchProfile_MapsUser(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/u1", r.URL.Path)
		_, _ = io.WriteString(w, `{"_id":"u1","name":{"first":"Dana","middle":"","last":"Levi"},
			"email":"dana@example.com","isAdmin":true,"isBusiness":false}`)
	})
	attrs, err := c.FetchProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, security.Attributes{
		SubjectID:   "u1",
		DisplayName: "Dana Levi",
		Email:       "dana@example.com",
		Admin:       true,
	}, attrs)
}

func TestPathEscaping(t *testing.T) {
	var raw string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw = r.URL.EscapedPath()
		_, _ = io.WriteString(w, `{}`)
	})
	_, err := c.GetCard(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/cards/a%2Fb", raw)
}

func TestToggleLike(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/cards/c1", r.URL.Path)
		_, _ = io.WriteString(w, `{"_id":"c1","likes":["u1"]}`)
	})
	card, err := c.ToggleLike(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, card.LikedBy("u1"))
}

func TestDeleteCard(t *testing.T) {
	var method, path string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_, _ = io.WriteString(w, `{}`)
	})
	require.NoError(t, c.DeleteCard(context.Background(), "c9"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/cards/c9", path)
}

func TestSetBusiness(t *testing.T) {
	t.Run("already set makes no patch", func(t *testing.T) {
		var patches atomic.Int32
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPatch {
				patches.Add(1)
			}
			_, _ = io.WriteString(w, `{"_id":"u1","isBusiness":true}`)
		})
		u, err := c.SetBusiness(context.Background(), "u1", true)
		require.NoError(t, err)
		assert.True(t, u.IsBusiness)
		assert.Zero(t, patches.Load())
	})

	t.Run("toggles when different", func(t *testing.T) {
		var patches atomic.Int32
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPatch {
				patches.Add(1)
				_, _ = io.WriteString(w, `{"_id":"u1","isBusiness":true}`)
				return
			}
			_, _ = io.WriteString(w, `{"_id":"u1","isBusiness":false}`)
		})
		u, err := c.SetBusiness(context.Background(), "u1", true)
		require.NoError(t, err)
		assert.True(t, u.IsBusiness)
		assert.Equal(t, int32(1), patches.Load())
	})
}

// =============================================================================
// CREATE AND EDIT
// =============================================================================

func validCardInput() CardInput {
	return CardInput{
		Title:       "Forge Works",
		Subtitle:    "Metal and wood",
		Description: "Hand-made tools.",
		Phone:       "0501234567",
		Email:       "shop@forge.example",
		Web:         "https://forge.example",
		Address:     Address{Country: "Israel", City: "Haifa", Street: "Herzl", HouseNumber: 12},
	}
}

func TestCreateCard_PostsBody(t *testing.T) {
	var got CardInput
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cards", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"_id":"c9","title":"Forge Works","user_id":"u1","likes":[]}`)
	})

	in := validCardInput()
	in.Title = "  Forge Works  "
	card, err := c.CreateCard(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "c9", card.ID)
	assert.Equal(t, "u1", card.UserID)
	assert.Equal(t, "Forge Works", got.Title, "fields are trimmed before sending")
	assert.Equal(t, 12, got.Address.HouseNumber)
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx := context.Background()

	_, err := c.CreateCard(ctx, validCardInput())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.UpdateCard(ctx, "c1", validCardInput())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	_, err = c.UpdateUser(ctx, "u1", UserUpdate{Name: Name{First: "Ada", Last: "Lovelace"}, Email: "ada@example.com"})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUpdateCard_PutsEditableFields(t *testing.T) {
	var raw map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/cards/c1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, `{"_id":"c1","title":"Renamed","likes":["u2"]}`)
	})

	in := CardInputFrom(Card{ID: "c1", Likes: []string{"u2"}, UserID: "u1", BizNumber: 7})
	in.Title = "Renamed"
	in.Subtitle, in.Description, in.Phone, in.Email = "Sub", "Desc", "0501234567", "a@b.co"
	in.Address = Address{Country: "IL", City: "Haifa", Street: "Herzl", HouseNumber: 1}
	card, err := c.UpdateCard(context.Background(), "c1", in)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", card.Title)
	for _, server := range []string{"_id", "likes", "user_id", "bizNumber"} {
		assert.NotContains(t, raw, server)
	}
}

func TestUpdateUser_PutsProfile(t *testing.T) {
	var got UserUpdate
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/users/u1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"_id":"u1","name":{"first":"Ada","last":"King"},"email":"ada@example.com","isAdmin":true}`)
	})

	in := UserUpdateFrom(User{ID: "u1", Name: Name{First: "Ada", Last: "Lovelace"}, Email: "ada@example.com", IsAdmin: true})
	in.Name.Last = "King"
	u, err := c.UpdateUser(context.Background(), "u1", in)
	require.NoError(t, err)
	assert.Equal(t, "Ada King", u.Name.Full())
	assert.True(t, u.IsAdmin)
	assert.Equal(t, "King", got.Name.Last)
}

func TestInvalidInputMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	ctx := context.Background()

	in := validCardInput()
	in.Phone = "12"
	_, err := c.CreateCard(ctx, in)
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "phone", inputErr.Field)

	_, err = c.UpdateCard(ctx, "", validCardInput())
	assert.ErrorIs(t, err, ErrEmptyID)

	_, err = c.UpdateUser(ctx, "u1", UserUpdate{Name: Name{First: "Ada"}, Email: "ada@example.com"})
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "name.last", inputErr.Field)
	assert.Zero(t, calls.Load())
}

func TestRateLimiterPacesRequests(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}, WithRateLimit(20))

	start := time.Now()
	for i := 0; i < 25; i++ {
		_, err := c.ListCards(context.Background())
		require.NoError(t, err)
	}
	// burst of 20, then 5 more at 20/s
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, NewClient("").BaseURL())
	assert.Equal(t, "http://x/api", NewClient("http://x/api/").BaseURL())
}

// =============================================================================
// SIGN-IN OVER HTTP
// =============================================================================

func TestSignInOverHTTP(t *testing.T) {
	tok := signToken(t, "u1")
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "Right1!" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, "Invalid email or password")
			return
		}
		_, _ = io.WriteString(w, tok)
	})
	mux.HandleFunc("/users/u1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(security.DefaultAuthHeader) != tok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"_id":"u1","name":{"first":"Dana","last":"Levi"},"isBusiness":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store := storage.NewMemory()
	guard := security.NewAttemptGuard(store, security.WithLogger(quietLogger()))
	sessions := security.NewSessionStore(store, security.WithSessionLogger(quietLogger()))
	client := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithAuth(sessions), WithLogger(quietLogger()))
	svc := auth.NewService(guard, sessions, client, client, auth.WithLogger(quietLogger()))

	_, err := svc.SignIn(ctx, auth.Credentials{Email: "dana@example.com", Password: "wrong"})
	var signInErr *auth.SignInError
	require.ErrorAs(t, err, &signInErr)
	assert.Equal(t, 1, signInErr.Outcome.Attempt)

	sess, err := svc.SignIn(ctx, auth.Credentials{Email: "dana@example.com", Password: "Right1!"})
	require.NoError(t, err)
	require.True(t, sess.Confirmed())
	assert.Equal(t, security.RoleBusiness, security.View(sess).Role())
	assert.Zero(t, guard.Status(ctx).Count)
}

func TestLockoutOverHTTP(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store := storage.NewMemory()
	guard := security.NewAttemptGuard(store, security.WithLogger(quietLogger()))
	sessions := security.NewSessionStore(store, security.WithSessionLogger(quietLogger()))
	client := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithLogger(quietLogger()))
	svc := auth.NewService(guard, sessions, client, client, auth.WithLogger(quietLogger()))

	creds := auth.Credentials{Email: "a@b.co", Password: "nope"}
	for i := 0; i < security.DefaultMaxAttempts; i++ {
		_, err := svc.SignIn(ctx, creds)
		require.Error(t, err)
	}
	_, err := svc.SignIn(ctx, creds)
	var locked *auth.LockedOutError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, int32(security.DefaultMaxAttempts), logins.Load(), "locked sign-in never reaches the API")
}
