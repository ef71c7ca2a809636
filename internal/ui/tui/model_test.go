// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bcard-tui/internal/auth"
	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/cardapi/cardapitest"
	"github.com/jeranaias/bcard-tui/internal/cli"
	"github.com/jeranaias/bcard-tui/internal/config"
	"github.com/jeranaias/bcard-tui/internal/logging"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/ui/components"
)

// =============================================================================
// HARNESS
// =============================================================================

const (
	adaID    = "u-ada"
	adaEmail = "ada@example.com"
	adaPass  = "Secret#1"
	bizID    = "u-biz"
	bizEmail = "biz@example.com"
	bizPass  = "Secret#2"
	rootID   = "u-root"
	rootMail = "root@example.com"
	rootPass = "Secret#3"
)

type harness struct {
	t      *testing.T
	api    *cardapitest.Server
	cfg    *config.Config
	clock  *security.ManualClock
	app    *cli.App
	bridge *Bridge
	m      Model
	quit   bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(config.HomeEnv, t.TempDir())

	api := cardapitest.NewServer()
	t.Cleanup(api.Close)
	api.AddUser(cardapi.User{ID: adaID, Email: adaEmail, Name: cardapi.Name{First: "Ada", Last: "Lovelace"}}, adaPass)
	api.AddUser(cardapi.User{ID: bizID, Email: bizEmail, Name: cardapi.Name{First: "Grace", Last: "Hopper"}, IsBusiness: true}, bizPass)
	api.AddUser(cardapi.User{ID: rootID, Email: rootMail, Name: cardapi.Name{First: "Root"}, IsAdmin: true}, rootPass)

	cfg := config.Default()
	cfg.API.BaseURL = api.URL
	cfg.API.RequestsPerSecond = 0
	cfg.API.MaxRetries = 0
	require.NoError(t, cfg.Validate())

	h := &harness{
		t:      t,
		api:    api,
		cfg:    cfg,
		clock:  security.NewManualClock(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)),
		bridge: NewBridge(),
	}
	h.app = h.bootstrap(h.bridge)
	h.m = New(context.Background(), h.app,
		WithTickInterval(time.Millisecond),
		WithNow(h.clock.Now),
		WithCursorMode(cursor.CursorStatic),
	)
	h.send(tea.WindowSizeMsg{Width: 120, Height: 40})
	h.settle(h.m.Init())
	return h
}

// bootstrap opens another App over the same state, as a second process would.
func (h *harness) bootstrap(n security.Notifier) *cli.App {
	h.t.Helper()
	app, err := cli.Bootstrap(context.Background(), h.cfg.Clone(), false,
		cli.WithAppLogger(logging.Discard()),
		cli.WithAppClock(h.clock),
		cli.WithEventNotifier(n),
	)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = app.Close() })
	return app
}

func (h *harness) send(msg tea.Msg) {
	h.t.Helper()
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	h.settle(cmd)
}

// settle runs cmd and everything it produces, feeding results back into the
// model. Timer messages are dropped; tests drive ticks by hand. Queued
// bridge messages are delivered last.
func (h *harness) settle(cmd tea.Cmd) {
	h.t.Helper()
	results := make(chan tea.Msg, 64)
	pending := 0
	start := func(c tea.Cmd) {
		if c == nil {
			return
		}
		pending++
		go func() { results <- c() }()
	}
	start(cmd)

	deadline := time.After(5 * time.Second)
	for pending > 0 {
		select {
		case msg := <-results:
			pending--
			switch msg := msg.(type) {
			case nil:
			case tea.BatchMsg:
				for _, c := range msg {
					start(c)
				}
			case tea.QuitMsg:
				h.quit = true
			case spinner.TickMsg, lockoutTickMsg, components.ToastTickMsg:
			default:
				next, c := h.m.Update(msg)
				h.m = next.(Model)
				start(c)
			}
		case <-deadline:
			h.t.Fatal("commands did not settle")
		}
	}

	for _, msg := range h.bridge.Drain() {
		h.send(msg)
	}
}

func (h *harness) key(k tea.KeyType) {
	h.t.Helper()
	h.send(tea.KeyMsg{Type: k})
}

func (h *harness) typeText(s string) {
	h.t.Helper()
	for _, r := range s {
		h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func (h *harness) signInThroughForm(email, password string) {
	h.t.Helper()
	if h.m.page != components.PageSignIn {
		h.typeText(fmt.Sprint(len(components.NavItems(h.m.view))))
	}
	require.Equal(h.t, components.PageSignIn, h.m.page)
	if email != "" {
		h.m.form.email.SetValue("")
		h.typeText(email)
		h.key(tea.KeyTab)
	}
	h.typeText(password)
	h.key(tea.KeyEnter)
}

func (h *harness) toastMessages() []string {
	var out []string
	for _, t := range h.m.toasts.Toasts() {
		out = append(out, t.Message)
	}
	return out
}

func (h *harness) addCards(n int) {
	for i := 1; i <= n; i++ {
		h.api.AddCard(cardapi.Card{
			ID:     fmt.Sprintf("c%02d", i),
			Title:  fmt.Sprintf("Card %02d", i),
			Phone:  "050-0000000",
			UserID: bizID,
		})
	}
	h.typeText("r")
}

// =============================================================================
// SIGN IN
// =============================================================================

func TestSignIn_ThroughForm(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.m.View(), "not signed in")

	h.signInThroughForm(adaEmail, adaPass)

	sess := h.app.Sessions.Current()
	require.NotNil(t, sess)
	assert.Equal(t, adaID, sess.Identity.Subject)
	assert.True(t, sess.Confirmed())
	assert.Equal(t, components.PageCards, h.m.page)
	assert.Contains(t, h.m.View(), "Ada Lovelace (user)")
	assert.Contains(t, h.toastMessages(), security.MessageSignedIn)
	assert.Empty(t, h.m.form.password.Value())
}

func TestSignIn_InvalidInputDoesNotCount(t *testing.T) {
	h := newHarness(t)
	h.signInThroughForm("not-an-email", "whatever")

	assert.Nil(t, h.app.Sessions.Current())
	assert.Zero(t, h.api.Logins.Load())
	assert.Zero(t, h.app.Guard.Status(context.Background()).Count)
	require.NotEmpty(t, h.toastMessages())
	assert.Contains(t, h.toastMessages()[0], auth.ErrInvalidCredentials.Error())
}

func TestSignIn_LockoutDisablesSubmitAndCountsDown(t *testing.T) {
	h := newHarness(t)

	h.signInThroughForm(adaEmail, "wrong-1")
	assert.Contains(t, h.toastMessages(), security.FailedAttemptMessage(1, 3))
	assert.Contains(t, h.m.View(), "2 of 3 attempts remaining")

	h.signInThroughForm("", "wrong-2")
	h.signInThroughForm("", "wrong-3")
	require.EqualValues(t, 3, h.api.Logins.Load())

	require.True(t, h.m.form.status.Locked)
	assert.False(t, h.m.canSubmit())
	view := h.m.View()
	assert.Contains(t, view, "[LOCKED]")
	assert.Contains(t, view, security.LockedOutMessage(15*time.Minute))
	assert.Contains(t, view, "Sign in unlocks in 15:00")

	toasts := h.toastMessages()
	assert.Contains(t, toasts, security.LockedOutMessage(15*time.Minute))
	assert.NotContains(t, toasts, security.FailedAttemptMessage(2, 3))

	// Submitting while locked is a no-op.
	h.key(tea.KeyEnter)
	assert.EqualValues(t, 3, h.api.Logins.Load())
	assert.Empty(t, h.m.busy)

	h.clock.Advance(5*time.Minute + 30*time.Second)
	h.send(lockoutTickMsg{})
	assert.Contains(t, h.m.View(), "Sign in unlocks in 9:30")

	h.clock.Advance(9*time.Minute + 30*time.Second)
	h.send(lockoutTickMsg{})
	assert.False(t, h.m.form.status.Locked)
	assert.True(t, h.m.canSubmit())
	assert.NotContains(t, h.m.View(), "[LOCKED]")
	assert.Contains(t, h.toastMessages(), security.MessageAttemptsReset)

	h.m.form.setFocus(focusPassword)
	h.signInThroughForm("", adaPass)
	require.NotNil(t, h.app.Sessions.Current())
	assert.Zero(t, h.app.Guard.Status(context.Background()).Count)
}

func TestSignOut(t *testing.T) {
	h := newHarness(t)
	h.signInThroughForm(adaEmail, adaPass)

	h.typeText("o")
	assert.Nil(t, h.app.Sessions.Current())
	assert.False(t, h.m.view.SignedIn)
	assert.Contains(t, h.toastMessages(), security.MessageSignedOut)
	assert.Contains(t, h.m.View(), "not signed in")
}

func TestSignInForm_EscReturnsAndLettersAreTyped(t *testing.T) {
	h := newHarness(t)
	h.typeText("2")
	require.Equal(t, components.PageSignIn, h.m.page)

	h.typeText("q")
	assert.False(t, h.quit)
	assert.Equal(t, "q", h.m.form.email.Value())

	h.key(tea.KeyEsc)
	assert.Equal(t, components.PageCards, h.m.page)

	h.typeText("q")
	assert.True(t, h.quit)
}

// =============================================================================
// NAVIGATION
// =============================================================================

func TestNavigation_GatedByRole(t *testing.T) {
	h := newHarness(t)

	h.typeText("5")
	assert.Equal(t, components.PageCards, h.m.page)
	assert.NotContains(t, h.m.View(), "CRM")

	h.signInThroughForm(adaEmail, adaPass)
	h.typeText("5")
	assert.Equal(t, components.PageCards, h.m.page)

	h.typeText("4")
	assert.Equal(t, components.PageProfile, h.m.page)
	view := h.m.View()
	assert.Contains(t, view, "Ada Lovelace")
	assert.Contains(t, view, string(security.PermCardLike))
	assert.NotContains(t, view, string(security.PermCardCreate))
}

func TestCRM_AdminTogglesBusiness(t *testing.T) {
	h := newHarness(t)
	h.signInThroughForm(rootMail, rootPass)

	h.typeText("5")
	require.Equal(t, components.PageCRM, h.m.page)
	require.True(t, h.m.usersReady)
	view := h.m.View()
	assert.Contains(t, view, "Grace Hopper")
	assert.Contains(t, view, "Ada Lovelace")

	h.typeText("t")
	require.Len(t, h.m.visibleUsers(), 1)

	h.typeText("b")
	u, ok := h.api.User(bizID)
	require.True(t, ok)
	assert.False(t, u.IsBusiness)
	assert.Contains(t, h.toastMessages(), "Grace Hopper is no longer a business user")
	assert.Empty(t, h.m.visibleUsers())
	assert.Contains(t, h.m.View(), "No users.")
}

func TestSessionEndedElsewhereLeavesCRM(t *testing.T) {
	h := newHarness(t)
	h.signInThroughForm(rootMail, rootPass)
	h.typeText("5")
	require.Equal(t, components.PageCRM, h.m.page)

	other := h.bootstrap(nil)
	_, err := other.Auth.Resume(context.Background())
	require.NoError(t, err)
	require.NoError(t, other.Auth.SignOut(context.Background()))

	h.send(StoreChangedMsg{})
	assert.False(t, h.m.view.SignedIn)
	assert.Equal(t, components.PageCards, h.m.page)
	assert.Nil(t, h.m.users)
	assert.Contains(t, h.toastMessages(), security.MessageSignedOut)
}

// =============================================================================
// CARDS
// =============================================================================

func TestCards_PagingAndSearch(t *testing.T) {
	h := newHarness(t)
	h.addCards(10)
	require.True(t, h.m.cardsReady)

	view := h.m.View()
	assert.Contains(t, view, "Page 1 of 2")
	assert.Contains(t, view, "Card 08")
	assert.NotContains(t, view, "Card 09")

	h.key(tea.KeyRight)
	view = h.m.View()
	assert.Contains(t, view, "Page 2 of 2")
	assert.Contains(t, view, "Card 10")

	h.key(tea.KeyRight)
	assert.Equal(t, 2, h.m.pageNum)

	h.key(tea.KeyDown)
	h.key(tea.KeyDown)
	assert.Equal(t, 1, h.m.cursor)

	h.typeText("/07")
	h.key(tea.KeyEnter)
	assert.Equal(t, "07", h.m.query)
	assert.Equal(t, 1, h.m.pageNum)
	card, ok := h.m.selectedCard()
	require.True(t, ok)
	assert.Equal(t, "c07", card.ID)

	// The search field reopens with the current query.
	h.typeText("/x")
	h.key(tea.KeyEnter)
	assert.Equal(t, "07x", h.m.query)
	assert.Contains(t, h.m.View(), `No cards match "07x".`)

	h.typeText("/")
	h.key(tea.KeyEsc)
	assert.False(t, h.m.searching)
	assert.Equal(t, "07x", h.m.query)
}

func TestCards_LikeAndFavorites(t *testing.T) {
	h := newHarness(t)
	h.addCards(3)

	h.typeText("f")
	assert.Contains(t, h.toastMessages(), "Sign in to like cards")

	h.signInThroughForm(adaEmail, adaPass)
	h.key(tea.KeyDown)
	h.typeText("f")

	stored, ok := h.api.Card("c02")
	require.True(t, ok)
	assert.Equal(t, []string{adaID}, stored.Likes)
	assert.Contains(t, h.toastMessages(), `Liked "Card 02"`)

	h.typeText("2")
	require.Equal(t, components.PageFavorites, h.m.page)
	assert.Len(t, h.m.visibleCards(), 1)
	assert.Contains(t, h.m.View(), "Card 02")

	// Unliking on the favorites page empties it.
	h.typeText("f")
	assert.Empty(t, h.m.visibleCards())
	assert.Contains(t, h.m.View(), "No cards.")
}

func TestCards_MyCardsForBusiness(t *testing.T) {
	h := newHarness(t)
	h.addCards(2)
	h.api.AddCard(cardapi.Card{ID: "other", Title: "Someone Else", UserID: adaID})
	h.typeText("r")

	h.signInThroughForm(bizEmail, bizPass)
	h.typeText("3")
	require.Equal(t, components.PageMyCards, h.m.page)
	assert.Len(t, h.m.visibleCards(), 2)
	assert.NotContains(t, h.m.View(), "Someone Else")
}

func TestCards_LoadErrorOffersRetry(t *testing.T) {
	h := newHarness(t)
	h.api.Close()
	h.m.cardsReady = false
	h.typeText("r")

	assert.Error(t, h.m.loadErr)
	assert.Contains(t, h.m.View(), "press r to retry")
	require.NotEmpty(t, h.toastMessages())
	assert.Contains(t, h.toastMessages()[0], "Could not load cards")
}

// =============================================================================
// NEW CARD
// =============================================================================

// fillCardForm types values into the card form in field order, pressing
// Enter after each one.
func (h *harness) fillCardForm(values ...string) {
	h.t.Helper()
	for _, v := range values {
		h.typeText(v)
		h.key(tea.KeyEnter)
	}
}

func TestNewCard_BusinessUserPublishes(t *testing.T) {
	h := newHarness(t)
	h.signInThroughForm(bizEmail, bizPass)

	h.typeText("5")
	require.Equal(t, components.PageCreateCard, h.m.page)
	view := h.m.View()
	assert.Contains(t, view, "New Card")
	assert.Contains(t, view, "House number")

	h.fillCardForm("Forge Works", "Metal and wood", "Hand made tools", "0501234567",
		"shop@forge.example", "", "", "Israel", "Haifa", "Herzl", "12", "")
	require.Equal(t, h.m.cardForm.submitIndex(), h.m.cardForm.focus)
	h.key(tea.KeyEnter)

	card, ok := h.api.Card("new-001")
	require.True(t, ok)
	assert.Equal(t, "Forge Works", card.Title)
	assert.Equal(t, bizID, card.UserID)
	assert.Equal(t, 12, card.Address.HouseNumber)

	assert.Equal(t, components.PageMyCards, h.m.page)
	assert.Contains(t, h.toastMessages(), "Created card Forge Works")
	assert.Len(t, h.m.visibleCards(), 1)
	assert.Empty(t, h.m.cardForm.inputs[0].Value())
}

func TestNewCard_InvalidFieldIsFocused(t *testing.T) {
	h := newHarness(t)
	h.signInThroughForm(bizEmail, bizPass)
	h.typeText("5")
	require.Equal(t, components.PageCreateCard, h.m.page)

	h.typeText("Forge Works")
	h.key(tea.KeyShiftTab)
	require.Equal(t, h.m.cardForm.submitIndex(), h.m.cardForm.focus)
	h.key(tea.KeyEnter)

	assert.Contains(t, h.toastMessages(), "invalid subtitle: is required")
	assert.Equal(t, 1, h.m.cardForm.focus)
	_, ok := h.api.Card("new-001")
	assert.False(t, ok)

	h.key(tea.KeyEsc)
	assert.Equal(t, components.PageMyCards, h.m.page)
}

func TestNewCard_HiddenFromPlainUsers(t *testing.T) {
	h := newHarness(t)
	h.signInThroughForm(adaEmail, adaPass)

	assert.False(t, components.HasPage(components.NavItems(h.m.view), components.PageCreateCard))
	h.typeText("5")
	assert.Equal(t, components.PageCards, h.m.page)
	assert.NotContains(t, h.m.View(), "New Card")
}

// =============================================================================
// CROSS-PROCESS
// =============================================================================

func TestStoreChanged_PicksUpSignInFromAnotherProcess(t *testing.T) {
	h := newHarness(t)
	other := h.bootstrap(nil)

	_, err := other.Auth.SignIn(context.Background(), auth.Credentials{Email: bizEmail, Password: bizPass})
	require.NoError(t, err)

	h.send(StoreChangedMsg{})
	require.True(t, h.m.view.SignedIn)
	assert.Equal(t, security.RoleBusiness, h.m.view.Role())
	assert.Contains(t, h.m.View(), "Grace Hopper (business)")
	assert.Contains(t, h.toastMessages(), "Signed in as Grace Hopper")
}

func TestStoreChanged_PicksUpLockoutFromAnotherProcess(t *testing.T) {
	h := newHarness(t)
	other := h.bootstrap(nil)
	for i := 0; i < 3; i++ {
		_, err := other.Auth.SignIn(context.Background(), auth.Credentials{Email: adaEmail, Password: "nope"})
		require.Error(t, err)
	}

	h.send(StoreChangedMsg{})
	assert.True(t, h.m.form.status.Locked)
	assert.False(t, h.m.canSubmit())
}

// =============================================================================
// BRIDGE AND HELPERS
// =============================================================================

func TestBridge_QueuesWithoutBlocking(t *testing.T) {
	b := NewBridge()
	for i := 0; i < bridgeBuffer+10; i++ {
		b.Notify(security.Event{Kind: security.EventAttemptFailed})
	}
	b.StoreChanged()
	msgs := b.Drain()
	assert.Len(t, msgs, bridgeBuffer)
	assert.Empty(t, b.Drain())
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{15 * time.Minute, "15:00"},
		{9*time.Minute + 30*time.Second, "9:30"},
		{500 * time.Millisecond, "0:01"},
		{0, "0:00"},
		{-time.Second, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatCountdown(tt.in), tt.in.String())
	}
}
