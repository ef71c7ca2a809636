// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bcard-tui/internal/auth"
	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/cli"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/ui/components"
	"github.com/jeranaias/bcard-tui/internal/ui/styles"
)

const (
	defaultTickInterval = time.Second
	toastTickInterval   = 250 * time.Millisecond
)

// =============================================================================
// SIGN-IN FORM
// =============================================================================

type formFocus int

const (
	focusEmail formFocus = iota
	focusPassword
	focusSubmit
	focusCount
)

type signInForm struct {
	email    textinput.Model
	password textinput.Model
	focus    formFocus
	status   security.Status
}

func newSignInForm() signInForm {
	email := textinput.New()
	email.Prompt = ""
	email.Placeholder = "you@example.com"
	email.CharLimit = 254

	password := textinput.New()
	password.Prompt = ""
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'
	password.CharLimit = 128

	return signInForm{email: email, password: password}
}

func (f *signInForm) setFocus(to formFocus) tea.Cmd {
	f.focus = (to + focusCount) % focusCount
	f.email.Blur()
	f.password.Blur()
	switch f.focus {
	case focusEmail:
		return f.email.Focus()
	case focusPassword:
		return f.password.Focus()
	}
	return nil
}

func (f *signInForm) blur() {
	f.email.Blur()
	f.password.Blur()
}

func (f *signInForm) credentials() auth.Credentials {
	return auth.Credentials{Email: f.email.Value(), Password: f.password.Value()}
}

// =============================================================================
// MODEL
// =============================================================================

// Option customizes a Model.
type Option func(*Model)

// WithTickInterval sets how often the lockout countdown refreshes.
func WithTickInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.tickInterval = d
		}
	}
}

// WithNow sets the clock used for toast expiry.
func WithNow(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCursorMode sets the text cursor mode of the input fields.
func WithCursorMode(mode cursor.Mode) Option {
	return func(m *Model) {
		m.cursorMode = mode
	}
}

// Model is the Bubble Tea model for the bcard TUI.
type Model struct {
	ctx context.Context
	app *cli.App

	theme   *styles.Theme
	keys    KeyMap
	header  *components.Header
	toasts  *components.ToastManager
	spinner spinner.Model

	width  int
	height int

	page components.PageID
	view security.RoleView
	busy string

	form     signInForm
	cardForm cardForm

	cards      []cardapi.Card
	cardsReady bool
	search     textinput.Model
	searching  bool
	query      string
	pageNum    int
	cursor     int

	users        []cardapi.User
	usersReady   bool
	businessOnly bool

	loadErr error

	tickInterval time.Duration
	now          func() time.Time
	cursorMode   cursor.Mode
}

var _ tea.Model = Model{}

// New creates the model over the services of app.
func New(ctx context.Context, app *cli.App, opts ...Option) Model {
	m := Model{
		ctx:          ctx,
		app:          app,
		theme:        styles.NewTheme(app.Config.UI.Theme),
		keys:         DefaultKeyMap(),
		page:         components.PageCards,
		pageNum:      1,
		tickInterval: defaultTickInterval,
		now:          time.Now,
		cursorMode:   cursor.CursorBlink,
	}
	for _, opt := range opts {
		opt(&m)
	}

	m.header = components.NewHeader(m.theme)
	m.toasts = components.NewToastManager(m.now)
	m.spinner = spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(m.theme.Spinner))
	m.form = newSignInForm()
	m.cardForm = newCardForm()

	m.search = textinput.New()
	m.search.Prompt = "/ "
	m.search.Placeholder = "search titles"

	inputs := []*textinput.Model{&m.form.email, &m.form.password, &m.search}
	for i := range m.cardForm.inputs {
		inputs = append(inputs, &m.cardForm.inputs[i])
	}
	for _, input := range inputs {
		input.Cursor.SetMode(m.cursorMode)
	}

	m.refreshView()
	m.form.status = app.Guard.Status(ctx)
	return m
}

// Init loads the cards and starts the tickers.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadCards(),
		lockoutTickCmd(m.tickInterval),
		components.ToastTickCmd(toastTickInterval),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.header.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.toasts.AddEvent(msg.Event)
		switch msg.Event.Kind {
		case security.EventSignedOut, security.EventSessionDiscarded:
			m.refreshView()
		case security.EventLockedOut, security.EventAttemptsReset:
			m.form.status = m.app.Guard.Status(m.ctx)
		}
		return m, nil

	case StoreChangedMsg:
		return m, m.reloadSession()

	case sessionReloadedMsg:
		return m.handleSessionReloaded(msg)

	case lockoutTickMsg:
		m.form.status = m.app.Guard.CheckAndMaybeExpire(m.ctx)
		return m, lockoutTickCmd(m.tickInterval)

	case components.ToastTickMsg:
		m.toasts.Tick()
		return m, components.ToastTickCmd(toastTickInterval)

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case signInResultMsg:
		return m.handleSignIn(msg)

	case signedOutMsg:
		m.busy = ""
		if msg.err != nil {
			m.toasts.AddError("Sign out failed: " + msg.err.Error())
		}
		m.refreshView()
		return m, nil

	case cardsLoadedMsg:
		m.busy = ""
		if msg.err != nil {
			m.loadErr = msg.err
			m.toasts.AddError("Could not load cards: " + msg.err.Error())
			return m, nil
		}
		m.loadErr = nil
		m.cards = msg.cards
		m.cardsReady = true
		m.clampSelection()
		return m, nil

	case cardLikedMsg:
		return m.handleLiked(msg)

	case usersLoadedMsg:
		m.busy = ""
		if msg.err != nil {
			m.loadErr = msg.err
			m.toasts.AddError("Could not load users: " + msg.err.Error())
			return m, nil
		}
		m.loadErr = nil
		m.users = msg.users
		m.usersReady = true
		m.clampSelection()
		return m, nil

	case userUpdatedMsg:
		return m.handleUserUpdated(msg)

	case cardCreatedMsg:
		return m.handleCardCreated(msg)
	}

	return m.updateInputs(msg)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}
	if m.searching {
		return m.handleSearchKey(msg)
	}
	if m.page == components.PageSignIn {
		return m.handleFormKey(msg)
	}
	if m.page == components.PageCreateCard {
		return m.handleCardFormKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextTab):
		return m.cycleTab(1)
	case key.Matches(msg, m.keys.PrevTab):
		return m.cycleTab(-1)
	case key.Matches(msg, m.keys.Dismiss):
		m.toasts.DismissNewest()
	case key.Matches(msg, m.keys.SignOut):
		return m.signOut()
	case key.Matches(msg, m.keys.Reload):
		return m.reload()
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.PrevPage):
		m.turnPage(-1)
	case key.Matches(msg, m.keys.NextPage):
		m.turnPage(1)
	case key.Matches(msg, m.keys.Search) && m.page == components.PageCards:
		m.searching = true
		m.search.SetValue(m.query)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Like) && m.isCardPage():
		return m.like()
	case key.Matches(msg, m.keys.Business) && m.page == components.PageCRM:
		return m.toggleBusiness()
	case key.Matches(msg, m.keys.Filter) && m.page == components.PageCRM:
		m.businessOnly = !m.businessOnly
		m.pageNum, m.cursor = 1, 0
	default:
		if n, ok := digit(msg); ok {
			return m.jump(n)
		}
	}
	return m, nil
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		return m.openPage(components.PageCards)
	case key.Matches(msg, m.keys.NextTab), msg.Type == tea.KeyDown:
		return m, m.form.setFocus(m.form.focus + 1)
	case key.Matches(msg, m.keys.PrevTab), msg.Type == tea.KeyUp:
		return m, m.form.setFocus(m.form.focus - 1)
	case key.Matches(msg, m.keys.Submit):
		if m.form.focus == focusEmail {
			return m, m.form.setFocus(focusPassword)
		}
		return m.submit()
	}

	var cmd tea.Cmd
	switch m.form.focus {
	case focusEmail:
		m.form.email, cmd = m.form.email.Update(msg)
	case focusPassword:
		m.form.password, cmd = m.form.password.Update(msg)
	}
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		m.query = strings.TrimSpace(m.search.Value())
		m.searching = false
		m.search.Blur()
		m.pageNum, m.cursor = 1, 0
		return m, nil
	case key.Matches(msg, m.keys.Cancel):
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

// updateInputs routes non-key messages such as cursor blinks to the focused
// field.
func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.searching:
		m.search, cmd = m.search.Update(msg)
	case m.page == components.PageSignIn && m.form.focus == focusEmail:
		m.form.email, cmd = m.form.email.Update(msg)
	case m.page == components.PageSignIn && m.form.focus == focusPassword:
		m.form.password, cmd = m.form.password.Update(msg)
	case m.page == components.PageCreateCard && m.cardForm.focus < m.cardForm.submitIndex():
		i := m.cardForm.focus
		m.cardForm.inputs[i], cmd = m.cardForm.inputs[i].Update(msg)
	}
	return m, cmd
}

func digit(msg tea.KeyMsg) (int, bool) {
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return 0, false
	}
	r := msg.Runes[0]
	if r < '1' || r > '9' {
		return 0, false
	}
	return int(r - '0'), true
}

// =============================================================================
// NAVIGATION
// =============================================================================

func (m Model) openPage(id components.PageID) (tea.Model, tea.Cmd) {
	if !components.HasPage(components.NavItems(m.view), id) {
		return m, nil
	}
	m.page = id
	m.header.Active = id
	m.pageNum, m.cursor = 1, 0
	m.loadErr = nil
	m.form.blur()
	m.cardForm.blur()

	switch id {
	case components.PageSignIn:
		m.form.status = m.app.Guard.CheckAndMaybeExpire(m.ctx)
		return m, m.form.setFocus(focusEmail)
	case components.PageCreateCard:
		return m, m.cardForm.setFocus(0)
	case components.PageCRM:
		if !m.usersReady {
			return m.startLoad("Loading users", m.loadUsers())
		}
	}
	return m, nil
}

func (m Model) cycleTab(delta int) (tea.Model, tea.Cmd) {
	items := components.NavItems(m.view)
	i := 0
	for j, it := range items {
		if it.ID == m.page {
			i = j
		}
	}
	next := (i + delta + len(items)) % len(items)
	return m.openPage(items[next].ID)
}

func (m Model) jump(n int) (tea.Model, tea.Cmd) {
	items := components.NavItems(m.view)
	if n > len(items) {
		return m, nil
	}
	return m.openPage(items[n-1].ID)
}

// refreshView re-derives the role view from the current session. A page the
// new view no longer allows falls back to the card list.
func (m *Model) refreshView() {
	sess := m.app.Sessions.Current()
	m.view = security.View(sess)
	m.header.SetView(m.view, displayName(sess))
	if !components.HasPage(components.NavItems(m.view), m.page) {
		m.page = components.PageCards
		m.pageNum, m.cursor = 1, 0
		m.form.blur()
		m.cardForm.blur()
	}
	m.header.Active = m.page
	if !m.view.CanSeeCRM {
		m.users, m.usersReady = nil, false
	}
}

func displayName(sess *security.Session) string {
	switch {
	case sess == nil:
		return ""
	case sess.Attributes != nil && sess.Attributes.DisplayName != "":
		return sess.Attributes.DisplayName
	case sess.Attributes != nil && sess.Attributes.Email != "":
		return sess.Attributes.Email
	default:
		return sess.Identity.Subject
	}
}

func (m Model) subject() string {
	if sess := m.app.Sessions.Current(); sess != nil {
		return sess.Identity.Subject
	}
	return ""
}

// =============================================================================
// SIGN IN / SIGN OUT
// =============================================================================

// canSubmit reports whether the sign-in button is enabled.
func (m Model) canSubmit() bool {
	return m.busy == "" && !m.form.status.Locked
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.canSubmit() {
		return m, nil
	}
	creds := m.form.credentials()
	m.busy = "Signing in"
	svc, ctx := m.app.Auth, m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		sess, err := svc.SignIn(ctx, creds)
		return signInResultMsg{sess: sess, err: err}
	})
}

func (m Model) handleSignIn(msg signInResultMsg) (tea.Model, tea.Cmd) {
	m.busy = ""
	m.form.password.Reset()
	m.form.status = m.app.Guard.Status(m.ctx)

	if msg.err != nil {
		var locked *auth.LockedOutError
		var failed *auth.SignInError
		switch {
		case errors.As(msg.err, &locked), errors.As(msg.err, &failed):
			// Reported through the guard's events.
		case errors.Is(msg.err, auth.ErrInvalidCredentials):
			m.toasts.Add(msg.err.Error(), components.ToastKindWarning)
		default:
			m.toasts.AddError("Sign in failed: " + msg.err.Error())
		}
		if m.form.status.Locked {
			m.form.blur()
			m.form.focus = focusSubmit
			return m, nil
		}
		return m, m.form.setFocus(focusPassword)
	}

	m.form.email.Reset()
	m.form.blur()
	m.refreshView()
	return m, nil
}

func (m Model) signOut() (tea.Model, tea.Cmd) {
	if !m.view.SignedIn || m.busy != "" {
		return m, nil
	}
	m.busy = "Signing out"
	svc, ctx := m.app.Auth, m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return signedOutMsg{err: svc.SignOut(ctx)}
	})
}

// reloadSession picks up a session or lockout written by another process.
func (m Model) reloadSession() tea.Cmd {
	sessions, svc, ctx := m.app.Sessions, m.app.Auth, m.ctx
	return func() tea.Msg {
		sess, changed, err := sessions.Reload(ctx)
		if err == nil && changed && sess != nil {
			_, err = svc.Refresh(ctx)
		}
		return sessionReloadedMsg{changed: changed, err: err}
	}
}

func (m Model) handleSessionReloaded(msg sessionReloadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.app.Logger.Warn("TUI_RELOAD_FAILED", "error", msg.err)
	}
	m.form.status = m.app.Guard.CheckAndMaybeExpire(m.ctx)

	wasSignedIn := m.view.SignedIn
	m.refreshView()
	if !msg.changed {
		return m, nil
	}
	switch {
	case m.view.SignedIn:
		m.toasts.Add("Signed in as "+displayName(m.app.Sessions.Current()), components.ToastKindSuccess)
	case wasSignedIn:
		m.toasts.Add(security.MessageSignedOut, components.ToastKindStatus)
	}
	return m, nil
}

// =============================================================================
// CARDS
// =============================================================================

func (m Model) startLoad(label string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = label
	return m, tea.Batch(m.spinner.Tick, cmd)
}

func (m Model) reload() (tea.Model, tea.Cmd) {
	if m.busy != "" {
		return m, nil
	}
	if m.page == components.PageCRM {
		return m.startLoad("Loading users", m.loadUsers())
	}
	return m.startLoad("Loading cards", m.loadCards())
}

func (m Model) loadCards() tea.Cmd {
	api, ctx := m.app.API, m.ctx
	return func() tea.Msg {
		cards, err := api.ListCards(ctx)
		return cardsLoadedMsg{cards: cards, err: err}
	}
}

func (m Model) isCardPage() bool {
	switch m.page {
	case components.PageCards, components.PageFavorites, components.PageMyCards:
		return true
	}
	return false
}

func (m Model) visibleCards() []cardapi.Card {
	switch m.page {
	case components.PageFavorites:
		return cardapi.LikedBy(m.cards, m.subject())
	case components.PageMyCards:
		return cardapi.OwnedBy(m.cards, m.subject())
	default:
		return cardapi.FilterByTitle(m.cards, m.query)
	}
}

func (m Model) pageSize() int {
	if n := m.app.Config.UI.PageSize; n > 0 {
		return n
	}
	return cardapi.CardsPerPage
}

func (m Model) cardPage() cardapi.PageResult[cardapi.Card] {
	return cardapi.Page(m.visibleCards(), m.pageNum, m.pageSize())
}

func (m Model) selectedCard() (cardapi.Card, bool) {
	items := m.cardPage().Items
	if m.cursor < 0 || m.cursor >= len(items) {
		return cardapi.Card{}, false
	}
	return items[m.cursor], true
}

func (m Model) like() (tea.Model, tea.Cmd) {
	if !m.view.Allows(security.PermCardLike) {
		m.toasts.Add("Sign in to like cards", components.ToastKindWarning)
		return m, nil
	}
	card, ok := m.selectedCard()
	if !ok {
		return m, nil
	}
	api, ctx := m.app.API, m.ctx
	return m, func() tea.Msg {
		updated, err := api.ToggleLike(ctx, card.ID)
		return cardLikedMsg{card: updated, err: err}
	}
}

func (m Model) handleLiked(msg cardLikedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.toasts.AddError("Like failed: " + msg.err.Error())
		return m, nil
	}
	for i := range m.cards {
		if m.cards[i].ID == msg.card.ID {
			m.cards[i] = msg.card
		}
	}
	verb := "Unliked"
	if msg.card.LikedBy(m.subject()) {
		verb = "Liked"
	}
	m.toasts.Add(fmt.Sprintf("%s %q", verb, msg.card.Title), components.ToastKindStatus)
	m.clampSelection()
	return m, nil
}

// =============================================================================
// CRM
// =============================================================================

func (m Model) loadUsers() tea.Cmd {
	api, ctx := m.app.API, m.ctx
	return func() tea.Msg {
		users, err := api.ListUsers(ctx)
		return usersLoadedMsg{users: users, err: err}
	}
}

func (m Model) visibleUsers() []cardapi.User {
	if m.businessOnly {
		return cardapi.BusinessUsers(m.users)
	}
	return m.users
}

func (m Model) userPage() cardapi.PageResult[cardapi.User] {
	return cardapi.Page(m.visibleUsers(), m.pageNum, cardapi.CRMItemsPerPage)
}

func (m Model) selectedUser() (cardapi.User, bool) {
	items := m.userPage().Items
	if m.cursor < 0 || m.cursor >= len(items) {
		return cardapi.User{}, false
	}
	return items[m.cursor], true
}

func (m Model) toggleBusiness() (tea.Model, tea.Cmd) {
	if !m.view.CanSeeAdminControls {
		return m, nil
	}
	u, ok := m.selectedUser()
	if !ok {
		return m, nil
	}
	api, ctx := m.app.API, m.ctx
	return m, func() tea.Msg {
		updated, err := api.SetBusiness(ctx, u.ID, !u.IsBusiness)
		return userUpdatedMsg{user: updated, err: err}
	}
}

func (m Model) handleUserUpdated(msg userUpdatedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.toasts.AddError("Update failed: " + msg.err.Error())
		return m, nil
	}
	for i := range m.users {
		if m.users[i].ID == msg.user.ID {
			m.users[i] = msg.user
		}
	}
	name := msg.user.Name.Full()
	if msg.user.IsBusiness {
		m.toasts.Add(name+" is now a business user", components.ToastKindSuccess)
	} else {
		m.toasts.Add(name+" is no longer a business user", components.ToastKindStatus)
	}
	m.clampSelection()
	return m, nil
}

// =============================================================================
// PAGING
// =============================================================================

func (m Model) pageInfo() (items, page, totalPages int) {
	switch {
	case m.page == components.PageCRM:
		p := m.userPage()
		return len(p.Items), p.Page, p.TotalPages
	case m.isCardPage():
		p := m.cardPage()
		return len(p.Items), p.Page, p.TotalPages
	}
	return 0, 1, 0
}

func (m *Model) moveCursor(delta int) {
	n, _, _ := m.pageInfo()
	if n == 0 {
		m.cursor = 0
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
}

func (m *Model) turnPage(delta int) {
	_, page, total := m.pageInfo()
	next := page + delta
	if next < 1 || next > total {
		return
	}
	m.pageNum, m.cursor = next, 0
}

// clampSelection keeps the page and cursor inside the current list after it
// shrinks.
func (m *Model) clampSelection() {
	n, page, _ := m.pageInfo()
	m.pageNum = page
	m.cursor = min(m.cursor, max(n-1, 0))
}
