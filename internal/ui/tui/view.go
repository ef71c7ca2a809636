// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/ui/components"
	"github.com/jeranaias/bcard-tui/internal/ui/styles"
	"github.com/jeranaias/bcard-tui/internal/util"
)

// View renders the model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header.View())
	b.WriteString("\n\n")

	switch m.page {
	case components.PageSignIn:
		b.WriteString(m.viewSignIn())
	case components.PageProfile:
		b.WriteString(m.viewProfile())
	case components.PageCRM:
		b.WriteString(m.viewCRM())
	case components.PageCreateCard:
		b.WriteString(m.viewCardForm())
	default:
		b.WriteString(m.viewCards())
	}

	b.WriteString("\n\n")
	b.WriteString(m.viewFooter())

	if toasts := m.toasts.Toasts(); len(toasts) > 0 {
		b.WriteString("\n")
		b.WriteString(components.RenderToastStack(toasts, m.width, m.now()))
	}
	return b.String()
}

// =============================================================================
// SIGN IN
// =============================================================================

func (m Model) viewSignIn() string {
	t := m.theme
	f := m.form

	label := func(text string, focused bool) string {
		if focused {
			return t.FieldFocused.Render(text)
		}
		return t.FieldLabel.Render(text)
	}

	lines := []string{
		t.FormTitle.Render("Sign In"),
		label("Email", f.focus == focusEmail) + f.email.View(),
		label("Password", f.focus == focusPassword) + f.password.View(),
		"",
	}

	st := f.status
	switch {
	case st.Locked:
		lines = append(lines,
			t.LockoutBanner.Render(styles.StatusIndicators.Locked+" "+security.LockedOutMessage(st.RetryAfter)),
			t.AttemptsHint.Render("Sign in unlocks in "+formatCountdown(st.RetryAfter)),
			"",
		)
	case st.Count > 0:
		lines = append(lines,
			t.AttemptsHint.Render(fmt.Sprintf("%d of %d attempts remaining", st.AttemptsRemaining, st.MaxAttempts)),
			"",
		)
	}

	button := "Sign In"
	if f.focus == focusSubmit {
		button = "> " + button + " <"
	}
	if m.canSubmit() {
		lines = append(lines, t.Button.Render(button))
	} else {
		lines = append(lines, t.ButtonDisabled.Render(button))
	}

	if m.busy != "" {
		lines = append(lines, "", m.spinner.View()+" "+m.busy+"...")
	}
	return t.FormBox.Render(strings.Join(lines, "\n"))
}

// formatCountdown renders d as m:ss, rounding up to the next second.
func formatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// =============================================================================
// NEW CARD
// =============================================================================

func (m Model) viewCardForm() string {
	t := m.theme
	f := m.cardForm
	lines := []string{t.FormTitle.Render("New Card")}
	for i, field := range cardFields {
		style := t.FieldLabel
		if f.focus == i {
			style = t.FieldFocused
		}
		lines = append(lines, style.Width(14).Render(field.label)+f.inputs[i].View())
	}
	lines = append(lines, "")

	button := "Publish"
	if f.focus == f.submitIndex() {
		button = "> " + button + " <"
	}
	if m.busy == "" {
		lines = append(lines, t.Button.Render(button))
	} else {
		lines = append(lines, t.ButtonDisabled.Render(button), "", m.spinner.View()+" "+m.busy+"...")
	}
	return t.FormBox.Render(strings.Join(lines, "\n"))
}

// =============================================================================
// CARDS
// =============================================================================

func (m Model) viewCards() string {
	t := m.theme
	var lines []string

	title := "Cards"
	switch m.page {
	case components.PageFavorites:
		title = "Favorites"
	case components.PageMyCards:
		title = "My Cards"
	}
	lines = append(lines, t.FormTitle.Render(title))

	if m.page == components.PageCards {
		switch {
		case m.searching:
			lines = append(lines, m.search.View())
		case m.query != "":
			lines = append(lines, t.CardMeta.Render(fmt.Sprintf("Search: %q", m.query)))
		}
	}

	if !m.cardsReady {
		lines = append(lines, m.viewLoading("Loading cards"))
		return strings.Join(lines, "\n")
	}

	page := m.cardPage()
	if page.Total == 0 {
		empty := "No cards."
		if m.page == components.PageCards && m.query != "" {
			empty = fmt.Sprintf("No cards match %q.", m.query)
		}
		lines = append(lines, t.Empty.Render(empty))
		return strings.Join(lines, "\n")
	}

	uid := m.subject()
	for i, card := range page.Items {
		likes := strconv.Itoa(len(card.Likes))
		if card.LikedBy(uid) {
			likes = t.CardLiked.Render(likes + " " + styles.StatusIndicators.Liked)
		}
		row := util.PadRight(util.TruncateWidth(card.Title, 28), 30) +
			util.PadRight(util.TruncateWidth(card.Subtitle, 26), 28) +
			util.PadRight(util.TruncateWidth(card.Phone, 14), 16) +
			likes
		if i == m.cursor {
			lines = append(lines, t.CardRowSelected.Render("> "+row))
		} else {
			lines = append(lines, t.CardRow.Render("  "+row))
		}
	}

	if card, ok := m.selectedCard(); ok {
		lines = append(lines, "", m.viewCardDetail(card))
	}
	lines = append(lines, "", m.viewPager(page.Page, page.TotalPages, page.Range))
	return strings.Join(lines, "\n")
}

func (m Model) viewCardDetail(card cardapi.Card) string {
	t := m.theme
	detail := []string{t.CardTitle.Render(card.Title)}
	if card.Description != "" {
		detail = append(detail, card.Description)
	}
	for _, field := range [][2]string{
		{"Phone", card.Phone},
		{"Email", card.Email},
		{"Web", card.Web},
		{"Address", card.Address.String()},
	} {
		if field[1] != "" {
			detail = append(detail, t.CardMeta.Render(util.PadRight(field[0], 9))+field[1])
		}
	}
	return lipgloss.NewStyle().PaddingLeft(2).Render(strings.Join(detail, "\n"))
}

// viewPager renders "Page 2 of 5  1 [2] 3 4".
func (m Model) viewPager(page, total int, pages []int) string {
	t := m.theme
	parts := make([]string, 0, len(pages))
	for _, n := range pages {
		if n == page {
			parts = append(parts, t.PagerCurrent.Render("["+strconv.Itoa(n)+"]"))
			continue
		}
		parts = append(parts, t.Pager.Render(strconv.Itoa(n)))
	}
	return t.Pager.Render(fmt.Sprintf("Page %d of %d", page, total)) + "  " + strings.Join(parts, " ")
}

func (m Model) viewLoading(label string) string {
	if m.loadErr != nil {
		return styles.RenderError(m.loadErr.Error()) + "\n" + m.theme.CardMeta.Render("press r to retry")
	}
	return m.spinner.View() + " " + label + "..."
}

// =============================================================================
// PROFILE
// =============================================================================

func (m Model) viewProfile() string {
	t := m.theme
	sess := m.app.Sessions.Current()
	if sess == nil {
		return t.Empty.Render("Not signed in.")
	}

	confirmed := "no"
	if sess.Confirmed() {
		confirmed = "yes"
	}
	email := ""
	if sess.Attributes != nil {
		email = sess.Attributes.Email
	}
	perms := make([]string, 0)
	for _, p := range m.view.Permissions() {
		perms = append(perms, string(p))
	}

	lines := []string{t.FormTitle.Render("Profile")}
	for _, row := range [][2]string{
		{"Name", displayName(sess)},
		{"Email", email},
		{"Role", string(m.view.Role())},
		{"Confirmed", confirmed},
		{"Permissions", strings.Join(perms, ", ")},
	} {
		lines = append(lines, t.CardMeta.Render(util.PadRight(row[0], 13))+row[1])
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// CRM
// =============================================================================

func (m Model) viewCRM() string {
	t := m.theme
	lines := []string{t.FormTitle.Render("CRM")}
	if m.businessOnly {
		lines = append(lines, t.CardMeta.Render("Showing business users"))
	}

	if !m.usersReady {
		lines = append(lines, m.viewLoading("Loading users"))
		return strings.Join(lines, "\n")
	}

	page := m.userPage()
	if page.Total == 0 {
		lines = append(lines, t.Empty.Render("No users."))
		return strings.Join(lines, "\n")
	}

	for i, u := range page.Items {
		var flags []string
		if u.IsAdmin {
			flags = append(flags, "admin")
		}
		if u.IsBusiness {
			flags = append(flags, "business")
		}
		row := util.PadRight(util.TruncateWidth(u.Name.Full(), 24), 26) +
			util.PadRight(util.TruncateWidth(u.Email, 30), 32) +
			strings.Join(flags, ", ")
		if i == m.cursor {
			lines = append(lines, t.CardRowSelected.Render("> "+row))
		} else {
			lines = append(lines, t.CardRow.Render("  "+row))
		}
	}
	lines = append(lines, "", m.viewPager(page.Page, page.TotalPages, page.Range))
	return strings.Join(lines, "\n")
}

// =============================================================================
// FOOTER
// =============================================================================

func (m Model) viewFooter() string {
	k := m.keys
	var bindings []key.Binding
	switch {
	case m.searching:
		bindings = []key.Binding{k.Submit, k.Cancel}
	case m.page == components.PageSignIn, m.page == components.PageCreateCard:
		bindings = []key.Binding{k.NextTab, k.Submit, k.Cancel, k.ForceQuit}
	case m.page == components.PageCRM:
		bindings = []key.Binding{k.Up, k.PrevPage, k.NextPage, k.Business, k.Filter, k.Reload, k.NextTab, k.SignOut, k.Quit}
	case m.isCardPage():
		bindings = []key.Binding{k.Up, k.PrevPage, k.NextPage}
		if m.page == components.PageCards {
			bindings = append(bindings, k.Search)
		}
		if m.view.Allows(security.PermCardLike) {
			bindings = append(bindings, k.Like)
		}
		bindings = append(bindings, k.Reload, k.NextTab)
		if m.view.SignedIn {
			bindings = append(bindings, k.SignOut)
		}
		bindings = append(bindings, k.Quit)
	default:
		bindings = []key.Binding{k.NextTab, k.SignOut, k.Quit}
	}

	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		keyText, desc := hint(b)
		parts = append(parts, m.theme.ShortcutKey.Render(keyText)+" "+m.theme.ShortcutDesc.Render(desc))
	}
	if m.toasts.Len() > 0 {
		keyText, desc := hint(k.Dismiss)
		parts = append(parts, m.theme.ShortcutKey.Render(keyText)+" "+m.theme.ShortcutDesc.Render(desc))
	}
	return m.theme.StatusBar.Render(strings.Join(parts, "  "))
}
