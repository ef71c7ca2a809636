// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/ui/styles"
)

// =============================================================================
// NAVIGATION
// =============================================================================

// PageID names a top-level page.
type PageID string

const (
	PageCards      PageID = "cards"
	PageFavorites  PageID = "favorites"
	PageMyCards    PageID = "my-cards"
	PageProfile    PageID = "profile"
	PageCRM        PageID = "crm"
	PageCreateCard PageID = "new-card"
	PageSignIn     PageID = "signin"
)

// NavItem is one entry of the navigation bar.
type NavItem struct {
	ID    PageID
	Label string
}

// NavItems returns the pages view may open, in display order. Gated pages
// are absent rather than disabled.
func NavItems(view security.RoleView) []NavItem {
	items := []NavItem{{ID: PageCards, Label: "Cards"}}
	if view.Allows(security.PermFavorites) {
		items = append(items, NavItem{ID: PageFavorites, Label: "Favorites"})
	}
	if view.Allows(security.PermMyCards) {
		items = append(items, NavItem{ID: PageMyCards, Label: "My Cards"})
	}
	if view.CanSeeProfile {
		items = append(items, NavItem{ID: PageProfile, Label: "Profile"})
	}
	if view.CanSeeCRM {
		items = append(items, NavItem{ID: PageCRM, Label: "CRM"})
	}
	if view.Allows(security.PermCardCreate) {
		items = append(items, NavItem{ID: PageCreateCard, Label: "New Card"})
	}
	if !view.SignedIn {
		items = append(items, NavItem{ID: PageSignIn, Label: "Sign In"})
	}
	return items
}

// HasPage reports whether id is among items.
func HasPage(items []NavItem, id PageID) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// HEADER COMPONENT
// =============================================================================

// Header is the title bar: brand, navigation, and who is signed in.
type Header struct {
	Title  string
	User   string
	Role   security.Role
	Items  []NavItem
	Active PageID
	Width  int
	theme  *styles.Theme
}

// NewHeader creates a Header.
func NewHeader(theme *styles.Theme) *Header {
	return &Header{Title: "bcard", Width: 80, theme: theme}
}

// SetView refreshes the navigation and identity from a role view.
func (h *Header) SetView(view security.RoleView, user string) {
	h.Items = NavItems(view)
	h.Role = view.Role()
	h.User = user
	if !view.SignedIn {
		h.User = ""
	}
}

// View renders the header.
func (h *Header) View() string {
	t := h.theme
	width := max(h.Width, 40)

	nav := make([]string, 0, len(h.Items))
	for i, it := range h.Items {
		label := strconv.Itoa(i+1) + " " + it.Label
		if it.ID == h.Active {
			nav = append(nav, t.NavActive.Render(label))
		} else {
			nav = append(nav, t.NavItem.Render(label))
		}
	}
	left := t.HeaderBrand.Render(h.Title) + "  " + strings.Join(nav, "")

	right := t.HeaderUser.Render("not signed in")
	if h.User != "" {
		right = t.HeaderUser.Render(h.User + " (" + string(h.Role) + ")")
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return t.Header.Width(width).Render(left + "\n" + right)
	}
	return t.Header.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}
