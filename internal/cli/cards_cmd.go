// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cards_cmd.go - Browse, show and like business cards.
//
// Commands:
//   cards [--search q] [--page n]   Browse all cards
//   card <id>                       Show one card
//   like <id>                       Toggle your like on a card
//   my-cards [--page n]             Cards you created
//   favorites [--page n]            Cards you liked

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/util"
)

// cardPage is the JSON shape of a card listing.
type cardPage struct {
	Query      string         `json:"query,omitempty"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Total      int            `json:"total"`
	Cards      []cardapi.Card `json:"cards"`
}

func (c *command) cards() error {
	p := NewArgParser(c.args.Raw)
	page, err := p.FlagPositiveInt("page", 1)
	if err != nil {
		return err
	}
	query := p.FlagOrDefault("search", strings.Join(p.PositionalFrom(0), " "))

	all, err := c.app.API.ListCards(c.ctx)
	if err != nil {
		return err
	}
	return c.listCards("Cards", query, cardapi.FilterByTitle(all, query), page)
}

func (c *command) myCards() error {
	if err := c.require("my-cards", security.PermMyCards); err != nil {
		return err
	}
	page, err := NewArgParser(c.args.Raw).FlagPositiveInt("page", 1)
	if err != nil {
		return err
	}
	all, err := c.app.API.ListCards(c.ctx)
	if err != nil {
		return err
	}
	return c.listCards("My Cards", "", cardapi.OwnedBy(all, c.subject()), page)
}

func (c *command) favorites() error {
	if err := c.require("favorites", security.PermFavorites); err != nil {
		return err
	}
	page, err := NewArgParser(c.args.Raw).FlagPositiveInt("page", 1)
	if err != nil {
		return err
	}
	all, err := c.app.API.ListCards(c.ctx)
	if err != nil {
		return err
	}
	return c.listCards("Favorite Cards", "", cardapi.LikedBy(all, c.subject()), page)
}

func (c *command) listCards(title, query string, cards []cardapi.Card, page int) error {
	res := cardapi.Page(cards, page, c.app.Config.UI.PageSize)
	data := cardPage{Query: query, Page: res.Page, TotalPages: res.TotalPages, Total: res.Total, Cards: res.Items}

	return c.emit(data, func(w io.Writer) {
		fmt.Fprintln(w, RenderConditional(TitleStyle, title))
		if res.Total == 0 {
			if query != "" {
				fmt.Fprintf(w, "No cards match %q.\n", query)
			} else {
				fmt.Fprintln(w, "No cards.")
			}
			return
		}
		renderCardTable(w, res.Items, c.subject())
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderPager(res.Page, res.TotalPages))
	})
}

// renderCardTable writes one row per card. Cards liked by userID are
// marked.
func renderCardTable(w io.Writer, cards []cardapi.Card, userID string) {
	header := util.PadRight("ID", 26) + util.PadRight("Title", 26) + util.PadRight("Subtitle", 24) + util.PadRight("Phone", 14) + "Likes"
	fmt.Fprintln(w, RenderConditional(SectionStyle, header))
	for _, card := range cards {
		likes := strconv.Itoa(len(card.Likes))
		if card.LikedBy(userID) {
			likes = RenderConditional(HighlightStyle, likes+" *")
		}
		fmt.Fprintln(w,
			util.PadRight(util.TruncateWidth(card.ID, 24), 26)+
				util.PadRight(util.TruncateWidth(card.Title, 24), 26)+
				util.PadRight(util.TruncateWidth(card.Subtitle, 22), 24)+
				util.PadRight(util.TruncateWidth(card.Phone, 12), 14)+
				likes)
	}
}

// renderPager renders "Page 2 of 5  1 [2] 3 4".
func renderPager(page, total int) string {
	parts := make([]string, 0, cardapi.PagesToShow)
	for _, n := range cardapi.PageRange(page, total, cardapi.PagesToShow) {
		if n == page {
			parts = append(parts, RenderConditional(HighlightStyle, "["+strconv.Itoa(n)+"]"))
			continue
		}
		parts = append(parts, strconv.Itoa(n))
	}
	return RenderConditional(DimStyle, fmt.Sprintf("Page %d of %d", page, total)) + "  " + strings.Join(parts, " ")
}

func (c *command) card() error {
	id := NewArgParser(c.args.Raw).Positional(0)
	if id == "" {
		return ErrMissingArgument("card id", "bcard card <id>")
	}
	card, err := c.app.API.GetCard(c.ctx, id)
	if err != nil {
		return err
	}
	return c.emit(card, func(w io.Writer) {
		renderCard(w, card, c.subject())
	})
}

func renderCard(w io.Writer, card cardapi.Card, userID string) {
	fmt.Fprintln(w, RenderConditional(TitleStyle, card.Title))
	if card.Subtitle != "" {
		fmt.Fprintln(w, RenderConditional(DimStyle, card.Subtitle))
	}
	fmt.Fprintln(w, RenderSeparator())
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%s%s\n", RenderLabel(label), value)
		}
	}
	row("Phone", card.Phone)
	row("Email", card.Email)
	row("Web", card.Web)
	row("Address", card.Address.String())
	if card.BizNumber > 0 {
		row("Card number", strconv.Itoa(card.BizNumber))
	}
	likes := strconv.Itoa(len(card.Likes))
	if card.LikedBy(userID) {
		likes += " (including you)"
	}
	row("Likes", likes)

	if strings.TrimSpace(card.Description) != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, renderMarkdown(card.Description))
	}
}

// renderMarkdown renders card descriptions, falling back to the raw text
// when the renderer fails.
func renderMarkdown(md string) string {
	style := glamour.WithAutoStyle()
	if !ColorsEnabled() {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(DetailWidth()-4))
	if err != nil {
		return md + "\n"
	}
	out, err := r.Render(md)
	if err != nil {
		return md + "\n"
	}
	return out
}

func (c *command) like() error {
	if err := c.require("like", security.PermCardLike); err != nil {
		return err
	}
	id := NewArgParser(c.args.Raw).Positional(0)
	if id == "" {
		return ErrMissingArgument("card id", "bcard like <id>")
	}
	card, err := c.app.API.ToggleLike(c.ctx, id)
	if err != nil {
		return err
	}
	liked := card.LikedBy(c.subject())
	data := map[string]any{"card_id": card.ID, "liked": liked, "likes": len(card.Likes)}
	return c.emit(data, func(w io.Writer) {
		if c.args.Quiet {
			return
		}
		verb := "Unliked"
		if liked {
			verb = "Liked"
		}
		fmt.Fprintf(w, "%s %q (%d likes)\n", verb, card.Title, len(card.Likes))
	})
}
