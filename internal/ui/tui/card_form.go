// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/ui/components"
)

// =============================================================================
// CARD FORM
// =============================================================================

// cardField describes one input of the card form. Path matches the field
// names of cardapi.InputError.
type cardField struct {
	label       string
	path        string
	placeholder string
	limit       int
}

var cardFields = []cardField{
	{"Title", "title", "Forge Works", 256},
	{"Subtitle", "subtitle", "Metal and wood", 256},
	{"Description", "description", "What you do", 1024},
	{"Phone", "phone", "0501234567", 11},
	{"Email", "email", "shop@example.com", 254},
	{"Web", "web", "https://example.com", 512},
	{"Image URL", "image.url", "https://example.com/logo.png", 512},
	{"Country", "address.country", "Israel", 256},
	{"City", "address.city", "Haifa", 256},
	{"Street", "address.street", "Herzl", 256},
	{"House number", "address.houseNumber", "12", 6},
	{"Zip", "address.zip", "optional", 9},
}

type cardForm struct {
	inputs []textinput.Model
	focus  int
}

func newCardForm() cardForm {
	inputs := make([]textinput.Model, len(cardFields))
	for i, f := range cardFields {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = f.placeholder
		in.CharLimit = f.limit
		inputs[i] = in
	}
	return cardForm{inputs: inputs}
}

// submitIndex is the focus position of the publish button.
func (f *cardForm) submitIndex() int {
	return len(f.inputs)
}

func (f *cardForm) setFocus(to int) tea.Cmd {
	n := f.submitIndex() + 1
	f.focus = (to%n + n) % n
	f.blur()
	if f.focus < len(f.inputs) {
		return f.inputs[f.focus].Focus()
	}
	return nil
}

func (f *cardForm) blur() {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
}

func (f *cardForm) reset() {
	for i := range f.inputs {
		f.inputs[i].Reset()
	}
	f.focus = 0
}

func (f *cardForm) value(path string) string {
	for i, field := range cardFields {
		if field.path == path {
			return strings.TrimSpace(f.inputs[i].Value())
		}
	}
	return ""
}

// focusPath moves focus to the field named path, if there is one.
func (f *cardForm) focusPath(path string) tea.Cmd {
	for i, field := range cardFields {
		if field.path == path {
			return f.setFocus(i)
		}
	}
	return nil
}

// input builds a validated card body from the fields.
func (f *cardForm) input() (cardapi.CardInput, error) {
	in := cardapi.CardInput{
		Title:       f.value("title"),
		Subtitle:    f.value("subtitle"),
		Description: f.value("description"),
		Phone:       f.value("phone"),
		Email:       f.value("email"),
		Web:         f.value("web"),
		Image:       cardapi.Image{URL: f.value("image.url")},
		Address: cardapi.Address{
			Country: f.value("address.country"),
			City:    f.value("address.city"),
			Street:  f.value("address.street"),
		},
	}
	for _, num := range []struct {
		path string
		dst  *int
	}{
		{"address.houseNumber", &in.Address.HouseNumber},
		{"address.zip", &in.Address.Zip},
	} {
		raw := f.value(num.path)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return in, &cardapi.InputError{Field: num.path, Reason: "must be a whole number"}
		}
		*num.dst = n
	}
	in.Normalize()
	return in, in.Validate()
}

// =============================================================================
// MODEL WIRING
// =============================================================================

func (m Model) handleCardFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.cardForm
	switch {
	case key.Matches(msg, m.keys.Cancel):
		return m.openPage(components.PageMyCards)
	case key.Matches(msg, m.keys.NextTab), msg.Type == tea.KeyDown:
		return m, f.setFocus(f.focus + 1)
	case key.Matches(msg, m.keys.PrevTab), msg.Type == tea.KeyUp:
		return m, f.setFocus(f.focus - 1)
	case key.Matches(msg, m.keys.Submit):
		if f.focus < f.submitIndex() {
			return m, f.setFocus(f.focus + 1)
		}
		return m.publishCard()
	}

	if f.focus >= f.submitIndex() {
		return m, nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return m, cmd
}

func (m Model) publishCard() (tea.Model, tea.Cmd) {
	if m.busy != "" || !m.view.Allows(security.PermCardCreate) {
		return m, nil
	}
	in, err := m.cardForm.input()
	if err != nil {
		return m.rejectCard(err)
	}
	m.busy = "Publishing card"
	api, ctx := m.app.API, m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		card, err := api.CreateCard(ctx, in)
		return cardCreatedMsg{card: card, err: err}
	})
}

// rejectCard reports err and, for a field error, focuses that field.
func (m Model) rejectCard(err error) (tea.Model, tea.Cmd) {
	var inputErr *cardapi.InputError
	if errors.As(err, &inputErr) {
		m.toasts.Add(inputErr.Error(), components.ToastKindWarning)
		return m, m.cardForm.focusPath(inputErr.Field)
	}
	m.toasts.AddError("Create failed: " + err.Error())
	return m, nil
}

func (m Model) handleCardCreated(msg cardCreatedMsg) (tea.Model, tea.Cmd) {
	m.busy = ""
	if msg.err != nil {
		return m.rejectCard(msg.err)
	}
	m.app.Logger.Info("CARD_CREATED", "card_id", msg.card.ID)
	m.toasts.Add("Created card "+msg.card.Title, components.ToastKindSuccess)
	m.cardForm.reset()
	m.cards = append(m.cards, msg.card)

	next, _ := m.openPage(components.PageMyCards)
	return next.(Model).startLoad("Loading cards", next.(Model).loadCards())
}
