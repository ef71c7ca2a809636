// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// edit_cmd.go - Create cards and edit cards and users.
//
// Commands:
//   create-card [card flags] [--file card.json]   Publish a card (cards:create)
//   crm edit-card <id> [card flags]                Edit any card (admin:controls)
//   crm edit-user <id> [user flags]                Edit any user (admin:controls)
//
// Card flags: --title --subtitle --description --phone --email --web
// --image-url --image-alt --state --country --city --street --house-number
// --zip. User flags: --first --middle --last --email --phone.
//
// Values are checked locally before anything is sent; a rejected value
// exits with the usage code.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/security"
)

// textField binds a flag name to a string field.
type textField struct {
	flag string
	dst  *string
}

// applyText copies every flag that was given. It reports whether any was.
func applyText(p *ArgParser, fields []textField) bool {
	changed := false
	for _, f := range fields {
		if p.HasFlag(f.flag) {
			*f.dst = p.Flag(f.flag)
			changed = true
		}
	}
	return changed
}

// applyCardFlags overlays the card flags on in.
func applyCardFlags(p *ArgParser, in *cardapi.CardInput) (bool, error) {
	changed := applyText(p, []textField{
		{"title", &in.Title},
		{"subtitle", &in.Subtitle},
		{"description", &in.Description},
		{"phone", &in.Phone},
		{"email", &in.Email},
		{"web", &in.Web},
		{"image-url", &in.Image.URL},
		{"image-alt", &in.Image.Alt},
		{"state", &in.Address.State},
		{"country", &in.Address.Country},
		{"city", &in.Address.City},
		{"street", &in.Address.Street},
	})
	for _, f := range []struct {
		flag string
		dst  *int
	}{
		{"house-number", &in.Address.HouseNumber},
		{"zip", &in.Address.Zip},
	} {
		if !p.HasFlag(f.flag) {
			continue
		}
		raw := p.Flag(f.flag)
		n, err := strconv.Atoi(raw)
		if err != nil {
			return false, NewValidationError(f.flag, raw, "must be a whole number")
		}
		*f.dst = n
		changed = true
	}
	return changed, nil
}

// =============================================================================
// CREATE CARD
// =============================================================================

func (c *command) createCard() error {
	if err := c.require("create-card", security.PermCardCreate); err != nil {
		return err
	}
	p := NewArgParser(c.args.Raw)

	var in cardapi.CardInput
	if path := p.Flag("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read card file: %w", err)
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return NewValidationError("file", path, "is not a JSON card: "+err.Error())
		}
	}
	if _, err := applyCardFlags(p, &in); err != nil {
		return err
	}

	card, err := c.app.API.CreateCard(c.ctx, in)
	if err != nil {
		return err
	}
	c.app.Logger.Info("CARD_CREATED", "card_id", card.ID)
	return c.emit(card, func(w io.Writer) {
		c.say("Created card %s", card.ID)
		fmt.Fprintln(w)
		renderCard(w, card, c.subject())
	})
}

// =============================================================================
// CRM EDITS
// =============================================================================

func (c *command) crmEditCard(p *ArgParser) error {
	id := p.Positional(1)
	if id == "" {
		return ErrMissingArgument("card id", "bcard crm edit-card <id> --title \"New title\"")
	}
	card, err := c.app.API.GetCard(c.ctx, id)
	if err != nil {
		return err
	}
	in := cardapi.CardInputFrom(card)
	changed, err := applyCardFlags(p, &in)
	if err != nil {
		return err
	}
	if !changed {
		return &ValidationError{Field: "flags", Reason: "nothing to change", Example: "bcard crm edit-card " + id + " --phone 0501234567"}
	}

	updated, err := c.app.API.UpdateCard(c.ctx, id, in)
	if err != nil {
		return err
	}
	c.app.Logger.Info("CRM_CARD_UPDATED", "card_id", id)
	return c.emit(updated, func(w io.Writer) {
		c.say("Updated card %s", id)
		fmt.Fprintln(w)
		renderCard(w, updated, c.subject())
	})
}

func (c *command) crmEditUser(p *ArgParser) error {
	id := p.Positional(1)
	if id == "" {
		return ErrMissingArgument("user id", "bcard crm edit-user <id> --last \"New name\"")
	}
	user, err := c.app.API.GetUser(c.ctx, id)
	if err != nil {
		return err
	}
	in := cardapi.UserUpdateFrom(user)
	changed := applyText(p, []textField{
		{"first", &in.Name.First},
		{"middle", &in.Name.Middle},
		{"last", &in.Name.Last},
		{"email", &in.Email},
		{"phone", &in.Phone},
	})
	if !changed {
		return &ValidationError{Field: "flags", Reason: "nothing to change", Example: "bcard crm edit-user " + id + " --email new@example.com"}
	}

	updated, err := c.app.API.UpdateUser(c.ctx, id, in)
	if err != nil {
		return err
	}
	c.app.Logger.Info("CRM_USER_UPDATED", "user_id", id)
	if sess := c.app.Sessions.Current(); sess != nil && sess.Identity.Subject == id {
		if _, err := c.app.Auth.Refresh(c.ctx); err != nil {
			c.app.Logger.Debug("profile refresh after edit failed", "error", err)
		}
	}
	return c.emit(updated, func(io.Writer) {
		c.say("Updated %s <%s>", displayUser(updated), updated.Email)
	})
}
