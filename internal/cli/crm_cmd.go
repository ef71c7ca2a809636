// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// crm_cmd.go - Admin CRM commands.
//
// Command: crm <subcommand>
// Aliases: admin
//
// Subcommands:
//   users [--business] [--page n]   List users (business users only with --business)
//   cards [--page n]                List every card
//   delete-user <id> [--confirm]    Delete a user
//   delete-card <id> [--confirm]    Delete a card
//   business <id> [--off]           Grant or revoke business status
//   edit-card <id> [card flags]     Edit a card
//   edit-user <id> [user flags]     Edit a user's name, email or phone
//
// Listing needs the crm:view permission; changes need admin:controls.
// Both are admin-only and require a confirmed profile.

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/util"
)

// userPage is the JSON shape of a CRM user listing.
type userPage struct {
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Total      int            `json:"total"`
	Users      []cardapi.User `json:"users"`
}

func (c *command) crm() error {
	p := NewArgParser(c.args.Raw, "business", "confirm", "off")
	sub := p.Subcommand()

	switch sub {
	case "users", "cards", "":
		if err := c.require("crm "+sub, security.PermCRMView); err != nil {
			return err
		}
	default:
		if err := c.require("crm "+sub, security.PermAdminControls); err != nil {
			return err
		}
	}

	page, err := p.FlagPositiveInt("page", 1)
	if err != nil {
		return err
	}

	switch sub {
	case "", "users":
		return c.crmUsers(p.BoolFlag("business"), page)
	case "cards":
		all, err := c.app.API.ListCards(c.ctx)
		if err != nil {
			return err
		}
		res := cardapi.Page(all, page, cardapi.CRMItemsPerPage)
		data := cardPage{Page: res.Page, TotalPages: res.TotalPages, Total: res.Total, Cards: res.Items}
		return c.emit(data, func(w io.Writer) {
			fmt.Fprintln(w, RenderConditional(TitleStyle, "CRM: Cards"))
			renderCardTable(w, res.Items, c.subject())
			fmt.Fprintln(w)
			fmt.Fprintln(w, renderPager(res.Page, res.TotalPages))
		})
	case "edit-card":
		return c.crmEditCard(p)
	case "edit-user":
		return c.crmEditUser(p)
	case "delete-user":
		return c.crmDelete(p, "user", c.app.API.DeleteUser)
	case "delete-card":
		return c.crmDelete(p, "card", c.app.API.DeleteCard)
	case "business":
		id := p.Positional(1)
		if id == "" {
			return ErrMissingArgument("user id", "bcard crm business <id> [--off]")
		}
		user, err := c.app.API.SetBusiness(c.ctx, id, !p.BoolFlag("off"))
		if err != nil {
			return err
		}
		return c.emit(user, func(w io.Writer) {
			state := "is now a business user"
			if !user.IsBusiness {
				state = "is no longer a business user"
			}
			c.say("%s %s", displayUser(user), state)
		})
	}
	return &ValidationError{Field: "subcommand", Value: sub, Reason: "unknown crm subcommand", Example: "bcard crm users --business"}
}

func (c *command) crmUsers(businessOnly bool, page int) error {
	users, err := c.app.API.ListUsers(c.ctx)
	if err != nil {
		return err
	}
	title := "CRM: Users"
	if businessOnly {
		users = cardapi.BusinessUsers(users)
		title = "CRM: Business Users"
	}
	res := cardapi.Page(users, page, cardapi.CRMItemsPerPage)
	data := userPage{Page: res.Page, TotalPages: res.TotalPages, Total: res.Total, Users: res.Items}

	return c.emit(data, func(w io.Writer) {
		fmt.Fprintln(w, RenderConditional(TitleStyle, title))
		if res.Total == 0 {
			fmt.Fprintln(w, "No users.")
			return
		}
		header := util.PadRight("ID", 26) + util.PadRight("Name", 24) + util.PadRight("Email", 28) + "Role"
		fmt.Fprintln(w, RenderConditional(SectionStyle, header))
		for _, u := range res.Items {
			role := string(security.RoleUser)
			switch {
			case u.IsAdmin:
				role = string(security.RoleAdmin)
			case u.IsBusiness:
				role = string(security.RoleBusiness)
			}
			fmt.Fprintln(w,
				util.PadRight(util.TruncateWidth(u.ID, 24), 26)+
					util.PadRight(util.TruncateWidth(u.Name.Full(), 22), 24)+
					util.PadRight(util.TruncateWidth(u.Email, 26), 28)+
					role)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderPager(res.Page, res.TotalPages))
	})
}

func (c *command) crmDelete(p *ArgParser, kind string, del func(context.Context, string) error) error {
	id := p.Positional(1)
	if id == "" {
		return ErrMissingArgument(kind+" id", "bcard crm delete-"+kind+" <id> --confirm")
	}
	ok, err := RequireConfirmation(c.env.Prompter, p.BoolFlag("confirm"), "delete "+kind+" "+id, c.args.JSON)
	if err != nil {
		return err
	}
	if !ok {
		c.say("Cancelled.")
		return nil
	}
	if err := del(c.ctx, id); err != nil {
		return err
	}
	return c.emit(map[string]string{"deleted": id, "kind": kind}, func(io.Writer) {
		c.say("Deleted %s %s", kind, id)
	})
}

func displayUser(u cardapi.User) string {
	if name := u.Name.Full(); name != "" {
		return name
	}
	return u.Email
}
