// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - signin, signout and whoami.
//
// Command: signin [email]
// Aliases: login, sign-in
//
// The password is read from BCARD_PASSWORD when set, otherwise prompted
// without echo. Failed attempts count toward the lockout; while locked out
// no password is requested.
//
// Examples:
//   bcard signin                     Prompt for email and password
//   bcard signin ada@example.com     Prompt for the password only
//   BCARD_PASSWORD=... bcard signin ada@example.com --json

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/bcard-tui/internal/auth"
	"github.com/jeranaias/bcard-tui/internal/security"
)

// PasswordEnv supplies the password for non-interactive signin.
const PasswordEnv = "BCARD_PASSWORD"

// whoamiData is the JSON shape of signin and whoami.
type whoamiData struct {
	SignedIn    bool                  `json:"signed_in"`
	Subject     string                `json:"subject,omitempty"`
	Name        string                `json:"name,omitempty"`
	Email       string                `json:"email,omitempty"`
	Role        security.Role         `json:"role"`
	Confirmed   bool                  `json:"confirmed"`
	Permissions []security.Permission `json:"permissions"`
	View        security.RoleView     `json:"view"`
}

func whoamiOf(sess *security.Session) whoamiData {
	view := security.View(sess)
	data := whoamiData{
		SignedIn:    view.SignedIn,
		Role:        view.Role(),
		Permissions: view.Permissions(),
		View:        view,
	}
	if sess != nil {
		data.Subject = sess.Identity.Subject
		data.Confirmed = sess.Confirmed()
		if sess.Attributes != nil {
			data.Name = sess.Attributes.DisplayName
			data.Email = sess.Attributes.Email
		}
	}
	return data
}

func (c *command) signIn() error {
	p := NewArgParser(c.args.Raw)
	email := p.FlagOrDefault("email", p.Positional(0))

	// Refuse before asking for a password the guard would reject anyway.
	if st := c.app.Guard.CheckAndMaybeExpire(c.ctx); st.Locked {
		return &auth.LockedOutError{RetryAfter: st.RetryAfter}
	}

	var err error
	if email == "" {
		if email, err = c.prompt("Email: ", false); err != nil {
			return err
		}
	}
	password := c.env.Getenv(PasswordEnv)
	if password == "" {
		if password, err = c.prompt("Password: ", true); err != nil {
			return err
		}
	}

	sess, err := c.app.Auth.SignIn(c.ctx, auth.Credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	data := whoamiOf(sess)
	return c.emit(data, func(w io.Writer) {
		if c.args.Quiet {
			return
		}
		fmt.Fprintf(w, "Signed in as %s (%s)\n", displayName(data), data.Role)
	})
}

func (c *command) prompt(label string, hidden bool) (string, error) {
	if c.env.Prompter == nil {
		return "", &TTYRequiredError{Operation: "sign in", Hint: "set BCARD_PASSWORD"}
	}
	if hidden {
		return c.env.Prompter.Password(label)
	}
	return c.env.Prompter.Prompt(label)
}

func (c *command) signOut() error {
	wasSignedIn := c.app.Sessions.Current() != nil
	if err := c.app.Auth.SignOut(c.ctx); err != nil {
		return err
	}
	return c.emit(map[string]bool{"signed_out": wasSignedIn}, func(w io.Writer) {
		if !wasSignedIn && !c.args.Quiet {
			fmt.Fprintln(w, "Not signed in.")
		}
	})
}

func (c *command) whoami() error {
	data := whoamiOf(c.app.Sessions.Current())
	return c.emit(data, func(w io.Writer) {
		if !data.SignedIn {
			fmt.Fprintln(w, "Not signed in.")
			return
		}
		fmt.Fprintln(w, RenderConditional(TitleStyle, displayName(data)))
		fmt.Fprintf(w, "%s%s\n", RenderLabel("User ID"), data.Subject)
		if data.Email != "" {
			fmt.Fprintf(w, "%s%s\n", RenderLabel("Email"), data.Email)
		}
		role := string(data.Role)
		if !data.Confirmed {
			role += RenderConditional(DimStyle, " (profile not confirmed)")
		}
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Role"), role)

		perms := make([]string, len(data.Permissions))
		for i, perm := range data.Permissions {
			perms[i] = string(perm)
		}
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Permissions"), strings.Join(perms, ", "))
	})
}

func displayName(d whoamiData) string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Email != "":
		return d.Email
	}
	return d.Subject
}
