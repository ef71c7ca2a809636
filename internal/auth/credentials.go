// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Credentials are what the user types into the sign-in form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LogValue keeps the password out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", c.Email),
		slog.String("password", "[REDACTED]"),
	)
}

// String implements fmt.Stringer without the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Email: %q, Password: [REDACTED]}", c.Email)
}

var emailFolder = cases.Fold()

// Normalize trims and case-folds the email and checks both fields.
// The password is passed through byte for byte.
func (c Credentials) Normalize() (Credentials, error) {
	email := norm.NFKC.String(strings.TrimSpace(c.Email))
	email = emailFolder.String(email)

	if email == "" {
		return c, fmt.Errorf("%w: email is required", ErrInvalidCredentials)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return c, fmt.Errorf("%w: email is not a valid address", ErrInvalidCredentials)
	}
	if c.Password == "" {
		return c, fmt.Errorf("%w: password is required", ErrInvalidCredentials)
	}
	return Credentials{Email: email, Password: c.Password}, nil
}
