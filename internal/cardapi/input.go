// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cardapi

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// InputError rejects a create or update body before it is sent.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// =============================================================================
// CARD INPUT
// =============================================================================

// CardInput is the body of POST /cards and PUT /cards/{id}. The server
// assigns the id, owner, likes and card number.
type CardInput struct {
	Title       string  `json:"title"`
	Subtitle    string  `json:"subtitle"`
	Description string  `json:"description"`
	Phone       string  `json:"phone"`
	Email       string  `json:"email"`
	Web         string  `json:"web,omitempty"`
	Image       Image   `json:"image"`
	Address     Address `json:"address"`
}

// CardInputFrom returns the editable fields of card.
func CardInputFrom(card Card) CardInput {
	return CardInput{
		Title:       card.Title,
		Subtitle:    card.Subtitle,
		Description: card.Description,
		Phone:       card.Phone,
		Email:       card.Email,
		Web:         card.Web,
		Image:       card.Image,
		Address:     card.Address,
	}
}

// Normalize trims surrounding space from every text field.
func (in *CardInput) Normalize() {
	for _, s := range []*string{
		&in.Title, &in.Subtitle, &in.Description, &in.Phone, &in.Email, &in.Web,
		&in.Image.URL, &in.Image.Alt,
		&in.Address.State, &in.Address.Country, &in.Address.City, &in.Address.Street,
	} {
		*s = strings.TrimSpace(*s)
	}
}

// Validate checks the rules the API enforces on cards.
func (in CardInput) Validate() error {
	checks := []struct {
		field    string
		value    string
		min, max int
	}{
		{"title", in.Title, 2, 256},
		{"subtitle", in.Subtitle, 2, 256},
		{"description", in.Description, 2, 1024},
		{"phone", in.Phone, 9, 11},
		{"address.country", in.Address.Country, 2, 256},
		{"address.city", in.Address.City, 2, 256},
		{"address.street", in.Address.Street, 2, 256},
	}
	for _, c := range checks {
		if err := checkLength(c.field, c.value, c.min, c.max); err != nil {
			return err
		}
	}
	if err := checkEmail("email", in.Email); err != nil {
		return err
	}
	if in.Address.HouseNumber <= 0 {
		return &InputError{Field: "address.houseNumber", Reason: "must be a positive number"}
	}
	if in.Address.Zip < 0 {
		return &InputError{Field: "address.zip", Reason: "must not be negative"}
	}
	if err := checkURL("web", in.Web); err != nil {
		return err
	}
	return checkURL("image.url", in.Image.URL)
}

// =============================================================================
// USER UPDATE
// =============================================================================

// UserUpdate is the body of PUT /users/{id}. Role flags are changed
// through SetBusiness, never here.
type UserUpdate struct {
	Name    Name    `json:"name"`
	Phone   string  `json:"phone"`
	Email   string  `json:"email"`
	Image   Image   `json:"image"`
	Address Address `json:"address"`
}

// UserUpdateFrom returns the editable fields of u.
func UserUpdateFrom(u User) UserUpdate {
	return UserUpdate{Name: u.Name, Phone: u.Phone, Email: u.Email, Image: u.Image, Address: u.Address}
}

// Normalize trims the name, phone and email.
func (in *UserUpdate) Normalize() {
	for _, s := range []*string{&in.Name.First, &in.Name.Middle, &in.Name.Last, &in.Phone, &in.Email} {
		*s = strings.TrimSpace(*s)
	}
}

// Validate checks the fields an edit can change.
func (in UserUpdate) Validate() error {
	if err := checkLength("name.first", in.Name.First, 2, 256); err != nil {
		return err
	}
	if err := checkLength("name.last", in.Name.Last, 2, 256); err != nil {
		return err
	}
	if in.Phone != "" {
		if err := checkLength("phone", in.Phone, 9, 11); err != nil {
			return err
		}
	}
	return checkEmail("email", in.Email)
}

// =============================================================================
// FIELD CHECKS
// =============================================================================

func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0:
		return &InputError{Field: field, Reason: "is required"}
	case n < min:
		return &InputError{Field: field, Reason: fmt.Sprintf("must be at least %d characters", min)}
	case n > max:
		return &InputError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

func checkEmail(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &InputError{Field: field, Reason: "is required"}
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return &InputError{Field: field, Reason: "must be an email address"}
	}
	return nil
}

// checkURL accepts an empty value or an absolute http(s) URL.
func checkURL(field, value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &InputError{Field: field, Reason: "must be an http or https URL"}
	}
	return nil
}
