// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cardapi

import (
	"strconv"
	"strings"

	"github.com/jeranaias/bcard-tui/internal/security"
)

// Image is a picture reference attached to a card or user.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// Address is a postal address.
type Address struct {
	State       string `json:"state,omitempty"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Street      string `json:"street"`
	HouseNumber int    `json:"houseNumber"`
	Zip         int    `json:"zip,omitempty"`
}

// String renders the address on one line.
func (a Address) String() string {
	var parts []string
	street := strings.TrimSpace(a.Street)
	if street != "" && a.HouseNumber > 0 {
		street = street + " " + strconv.Itoa(a.HouseNumber)
	}
	for _, p := range []string{street, a.City, a.State, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Card is a business card.
type Card struct {
	ID          string   `json:"_id"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Description string   `json:"description"`
	Phone       string   `json:"phone"`
	Email       string   `json:"email"`
	Web         string   `json:"web,omitempty"`
	Image       Image    `json:"image"`
	Address     Address  `json:"address"`
	BizNumber   int      `json:"bizNumber,omitempty"`
	Likes       []string `json:"likes"`
	UserID      string   `json:"user_id"`
}

// LikedBy reports whether userID is among the card's likes.
func (c Card) LikedBy(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range c.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// Name is a user's name.
type Name struct {
	First  string `json:"first"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last"`
}

// Full joins the non-empty name parts.
func (n Name) Full() string {
	return strings.Join(strings.Fields(n.First+" "+n.Middle+" "+n.Last), " ")
}

// User is an account as returned by the API.
type User struct {
	ID         string  `json:"_id"`
	Name       Name    `json:"name"`
	Phone      string  `json:"phone"`
	Email      string  `json:"email"`
	Image      Image   `json:"image"`
	Address    Address `json:"address"`
	IsAdmin    bool    `json:"isAdmin"`
	IsBusiness bool    `json:"isBusiness"`
}

// Attributes maps the user to the session attributes used for role checks.
func (u User) Attributes() security.Attributes {
	return security.Attributes{
		SubjectID:   u.ID,
		DisplayName: u.Name.Full(),
		Email:       u.Email,
		Admin:       u.IsAdmin,
		Business:    u.IsBusiness,
	}
}
