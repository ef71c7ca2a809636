// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cardapi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardInput_Validate(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(*CardInput)
		field  string
		reason string
	}{
		{"valid", func(*CardInput) {}, "", ""},
		{"no web or image", func(in *CardInput) { in.Web, in.Image = "", Image{} }, "", ""},
		{"missing title", func(in *CardInput) { in.Title = " " }, "title", "is required"},
		{"short subtitle", func(in *CardInput) { in.Subtitle = "x" }, "subtitle", "at least 2"},
		{"long description", func(in *CardInput) { in.Description = strings.Repeat("d", 1025) }, "description", "at most 1024"},
		{"long phone", func(in *CardInput) { in.Phone = "050123456789" }, "phone", "at most 11"},
		{"bad email", func(in *CardInput) { in.Email = "shop at forge" }, "email", "email address"},
		{"display-name email", func(in *CardInput) { in.Email = "Shop <shop@forge.example>" }, "email", "email address"},
		{"missing city", func(in *CardInput) { in.Address.City = "" }, "address.city", "is required"},
		{"zero house number", func(in *CardInput) { in.Address.HouseNumber = 0 }, "address.houseNumber", "positive"},
		{"negative zip", func(in *CardInput) { in.Address.Zip = -1 }, "address.zip", "negative"},
		{"relative web", func(in *CardInput) { in.Web = "forge.example" }, "web", "http"},
		{"ftp image", func(in *CardInput) { in.Image.URL = "ftp://forge.example/a.png" }, "image.url", "http"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validCardInput()
			tt.edit(&in)
			err := in.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
			assert.Contains(t, inputErr.Reason, tt.reason)
		})
	}
}

func TestCardInput_NormalizeTrims(t *testing.T) {
	in := validCardInput()
	in.Title = "  Forge  "
	in.Address.Street = "\tHerzl\n"
	in.Normalize()
	assert.Equal(t, "Forge", in.Title)
	assert.Equal(t, "Herzl", in.Address.Street)
}

func TestCardInputFrom_KeepsEditableFields(t *testing.T) {
	card := Card{
		ID: "c1", Title: "T", Subtitle: "S", Description: "D", Phone: "P", Email: "E", Web: "W",
		Image: Image{URL: "U", Alt: "A"}, Address: Address{City: "Haifa"},
		BizNumber: 5, Likes: []string{"u1"}, UserID: "u2",
	}
	assert.Equal(t, CardInput{
		Title: "T", Subtitle: "S", Description: "D", Phone: "P", Email: "E", Web: "W",
		Image: Image{URL: "U", Alt: "A"}, Address: Address{City: "Haifa"},
	}, CardInputFrom(card))
}

func TestUserUpdate_Validate(t *testing.T) {
	base := UserUpdate{Name: Name{First: "Ada", Last: "Lovelace"}, Email: "ada@example.com"}
	assert.NoError(t, base.Validate())

	withPhone := base
	withPhone.Phone = "0501234567"
	assert.NoError(t, withPhone.Validate())

	for field, edit := range map[string]func(*UserUpdate){
		"name.first": func(u *UserUpdate) { u.Name.First = "" },
		"name.last":  func(u *UserUpdate) { u.Name.Last = "L" },
		"phone":      func(u *UserUpdate) { u.Phone = "123" },
		"email":      func(u *UserUpdate) { u.Email = "nobody" },
	} {
		in := base
		edit(&in)
		var inputErr *InputError
		require.ErrorAs(t, in.Validate(), &inputErr, field)
		assert.Equal(t, field, inputErr.Field)
	}
}
