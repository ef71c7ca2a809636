// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken is returned when a token's claims cannot be decoded
	// or carry no subject.
	ErrMalformedToken = errors.New("malformed session token")

	// ErrTokenExpired is returned when a token's exp claim has passed.
	ErrTokenExpired = errors.New("session token expired")
)

// Identity is the part of a token the client relies on. Authorization
// attributes in the token are ignored; they come from the profile.
type Identity struct {
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token had an exp claim at or before now.
func (id Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && !now.Before(id.ExpiresAt)
}

// tokenClaims matches the bcard API token payload, which names the subject
// "_id" rather than "sub".
type tokenClaims struct {
	UserID string `json:"_id"`
	jwt.RegisteredClaims
}

var tokenParser = jwt.NewParser()

// DecodeToken extracts the Identity from a JWT without verifying its
// signature; the API verifies it on every request. The result depends only
// on token.
func DecodeToken(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	var claims tokenClaims
	if _, _, err := tokenParser.ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	id := Identity{Subject: claims.UserID}
	if id.Subject == "" {
		id.Subject = claims.Subject
	}
	if id.Subject == "" {
		return Identity{}, fmt.Errorf("%w: no subject claim", ErrMalformedToken)
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
