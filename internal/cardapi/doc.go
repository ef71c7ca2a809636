// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cardapi is the HTTP client for the business-card REST API.
//
// The client is a thin adapter: it maps endpoints to Go types and HTTP
// failures to errors. Sign-in policy lives in package auth, which consumes
// the client through the Authenticator and ProfileFetcher interfaces.
//
// # Key Types
//
//   - Client: endpoint methods, retry with backoff, request limiter
//   - Card, User: API resources
//   - APIError: non-2xx response with status and server message
//   - PageResult: one page of a filtered card list
//
// # Usage
//
//	c := cardapi.NewClient(cfg.API.BaseURL,
//	    cardapi.WithAuth(sessions),
//	    cardapi.WithRateLimit(5),
//	)
//	cards, err := c.ListCards(ctx)
//	page := cardapi.Page(cardapi.FilterByTitle(cards, "bakery"), 1, cardapi.CardsPerPage)
package cardapi
