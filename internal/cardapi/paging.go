// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cardapi

import "strings"

const (
	// CardsPerPage is the card grid page size.
	CardsPerPage = 8

	// CRMItemsPerPage is the page size of the admin lists.
	CRMItemsPerPage = 20

	// PagesToShow is the number of page links shown at once.
	PagesToShow = 4
)

// FilterByTitle keeps cards whose title contains query, ignoring case.
// An empty query keeps every card.
func FilterByTitle(cards []Card, query string) []Card {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return cards
	}
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if strings.Contains(strings.ToLower(c.Title), q) {
			out = append(out, c)
		}
	}
	return out
}

// OwnedBy keeps the cards created by userID.
func OwnedBy(cards []Card, userID string) []Card {
	out := make([]Card, 0)
	for _, c := range cards {
		if userID != "" && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// LikedBy keeps the cards userID has liked.
func LikedBy(cards []Card, userID string) []Card {
	out := make([]Card, 0)
	for _, c := range cards {
		if c.LikedBy(userID) {
			out = append(out, c)
		}
	}
	return out
}

// BusinessUsers keeps users with the business flag.
func BusinessUsers(users []User) []User {
	out := make([]User, 0)
	for _, u := range users {
		if u.IsBusiness {
			out = append(out, u)
		}
	}
	return out
}

// PageResult is one page of a list.
type PageResult[T any] struct {
	Items      []T
	Page       int
	TotalPages int
	Total      int
	Range      []int
}

// HasPrev reports whether a previous page exists.
func (p PageResult[T]) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a next page exists.
func (p PageResult[T]) HasNext() bool { return p.Page < p.TotalPages }

// Page slices items into pages of perPage and returns page, clamped to the
// valid range. Page numbers start at 1.
func Page[T any](items []T, page, perPage int) PageResult[T] {
	if perPage <= 0 {
		perPage = CardsPerPage
	}
	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	res := PageResult[T]{Page: page, TotalPages: totalPages, Total: total, Items: []T{}}
	if total == 0 {
		return res
	}
	start := (page - 1) * perPage
	end := min(start+perPage, total)
	res.Items = items[start:end]
	res.Range = PageRange(page, totalPages, PagesToShow)
	return res
}

// PageRange returns up to show consecutive page numbers around current,
// shifted so the window never runs past the last page.
func PageRange(current, totalPages, show int) []int {
	if totalPages <= 0 || show <= 0 {
		return nil
	}
	start := max(1, min(current-show/2, totalPages-show+1))
	end := min(totalPages, start+show-1)
	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}
