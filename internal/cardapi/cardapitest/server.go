// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cardapitest provides an in-memory cards API for tests.
package cardapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeranaias/bcard-tui/internal/cardapi"
)

// AuthHeader is the header the server reads tokens from.
const AuthHeader = "x-auth-token"

var secret = []byte("cardapitest-secret")

// Server is a running fake API. Handlers follow the real API's routes and
// its access rules: listing and deleting users and toggling business
// status are admin-only.
type Server struct {
	*httptest.Server

	// Logins counts POST /users/login requests.
	Logins atomic.Int32

	mu        sync.Mutex
	users     map[string]cardapi.User
	passwords map[string]string
	cards     []cardapi.Card
	created   int
}

// NewServer starts a Server. Close it when done.
func NewServer() *Server {
	s := &Server{
		users:     make(map[string]cardapi.User),
		passwords: make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", s.login)
	mux.HandleFunc("GET /users", s.admin(s.listUsers))
	mux.HandleFunc("GET /users/{id}", s.authed(s.getUser))
	mux.HandleFunc("PUT /users/{id}", s.authed(s.updateUser))
	mux.HandleFunc("PATCH /users/{id}", s.admin(s.toggleBusiness))
	mux.HandleFunc("DELETE /users/{id}", s.admin(s.deleteUser))
	mux.HandleFunc("GET /cards", s.listCards)
	mux.HandleFunc("POST /cards", s.authed(s.createCard))
	mux.HandleFunc("GET /cards/{id}", s.getCard)
	mux.HandleFunc("PUT /cards/{id}", s.authed(s.updateCard))
	mux.HandleFunc("PATCH /cards/{id}", s.authed(s.toggleLike))
	mux.HandleFunc("DELETE /cards/{id}", s.authed(s.deleteCard))
	s.Server = httptest.NewServer(mux)
	return s
}

// AddUser registers u with password.
func (s *Server) AddUser(u cardapi.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	s.passwords[u.Email] = password
}

// RemoveUser deletes a user behind the client's back.
func (s *Server) RemoveUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		delete(s.passwords, u.Email)
		delete(s.users, id)
	}
}

// AddCard stores c.
func (s *Server) AddCard(c cardapi.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, c)
}

// User returns the stored user.
func (s *Server) User(id string) (cardapi.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// Card returns the stored card.
func (s *Server) Card(id string) (cardapi.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.cardIndex(id)
	if i < 0 {
		return cardapi.Card{}, false
	}
	return s.cards[i], true
}

// Token issues a token for id the way the login route does.
func Token(id string) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"_id": id,
		"iat": time.Now().Unix(),
	}).SignedString(secret)
	if err != nil {
		panic(err)
	}
	return tok
}

// =============================================================================
// HANDLERS
// =============================================================================

type ctxHandler func(w http.ResponseWriter, r *http.Request, caller cardapi.User)

func (s *Server) authed(next ctxHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := s.caller(r)
		if !ok {
			http.Error(w, "Authentication Error: Please Login", http.StatusUnauthorized)
			return
		}
		next(w, r, caller)
	}
}

func (s *Server) admin(next ctxHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, caller cardapi.User) {
		if !caller.IsAdmin {
			http.Error(w, "Authorization Error: Admin only", http.StatusForbidden)
			return
		}
		next(w, r, caller)
	})
}

func (s *Server) caller(r *http.Request) (cardapi.User, bool) {
	raw := r.Header.Get(AuthHeader)
	if raw == "" {
		return cardapi.User{}, false
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return secret, nil }); err != nil {
		return cardapi.User{}, false
	}
	id, _ := claims["_id"].(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.Logins.Add(1)
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Joi Error: invalid body", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	var id string
	if pw, ok := s.passwords[req.Email]; ok && pw == req.Password {
		for _, u := range s.users {
			if u.Email == req.Email {
				id = u.ID
			}
		}
	}
	s.mu.Unlock()
	if id == "" {
		http.Error(w, "Invalid email or password", http.StatusBadRequest)
		return
	}
	_, _ = w.Write([]byte(Token(id)))
}

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request, _ cardapi.User) {
	s.mu.Lock()
	users := make([]cardapi.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()
	slices.SortFunc(users, func(a, b cardapi.User) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	writeJSON(w, users)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, caller cardapi.User) {
	id := r.PathValue("id")
	if id != caller.ID && !caller.IsAdmin {
		http.Error(w, "Authorization Error: Must be the registered user or admin", http.StatusForbidden)
		return
	}
	u, ok := s.User(id)
	if !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, caller cardapi.User) {
	id := r.PathValue("id")
	if id != caller.ID && !caller.IsAdmin {
		http.Error(w, "Authorization Error: Must be the registered user or admin", http.StatusForbidden)
		return
	}
	var in cardapi.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Joi Error: invalid body", http.StatusBadRequest)
		return
	}
	if err := in.Validate(); err != nil {
		http.Error(w, "Joi Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	u, ok := s.users[id]
	if ok {
		if pw, had := s.passwords[u.Email]; had && in.Email != u.Email {
			delete(s.passwords, u.Email)
			s.passwords[in.Email] = pw
		}
		u.Name, u.Phone, u.Email, u.Image, u.Address = in.Name, in.Phone, in.Email, in.Image, in.Address
		s.users[id] = u
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, u)
}

func (s *Server) toggleBusiness(w http.ResponseWriter, r *http.Request, _ cardapi.User) {
	s.mu.Lock()
	u, ok := s.users[r.PathValue("id")]
	if ok {
		u.IsBusiness = !u.IsBusiness
		s.users[u.ID] = u
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request, _ cardapi.User) {
	s.mu.Lock()
	u, ok := s.users[r.PathValue("id")]
	delete(s.users, u.ID)
	s.mu.Unlock()
	if !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, u)
}

func (s *Server) listCards(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	cards := slices.Clone(s.cards)
	s.mu.Unlock()
	writeJSON(w, cards)
}

func (s *Server) getCard(w http.ResponseWriter, r *http.Request) {
	c, ok := s.Card(r.PathValue("id"))
	if !ok {
		http.Error(w, "Card not found", http.StatusNotFound)
		return
	}
	writeJSON(w, c)
}

func (s *Server) createCard(w http.ResponseWriter, r *http.Request, caller cardapi.User) {
	if !caller.IsBusiness && !caller.IsAdmin {
		http.Error(w, "Authorization Error: Must be business user", http.StatusForbidden)
		return
	}
	in, ok := decodeCardInput(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	s.created++
	card := applyCardInput(cardapi.Card{
		ID:        fmt.Sprintf("new-%03d", s.created),
		BizNumber: 1000000 + s.created,
		Likes:     []string{},
		UserID:    caller.ID,
	}, in)
	s.cards = append(s.cards, card)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(card)
}

func (s *Server) updateCard(w http.ResponseWriter, r *http.Request, caller cardapi.User) {
	in, ok := decodeCardInput(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	i := s.cardIndex(r.PathValue("id"))
	var card cardapi.Card
	allowed := false
	if i >= 0 {
		card = s.cards[i]
		allowed = caller.IsAdmin || card.UserID == caller.ID
		if allowed {
			card = applyCardInput(card, in)
			s.cards[i] = card
		}
	}
	s.mu.Unlock()
	switch {
	case i < 0:
		http.Error(w, "Card not found", http.StatusNotFound)
	case !allowed:
		http.Error(w, "Authorization Error: Must be the card owner or admin", http.StatusForbidden)
	default:
		writeJSON(w, card)
	}
}

func decodeCardInput(w http.ResponseWriter, r *http.Request) (cardapi.CardInput, bool) {
	var in cardapi.CardInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Joi Error: invalid body", http.StatusBadRequest)
		return in, false
	}
	if err := in.Validate(); err != nil {
		http.Error(w, "Joi Error: "+err.Error(), http.StatusBadRequest)
		return in, false
	}
	return in, true
}

// applyCardInput copies the editable fields; id, owner, likes and card
// number are kept.
func applyCardInput(card cardapi.Card, in cardapi.CardInput) cardapi.Card {
	card.Title, card.Subtitle, card.Description = in.Title, in.Subtitle, in.Description
	card.Phone, card.Email, card.Web = in.Phone, in.Email, in.Web
	card.Image, card.Address = in.Image, in.Address
	return card
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request, caller cardapi.User) {
	s.mu.Lock()
	i := s.cardIndex(r.PathValue("id"))
	var card cardapi.Card
	if i >= 0 {
		card = s.cards[i]
		if j := slices.Index(card.Likes, caller.ID); j >= 0 {
			card.Likes = slices.Delete(slices.Clone(card.Likes), j, j+1)
		} else {
			card.Likes = append(slices.Clone(card.Likes), caller.ID)
		}
		s.cards[i] = card
	}
	s.mu.Unlock()
	if i < 0 {
		http.Error(w, "Card not found", http.StatusNotFound)
		return
	}
	writeJSON(w, card)
}

func (s *Server) deleteCard(w http.ResponseWriter, r *http.Request, caller cardapi.User) {
	s.mu.Lock()
	i := s.cardIndex(r.PathValue("id"))
	var card cardapi.Card
	allowed := false
	if i >= 0 {
		card = s.cards[i]
		allowed = caller.IsAdmin || card.UserID == caller.ID
		if allowed {
			s.cards = slices.Delete(s.cards, i, i+1)
		}
	}
	s.mu.Unlock()
	switch {
	case i < 0:
		http.Error(w, "Card not found", http.StatusNotFound)
	case !allowed:
		http.Error(w, "Authorization Error: Must be the card owner or admin", http.StatusForbidden)
	default:
		writeJSON(w, card)
	}
}

func (s *Server) cardIndex(id string) int {
	return slices.IndexFunc(s.cards, func(c cardapi.Card) bool { return c.ID == id })
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
