// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/security"
)

// =============================================================================
// MESSAGES
// =============================================================================

// EventMsg carries a security event to the toast area.
type EventMsg struct {
	Event security.Event
}

// StoreChangedMsg reports that another process wrote the shared state.
type StoreChangedMsg struct{}

// lockoutTickMsg drives the lockout countdown.
type lockoutTickMsg struct{}

type signInResultMsg struct {
	sess *security.Session
	err  error
}

type signedOutMsg struct {
	err error
}

type sessionReloadedMsg struct {
	changed bool
	err     error
}

type cardsLoadedMsg struct {
	cards []cardapi.Card
	err   error
}

type cardLikedMsg struct {
	card cardapi.Card
	err  error
}

type usersLoadedMsg struct {
	users []cardapi.User
	err   error
}

type userUpdatedMsg struct {
	user cardapi.User
	err  error
}

type cardCreatedMsg struct {
	card cardapi.Card
	err  error
}

// =============================================================================
// EVENT BRIDGE
// =============================================================================

// bridgeBuffer bounds messages queued before the program starts.
const bridgeBuffer = 64

// Bridge carries security events and storage changes from the services into
// the running program. It implements security.Notifier and never blocks the
// caller; when the buffer is full the message is dropped.
type Bridge struct {
	msgs chan tea.Msg
}

// NewBridge creates an unattached Bridge. Messages queue until Attach.
func NewBridge() *Bridge {
	return &Bridge{msgs: make(chan tea.Msg, bridgeBuffer)}
}

// Notify implements security.Notifier.
func (b *Bridge) Notify(e security.Event) {
	b.post(EventMsg{Event: e})
}

// StoreChanged is the storage watcher callback.
func (b *Bridge) StoreChanged() {
	b.post(StoreChangedMsg{})
}

func (b *Bridge) post(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	default:
	}
}

// Attach forwards queued and future messages to p until ctx is done.
func (b *Bridge) Attach(ctx context.Context, p *tea.Program) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.msgs:
				p.Send(msg)
			}
		}
	}()
}

// Drain returns the queued messages without blocking.
func (b *Bridge) Drain() []tea.Msg {
	var out []tea.Msg
	for {
		select {
		case msg := <-b.msgs:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func lockoutTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return lockoutTickMsg{}
	})
}
