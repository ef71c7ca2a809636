// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// lockout_cmd.go - Show failed sign-in attempts and lockout state.
//
// Command: lockout [status]
//
// The lockout can only be cleared by waiting it out or signing in
// successfully afterwards; there is no reset command.

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/bcard-tui/internal/security"
)

// lockoutData is the JSON shape of lockout status.
type lockoutData struct {
	Attempts          int        `json:"attempts"`
	MaxAttempts       int        `json:"max_attempts"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	Locked            bool       `json:"locked"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds"`
	LockoutMinutes    int        `json:"lockout_minutes"`
}

func lockoutDataOf(st security.Status) lockoutData {
	data := lockoutData{
		Attempts:          st.Count,
		MaxAttempts:       st.MaxAttempts,
		AttemptsRemaining: st.AttemptsRemaining,
		Locked:            st.Locked,
		RetryAfterSeconds: int(st.RetryAfter.Seconds()),
		LockoutMinutes:    int(st.LockoutDuration / time.Minute),
	}
	if st.Locked {
		until := st.LockedUntil.UTC()
		data.LockedUntil = &until
	}
	return data
}

func (c *command) lockout() error {
	p := NewArgParser(c.args.Raw)
	switch sub := p.Subcommand(); sub {
	case "", "status":
	default:
		return &ValidationError{Field: "subcommand", Value: sub, Reason: "unknown lockout subcommand", Example: "bcard lockout status"}
	}

	st := c.app.Guard.CheckAndMaybeExpire(c.ctx)
	return c.emit(lockoutDataOf(st), func(w io.Writer) {
		fmt.Fprintln(w, RenderConditional(TitleStyle, "Sign-in Lockout"))
		fmt.Fprintf(w, "%s%d of %d\n", RenderLabel("Failed attempts"), st.Count, st.MaxAttempts)
		if !st.Locked {
			fmt.Fprintf(w, "%s%s\n", RenderLabel("Status"), RenderConditional(SuccessStyle, "open"))
			fmt.Fprintf(w, "%s%d\n", RenderLabel("Attempts left"), st.AttemptsRemaining)
			return
		}
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Status"), RenderConditional(ErrorStyle, "locked"))
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Locked until"), st.LockedUntil.Local().Format("15:04:05"))
		fmt.Fprintf(w, "%s%d min\n", RenderLabel("Retry in"), security.CeilMinutes(st.RetryAfter))
	})
}
