// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bcard-tui/internal/cli"
)

// Run starts the TUI and blocks until the user quits or ctx is cancelled.
// bridge must be the notifier app was bootstrapped with.
func Run(ctx context.Context, app *cli.App, bridge *Bridge, opts ...Option) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := app.Auth.Resume(ctx); err != nil {
		app.Logger.Info("TUI_RESUME", "error", err)
	}

	p := tea.NewProgram(New(ctx, app, opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(ctx, p)

	if _, err := app.Watch(bridge.StoreChanged); err != nil {
		app.Logger.Warn("TUI_WATCH_FAILED", "error", err)
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
