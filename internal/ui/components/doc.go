// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides reusable UI components for the bcard TUI.

# Components

Header (header.go) - Title bar with the role-gated navigation and the
signed-in identity. NavItems derives the visible pages from a
security.RoleView.

ToastManager (toast.go) - Non-blocking notifications in the bottom-right
corner. AddEvent renders security events: failed attempts, lockouts,
sign-in and sign-out.

# Usage

	header := components.NewHeader(theme)
	header.SetView(security.View(sess), name)

	toasts := components.NewToastManager(nil)
	toasts.AddEvent(event)
	stack := components.RenderToastStack(toasts.Tick(), width, time.Now())
*/
package components
