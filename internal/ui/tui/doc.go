// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui implements the interactive bcard terminal interface.
//
// The Model drives a sign-in form, the card list with search and paging,
// favorites, the business owner's cards, the profile page and the admin CRM.
// Navigation follows the role of the current session; pages the role cannot
// use are left out of the header.
//
// Guard and session events reach the program through a Bridge, which is
// passed to cli.Bootstrap as the event notifier and to Run. Writes to the
// shared state by another bcard process arrive through the same Bridge and
// cause the session and lockout status to be re-read.
//
// # Usage
//
//	bridge := tui.NewBridge()
//	app, err := cli.Bootstrap(ctx, cfg, false, cli.WithEventNotifier(bridge))
//	if err != nil {
//	    return err
//	}
//	defer app.Close()
//	return tui.Run(ctx, app, bridge)
package tui
