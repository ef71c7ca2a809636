// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the bcard TUI.

All colors use Lip Gloss AdaptiveColor so the palette follows the terminal's
light or dark background.

# Color System (colors.go)

  - Cyan - Brand color, navigation and focus
  - Emerald - Success, signed-in state
  - Amber - Warnings, attempts running low
  - Rose - Errors and the lockout banner
  - Purple - Selection and liked cards

Surfaces (Surface, SurfaceDim, Overlay) and text tiers (TextPrimary,
TextSecondary, TextMuted) layer on top.

# Theme System (theme.go)

	theme := styles.NewTheme("auto")
	title := theme.CardTitle.Render(card.Title)

Status indicators are ASCII ([OK], [X], [!], [i]) so state never depends on
color alone.
*/
package styles
