// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import "github.com/charmbracelet/lipgloss"

// Color palette, shared across every view.
var (
	ColorDeep = lipgloss.Color("62")
	ColorIce  = lipgloss.Color("45")
	ColorWarn = lipgloss.Color("214")
	ColorBad  = lipgloss.Color("196")
	ColorGood = lipgloss.Color("35")
	ColorDim  = lipgloss.Color("240")
)

var (
	StyleApp = lipgloss.NewStyle().Padding(0, 1)

	StyleTopBar = lipgloss.NewStyle().
			Padding(0, 1).
			MarginBottom(1)

	StyleMenuItem = lipgloss.NewStyle().
			Foreground(ColorDim).
			Padding(0, 1)

	StyleMenuItemActive = lipgloss.NewStyle().
				Foreground(ColorIce).
				Bold(true).
				Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().Foreground(ColorDeep)

	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(ColorIce)

	StyleSubtitle = lipgloss.NewStyle().Foreground(ColorDim)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorIce).
			MarginBottom(1)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDeep).
			Padding(0, 1).
			MarginRight(1)

	StyleStatusGood = lipgloss.NewStyle().Foreground(ColorGood)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(ColorWarn)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(ColorBad)

	StyleHighlight = lipgloss.NewStyle().Foreground(ColorIce).Bold(true)
)
