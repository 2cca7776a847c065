// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette for the chat screens. ANSI 256-color
// codes throughout.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	HeaderBackground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Sender names cycle through SenderColors by a hash of the user
	// ID; the local user always gets OwnSender.
	SenderColors [6]lipgloss.Color
	OwnSender    lipgloss.Color
	Timestamp    lipgloss.Color

	ErrorText   lipgloss.Color
	WarningText lipgloss.Color

	// Recording indicator and waveform bars.
	RecordingAccent lipgloss.Color
	WaveformBar     lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color
	MatchForeground    lipgloss.Color

	LinkForeground lipgloss.Color
	QuoteBar       lipgloss.Color
}

// DefaultTheme targets dark 256-color terminals.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	HeaderBackground: lipgloss.Color("236"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	SenderColors: [6]lipgloss.Color{
		lipgloss.Color("75"),  // blue
		lipgloss.Color("114"), // green
		lipgloss.Color("141"), // purple
		lipgloss.Color("208"), // orange
		lipgloss.Color("80"),  // teal
		lipgloss.Color("175"), // pink
	},
	OwnSender: lipgloss.Color("220"),
	Timestamp: lipgloss.Color("242"),

	ErrorText:   lipgloss.Color("196"),
	WarningText: lipgloss.Color("214"),

	RecordingAccent: lipgloss.Color("203"),
	WaveformBar:     lipgloss.Color("114"),

	SelectedBackground: lipgloss.Color("237"),
	SelectedForeground: lipgloss.Color("255"),
	MatchForeground:    lipgloss.Color("220"),

	LinkForeground: lipgloss.Color("75"),
	QuoteBar:       lipgloss.Color("240"),
}

// SenderColor picks a stable color for a sender.
func (theme Theme) SenderColor(sender string, own bool) lipgloss.Color {
	if own {
		return theme.OwnSender
	}
	var hash uint32 = 2166136261
	for index := 0; index < len(sender); index++ {
		hash ^= uint32(sender[index])
		hash *= 16777619
	}
	return theme.SenderColors[hash%uint32(len(theme.SenderColors))]
}
