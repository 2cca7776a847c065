// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

func (model Model) openRoomSwitcher() (tea.Model, tea.Cmd) {
	rooms, err := model.config.Backend.Rooms()
	if err != nil {
		model.chatError = err.Error()
		return model, nil
	}
	model.rooms = rooms
	model.roomFilter.SetValue("")
	model.roomCursor = 0
	model.applyRoomFilter()
	model.composer.Blur()
	model.screen = screenRooms
	return model, model.roomFilter.Focus()
}

func (model *Model) applyRoomFilter() {
	model.roomMatches = filterRooms(model.rooms, model.roomFilter.Value(), model.slab)
	if model.roomCursor >= len(model.roomMatches) {
		model.roomCursor = max(len(model.roomMatches)-1, 0)
	}
}

func (model Model) updateRooms(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Cancel):
		model.closeRoomSwitcher()
		return model, nil

	case key.Matches(message, model.keys.Up):
		if model.roomCursor > 0 {
			model.roomCursor--
		}
		return model, nil

	case key.Matches(message, model.keys.Down):
		if model.roomCursor < len(model.roomMatches)-1 {
			model.roomCursor++
		}
		return model, nil

	case key.Matches(message, model.keys.Select):
		if len(model.roomMatches) == 0 {
			return model, nil
		}
		selected := model.roomMatches[model.roomCursor].room
		model.closeRoomSwitcher()
		if model.view != nil && selected.ID == model.view.RoomID() {
			return model, nil
		}
		return model, model.openRoom(selected.ID)
	}

	var cmd tea.Cmd
	previous := model.roomFilter.Value()
	model.roomFilter, cmd = model.roomFilter.Update(message)
	if model.roomFilter.Value() != previous {
		model.roomCursor = 0
		model.applyRoomFilter()
	}
	return model, cmd
}

func (model *Model) closeRoomSwitcher() {
	model.roomFilter.Blur()
	model.screen = screenChat
	model.composer.Focus()
}

func (model Model) viewRooms() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render("Switch room")
	lines := []string{title, model.roomFilter.View(), ""}

	if len(model.roomMatches) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("No matching rooms"))
	}
	visible := len(model.roomMatches)
	if model.height > 0 {
		visible = min(visible, max(model.height-5, 1))
	}
	start := 0
	if model.roomCursor >= visible {
		start = model.roomCursor - visible + 1
	}
	for index := start; index < start+visible && index < len(model.roomMatches); index++ {
		lines = append(lines, model.roomRow(index))
	}

	lines = append(lines, "", lipgloss.NewStyle().Foreground(model.theme.HelpText).Render("↑/↓ move · Enter open · Esc back"))
	return strings.Join(lines, "\n")
}

// roomRow renders one switcher entry with its fuzzy-matched runes
// highlighted.
func (model Model) roomRow(index int) string {
	match := model.roomMatches[index]
	selected := index == model.roomCursor

	base := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	highlight := lipgloss.NewStyle().Foreground(model.theme.MatchForeground).Bold(true)
	if selected {
		base = base.Background(model.theme.SelectedBackground).Foreground(model.theme.SelectedForeground)
		highlight = highlight.Background(model.theme.SelectedBackground)
	}

	matched := make(map[int]bool, len(match.positions))
	for _, position := range match.positions {
		matched[position] = true
	}
	var builder strings.Builder
	for position, character := range []rune(match.room.DisplayName()) {
		if matched[position] {
			builder.WriteString(highlight.Render(string(character)))
		} else {
			builder.WriteString(base.Render(string(character)))
		}
	}

	marker := "  "
	if selected {
		marker = "▸ "
	}
	row := marker + builder.String()
	if match.room.Name != "" {
		row += lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("  " + match.room.ID.String())
	}
	if model.width > 0 {
		row = ansi.Truncate(row, model.width, "…")
	}
	return row
}
