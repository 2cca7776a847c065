// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/lib/ref"
)

// enterChat switches to the chat screen and opens the configured room.
func (model *Model) enterChat() tea.Cmd {
	model.screen = screenChat
	model.userID, _ = model.config.Backend.UserID()
	model.composer.Focus()
	return model.openRoom(model.config.Room)
}

// openRoom replaces the current room view with one following roomID.
func (model *Model) openRoom(roomID ref.RoomID) tea.Cmd {
	model.closeView()

	model.room = chat.Room{ID: roomID}
	joined := false
	if rooms, err := model.config.Backend.Rooms(); err == nil {
		for _, room := range rooms {
			if room.ID == roomID {
				model.room = room
				joined = true
				break
			}
		}
	}

	// Avatars resolve against the session's own homeserver, which
	// differs from the configured default for a restored session.
	server, err := model.config.Backend.Homeserver()
	if err != nil || server == "" {
		server = model.config.Backend.Server()
	}
	view := chat.NewRoomView(model.config.Backend, roomID, chat.RoomViewOptions{
		HistoryLimit: model.config.HistoryLimit,
		Server:       server,
		Logger:       model.logger,
	})
	model.view = view
	model.viewStop = make(chan struct{})
	model.messages = nil
	model.chatError = ""
	model.renderMessages()

	ctx := model.ctx
	commands := []tea.Cmd{
		func() tea.Msg {
			return roomActivatedMsg{view: view, err: view.Activate(ctx)}
		},
		waitForRoomUpdate(view, model.viewStop),
	}
	if !joined {
		commands = append(commands, fetchRoomName(ctx, model.config.Backend, roomID))
	}
	return tea.Batch(commands...)
}

// fetchRoomName looks up the name of a room missing from the synced
// set. Failures leave the header showing the room ID.
func fetchRoomName(ctx context.Context, backend Backend, roomID ref.RoomID) tea.Cmd {
	return func() tea.Msg {
		name, err := backend.RoomName(ctx, roomID)
		if err != nil {
			return nil
		}
		return roomNameMsg{roomID: roomID, name: name}
	}
}

func (model *Model) closeView() {
	if model.view == nil {
		return
	}
	model.view.Deactivate()
	close(model.viewStop)
	model.view = nil
	model.viewStop = nil
}

// waitForRoomUpdate delivers the view's next update signal, or nothing
// once stop is closed.
func waitForRoomUpdate(view *chat.RoomView, stop <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-view.Updates():
			return roomUpdateMsg{view: view}
		case <-stop:
			return nil
		}
	}
}

func (model *Model) refreshMessages() {
	if model.view == nil {
		return
	}
	model.messages = model.view.Messages()
	if err := model.view.Err(); err != nil {
		model.chatError = err.Error()
	}
	model.renderMessages()
}

// renderMessages rebuilds the viewport content, staying pinned to the
// bottom if the user had not scrolled up.
func (model *Model) renderMessages() {
	atBottom := model.viewport.AtBottom() || model.viewport.TotalLineCount() == 0
	model.viewport.SetContent(model.formatMessages())
	if atBottom {
		model.viewport.GotoBottom()
	}
}

func (model Model) formatMessages() string {
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	if len(model.messages) == 0 {
		if model.view != nil && model.view.Loading() {
			return faint.Render("Loading messages…")
		}
		return faint.Render("No messages yet.")
	}

	width := model.viewport.Width
	var blocks []string
	for _, message := range model.messages {
		blocks = append(blocks, model.formatMessage(message, width))
	}
	return strings.Join(blocks, "\n")
}

func (model Model) formatMessage(message chat.Message, width int) string {
	own := message.Sender == model.userID
	name := lipgloss.NewStyle().Bold(true).
		Foreground(model.theme.SenderColor(message.Sender.String(), own)).
		Render(message.DisplayName)
	timestamp := lipgloss.NewStyle().Foreground(model.theme.Timestamp).
		Render(message.Timestamp.Local().Format("15:04"))
	header := name + " " + timestamp

	const indent = "  "
	var body string
	if message.IsAudio() {
		link := chat.ResolveMediaURL(message.MediaURL, model.config.Backend.Server())
		body = "♪ " + message.Content
		if link != "" {
			body += " " + lipgloss.NewStyle().Foreground(model.theme.LinkForeground).Render(link)
		}
		body = ansi.Wrap(body, max(width-len(indent), 10), " /")
	} else {
		body = renderMarkdown(message.Content, model.theme, width-len(indent))
	}
	lines := strings.Split(body, "\n")
	for index := range lines {
		lines[index] = indent + lines[index]
	}
	return header + "\n" + strings.Join(lines, "\n")
}

func (model Model) updateChat(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Send):
		return model.sendComposer()

	case key.Matches(message, model.keys.ScrollUp):
		model.viewport.HalfViewUp()
		return model, nil

	case key.Matches(message, model.keys.ScrollDown):
		model.viewport.HalfViewDown()
		return model, nil

	case key.Matches(message, model.keys.Rooms):
		return model.openRoomSwitcher()

	case key.Matches(message, model.keys.Logout):
		model.shutdown()
		model.clip = nil
		model.elapsed = 0
		backend := model.config.Backend
		ctx := model.ctx
		return model, func() tea.Msg { return logoutResultMsg{err: backend.Logout(ctx)} }

	case key.Matches(message, model.keys.RecordToggle):
		return model.toggleRecording()

	case key.Matches(message, model.keys.DiscardClip):
		model.discardClip()
		return model, nil

	// Ctrl+P and Ctrl+V only act on a clip; otherwise they reach the
	// composer (line up, paste).
	case key.Matches(message, model.keys.PlayClip) && model.clip != nil:
		return model.togglePlayback()

	case key.Matches(message, model.keys.SendClip) && model.clip != nil:
		return model.sendClip()
	}
	return model.updateFocusedInput(message)
}

func (model Model) sendComposer() (tea.Model, tea.Cmd) {
	text := model.composer.Value()
	if strings.TrimSpace(text) == "" || model.sending || model.view == nil {
		return model, nil
	}
	model.composer.Reset()
	model.sending = true
	backend := model.config.Backend
	roomID := model.view.RoomID()
	ctx := model.ctx
	return model, func() tea.Msg {
		_, err := backend.SendMessage(ctx, roomID, text)
		return sendResultMsg{text: text, err: err}
	}
}

func (model Model) handleLogoutResult(message logoutResultMsg) (tea.Model, tea.Cmd) {
	if message.err != nil {
		model.logger.Warn("logout failed", "error", message.err)
	}
	if model.config.OnLogout != nil {
		model.config.OnLogout()
	}
	model.screen = screenLogin
	model.messages = nil
	model.chatError = ""
	model.composer.Reset()
	model.composer.Blur()
	model.focusLoginField(1)
	return model, nil
}

func (model Model) viewChat() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(model.theme.HeaderForeground).
		Background(model.theme.HeaderBackground).
		Width(max(model.width, 1)).
		Render(ansi.Truncate(model.room.DisplayName()+"  ·  "+model.userID.String(), max(model.width, 1), "…"))
	separator := lipgloss.NewStyle().Foreground(model.theme.BorderColor).Render(strings.Repeat("─", max(model.width, 1)))

	return strings.Join([]string{
		header,
		model.viewport.View(),
		separator,
		model.composer.View(),
		model.statusLine(),
		model.helpLine(),
	}, "\n")
}

// statusLine shows, in priority order: a recording in progress, a
// finished clip, the last error, the last background log record.
func (model Model) statusLine() string {
	width := max(model.width, 1)
	var line string
	switch {
	case model.clip != nil || model.recording():
		line = model.voiceLine(width)
	case model.chatError != "":
		line = lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render(model.chatError)
	case model.sending:
		line = lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("Sending…")
	case model.status != "":
		color := model.theme.WarningText
		if model.statusLevel >= slog.LevelError {
			color = model.theme.ErrorText
		}
		line = lipgloss.NewStyle().Foreground(color).Render(model.status)
	}
	return ansi.Truncate(line, width, "…")
}

func (model Model) helpLine() string {
	bindings := []key.Binding{model.keys.Send, model.keys.RecordToggle, model.keys.Rooms, model.keys.Logout, model.keys.Quit}
	if model.clip != nil {
		bindings = []key.Binding{model.keys.PlayClip, model.keys.SendClip, model.keys.DiscardClip, model.keys.RecordToggle, model.keys.Quit}
	}
	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return ansi.Truncate(lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(strings.Join(parts, " · ")), max(model.width, 1), "…")
}
