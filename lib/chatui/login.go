// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/lib/secret"
)

func (model *Model) focusLoginField(index int) {
	model.loginFocus = index
	if index == 0 {
		model.username.Focus()
		model.password.Blur()
	} else {
		model.username.Blur()
		model.password.Focus()
	}
}

func (model Model) updateLogin(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.loggingIn {
		return model, nil
	}
	switch {
	case key.Matches(message, model.keys.NextField):
		model.focusLoginField(1 - model.loginFocus)
		return model, nil

	case key.Matches(message, model.keys.Submit):
		if model.loginFocus == 0 && model.password.Value() == "" {
			model.focusLoginField(1)
			return model, nil
		}
		return model.submitLogin()
	}
	return model.updateFocusedInput(message)
}

func (model Model) submitLogin() (tea.Model, tea.Cmd) {
	username := strings.TrimSpace(model.username.Value())
	if username == "" || model.password.Value() == "" {
		model.loginError = "Username and password are required"
		return model, nil
	}
	password, err := secret.NewFromString(model.password.Value())
	if err != nil {
		model.loginError = err.Error()
		return model, nil
	}
	model.password.SetValue("")
	model.loginError = ""
	model.loggingIn = true
	return model, tea.Batch(model.spinner.Tick, login(model.ctx, model.config.Backend, username, password))
}

// login runs Backend.Login and releases the password buffer.
func login(ctx context.Context, backend Backend, username string, password *secret.Buffer) tea.Cmd {
	return func() tea.Msg {
		defer password.Close()
		return loginResultMsg{err: backend.Login(ctx, backend.Server(), username, password)}
	}
}

func (model Model) handleLoginResult(message loginResultMsg) (tea.Model, tea.Cmd) {
	model.loggingIn = false
	if message.err != nil {
		model.loginError = message.err.Error()
		model.focusLoginField(1)
		return model, nil
	}
	model.loginError = ""
	if model.config.OnLogin != nil {
		model.config.OnLogin()
	}
	return model, model.enterChat()
}

// accountPreview shows the ID the typed username will log in as.
func (model Model) accountPreview() string {
	username := strings.TrimSpace(model.username.Value())
	if username == "" {
		return ""
	}
	accountID, err := chat.FormatAccountID(username, model.config.Backend.Server())
	if err != nil {
		return err.Error()
	}
	return accountID
}

func (model Model) viewLogin() string {
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render("roomchat")

	lines := []string{
		title,
		faint.Render("Server: " + model.config.Backend.Server()),
		"",
		model.username.View(),
		model.password.View(),
	}
	if preview := model.accountPreview(); preview != "" {
		lines = append(lines, faint.Render("Account: "+preview))
	}
	lines = append(lines, "")
	switch {
	case model.loggingIn:
		lines = append(lines, model.spinner.View()+" Logging in…")
	case model.loginError != "":
		lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render(model.loginError))
	}
	lines = append(lines, "", lipgloss.NewStyle().Foreground(model.theme.HelpText).Render("Tab next field · Enter log in · Ctrl+C quit"))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.BorderColor).
		Padding(1, 2).
		Render(strings.Join(lines, "\n"))
	if model.width > 0 && model.height > 0 {
		return lipgloss.Place(model.width, model.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}
