// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui is the terminal interface for roomchat: a bubbletea
// model with a login screen, a single-room chat screen, and a room
// switcher.
//
// The model talks to the chat layer through [Backend], which
// *chat.Service satisfies. The chat screen follows one room through a
// chat.RoomView: history and live messages arrive as view updates and
// are re-rendered as markdown, with fenced code highlighted by chroma.
// The composer is a multi-line textarea; Ctrl+S sends. When a
// voice.Recorder is configured, Ctrl+R records, Ctrl+P previews,
// Ctrl+X discards, and Ctrl+V sends the clip.
//
// Background log records reach the status bar through [LogHandler],
// which must be bound to the running tea.Program with SetProgram.
package chatui
