// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg carries a background log record to the status bar.
type logRecordMsg struct {
	summary string
	level   slog.Level
}

// logFadeMsg clears a status-bar log record once it has been shown
// for logFadeDelay. sequence ties the fade to the record it was
// scheduled for, so a newer record is not cleared early.
type logFadeMsg struct {
	sequence int
}

const logFadeDelay = 5 * time.Second

// LogHandler is a slog.Handler that forwards records to a running
// tea.Program, where they appear on the status bar. Records below the
// handler's level, and records logged before SetProgram, are dropped.
//
// Handlers derived with WithAttrs and WithGroup share the program
// binding with their parent.
type LogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	group   string
}

// NewLogHandler returns a handler for records at level and above.
func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{level: level, program: &atomic.Pointer[tea.Program]{}}
}

// SetProgram binds the handler, and every handler derived from it, to
// program. Safe to call from any goroutine.
func (handler *LogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

func (handler *LogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logRecordMsg{summary: handler.summarize(record), level: record.Level})
	return nil
}

// summarize renders "message (key=value, ...)" on one line.
func (handler *LogHandler) summarize(record slog.Record) string {
	var parts []string
	for _, attr := range handler.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%s", handler.qualify(attr.Key), attr.Value))
		return true
	})
	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}

// qualify prefixes key with the handler's group path.
func (handler *LogHandler) qualify(key string) string {
	if handler.group == "" {
		return key
	}
	return handler.group + "." + key
}

// WithAttrs records attrs under the current group path, so a later
// WithGroup does not move them.
func (handler *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *handler
	derived.attrs = append([]slog.Attr(nil), handler.attrs...)
	for _, attr := range attrs {
		derived.attrs = append(derived.attrs, slog.Attr{Key: handler.qualify(attr.Key), Value: attr.Value})
	}
	return &derived
}

func (handler *LogHandler) WithGroup(name string) slog.Handler {
	derived := *handler
	derived.attrs = append([]slog.Attr(nil), handler.attrs...)
	if derived.group != "" {
		derived.group += "." + name
	} else {
		derived.group = name
	}
	return &derived
}

// Fanout sends each record to every member handler that accepts its
// level. The TUI uses it to mirror status-bar records into a log file.
type Fanout []slog.Handler

func (handlers Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers Fanout) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, handler := range handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (handlers Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(Fanout, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers Fanout) WithGroup(name string) slog.Handler {
	derived := make(Fanout, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}
