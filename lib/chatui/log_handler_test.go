// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLogHandlerDropsWithoutProgram(t *testing.T) {
	handler := NewLogHandler(slog.LevelWarn)
	logger := slog.New(handler)
	logger.Warn("nobody is listening", "room_id", "!a:b")
}

func TestLogHandlerLevel(t *testing.T) {
	handler := NewLogHandler(slog.LevelWarn)
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled on a warn handler")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled on a warn handler")
	}
}

func TestLogHandlerSummary(t *testing.T) {
	handler := NewLogHandler(slog.LevelWarn).
		WithAttrs([]slog.Attr{slog.String("component", "sync")}).
		WithGroup("retry").(*LogHandler)

	record := slog.NewRecord(time.Now(), slog.LevelWarn, "sync failed", 0)
	record.AddAttrs(slog.Int("attempt", 3))

	got := handler.summarize(record)
	want := "sync failed (component=sync, retry.attempt=3)"
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}

	bare := slog.NewRecord(time.Now(), slog.LevelWarn, "plain", 0)
	if got := NewLogHandler(slog.LevelWarn).summarize(bare); got != "plain" {
		t.Errorf("bare summary = %q", got)
	}
}

func TestFanout(t *testing.T) {
	var debugOutput, errorOutput bytes.Buffer
	fanout := Fanout{
		slog.NewJSONHandler(&debugOutput, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&errorOutput, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	logger := slog.New(fanout).With("user_id", "@alice:example.org")

	logger.Info("routine")
	logger.Error("broken")

	if !strings.Contains(debugOutput.String(), "routine") || !strings.Contains(debugOutput.String(), "broken") {
		t.Errorf("debug handler output: %s", debugOutput.String())
	}
	if strings.Contains(errorOutput.String(), "routine") || !strings.Contains(errorOutput.String(), "broken") {
		t.Errorf("error handler output: %s", errorOutput.String())
	}
	if !strings.Contains(errorOutput.String(), "@alice:example.org") {
		t.Error("WithAttrs did not reach member handlers")
	}
	if fanout.Enabled(context.Background(), slog.LevelDebug-4) {
		t.Error("fanout enabled below every member's level")
	}
}
