// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
	"github.com/bureau-foundation/roomchat/lib/chatui"
	"github.com/bureau-foundation/roomchat/voice"
)

type chatParams struct {
	cli.ConnectionFlags
	Room    string `json:"room"     flag:"room"     desc:"room to open (default: the configured default_room)"`
	LogFile string `json:"log_file" flag:"log-file" desc:"also write JSON log records to this file (default: the configured log.file)"`
}

func chatCommand() *cli.Command {
	var params chatParams
	return &cli.Command{
		Name:    "chat",
		Summary: "Open the interactive chat screen",
		Description: `Open the full-screen chat client.

If "roomchat login" saved a session, the chat screen opens directly;
otherwise a login form is shown and a successful login is saved.

Keys: Ctrl+S send, Ctrl+R start/stop recording, Ctrl+P play the clip,
Ctrl+V send the clip, Ctrl+X discard it, Ctrl+O switch rooms, Ctrl+L log
out, Ctrl+C quit.`,
		Usage:  "roomchat chat [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}

			// The terminal belongs to the chat screen: warnings go to
			// the status bar, and everything at the configured level
			// to the optional log file.
			tuiHandler := chatui.NewLogHandler(slog.LevelWarn)
			var handler slog.Handler = tuiHandler
			logFile := params.LogFile
			if logFile == "" {
				logFile = cfg.Log.File
			}
			if logFile != "" {
				fileHandler, closeFile, err := openFileLogHandler(logFile, cfg.Log.Level)
				if err != nil {
					return cli.Validation("cannot open log file %s: %w", logFile, err)
				}
				defer closeFile()
				handler = chatui.Fanout{tuiHandler, fileHandler}
			}
			logger := slog.New(handler).With("command", "chat")

			environment := &cli.Environment{
				Config:      cfg,
				Service:     chat.NewService(cli.ServiceConfig(cfg, logger)),
				SessionPath: params.SessionPath(),
				Logger:      logger,
			}
			defer environment.Close()

			roomID, err := environment.Room(params.Room)
			if err != nil {
				return err
			}

			username := ""
			if saved, err := cli.LoadSessionFrom(environment.SessionPath); err == nil {
				username = saved.UserID.Localpart()
				fmt.Fprintf(os.Stderr, "Resuming session for %s…\n", saved.UserID)
				if err := environment.Restore(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "Could not resume the saved session: %v\n", err)
					logger.Warn("saved session could not be resumed", "user_id", saved.UserID, "error", err)
				}
			} else if !errors.Is(err, cli.ErrNoSession) {
				logger.Warn("ignoring unreadable session file", "error", err)
			}

			recorder, err := voice.NewRecorder(voice.RecorderConfig{
				Source: voice.CommandSource{
					Command:    cfg.Voice.CaptureCommand,
					SampleRate: cfg.Voice.SampleRate,
				},
				SampleRate:  cfg.Voice.SampleRate,
				MaxDuration: cfg.Voice.MaxDuration.Std(),
				Logger:      logger,
			})
			if err != nil {
				return cli.Internal("%w", err)
			}

			model := chatui.NewModel(chatui.Config{
				Backend:      environment.Service,
				Room:         roomID,
				HistoryLimit: cfg.HistoryLimit,
				Username:     username,
				Recorder:     recorder,
				Player:       voice.Player{Command: cfg.Voice.PlaybackCommand, Logger: logger},
				OnLogin: func() {
					saveCurrentSession(environment)
				},
				OnLogout: func() {
					if err := cli.RemoveSession(environment.SessionPath); err != nil {
						logger.Warn("removing saved session failed", "error", err)
					}
				},
				Logger: logger,
			})
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			tuiHandler.SetProgram(program)

			_, err = program.Run()
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func saveCurrentSession(environment *cli.Environment) {
	session := environment.Service.Session()
	if session == nil {
		return
	}
	saved := cli.NewSavedSession(session.Credentials(), time.Now())
	if err := cli.SaveSessionTo(saved, environment.SessionPath); err != nil {
		environment.Logger.Warn("saving session failed", "path", environment.SessionPath, "error", err)
		return
	}
	environment.Logger.Info("session saved", "path", environment.SessionPath)
}

// openFileLogHandler opens path for appending JSON log records,
// creating its directory. The returned function closes the file.
func openFileLogHandler(path, level string) (slog.Handler, func(), error) {
	var minimum slog.Level
	if err := minimum.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: minimum})
	return handler, func() { file.Close() }, nil
}
