// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/lib/config"
	"github.com/bureau-foundation/roomchat/lib/ref"
)

// ConnectionFlags holds the flags shared by every command that talks
// to the homeserver: which config file to load and where the saved
// session lives. Embed it in a params struct.
type ConnectionFlags struct {
	ConfigPath  string
	SessionFile string
}

// AddFlags registers --config and --session-file.
func (f *ConnectionFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigPath, "config", "", "YAML or JSONC config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&f.SessionFile, "session-file", "", "saved login session (default: $"+SessionFileVariable+" or ~/.config/roomchat/session.cbor)")
}

// SessionPath returns --session-file, or SessionFilePath when unset.
func (f *ConnectionFlags) SessionPath() string {
	if f.SessionFile != "" {
		return f.SessionFile
	}
	return SessionFilePath()
}

// LoadConfig loads the config file and applies its log level to the
// command loggers.
func (f *ConnectionFlags) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, Validation("%w", err)
	}
	if err := SetLogLevel(cfg.Log.Level); err != nil {
		return nil, Validation("%w", err)
	}
	return cfg, nil
}

// ServiceConfig translates the file configuration into a
// chat.ServiceConfig.
func ServiceConfig(cfg *config.Config, logger *slog.Logger) chat.ServiceConfig {
	return chat.ServiceConfig{
		Server: cfg.Server(),
		Logger: logger,
		Auth: chat.AuthOptions{
			LoginType:         cfg.LoginType,
			DeviceDisplayName: cfg.DeviceDisplayName,
		},
		Session: chat.SessionConfig{
			InitialSyncLimit: cfg.InitialSyncLimit,
			StartTimeout:     cfg.StartTimeout.Std(),
			MaxMessageLength: cfg.MaxMessageLength,
			HistoryLimit:     cfg.HistoryLimit,
			MessageType:      ref.EventType(cfg.MessageType),
			DisableBackfill:  !cfg.TimelineSupport,
		},
	}
}

// Environment is a connected chat service plus the configuration it
// was built from.
type Environment struct {
	Config      *config.Config
	Service     *chat.Service
	SessionPath string
	Logger      *slog.Logger
}

// Connect loads the config and the saved session and starts the
// session. Returns a not-found error pointing at "roomchat login" when
// there is no saved session. Close the Environment when done.
func (f *ConnectionFlags) Connect(ctx context.Context, logger *slog.Logger) (*Environment, error) {
	cfg, err := f.LoadConfig()
	if err != nil {
		return nil, err
	}
	environment := &Environment{
		Config:      cfg,
		Service:     chat.NewService(ServiceConfig(cfg, logger)),
		SessionPath: f.SessionPath(),
		Logger:      logger,
	}
	if err := environment.Restore(ctx); err != nil {
		return nil, err
	}
	return environment, nil
}

// Restore resumes the Service from the saved session. A token the
// homeserver no longer accepts fails fast with a forbidden error.
func (e *Environment) Restore(ctx context.Context) error {
	saved, err := LoadSessionFrom(e.SessionPath)
	if errors.Is(err, ErrNoSession) {
		return NotFound("%w", err).WithHint(`Run "roomchat login <username>" first.`)
	}
	if err != nil {
		return Internal("%w", err)
	}
	credentials, err := saved.Credentials()
	if err != nil {
		return Internal("%w", err)
	}
	if err := e.Service.Resume(ctx, credentials); err != nil {
		if ctx.Err() != nil {
			return Transient("connecting as %s: %w", saved.UserID, ctx.Err())
		}
		if errors.Is(err, chat.ErrNotInitialized) {
			return Transient("%w", err).WithHint(`The saved session may have expired. Run "roomchat login <username>" again.`)
		}
		return Classify(err)
	}
	e.Logger.Debug("session restored", "user_id", saved.UserID, "server", saved.Homeserver)
	return nil
}

// Room resolves a --room flag: empty selects the configured default
// room.
func (e *Environment) Room(raw string) (ref.RoomID, error) {
	if raw == "" {
		raw = e.Config.DefaultRoom
	}
	if raw == "" {
		return ref.RoomID{}, Validation("no room given and no default_room configured")
	}
	roomID, err := chat.ParseRoomID(raw)
	if err != nil {
		return ref.RoomID{}, Classify(err)
	}
	return roomID, nil
}

// Close stops the session without logging out; the saved session
// stays valid.
func (e *Environment) Close() {
	e.Service.Disconnect()
}
