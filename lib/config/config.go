// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads roomchat configuration.
//
// Configuration comes from a single file named by the --config flag or
// the ROOMCHAT_CONFIG environment variable. Files ending in .json or
// .jsonc are parsed as JSON with comments; anything else is YAML.
// Without a file, Default applies: the client then talks to the
// built-in homeserver and room.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/roomchat/lib/ref"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "ROOMCHAT_CONFIG"

// Built-in deployment constants.
const (
	DefaultServer      = "https://messenger.b1.shuwantech.com"
	DefaultRoom        = "!IrwcvKRWDxTHuwwtMi:messenger.b1.shuwantech.com"
	DefaultLoginType   = "m.login.password"
	DefaultMessageType = "m.room.message"
)

// Config is the complete client configuration.
type Config struct {
	// DefaultServer is the homeserver base URL shown on the login form.
	DefaultServer string `yaml:"default_server" json:"default_server"`

	// FallbackServer is used when DefaultServer is empty.
	FallbackServer string `yaml:"fallback_server" json:"fallback_server"`

	// DefaultRoom is the room the chat view opens on after login.
	DefaultRoom string `yaml:"default_room" json:"default_room"`

	// InitialSyncLimit bounds the timeline events per room in the
	// first /sync. Default: 20.
	InitialSyncLimit int `yaml:"initial_sync_limit" json:"initial_sync_limit"`

	// LoginType is the login flow used with /login.
	LoginType string `yaml:"login_type" json:"login_type"`

	// MessageType is the event type treated as a chat message.
	MessageType string `yaml:"message_type" json:"message_type"`

	// MaxMessageLength is the longest accepted message body, in
	// characters. Default: 4096.
	MaxMessageLength int `yaml:"max_message_length" json:"max_message_length"`

	// TimelineSupport enables backward pagination when the synced
	// timeline is shorter than the requested history.
	TimelineSupport bool `yaml:"timeline_support" json:"timeline_support"`

	// StartTimeout bounds the wait for the first sync. Default: 30s.
	StartTimeout Duration `yaml:"start_timeout" json:"start_timeout"`

	// HistoryLimit is the number of messages loaded when a room view
	// opens. Default: 50.
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`

	// DeviceDisplayName is sent with /login for new devices.
	DeviceDisplayName string `yaml:"device_display_name" json:"device_display_name"`

	Voice VoiceConfig `yaml:"voice" json:"voice"`

	Log LogConfig `yaml:"log" json:"log"`
}

// VoiceConfig configures audio capture and playback.
type VoiceConfig struct {
	// CaptureCommand records raw signed 16-bit little-endian mono PCM
	// to stdout. "{rate}" is replaced with SampleRate.
	CaptureCommand []string `yaml:"capture_command" json:"capture_command"`

	// PlaybackCommand plays a WAV file named by "{file}".
	PlaybackCommand []string `yaml:"playback_command" json:"playback_command"`

	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// MaxDuration stops a recording automatically. Default: 5m.
	MaxDuration Duration `yaml:"max_duration" json:"max_duration"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// File receives JSON log records in addition to the terminal.
	// Empty disables file logging. ${HOME} and ${XDG_STATE_HOME} are
	// expanded.
	File string `yaml:"file" json:"file"`

	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level" json:"level"`
}

// Duration is a time.Duration that reads and writes Go duration
// strings ("30s", "5m") in both YAML and JSON.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(data []byte) error {
	parsed, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultServer:     DefaultServer,
		FallbackServer:    DefaultServer,
		DefaultRoom:       DefaultRoom,
		InitialSyncLimit:  20,
		LoginType:         DefaultLoginType,
		MessageType:       DefaultMessageType,
		MaxMessageLength:  4096,
		TimelineSupport:   true,
		StartTimeout:      Duration(30 * time.Second),
		HistoryLimit:      50,
		DeviceDisplayName: "roomchat",
		Voice: VoiceConfig{
			CaptureCommand:  []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", "{rate}"},
			PlaybackCommand: []string{"aplay", "-q", "{file}"},
			SampleRate:      16000,
			MaxDuration:     Duration(5 * time.Minute),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load returns the configuration from path, or from the file named by
// ROOMCHAT_CONFIG when path is empty. With neither, Default is
// returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads one config file over the defaults, expands path
// variables, and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Server returns the homeserver to use: DefaultServer, or
// FallbackServer when that is empty.
func (c *Config) Server() string {
	if c.DefaultServer != "" {
		return c.DefaultServer
	}
	return c.FallbackServer
}

// Room returns DefaultRoom parsed. Validate guarantees it parses for
// loaded configs.
func (c *Config) Room() (ref.RoomID, error) {
	return ref.ParseRoomID(c.DefaultRoom)
}

func (c *Config) expandVariables() {
	c.Log.File = expandVars(c.Log.File)
	for index, argument := range c.Voice.CaptureCommand {
		c.Voice.CaptureCommand[index] = expandVars(argument)
	}
	for index, argument := range c.Voice.PlaybackCommand {
		c.Voice.PlaybackCommand[index] = expandVars(argument)
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if parts[1] == "XDG_STATE_HOME" {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, ".local", "state")
			}
		}
		return parts[2]
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	server := c.Server()
	if server == "" {
		errs = append(errs, fmt.Errorf("default_server or fallback_server is required"))
	} else if err := validateServerURL(server); err != nil {
		errs = append(errs, err)
	}
	if c.DefaultRoom != "" {
		if _, err := ref.ParseRoomID(c.DefaultRoom); err != nil {
			errs = append(errs, fmt.Errorf("default_room: %w", err))
		}
	}
	if c.InitialSyncLimit <= 0 {
		errs = append(errs, fmt.Errorf("initial_sync_limit must be positive, got %d", c.InitialSyncLimit))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("max_message_length must be positive, got %d", c.MaxMessageLength))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit))
	}
	if c.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start_timeout must be positive"))
	}
	if c.LoginType == "" {
		errs = append(errs, fmt.Errorf("login_type is required"))
	}
	if c.MessageType == "" {
		errs = append(errs, fmt.Errorf("message_type is required"))
	}
	if c.Voice.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("voice.sample_rate must be positive, got %d", c.Voice.SampleRate))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

func validateServerURL(server string) error {
	parsed, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("server %q: %w", server, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server %q: scheme must be http or https", server)
	}
	if parsed.Host == "" {
		return fmt.Errorf("server %q: missing host", server)
	}
	return nil
}
