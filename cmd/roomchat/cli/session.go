// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/lib/codec"
	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/secret"
)

// SessionFileVariable overrides the saved session path.
const SessionFileVariable = "ROOMCHAT_SESSION_FILE"

// SavedSession is a login persisted between runs, so that "roomchat
// login" once is enough for later commands and for the chat screen to
// open without the login form. Stored as CBOR with mode 0600.
type SavedSession struct {
	UserID      ref.UserID `json:"user_id"`
	DeviceID    string     `json:"device_id"`
	Homeserver  string     `json:"homeserver"`
	AccessToken string     `json:"access_token"`
	SavedAt     time.Time  `json:"saved_at"`
}

// ErrNoSession is returned by LoadSessionFrom when no session file
// exists.
var ErrNoSession = errors.New("no saved session")

// SessionFilePath returns the path of the saved session. Checks
// ROOMCHAT_SESSION_FILE first, then $XDG_CONFIG_HOME/roomchat, then
// ~/.config/roomchat.
func SessionFilePath() string {
	if path := os.Getenv(SessionFileVariable); path != "" {
		return path
	}
	configDirectory := os.Getenv("XDG_CONFIG_HOME")
	if configDirectory == "" {
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "roomchat-session.cbor")
		}
		configDirectory = filepath.Join(homeDirectory, ".config")
	}
	return filepath.Join(configDirectory, "roomchat", "session.cbor")
}

// NewSavedSession captures the credentials of a running session.
func NewSavedSession(credentials *chat.Credentials, now time.Time) *SavedSession {
	return &SavedSession{
		UserID:      credentials.UserID,
		DeviceID:    credentials.DeviceID,
		Homeserver:  credentials.Server,
		AccessToken: credentials.AccessToken.String(),
		SavedAt:     now.UTC(),
	}
}

// Credentials returns fresh credentials for chat.Service.Resume. The
// caller owns the result.
func (s *SavedSession) Credentials() (*chat.Credentials, error) {
	token, err := secret.NewFromString(s.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("loading access token: %w", err)
	}
	return &chat.Credentials{
		AccessToken: token,
		UserID:      s.UserID,
		DeviceID:    s.DeviceID,
		Server:      s.Homeserver,
	}, nil
}

// LoadSessionFrom reads a saved session. A missing file is
// ErrNoSession.
func LoadSessionFrom(path string) (*SavedSession, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNoSession, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file %s: %w", path, err)
	}
	defer secret.Zero(data)

	var session SavedSession
	if err := codec.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parsing session file %s: %w", path, err)
	}
	if session.UserID.IsZero() {
		return nil, fmt.Errorf("session file %s has no user_id", path)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("session file %s has no access_token", path)
	}
	if session.Homeserver == "" {
		return nil, fmt.Errorf("session file %s has no homeserver", path)
	}
	return &session, nil
}

// SaveSessionTo writes a session with mode 0600, creating the parent
// directory with mode 0700. The file is replaced atomically.
func SaveSessionTo(session *SavedSession, path string) error {
	data, err := codec.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	defer secret.Zero(data)

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("creating session directory %s: %w", directory, err)
	}
	temporary, err := os.CreateTemp(directory, ".session-*")
	if err != nil {
		return fmt.Errorf("creating session file: %w", err)
	}
	defer os.Remove(temporary.Name())
	if err := temporary.Chmod(0o600); err != nil {
		temporary.Close()
		return fmt.Errorf("setting session file mode: %w", err)
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("writing session file %s: %w", path, err)
	}
	return nil
}

// RemoveSession deletes a saved session. A missing file is not an
// error.
func RemoveSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session file %s: %w", path, err)
	}
	return nil
}
