// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/secret"
	"github.com/bureau-foundation/roomchat/messaging"
)

// Credentials is the result of a successful login.
//
// AccessToken is owned by the Credentials: Close zeroes it. Server is
// the homeserver base URL the login was performed against.
type Credentials struct {
	AccessToken *secret.Buffer
	UserID      ref.UserID
	DeviceID    string
	Server      string
}

// Close zeroes the access token. Safe on nil and idempotent.
func (c *Credentials) Close() error {
	if c == nil {
		return nil
	}
	return c.AccessToken.Close()
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Logger receives the cause of login failures. If nil,
	// slog.Default() is used.
	Logger *slog.Logger

	// HTTPClient is passed to the transient messaging.Client.
	HTTPClient *http.Client

	// LoginType is the /login flow. Default: "m.login.password".
	LoginType string

	// DeviceDisplayName names the device created by the login.
	DeviceDisplayName string
}

// FormatAccountID qualifies a login-form username against the
// homeserver URL. See ref.FormatAccountID; a server URL without a
// hostname is ErrInvalidServerURL.
func FormatAccountID(username, server string) (string, error) {
	accountID, err := ref.FormatAccountID(username, server)
	if errors.Is(err, ref.ErrInvalidServerURL) {
		return "", ErrInvalidServerURL
	}
	if err != nil {
		return "", err
	}
	return accountID, nil
}

// Authenticate logs in to server with a username and password and
// returns the new session's credentials. The password buffer is read,
// not closed.
//
// Every failure (malformed server URL, network error, rejected
// password) is logged with its cause and returned as ErrLoginFailed.
func Authenticate(ctx context.Context, server, username string, password *secret.Buffer, options AuthOptions) (*Credentials, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL:     server,
		HTTPClient:        options.HTTPClient,
		Logger:            logger,
		LoginType:         options.LoginType,
		DeviceDisplayName: options.DeviceDisplayName,
	})
	if err != nil {
		logger.Warn("login failed: bad homeserver URL", "server", server, "error", err)
		return nil, ErrLoginFailed
	}

	accountID, err := ref.FormatAccountID(username, server)
	if err != nil {
		logger.Warn("login failed: cannot qualify username", "server", server, "error", err)
		return nil, ErrLoginFailed
	}

	session, err := client.Login(ctx, accountID, password)
	if err != nil {
		logger.Warn("login failed", "server", server, "account", accountID, "error", err)
		return nil, ErrLoginFailed
	}

	// The session was only needed for the exchange. Its token buffer
	// moves to the Credentials, which now own it.
	return &Credentials{
		AccessToken: session.AccessToken(),
		UserID:      session.UserID(),
		DeviceID:    session.DeviceID(),
		Server:      client.BaseURL(),
	}, nil
}
