// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/messaging"
)

// Protocol is the Matrix client a SessionClient drives: a sync loop
// with materialized room timelines plus the request primitives the
// chat features need. *messaging.SyncClient implements it; tests use
// chattest.Protocol.
type Protocol interface {
	Start(ctx context.Context, options messaging.StartOptions) error
	Prepared() <-chan struct{}
	Done() <-chan struct{}
	Err() error
	Stop()
	Close() error

	UserID() ref.UserID
	Homeserver() string
	Room(roomID ref.RoomID) (messaging.RoomState, bool)
	Rooms() []messaging.RoomState
	RoomName(ctx context.Context, roomID ref.RoomID) (string, error)
	WhoAmI(ctx context.Context) (ref.UserID, error)

	AddTimelineListener(callback func(messaging.Event)) messaging.ListenerID
	RemoveTimelineListener(id messaging.ListenerID) bool

	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error)
	RoomMessages(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error)
	UploadMedia(ctx context.Context, upload messaging.MediaUpload) (string, error)
	DownloadMedia(ctx context.Context, contentURI string) ([]byte, string, error)
	GetProfile(ctx context.Context, userID ref.UserID) (*messaging.ProfileResponse, error)
	Logout(ctx context.Context) error
}

var _ Protocol = (*messaging.SyncClient)(nil)

// ProtocolFactory builds the Protocol for a freshly authenticated
// session.
type ProtocolFactory func(credentials *Credentials) (Protocol, error)

// MatrixOptions configures MatrixProtocol.
type MatrixOptions struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// MatrixProtocol returns a ProtocolFactory that resumes the session
// over HTTP and syncs every joined room. The sync client holds its own
// copy of the access token; closing it does not affect the
// Credentials.
func MatrixProtocol(options MatrixOptions) ProtocolFactory {
	return func(credentials *Credentials) (Protocol, error) {
		client, err := messaging.NewClient(messaging.ClientConfig{
			HomeserverURL: credentials.Server,
			HTTPClient:    options.HTTPClient,
			Logger:        options.Logger,
		})
		if err != nil {
			return nil, err
		}
		session, err := client.SessionFromToken(credentials.UserID, credentials.DeviceID, credentials.AccessToken.String())
		if err != nil {
			return nil, fmt.Errorf("resuming session for %s: %w", credentials.UserID, err)
		}
		return messaging.NewSyncClient(session, messaging.SyncConfig{Logger: options.Logger}), nil
	}
}
