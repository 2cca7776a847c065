// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/secret"
	"github.com/bureau-foundation/roomchat/messaging"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Server is the homeserver used when Login is given none.
	Server string

	Logger *slog.Logger

	// Auth configures Login's password exchange. Auth.Logger defaults
	// to Logger.
	Auth AuthOptions

	// Session configures each SessionClient. Session.Logger defaults
	// to Logger.
	Session SessionConfig

	// NewProtocol builds the sync client for each login. Default:
	// MatrixProtocol over http.DefaultClient.
	NewProtocol ProtocolFactory
}

// Service owns the current session. It holds zero or one running
// SessionClient; logging in again replaces it.
//
// Live messages reach Service subscribers through one internal
// handler registered with the SessionClient while the Service has at
// least one subscriber, so subscriber churn here does not attach and
// detach the protocol listener.
type Service struct {
	config ServiceConfig
	logger *slog.Logger

	mu       sync.Mutex
	client   *SessionClient
	profiles *ProfileDirectory
	internal Subscription
	// relaying mirrors "subscribers is non-empty" under mu, so
	// Connect need not take the registry lock.
	relaying bool

	subscribers registry[Message]
}

// NewService returns a logged-out Service.
func NewService(config ServiceConfig) *Service {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Auth.Logger == nil {
		config.Auth.Logger = config.Logger
	}
	if config.Session.Logger == nil {
		config.Session.Logger = config.Logger
	}
	if config.NewProtocol == nil {
		config.NewProtocol = MatrixProtocol(MatrixOptions{Logger: config.Logger})
	}
	service := &Service{config: config, logger: config.Logger}
	service.profiles = service.newProfileDirectory()
	service.subscribers.onFirst = service.attachInternal
	service.subscribers.onEmpty = service.detachInternal
	return service
}

// Server returns the default homeserver URL.
func (s *Service) Server() string { return s.config.Server }

// Login authenticates and connects a new session. An empty server
// uses the configured default. On success any previous session is
// stopped and its credentials released; on failure the previous
// session, if any, is left untouched.
func (s *Service) Login(ctx context.Context, server, username string, password *secret.Buffer) error {
	if server == "" {
		server = s.config.Server
	}
	credentials, err := Authenticate(ctx, server, username, password, s.config.Auth)
	if err != nil {
		return err
	}
	return s.Connect(ctx, credentials)
}

// Connect starts a session from freshly issued credentials. The
// Service takes ownership of credentials, closing them if the session
// cannot start.
func (s *Service) Connect(ctx context.Context, credentials *Credentials) error {
	return s.connect(ctx, credentials, false)
}

// Resume starts a session from stored credentials, such as a saved
// access token. It first asks the homeserver who the token belongs
// to: a rejected token, or one that now names a different user, fails
// with ErrSessionExpired before the sync loop starts.
func (s *Service) Resume(ctx context.Context, credentials *Credentials) error {
	return s.connect(ctx, credentials, true)
}

func (s *Service) connect(ctx context.Context, credentials *Credentials, verify bool) error {
	protocol, err := s.config.NewProtocol(credentials)
	if err != nil {
		s.logger.Error("creating protocol client failed", "user_id", credentials.UserID, "error", err)
		credentials.Close()
		return ErrNotInitialized
	}
	if verify {
		if err := s.verifyToken(ctx, protocol, credentials.UserID); err != nil {
			protocol.Close()
			credentials.Close()
			return err
		}
	}
	client := NewSessionClient(credentials, protocol, s.config.Session)
	if err := client.Start(ctx); err != nil {
		client.Close()
		return err
	}

	s.mu.Lock()
	previous := s.client
	if previous != nil && s.internal != 0 {
		previous.Unsubscribe(s.internal)
		s.internal = 0
	}
	s.client = client
	s.profiles = s.newProfileDirectory()
	if s.relaying {
		s.internal = client.Subscribe(s.subscribers.broadcast)
	}
	s.mu.Unlock()

	if previous != nil {
		s.logger.Info("replacing previous session", "previous_user_id", previous.UserID())
		previous.Close()
	}
	s.logger.Info("logged in", "user_id", credentials.UserID, "server", credentials.Server)
	return nil
}

// verifyToken checks a stored token with whoami. Errors other than a
// rejected token are logged and left for Start to report.
func (s *Service) verifyToken(ctx context.Context, protocol Protocol, userID ref.UserID) error {
	owner, err := protocol.WhoAmI(ctx)
	switch {
	case messaging.IsAuthError(err):
		s.logger.Warn("stored access token rejected", "user_id", userID, "error", err)
		return ErrSessionExpired
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("access token check failed", "user_id", userID, "error", err)
		return nil
	case owner != userID:
		s.logger.Error("stored access token belongs to another user", "user_id", userID, "token_user_id", owner)
		return ErrSessionExpired
	}
	return nil
}

func (s *Service) newProfileDirectory() *ProfileDirectory {
	return NewProfileDirectory(s.FetchProfile, s.logger)
}

// current returns the active client or ErrNotLoggedIn.
func (s *Service) current() (*SessionClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotLoggedIn
	}
	return s.client, nil
}

// LoggedIn reports whether a session is active.
func (s *Service) LoggedIn() bool {
	_, err := s.current()
	return err == nil
}

// Session returns the active SessionClient, or nil.
func (s *Service) Session() *SessionClient {
	client, _ := s.current()
	return client
}

// Profiles returns the current session's profile directory. Logging
// in replaces it with an empty one.
func (s *Service) Profiles() *ProfileDirectory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles
}

// SendMessage sends a text message. See SessionClient.SendMessage.
func (s *Service) SendMessage(ctx context.Context, roomID ref.RoomID, text string) (ref.EventID, error) {
	client, err := s.current()
	if err != nil {
		return ref.EventID{}, err
	}
	return client.SendMessage(ctx, roomID, text)
}

// SendVoiceMessage uploads and sends a voice clip.
func (s *Service) SendVoiceMessage(ctx context.Context, roomID ref.RoomID, clip AudioClip) (ref.EventID, error) {
	client, err := s.current()
	if err != nil {
		return ref.EventID{}, err
	}
	return client.SendVoiceMessage(ctx, roomID, clip)
}

// HistoricalMessages loads a room's recent history, oldest first.
func (s *Service) HistoricalMessages(ctx context.Context, roomID ref.RoomID, limit int) ([]Message, error) {
	client, err := s.current()
	if err != nil {
		return nil, err
	}
	return client.HistoricalMessages(ctx, roomID, limit)
}

// Rooms lists the joined rooms.
func (s *Service) Rooms() ([]Room, error) {
	client, err := s.current()
	if err != nil {
		return nil, err
	}
	return client.Rooms()
}

// UserID returns the logged-in user.
func (s *Service) UserID() (ref.UserID, error) {
	client, err := s.current()
	if err != nil {
		return ref.UserID{}, err
	}
	return client.UserID(), nil
}

// Homeserver returns the homeserver of the active session.
func (s *Service) Homeserver() (string, error) {
	client, err := s.current()
	if err != nil {
		return "", err
	}
	return client.Homeserver(), nil
}

// RoomName returns a room's name. See SessionClient.RoomName.
func (s *Service) RoomName(ctx context.Context, roomID ref.RoomID) (string, error) {
	client, err := s.current()
	if err != nil {
		return "", err
	}
	return client.RoomName(ctx, roomID)
}

// FetchProfile fetches one user's profile, bypassing the directory.
func (s *Service) FetchProfile(ctx context.Context, userID ref.UserID) (Profile, error) {
	client, err := s.current()
	if err != nil {
		return Profile{}, err
	}
	return client.FetchProfile(ctx, userID)
}

// DownloadMedia fetches the content behind an mxc:// URI.
func (s *Service) DownloadMedia(ctx context.Context, contentURI string) ([]byte, string, error) {
	client, err := s.current()
	if err != nil {
		return nil, "", err
	}
	return client.DownloadMedia(ctx, contentURI)
}

// Subscribe registers callback for live messages in every room.
// Subscriptions survive a re-login: they follow the new session.
func (s *Service) Subscribe(callback func(Message)) Subscription {
	return s.subscribers.add(callback)
}

// Unsubscribe removes a subscriber.
func (s *Service) Unsubscribe(subscription Subscription) bool {
	return s.subscribers.remove(subscription)
}

// attachInternal and detachInternal run under the subscriber registry
// lock on the 0 → 1 and 1 → 0 transitions.
func (s *Service) attachInternal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relaying = true
	if s.client != nil && s.internal == 0 {
		s.internal = s.client.Subscribe(s.subscribers.broadcast)
	}
}

func (s *Service) detachInternal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relaying = false
	if s.client != nil && s.internal != 0 {
		s.client.Unsubscribe(s.internal)
	}
	s.internal = 0
}

// Disconnect stops the active session, releases its credentials, and
// drops every subscriber. Safe when logged out.
func (s *Service) Disconnect() {
	s.subscribers.clear()

	s.mu.Lock()
	client := s.client
	s.client = nil
	s.internal = 0
	s.profiles = s.newProfileDirectory()
	s.mu.Unlock()

	if client != nil {
		client.Close()
		s.logger.Info("disconnected", "user_id", client.UserID())
	}
}

// Logout invalidates the access token on the homeserver and then
// disconnects. A failed server-side logout is logged; the local
// session ends regardless.
func (s *Service) Logout(ctx context.Context) error {
	client, err := s.current()
	if err != nil {
		return err
	}
	if err := client.Logout(ctx); err != nil {
		s.logger.Warn("server-side logout failed", "user_id", client.UserID(), "error", err)
	}
	s.Disconnect()
	return nil
}
