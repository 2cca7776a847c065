// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bureau-foundation/roomchat/lib/clock"
	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/messaging"
)

// State is the lifecycle state of a SessionClient.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session defaults.
const (
	DefaultInitialSyncLimit = 20
	DefaultStartTimeout     = 30 * time.Second
	DefaultMaxMessageLength = 4096
	DefaultHistoryLimit     = 50
)

// SessionConfig configures a SessionClient. Zero fields take the
// defaults above.
type SessionConfig struct {
	Logger *slog.Logger
	Clock  clock.Clock

	// InitialSyncLimit bounds the timeline events per room in the
	// first sync.
	InitialSyncLimit int

	// StartTimeout bounds Start's wait for the first sync, measured
	// on Clock.
	StartTimeout time.Duration

	// MaxMessageLength is the longest text accepted by SendMessage,
	// in characters.
	MaxMessageLength int

	// HistoryLimit is used by HistoricalMessages when the caller
	// passes limit <= 0.
	HistoryLimit int

	// MessageType is the event type treated as a chat message.
	// Default: m.room.message.
	MessageType ref.EventType

	// DisableBackfill skips the /messages request when the synced
	// timeline holds fewer messages than requested.
	DisableBackfill bool
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.InitialSyncLimit <= 0 {
		c.InitialSyncLimit = DefaultInitialSyncLimit
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MessageType == "" {
		c.MessageType = ref.EventTypeRoomMessage
	}
	return c
}

// SessionClient drives one logged-in session: it starts the sync loop,
// sends messages, loads history, and fans live messages out to
// subscribers.
//
// Operations other than Start, Stop, and Subscribe require the Running
// state and fail with ErrNotInitialized otherwise.
type SessionClient struct {
	credentials *Credentials
	protocol    Protocol
	config      SessionConfig
	logger      *slog.Logger

	// startMu serializes Start so a concurrent caller observes the
	// outcome of the first.
	startMu sync.Mutex

	mu    sync.Mutex
	state State

	handlers   registry[Message]
	listenerID messaging.ListenerID
}

// NewSessionClient wraps protocol for the session described by
// credentials. The client takes ownership of both; Close releases
// them.
func NewSessionClient(credentials *Credentials, protocol Protocol, config SessionConfig) *SessionClient {
	config = config.withDefaults()
	client := &SessionClient{
		credentials: credentials,
		protocol:    protocol,
		config:      config,
		logger:      config.Logger.With("user_id", credentials.UserID),
	}
	client.handlers.onFirst = client.attachListener
	client.handlers.onEmpty = client.detachListener
	return client
}

// State returns the current lifecycle state.
func (c *SessionClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the sync loop and waits for the first sync. It is a
// no-op while Running.
//
// If the first sync does not complete within the start timeout the
// loop is stopped and Start returns ErrInitializationTimeout. A loop
// that ends before its first sync (a revoked token, or a request the
// server rejects outright) fails Start with ErrNotInitialized, as does
// a Stop that arrives while Start is waiting. Either way the client
// ends up Stopped and may be started again.
func (c *SessionClient) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStarting
	c.mu.Unlock()

	// The deadline timer is created before the loop starts so that a
	// fake clock sees it as soon as Start is running.
	deadline := c.config.Clock.NewTimer(c.config.StartTimeout)
	defer deadline.Stop()

	if err := c.protocol.Start(ctx, messaging.StartOptions{InitialSyncLimit: c.config.InitialSyncLimit}); err != nil {
		c.logger.Error("starting sync loop failed", "error", err)
		c.setState(StateStopped)
		return ErrNotInitialized
	}
	if c.stoppedDuringStart() {
		return ErrNotInitialized
	}

	select {
	case <-c.protocol.Prepared():
		c.mu.Lock()
		if c.state != StateStarting {
			c.mu.Unlock()
			c.protocol.Stop()
			return ErrNotInitialized
		}
		c.state = StateRunning
		c.mu.Unlock()
		c.logger.Info("session running", "homeserver", c.protocol.Homeserver())
		return nil

	case <-c.protocol.Done():
		c.logger.Error("sync loop ended before the first sync", "error", c.protocol.Err())
		c.protocol.Stop()
		c.setState(StateStopped)
		return ErrNotInitialized

	case <-deadline.C:
		c.logger.Error("timed out waiting for the first sync", "timeout", c.config.StartTimeout)
		c.protocol.Stop()
		c.setState(StateStopped)
		return ErrInitializationTimeout

	case <-ctx.Done():
		c.protocol.Stop()
		c.setState(StateStopped)
		return ctx.Err()
	}
}

// stoppedDuringStart reports whether Stop ran while the loop was being
// launched. Stop found nothing to halt then, so the loop is stopped
// here.
func (c *SessionClient) stoppedDuringStart() bool {
	c.mu.Lock()
	stopped := c.state == StateStopped
	c.mu.Unlock()
	if stopped {
		c.logger.Info("session stopped while starting")
		c.protocol.Stop()
	}
	return stopped
}

func (c *SessionClient) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// requireRunning returns ErrNotInitialized unless the client is
// Running.
func (c *SessionClient) requireRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return ErrNotInitialized
	}
	return nil
}

// Stop halts the sync loop, drops all subscribers, and moves to
// Stopped. Idempotent; valid in any state.
func (c *SessionClient) Stop() {
	c.mu.Lock()
	wasActive := c.state == StateRunning || c.state == StateStarting
	c.state = StateStopped
	c.mu.Unlock()

	if wasActive {
		c.protocol.Stop()
	}
	c.handlers.clear()
	if wasActive {
		c.logger.Info("session stopped")
	}
}

// Close stops the client and releases the protocol client and the
// credentials. Idempotent.
func (c *SessionClient) Close() error {
	c.Stop()
	protocolErr := c.protocol.Close()
	credentialsErr := c.credentials.Close()
	if protocolErr != nil {
		return protocolErr
	}
	return credentialsErr
}

// Err returns the error that ended the sync loop, if it ended on its
// own (for example, the access token was revoked).
func (c *SessionClient) Err() error { return c.protocol.Err() }

// Done returns a channel closed when the current sync loop exits.
func (c *SessionClient) Done() <-chan struct{} { return c.protocol.Done() }

// UserID returns the logged-in user.
func (c *SessionClient) UserID() ref.UserID { return c.credentials.UserID }

// Credentials returns the session credentials. The SessionClient
// retains ownership.
func (c *SessionClient) Credentials() *Credentials { return c.credentials }

// Homeserver returns the homeserver base URL.
func (c *SessionClient) Homeserver() string { return c.protocol.Homeserver() }

// SendMessage sends text to roomID as an m.text message. Text longer
// than the configured maximum is rejected with ErrMessageTooLong
// before anything is sent.
func (c *SessionClient) SendMessage(ctx context.Context, roomID ref.RoomID, text string) (ref.EventID, error) {
	if err := c.requireRunning(); err != nil {
		return ref.EventID{}, err
	}
	if length := utf8.RuneCountInString(text); length > c.config.MaxMessageLength {
		return ref.EventID{}, errorf(KindMessageTooLong,
			"Message too long: %d characters (maximum %d)", length, c.config.MaxMessageLength)
	}

	eventID, err := c.protocol.SendEvent(ctx, roomID, c.config.MessageType, messaging.NewTextMessage(text))
	if err != nil {
		c.logger.Warn("sending message failed", "room_id", roomID, "error", err)
		return ref.EventID{}, ErrMessageSendFailed
	}
	c.logger.Debug("message sent", "room_id", roomID, "event_id", eventID)
	return eventID, nil
}

// Subscribe registers callback for every live message in every room.
// The protocol listener is attached when the first subscriber
// arrives. Callbacks run on the sync goroutine in delivery order.
func (c *SessionClient) Subscribe(callback func(Message)) Subscription {
	return c.handlers.add(callback)
}

// Unsubscribe removes a subscriber. The protocol listener is detached
// when the last one leaves. Reports whether the subscription existed.
func (c *SessionClient) Unsubscribe(subscription Subscription) bool {
	return c.handlers.remove(subscription)
}

// SubscriberCount returns the number of live-message subscribers.
func (c *SessionClient) SubscriberCount() int { return c.handlers.count() }

func (c *SessionClient) attachListener() {
	c.listenerID = c.protocol.AddTimelineListener(c.handleEvent)
	c.logger.Debug("timeline listener attached")
}

func (c *SessionClient) detachListener() {
	c.protocol.RemoveTimelineListener(c.listenerID)
	c.listenerID = 0
	c.logger.Debug("timeline listener detached")
}

func (c *SessionClient) handleEvent(event messaging.Event) {
	if event.Type != c.config.MessageType {
		return
	}
	c.handlers.broadcast(messageFromEvent(event))
}

// Rooms lists the joined rooms known to the sync loop, ordered by
// display name.
func (c *SessionClient) Rooms() ([]Room, error) {
	if err := c.requireRunning(); err != nil {
		return nil, err
	}
	states := c.protocol.Rooms()
	rooms := make([]Room, len(states))
	for index, state := range states {
		rooms[index] = Room{ID: state.ID, Name: state.Name}
	}
	return rooms, nil
}

// RoomName returns a room's name: from the synced state when the room
// is joined, otherwise from its m.room.name state event. A room with
// no name yields "". Failures are logged and reported as
// ErrInvalidRoom.
func (c *SessionClient) RoomName(ctx context.Context, roomID ref.RoomID) (string, error) {
	if err := c.requireRunning(); err != nil {
		return "", err
	}
	if state, ok := c.protocol.Room(roomID); ok {
		return state.Name, nil
	}
	name, err := c.protocol.RoomName(ctx, roomID)
	if err != nil {
		c.logger.Warn("fetching room name failed", "room_id", roomID, "error", err)
		return "", ErrInvalidRoom
	}
	return name, nil
}

// FetchProfile fetches a user's display name and avatar reference.
func (c *SessionClient) FetchProfile(ctx context.Context, userID ref.UserID) (Profile, error) {
	if err := c.requireRunning(); err != nil {
		return Profile{}, err
	}
	response, err := c.protocol.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{AvatarURL: response.AvatarURL, DisplayName: response.DisplayName}, nil
}

// DownloadMedia fetches the content behind an mxc:// URI.
func (c *SessionClient) DownloadMedia(ctx context.Context, contentURI string) ([]byte, string, error) {
	if err := c.requireRunning(); err != nil {
		return nil, "", err
	}
	return c.protocol.DownloadMedia(ctx, contentURI)
}

// Logout invalidates the access token on the homeserver. The client
// is not stopped; callers follow up with Close.
func (c *SessionClient) Logout(ctx context.Context) error {
	return c.protocol.Logout(ctx)
}
