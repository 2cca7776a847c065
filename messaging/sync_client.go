// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/roomchat/lib/ref"
)

const (
	// longPollTimeout is the server-side hold for /sync in
	// milliseconds once the client is prepared.
	longPollTimeout = 30000

	// retryTimeout is the hold used for the first /sync after an
	// error, so that a recovered server answers quickly.
	retryTimeout = 1000
)

// ErrAlreadyRunning is returned by Start while the sync loop runs.
var ErrAlreadyRunning = errors.New("messaging: sync loop already running")

// SyncConfig configures a SyncClient.
type SyncConfig struct {
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger

	// RetryRate and RetryBurst pace /sync retries after transient
	// failures. Defaults: one retry per two seconds, burst of three.
	RetryRate  rate.Limit
	RetryBurst int

	// Rooms restricts syncing to these rooms. Empty syncs all joined
	// rooms.
	Rooms []ref.RoomID
}

// StartOptions configures one run of the sync loop.
type StartOptions struct {
	// InitialSyncLimit bounds timeline events per room in every /sync
	// response, and so the history materialized by the first one.
	InitialSyncLimit int
}

// RoomState is a snapshot of one joined room.
type RoomState struct {
	ID   ref.RoomID
	Name string
	// Timeline holds the materialized events, oldest first.
	Timeline []Event
	// PaginationToken is the /messages "from" token for events older
	// than Timeline[0]. Empty when the server reported none.
	PaginationToken string
}

// DisplayName returns Name, or the room ID when the room has no name.
func (r RoomState) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID.String()
}

// ListenerID identifies a registered timeline listener.
type ListenerID uint64

type timelineListener struct {
	id       ListenerID
	callback func(Event)
}

type roomTimeline struct {
	name            string
	events          []Event
	paginationToken string
}

// SyncClient runs the /sync loop for a Session and materializes room
// timelines from it.
//
// Listeners are called on the sync goroutine, one event at a time, in
// the order the homeserver delivered the events. They must not block
// for long and must not call Stop.
type SyncClient struct {
	session *Session
	logger  *slog.Logger
	limiter *rate.Limiter
	rooms   []string

	mu           sync.Mutex
	timelines    map[ref.RoomID]*roomTimeline
	nextBatch    string
	listeners    []timelineListener
	nextListener ListenerID
	cancel       context.CancelFunc
	prepared     chan struct{}
	done         chan struct{}
	isPrepared   bool
	err          error
}

// NewSyncClient returns a stopped SyncClient for session.
func NewSyncClient(session *Session, config SyncConfig) *SyncClient {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryRate := config.RetryRate
	if retryRate == 0 {
		retryRate = rate.Every(2 * time.Second)
	}
	retryBurst := config.RetryBurst
	if retryBurst <= 0 {
		retryBurst = 3
	}
	rooms := make([]string, len(config.Rooms))
	for index, roomID := range config.Rooms {
		rooms[index] = roomID.String()
	}

	closed := make(chan struct{})
	close(closed)
	return &SyncClient{
		session:   session,
		logger:    logger,
		limiter:   rate.NewLimiter(retryRate, retryBurst),
		rooms:     rooms,
		timelines: make(map[ref.RoomID]*roomTimeline),
		prepared:  make(chan struct{}),
		done:      closed,
	}
}

// Start launches the sync loop and returns immediately. Prepared is
// closed after the first successful /sync; Done is closed when the
// loop exits, with Err reporting why. ctx scopes only values: the loop
// runs until Stop or an authentication failure.
//
// A SyncClient can be restarted after Stop. It resumes from the last
// sync position and keeps its materialized timelines.
func (c *SyncClient) Start(ctx context.Context, options StartOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return ErrAlreadyRunning
	}

	loopContext, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.prepared = make(chan struct{})
	c.isPrepared = false
	c.err = nil

	filter := SyncFilter{TimelineLimit: options.InitialSyncLimit, Rooms: c.rooms}.inline()
	go c.run(loopContext, filter, c.prepared, c.done)

	c.logger.Debug("sync loop started",
		"user_id", c.session.UserID(),
		"initial_sync_limit", options.InitialSyncLimit,
	)
	return nil
}

// Prepared returns a channel closed after the current run's first
// successful /sync.
func (c *SyncClient) Prepared() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prepared
}

// Done returns a channel closed when the current run's loop exits.
func (c *SyncClient) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the error that ended the loop, or nil if it was stopped
// or is still running.
func (c *SyncClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Stop halts the sync loop and waits for it to exit. Idempotent.
func (c *SyncClient) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Debug("sync loop stopped", "user_id", c.session.UserID())
}

// Close stops the loop and zeroes the session's access token.
func (c *SyncClient) Close() error {
	c.Stop()
	return c.session.Close()
}

func (c *SyncClient) run(ctx context.Context, filter string, prepared, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		c.mu.Lock()
		since := c.nextBatch
		isPrepared := c.isPrepared
		c.mu.Unlock()

		timeout := longPollTimeout
		switch {
		case failures > 0:
			timeout = retryTimeout
		case !isPrepared:
			timeout = 0
		}

		response, err := c.session.Sync(ctx, SyncOptions{
			Since:      since,
			SetTimeout: true,
			Timeout:    timeout,
			Filter:     filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if IsAuthError(err) {
				c.logger.Error("sync stopped: access token rejected", "user_id", c.session.UserID(), "error", err)
				c.fail(err)
				return
			}
			if !IsRetryable(err) {
				c.logger.Error("sync stopped: permanent failure", "user_id", c.session.UserID(), "error", err)
				c.fail(err)
				return
			}
			failures++
			c.session.CloseIdleConnections()
			c.logger.Warn("sync failed, retrying",
				"user_id", c.session.UserID(),
				"attempt", failures,
				"error", err,
			)
			if waitErr := c.backoff(ctx, err); waitErr != nil {
				return
			}
			continue
		}
		failures = 0

		live := c.apply(response)

		if !isPrepared {
			c.mu.Lock()
			c.isPrepared = true
			roomCount := len(c.timelines)
			c.mu.Unlock()
			close(prepared)
			c.logger.Info("initial sync complete",
				"user_id", c.session.UserID(),
				"rooms", roomCount,
			)
			// Events from the initial sync are history, not live.
			continue
		}
		c.dispatch(live)
	}
}

func (c *SyncClient) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// backoff waits before the next retry: the server's retry_after_ms
// when rate limited, otherwise the retry limiter.
func (c *SyncClient) backoff(ctx context.Context, cause error) error {
	var matrixErr *MatrixError
	if errors.As(cause, &matrixErr) && matrixErr.RetryAfterMillis > 0 {
		timer := time.NewTimer(time.Duration(matrixErr.RetryAfterMillis) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.limiter.Wait(ctx)
}

// apply merges a sync response into the materialized timelines and
// returns the new timeline events in delivery order.
func (c *SyncClient) apply(response *SyncResponse) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextBatch = response.NextBatch

	// Map iteration order is random; sort for a deterministic
	// dispatch order across rooms.
	roomIDs := make([]ref.RoomID, 0, len(response.Rooms.Join))
	for roomID := range response.Rooms.Join {
		roomIDs = append(roomIDs, roomID)
	}
	sort.Slice(roomIDs, func(i, j int) bool { return roomIDs[i].String() < roomIDs[j].String() })

	var live []Event
	for _, roomID := range roomIDs {
		joined := response.Rooms.Join[roomID]
		timeline, known := c.timelines[roomID]
		if !known {
			timeline = &roomTimeline{}
			c.timelines[roomID] = timeline
		}

		for _, event := range joined.State.Events {
			timeline.applyState(event)
		}

		// A limited timeline means the server skipped events: the
		// stored timeline no longer joins up with the new slice.
		if !known || joined.Timeline.Limited || len(timeline.events) == 0 {
			if joined.Timeline.Limited && len(timeline.events) > 0 {
				c.logger.Debug("timeline gap, resetting", "room_id", roomID, "dropped", len(timeline.events))
				timeline.events = nil
			}
			if joined.Timeline.PrevBatch != "" {
				timeline.paginationToken = joined.Timeline.PrevBatch
			}
		}

		for _, event := range joined.Timeline.Events {
			event.RoomID = roomID
			timeline.applyState(event)
			timeline.events = append(timeline.events, event)
			live = append(live, event)
		}
	}

	for roomID := range response.Rooms.Leave {
		delete(c.timelines, roomID)
	}
	return live
}

func (t *roomTimeline) applyState(event Event) {
	if event.Type != ref.EventTypeRoomName || event.StateKey == nil || *event.StateKey != "" {
		return
	}
	t.name = event.ContentString("name")
}

func (c *SyncClient) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	listeners := make([]timelineListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, event := range events {
		for _, listener := range listeners {
			listener.callback(event)
		}
	}
}

// AddTimelineListener registers callback for every live timeline event
// and returns its ID.
func (c *SyncClient) AddTimelineListener(callback func(Event)) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextListener++
	c.listeners = append(c.listeners, timelineListener{id: c.nextListener, callback: callback})
	return c.nextListener
}

// RemoveTimelineListener unregisters a listener. Reports whether it
// was registered.
func (c *SyncClient) RemoveTimelineListener(id ListenerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for index, listener := range c.listeners {
		if listener.id == id {
			c.listeners = append(c.listeners[:index], c.listeners[index+1:]...)
			return true
		}
	}
	return false
}

// ListenerCount returns the number of registered timeline listeners.
func (c *SyncClient) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Room returns a snapshot of a joined room, or false if the sync has
// not reported it.
func (c *SyncClient) Room(roomID ref.RoomID) (RoomState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	timeline, ok := c.timelines[roomID]
	if !ok {
		return RoomState{}, false
	}
	events := make([]Event, len(timeline.events))
	copy(events, timeline.events)
	return RoomState{
		ID:              roomID,
		Name:            timeline.name,
		Timeline:        events,
		PaginationToken: timeline.paginationToken,
	}, true
}

// Rooms returns every joined room without timelines, ordered by
// display name.
func (c *SyncClient) Rooms() []RoomState {
	c.mu.Lock()
	rooms := make([]RoomState, 0, len(c.timelines))
	for roomID, timeline := range c.timelines {
		rooms = append(rooms, RoomState{ID: roomID, Name: timeline.name, PaginationToken: timeline.paginationToken})
	}
	c.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].DisplayName() != rooms[j].DisplayName() {
			return rooms[i].DisplayName() < rooms[j].DisplayName()
		}
		return rooms[i].ID.String() < rooms[j].ID.String()
	})
	return rooms
}

// UserID returns the syncing user.
func (c *SyncClient) UserID() ref.UserID { return c.session.UserID() }

// Homeserver returns the homeserver base URL.
func (c *SyncClient) Homeserver() string { return c.session.Homeserver() }

// Session returns the underlying Session.
func (c *SyncClient) Session() *Session { return c.session }

// SendEvent sends a timeline event through the session.
func (c *SyncClient) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	return c.session.SendEvent(ctx, roomID, eventType, content)
}

// RoomMessages pages through history through the session.
func (c *SyncClient) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	return c.session.RoomMessages(ctx, roomID, options)
}

// UploadMedia uploads content through the session.
func (c *SyncClient) UploadMedia(ctx context.Context, upload MediaUpload) (string, error) {
	return c.session.UploadMedia(ctx, upload)
}

// DownloadMedia downloads content through the session.
func (c *SyncClient) DownloadMedia(ctx context.Context, contentURI string) ([]byte, string, error) {
	return c.session.DownloadMedia(ctx, contentURI)
}

// GetProfile fetches a profile through the session.
func (c *SyncClient) GetProfile(ctx context.Context, userID ref.UserID) (*ProfileResponse, error) {
	return c.session.GetProfile(ctx, userID)
}

// WhoAmI asks the homeserver which user the access token belongs to.
// Works without a running loop.
func (c *SyncClient) WhoAmI(ctx context.Context) (ref.UserID, error) {
	return c.session.WhoAmI(ctx)
}

// Logout invalidates the session's access token on the server.
func (c *SyncClient) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// RoomName fetches a room's m.room.name directly, for rooms outside
// the synced set. Returns "" when the room has no name.
func (c *SyncClient) RoomName(ctx context.Context, roomID ref.RoomID) (string, error) {
	raw, err := c.session.GetStateEvent(ctx, roomID, ref.EventTypeRoomName, "")
	if IsMatrixError(err, ErrCodeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var content RoomNameContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", fmt.Errorf("messaging: parsing m.room.name: %w", err)
	}
	return content.Name, nil
}
