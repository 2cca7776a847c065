// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chattest provides an in-memory stand-in for the Matrix sync
// client, for tests of the chat package and the terminal UI.
//
// Protocol records every request and lets the test decide when the
// first sync completes, which rooms exist, and which live events
// arrive:
//
//	protocol := chattest.NewProtocol(ref.MustParseUserID("@alice:example.org"))
//	protocol.AutoPrepare = true
//	protocol.AddRoom(messaging.RoomState{ID: roomID, Name: "General"})
//	service := chat.NewService(chat.ServiceConfig{NewProtocol: protocol.Factory()})
//	...
//	protocol.Emit(chattest.TextEvent(roomID, "$1", "@bob:example.org", "hi"))
package chattest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/secret"
	"github.com/bureau-foundation/roomchat/messaging"
)

// SentEvent is one SendEvent call.
type SentEvent struct {
	RoomID    ref.RoomID
	EventType ref.EventType
	Content   any
}

// Upload is one UploadMedia call with its body read into Data.
type Upload struct {
	ContentType string
	Filename    string
	Data        []byte
	Size        int64
}

// MessagesRequest is one RoomMessages call.
type MessagesRequest struct {
	RoomID  ref.RoomID
	Options messaging.RoomMessagesOptions
}

// Protocol is a scriptable in-memory protocol client. Exported fields
// configure behaviour and must be set before the code under test runs;
// recorded calls are read through the accessor methods.
type Protocol struct {
	// AutoPrepare closes the prepared channel as soon as Start is
	// called.
	AutoPrepare bool

	// BeforeStart, when set, runs at the top of every Start call,
	// before the fake run begins.
	BeforeStart func()

	// SendError, UploadError, MessagesError, and ProfileError are
	// returned by the corresponding calls when set.
	SendError     error
	UploadError   error
	MessagesError error
	ProfileError  error
	LogoutError   error
	WhoAmIError   error
	RoomNameError error

	// RoomNames answers RoomName for rooms outside the synced set.
	RoomNames map[ref.RoomID]string

	// MessagesResponse is returned by RoomMessages.
	MessagesResponse *messaging.RoomMessagesResponse

	// Media maps content URIs to DownloadMedia results.
	Media map[string][]byte

	userID     ref.UserID
	homeserver string

	credentials *chat.Credentials

	mu            sync.Mutex
	running       bool
	prepared      chan struct{}
	done          chan struct{}
	err           error
	startCount    int
	stopCount     int
	closed        bool
	loggedOut     bool
	whoAmICalls   int
	startOptions  messaging.StartOptions
	rooms         map[ref.RoomID]messaging.RoomState
	profiles      map[ref.UserID]messaging.ProfileResponse
	profileCalls  map[ref.UserID]int
	listeners     map[messaging.ListenerID]func(messaging.Event)
	listenerOrder []messaging.ListenerID
	nextListener  messaging.ListenerID
	addCount      int
	removeCount   int
	sent          []SentEvent
	uploads       []Upload
	requests      []MessagesRequest
	nextEvent     int
}

// NewProtocol returns a stopped fake for userID on
// https://example.org.
func NewProtocol(userID ref.UserID) *Protocol {
	done := make(chan struct{})
	close(done)
	return &Protocol{
		userID:       userID,
		homeserver:   "https://example.org",
		prepared:     make(chan struct{}),
		done:         done,
		rooms:        make(map[ref.RoomID]messaging.RoomState),
		profiles:     make(map[ref.UserID]messaging.ProfileResponse),
		profileCalls: make(map[ref.UserID]int),
		listeners:    make(map[messaging.ListenerID]func(messaging.Event)),
		Media:        make(map[string][]byte),
	}
}

// Factory returns a chat.ProtocolFactory that always yields p and
// records the credentials it was given.
func (p *Protocol) Factory() chat.ProtocolFactory {
	return func(credentials *chat.Credentials) (chat.Protocol, error) {
		p.mu.Lock()
		p.credentials = credentials
		p.mu.Unlock()
		return p, nil
	}
}

// Credentials returns the credentials passed to the last Factory
// call.
func (p *Protocol) Credentials() *chat.Credentials {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.credentials
}

// NewCredentials builds an in-memory credential set for userID, as a
// successful login against server would produce.
func NewCredentials(userID ref.UserID, server string) (*chat.Credentials, error) {
	token, err := secret.NewFromString("syt_chattest_" + userID.Localpart())
	if err != nil {
		return nil, err
	}
	return &chat.Credentials{AccessToken: token, UserID: userID, DeviceID: "CHATTEST", Server: server}, nil
}

// Start begins a fake sync run.
func (p *Protocol) Start(ctx context.Context, options messaging.StartOptions) error {
	if p.BeforeStart != nil {
		p.BeforeStart()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return messaging.ErrAlreadyRunning
	}
	p.running = true
	p.startCount++
	p.startOptions = options
	p.prepared = make(chan struct{})
	p.done = make(chan struct{})
	p.err = nil
	if p.AutoPrepare {
		close(p.prepared)
	}
	return nil
}

// Prepare completes the first sync of the current run.
func (p *Protocol) Prepare() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.prepared:
	default:
		close(p.prepared)
	}
}

// Fail ends the current run with err, as a revoked token would.
func (p *Protocol) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.err = err
	close(p.done)
	p.running = false
}

func (p *Protocol) Prepared() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepared
}

func (p *Protocol) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Protocol) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Protocol) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCount++
	if p.running {
		p.running = false
		close(p.done)
	}
}

func (p *Protocol) Close() error {
	p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Protocol) UserID() ref.UserID { return p.userID }

func (p *Protocol) Homeserver() string { return p.homeserver }

// AddRoom adds or replaces a room in the fake sync state.
func (p *Protocol) AddRoom(room messaging.RoomState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[room.ID] = room
}

func (p *Protocol) Room(roomID ref.RoomID) (messaging.RoomState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	room, ok := p.rooms[roomID]
	if !ok {
		return messaging.RoomState{}, false
	}
	room.Timeline = append([]messaging.Event(nil), room.Timeline...)
	return room, true
}

func (p *Protocol) Rooms() []messaging.RoomState {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := make([]messaging.RoomState, 0, len(p.rooms))
	for _, room := range p.rooms {
		room.Timeline = nil
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].DisplayName() != rooms[j].DisplayName() {
			return rooms[i].DisplayName() < rooms[j].DisplayName()
		}
		return rooms[i].ID.String() < rooms[j].ID.String()
	})
	return rooms
}

func (p *Protocol) AddTimelineListener(callback func(messaging.Event)) messaging.ListenerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextListener++
	p.addCount++
	p.listeners[p.nextListener] = callback
	p.listenerOrder = append(p.listenerOrder, p.nextListener)
	return p.nextListener
}

func (p *Protocol) RemoveTimelineListener(id messaging.ListenerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[id]; !ok {
		return false
	}
	p.removeCount++
	delete(p.listeners, id)
	for index, listenerID := range p.listenerOrder {
		if listenerID == id {
			p.listenerOrder = append(p.listenerOrder[:index], p.listenerOrder[index+1:]...)
			break
		}
	}
	return true
}

// Emit delivers event to every registered listener synchronously, as
// the sync goroutine would.
func (p *Protocol) Emit(event messaging.Event) {
	p.mu.Lock()
	callbacks := make([]func(messaging.Event), 0, len(p.listenerOrder))
	for _, id := range p.listenerOrder {
		callbacks = append(callbacks, p.listeners[id])
	}
	p.mu.Unlock()
	for _, callback := range callbacks {
		callback(event)
	}
}

// ListenerCount returns the number of registered listeners.
func (p *Protocol) ListenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// ListenerChurn returns how many times listeners were added and
// removed.
func (p *Protocol) ListenerChurn() (added, removed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addCount, p.removeCount
}

func (p *Protocol) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendError != nil {
		return ref.EventID{}, p.SendError
	}
	p.sent = append(p.sent, SentEvent{RoomID: roomID, EventType: eventType, Content: content})
	p.nextEvent++
	return ref.MustParseEventID(fmt.Sprintf("$sent-%d", p.nextEvent)), nil
}

// Sent returns every successfully sent event.
func (p *Protocol) Sent() []SentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SentEvent(nil), p.sent...)
}

func (p *Protocol) RoomMessages(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, MessagesRequest{RoomID: roomID, Options: options})
	if p.MessagesError != nil {
		return nil, p.MessagesError
	}
	if p.MessagesResponse == nil {
		return &messaging.RoomMessagesResponse{}, nil
	}
	return p.MessagesResponse, nil
}

// MessagesRequests returns every RoomMessages call.
func (p *Protocol) MessagesRequests() []MessagesRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MessagesRequest(nil), p.requests...)
}

func (p *Protocol) UploadMedia(ctx context.Context, upload messaging.MediaUpload) (string, error) {
	data, err := io.ReadAll(upload.Body)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.UploadError != nil {
		return "", p.UploadError
	}
	p.uploads = append(p.uploads, Upload{
		ContentType: upload.ContentType,
		Filename:    upload.Filename,
		Data:        data,
		Size:        upload.Size,
	})
	uri := fmt.Sprintf("mxc://example.org/upload-%d", len(p.uploads))
	p.Media[uri] = data
	return uri, nil
}

// Uploads returns every successful upload.
func (p *Protocol) Uploads() []Upload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Upload(nil), p.uploads...)
}

func (p *Protocol) DownloadMedia(ctx context.Context, contentURI string) ([]byte, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.Media[contentURI]
	if !ok {
		return nil, "", &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
	}
	return data, "audio/wav", nil
}

// SetProfile sets the profile returned for userID.
func (p *Protocol) SetProfile(userID ref.UserID, displayName, avatarURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[userID] = messaging.ProfileResponse{DisplayName: displayName, AvatarURL: avatarURL}
}

func (p *Protocol) GetProfile(ctx context.Context, userID ref.UserID) (*messaging.ProfileResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profileCalls[userID]++
	if p.ProfileError != nil {
		return nil, p.ProfileError
	}
	profile, ok := p.profiles[userID]
	if !ok {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "Profile not found", StatusCode: 404}
	}
	return &profile, nil
}

// ProfileCalls returns how many times userID's profile was fetched.
func (p *Protocol) ProfileCalls(userID ref.UserID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profileCalls[userID]
}

var _ chat.Protocol = (*Protocol)(nil)

func (p *Protocol) Logout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LogoutError != nil {
		return p.LogoutError
	}
	p.loggedOut = true
	return nil
}

// WhoAmI returns the protocol's user, or WhoAmIError when set.
func (p *Protocol) WhoAmI(ctx context.Context) (ref.UserID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.whoAmICalls++
	if p.WhoAmIError != nil {
		return ref.UserID{}, p.WhoAmIError
	}
	return p.userID, nil
}

// WhoAmICalls returns how many times WhoAmI was called.
func (p *Protocol) WhoAmICalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.whoAmICalls
}

// RoomName answers from the synced rooms, then RoomNames, or fails
// with RoomNameError when set. Unknown rooms have no name.
func (p *Protocol) RoomName(ctx context.Context, roomID ref.RoomID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RoomNameError != nil {
		return "", p.RoomNameError
	}
	if room, ok := p.rooms[roomID]; ok {
		return room.Name, nil
	}
	return p.RoomNames[roomID], nil
}

// Counts returns how many times Start and Stop were called.
func (p *Protocol) Counts() (starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startCount, p.stopCount
}

// Running reports whether a fake sync run is active.
func (p *Protocol) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Closed reports whether Close was called.
func (p *Protocol) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// LoggedOut reports whether Logout succeeded.
func (p *Protocol) LoggedOut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loggedOut
}

// StartOptions returns the options of the last Start.
func (p *Protocol) StartOptions() messaging.StartOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startOptions
}

// ErrTransport is a ready-made transport failure for SendError and
// friends.
var ErrTransport = errors.New("chattest: connection reset by peer")

// TextEvent builds an m.text timeline event.
func TextEvent(roomID ref.RoomID, eventID, sender, body string) messaging.Event {
	return messaging.Event{
		EventID:        ref.MustParseEventID(eventID),
		Type:           ref.EventTypeRoomMessage,
		Sender:         ref.MustParseUserID(sender),
		OriginServerTS: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		RoomID:         roomID,
		Content:        map[string]any{"msgtype": messaging.MsgTypeText, "body": body},
	}
}

// Event builds a timeline event of an arbitrary type.
func Event(roomID ref.RoomID, eventID, sender string, eventType ref.EventType, content map[string]any) messaging.Event {
	return messaging.Event{
		EventID:        ref.MustParseEventID(eventID),
		Type:           eventType,
		Sender:         ref.MustParseUserID(sender),
		OriginServerTS: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		RoomID:         roomID,
		Content:        content,
	}
}
