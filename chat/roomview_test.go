// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/chat/chattest"
	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/testutil"
	"github.com/bureau-foundation/roomchat/messaging"
)

func textMessage(roomID ref.RoomID, id string, sender ref.UserID, body string) chat.Message {
	return chat.Message{
		ID:        ref.MustParseEventID(id),
		Content:   body,
		Sender:    sender,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RoomID:    roomID,
		Kind:      messaging.MsgTypeText,
	}
}

// scriptedSource is a RoomSource whose history load blocks until the
// test releases it.
type scriptedSource struct {
	profiles *chat.ProfileDirectory
	release  chan struct{}
	history  []chat.Message
	err      error

	mu          sync.Mutex
	subscribers map[chat.Subscription]func(chat.Message)
	next        chat.Subscription
	loads       int
}

func newScriptedSource(fetch chat.ProfileFetcher) *scriptedSource {
	return &scriptedSource{
		profiles:    chat.NewProfileDirectory(fetch, quietLogger()),
		release:     make(chan struct{}),
		subscribers: make(map[chat.Subscription]func(chat.Message)),
	}
}

func (s *scriptedSource) HistoricalMessages(ctx context.Context, roomID ref.RoomID, limit int) ([]chat.Message, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	<-s.release
	return s.history, s.err
}

func (s *scriptedSource) Subscribe(callback func(chat.Message)) chat.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.subscribers[s.next] = callback
	return s.next
}

func (s *scriptedSource) Unsubscribe(subscription chat.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscribers[subscription]
	delete(s.subscribers, subscription)
	return ok
}

func (s *scriptedSource) Profiles() *chat.ProfileDirectory { return s.profiles }

func (s *scriptedSource) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *scriptedSource) deliver(message chat.Message) {
	s.mu.Lock()
	callbacks := make([]func(chat.Message), 0, len(s.subscribers))
	for _, callback := range s.subscribers {
		callbacks = append(callbacks, callback)
	}
	s.mu.Unlock()
	for _, callback := range callbacks {
		callback(message)
	}
}

func noProfiles(context.Context, ref.UserID) (chat.Profile, error) {
	return chat.Profile{}, errors.New("no profile")
}

func TestRoomViewBuffersLiveMessagesDuringHistoryLoad(t *testing.T) {
	source := newScriptedSource(noProfiles)
	source.history = []chat.Message{
		textMessage(general, "$1", bob, "one"),
		textMessage(general, "$2", bob, "two"),
	}
	view := chat.NewRoomView(source, general, chat.RoomViewOptions{Logger: quietLogger()})

	result := make(chan error, 1)
	go func() { result <- view.Activate(context.Background()) }()
	testutil.RequireEventually(t, func() bool { return source.subscriberCount() == 1 }, 5*time.Second, "view never subscribed")
	if !view.Loading() {
		t.Error("Loading() false during history load")
	}

	// $2 arrives live before the history containing it returns; $3 is
	// new. Neither may appear before the history.
	source.deliver(textMessage(general, "$2", bob, "two"))
	source.deliver(textMessage(general, "$3", carol, "three"))
	if len(view.Messages()) != 0 {
		t.Error("live messages shown before history")
	}

	close(source.release)
	if err := testutil.RequireReceive(t, result, 5*time.Second, "Activate result"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := eventIDs(view.Messages()); got != "$1 $2 $3" {
		t.Errorf("log = %s, want history then new live messages without duplicates", got)
	}
	if view.Loading() {
		t.Error("still loading")
	}
}

func TestRoomViewFiltersByRoom(t *testing.T) {
	source := newScriptedSource(noProfiles)
	close(source.release)
	view := chat.NewRoomView(source, general, chat.RoomViewOptions{Logger: quietLogger()})
	if err := view.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	source.deliver(textMessage(elsewhere, "$x", bob, "wrong room"))
	source.deliver(textMessage(general, "$y", bob, "right room"))
	if got := eventIDs(view.Messages()); got != "$y" {
		t.Errorf("log = %s, want only the active room's message", got)
	}
}

func TestRoomViewDeactivate(t *testing.T) {
	source := newScriptedSource(noProfiles)
	close(source.release)
	view := chat.NewRoomView(source, general, chat.RoomViewOptions{Logger: quietLogger()})
	if err := view.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	// A second Activate is a no-op.
	view.Activate(context.Background())
	if source.subscriberCount() != 1 || source.loads != 1 {
		t.Fatalf("after double activate: %d subscribers, %d loads", source.subscriberCount(), source.loads)
	}

	view.Deactivate()
	view.Deactivate()
	if source.subscriberCount() != 0 {
		t.Error("live handler still registered after Deactivate")
	}
	source.deliver(textMessage(general, "$late", bob, "late"))
	if len(view.Messages()) != 0 {
		t.Error("message applied after Deactivate")
	}
	if view.Active() {
		t.Error("Active() true after Deactivate")
	}
}

// gatedSource answers each history load with its own history once
// that load's gate is closed, so loads can finish out of order.
type gatedSource struct {
	*scriptedSource
	gates     []chan struct{}
	histories [][]chat.Message
}

func (s *gatedSource) HistoricalMessages(ctx context.Context, roomID ref.RoomID, limit int) ([]chat.Message, error) {
	s.mu.Lock()
	index := s.loads
	s.loads++
	s.mu.Unlock()
	<-s.gates[index]
	return s.histories[index], nil
}

func (s *gatedSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func TestRoomViewIgnoresHistoryFromEarlierActivation(t *testing.T) {
	source := &gatedSource{
		scriptedSource: newScriptedSource(noProfiles),
		gates:          []chan struct{}{make(chan struct{}), make(chan struct{})},
		histories: [][]chat.Message{
			{textMessage(general, "$stale", bob, "stale")},
			{textMessage(general, "$1", bob, "one")},
		},
	}
	view := chat.NewRoomView(source, general, chat.RoomViewOptions{Logger: quietLogger()})

	first := make(chan error, 1)
	go func() { first <- view.Activate(context.Background()) }()
	testutil.RequireEventually(t, func() bool { return source.loadCount() == 1 }, 5*time.Second, "first load never started")
	view.Deactivate()

	second := make(chan error, 1)
	go func() { second <- view.Activate(context.Background()) }()
	testutil.RequireEventually(t, func() bool { return source.loadCount() == 2 }, 5*time.Second, "second load never started")

	// The first load finishes while the second is still running: its
	// history is discarded and the view keeps loading.
	close(source.gates[0])
	testutil.RequireReceive(t, first, 5*time.Second, "first Activate")
	if !view.Loading() {
		t.Error("Loading() false while the current load is in flight")
	}
	if len(view.Messages()) != 0 {
		t.Errorf("messages from a superseded load applied: %v", view.Messages())
	}

	source.deliver(textMessage(general, "$2", carol, "two"))
	close(source.gates[1])
	if err := testutil.RequireReceive(t, second, 5*time.Second, "second Activate"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	var ids []string
	for _, message := range view.Messages() {
		ids = append(ids, message.ID.String())
	}
	if len(ids) != 2 || ids[0] != "$1" || ids[1] != "$2" {
		t.Errorf("log = %v, want [$1 $2]", ids)
	}
	if source.subscriberCount() != 1 {
		t.Errorf("subscribers = %d, want 1", source.subscriberCount())
	}
}

func TestRoomViewHistoryError(t *testing.T) {
	source := newScriptedSource(noProfiles)
	source.err = chat.ErrHistoryFetchFailed
	close(source.release)
	view := chat.NewRoomView(source, general, chat.RoomViewOptions{Logger: quietLogger()})

	err := view.Activate(context.Background())
	if !errors.Is(err, chat.ErrHistoryFetchFailed) || !errors.Is(view.Err(), chat.ErrHistoryFetchFailed) {
		t.Fatalf("Activate = %v, Err() = %v", err, view.Err())
	}
	// Live messages still flow after a failed load.
	source.deliver(textMessage(general, "$live", bob, "still here"))
	if got := eventIDs(view.Messages()); got != "$live" {
		t.Errorf("log = %s", got)
	}
}

func TestRoomViewJoinsProfilesOnRead(t *testing.T) {
	protocol := readyProtocol()
	protocol.SetProfile(bob, "Bob Builder", "mxc://example.org/bob")
	protocol.AddRoom(messaging.RoomState{
		ID: general,
		Timeline: []messaging.Event{
			chattest.TextEvent(general, "$1", "@bob:example.org", "one"),
			chattest.TextEvent(general, "$2", "@carol:example.org", "two"),
			chattest.TextEvent(general, "$3", "@bob:example.org", "three"),
		},
	})
	service := newService(t, protocol)
	connect(t, service)

	view := chat.NewRoomView(service, general, chat.RoomViewOptions{
		Server: "https://example.org",
		Logger: quietLogger(),
	})
	if err := view.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer view.Deactivate()
	service.Profiles().Wait()

	messages := view.Messages()
	if len(messages) != 3 {
		t.Fatalf("messages = %d", len(messages))
	}
	if messages[0].DisplayName != "Bob Builder" {
		t.Errorf("bob's display name = %q", messages[0].DisplayName)
	}
	if messages[0].AvatarURL != "https://example.org/_matrix/media/v3/download/example.org/bob" {
		t.Errorf("bob's avatar = %q", messages[0].AvatarURL)
	}
	// Carol has no profile: short name and a generated avatar.
	if messages[1].DisplayName != "carol" {
		t.Errorf("carol's display name = %q", messages[1].DisplayName)
	}
	if messages[1].AvatarURL != "https://api.dicebear.com/7.x/initials/svg?seed=%40carol%3Aexample.org" {
		t.Errorf("carol's avatar = %q", messages[1].AvatarURL)
	}

	// One lookup per distinct sender, however many messages they sent.
	if calls := protocol.ProfileCalls(bob); calls != 1 {
		t.Errorf("bob's profile fetched %d times", calls)
	}

	// A later message from a known sender does not refetch; a new
	// sender is fetched and the update re-labels the log.
	protocol.SetProfile(carol, "Carol", "")
	protocol.Emit(chattest.TextEvent(general, "$4", "@bob:example.org", "four"))
	service.Profiles().Wait()
	if calls := protocol.ProfileCalls(bob); calls != 1 {
		t.Errorf("bob's profile fetched %d times after a live message", calls)
	}
	if calls := protocol.ProfileCalls(carol); calls != 1 {
		t.Errorf("carol's profile fetched %d times; failed lookups must not repeat", calls)
	}
}

func TestRoomViewNotifiesOnLateProfile(t *testing.T) {
	gate := make(chan struct{})
	source := newScriptedSource(func(ctx context.Context, userID ref.UserID) (chat.Profile, error) {
		<-gate
		return chat.Profile{DisplayName: "Robert"}, nil
	})
	source.history = []chat.Message{textMessage(general, "$1", bob, "hello")}
	close(source.release)
	view := chat.NewRoomView(source, general, chat.RoomViewOptions{Logger: quietLogger()})
	if err := view.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if name := view.Messages()[0].DisplayName; name != "bob" {
		t.Errorf("display name before lookup = %q, want short name", name)
	}

	// Drain pending notifications from the load itself.
	select {
	case <-view.Updates():
	default:
	}

	close(gate)
	testutil.RequireReceive(t, view.Updates(), 5*time.Second, "no update after profile arrived")
	source.profiles.Wait()
	if name := view.Messages()[0].DisplayName; name != "Robert" {
		t.Errorf("display name after lookup = %q", name)
	}
}
