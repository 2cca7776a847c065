// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/lib/clock"
	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/secret"
	"github.com/bureau-foundation/roomchat/voice"
)

var (
	alice   = ref.MustParseUserID("@alice:example.org")
	bob     = ref.MustParseUserID("@bob:example.org")
	general = ref.MustParseRoomID("!general:example.org")
	random  = ref.MustParseRoomID("!random:example.org")
	design  = ref.MustParseRoomID("!design:example.org")
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

type sentText struct {
	roomID ref.RoomID
	text   string
}

// fakeBackend is an in-memory Backend. History is served from a map;
// emit delivers a live message to subscribers.
type fakeBackend struct {
	mu sync.Mutex

	loggedIn   bool
	loginErr   error
	logins     []string
	passwords  []string
	logouts    int
	rooms      []chat.Room
	history    map[ref.RoomID][]chat.Message
	historyErr error
	sendErr    error
	sent       []sentText
	voiceErr   error
	voice      []chat.AudioClip
	homeserver string
	roomNames  map[ref.RoomID]string

	next        chat.Subscription
	subscribers map[chat.Subscription]func(chat.Message)
	profiles    *chat.ProfileDirectory
}

func newFakeBackend(loggedIn bool) *fakeBackend {
	return &fakeBackend{
		loggedIn:   loggedIn,
		homeserver: "https://example.org",
		rooms: []chat.Room{
			{ID: general, Name: "General"},
			{ID: random, Name: "Random"},
			{ID: design, Name: "Design Review"},
		},
		history: map[ref.RoomID][]chat.Message{
			general: {textMessage(general, "$g1", bob, "hello from bob")},
			random:  {textMessage(random, "$r1", bob, "random thoughts")},
		},
		subscribers: make(map[chat.Subscription]func(chat.Message)),
		profiles: chat.NewProfileDirectory(func(context.Context, ref.UserID) (chat.Profile, error) {
			return chat.Profile{}, nil
		}, quietLogger()),
	}
}

func textMessage(roomID ref.RoomID, eventID string, sender ref.UserID, body string) chat.Message {
	return chat.Message{
		ID:        ref.MustParseEventID(eventID),
		Content:   body,
		Sender:    sender,
		Timestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		RoomID:    roomID,
		Kind:      "m.text",
	}
}

func (b *fakeBackend) Server() string { return "https://example.org" }

func (b *fakeBackend) Homeserver() (string, error) {
	if !b.LoggedIn() {
		return "", chat.ErrNotLoggedIn
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.homeserver, nil
}

func (b *fakeBackend) RoomName(_ context.Context, roomID ref.RoomID) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roomNames[roomID], nil
}

func (b *fakeBackend) Login(_ context.Context, _ string, username string, password *secret.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logins = append(b.logins, username)
	b.passwords = append(b.passwords, password.String())
	if b.loginErr != nil {
		return b.loginErr
	}
	b.loggedIn = true
	return nil
}

func (b *fakeBackend) Logout(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts++
	b.loggedIn = false
	return nil
}

func (b *fakeBackend) LoggedIn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loggedIn
}

func (b *fakeBackend) UserID() (ref.UserID, error) {
	if !b.LoggedIn() {
		return ref.UserID{}, chat.ErrNotLoggedIn
	}
	return alice, nil
}

func (b *fakeBackend) Rooms() ([]chat.Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]chat.Room(nil), b.rooms...), nil
}

func (b *fakeBackend) SendMessage(_ context.Context, roomID ref.RoomID, text string) (ref.EventID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return ref.EventID{}, b.sendErr
	}
	b.sent = append(b.sent, sentText{roomID: roomID, text: text})
	return ref.MustParseEventID("$sent"), nil
}

func (b *fakeBackend) SendVoiceMessage(_ context.Context, _ ref.RoomID, clip chat.AudioClip) (ref.EventID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.voiceErr != nil {
		return ref.EventID{}, b.voiceErr
	}
	b.voice = append(b.voice, clip)
	return ref.MustParseEventID("$voice"), nil
}

func (b *fakeBackend) HistoricalMessages(_ context.Context, roomID ref.RoomID, _ int) ([]chat.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.historyErr != nil {
		return nil, b.historyErr
	}
	return append([]chat.Message(nil), b.history[roomID]...), nil
}

func (b *fakeBackend) Subscribe(callback func(chat.Message)) chat.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subscribers[b.next] = callback
	return b.next
}

func (b *fakeBackend) Unsubscribe(subscription chat.Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subscribers[subscription]
	delete(b.subscribers, subscription)
	return ok
}

func (b *fakeBackend) Profiles() *chat.ProfileDirectory { return b.profiles }

func (b *fakeBackend) emit(message chat.Message) {
	b.mu.Lock()
	callbacks := make([]func(chat.Message), 0, len(b.subscribers))
	for _, callback := range b.subscribers {
		callbacks = append(callbacks, callback)
	}
	b.mu.Unlock()
	for _, callback := range callbacks {
		callback(message)
	}
}

func (b *fakeBackend) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// harness runs a Model the way tea.Program does: commands execute on
// goroutines and their messages are fed back through Update.
type harness struct {
	t        *testing.T
	model    Model
	messages chan tea.Msg
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()
	if config.Room.IsZero() {
		config.Room = general
	}
	if config.Logger == nil {
		config.Logger = quietLogger()
	}
	h := &harness{t: t, model: NewModel(config), messages: make(chan tea.Msg, 256)}
	h.t.Cleanup(func() { h.model.shutdown() })
	h.start(h.model.Init())
	h.send(tea.WindowSizeMsg{Width: 100, Height: 30})
	return h
}

func (h *harness) start(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() { h.messages <- cmd() }()
}

func (h *harness) send(message tea.Msg) {
	updated, cmd := h.model.Update(message)
	h.model = updated.(Model)
	h.start(cmd)
}

func (h *harness) process(message tea.Msg) {
	switch message := message.(type) {
	case nil:
	case tea.BatchMsg:
		for _, cmd := range message {
			h.start(cmd)
		}
	default:
		h.send(message)
	}
}

// waitFor processes messages until condition holds.
func (h *harness) waitFor(description string, condition func(Model) bool) {
	h.t.Helper()
	deadline := time.After(5 * time.Second)
	for !condition(h.model) {
		select {
		case message := <-h.messages:
			h.process(message)
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s; screen:\n%s", description, ansi.Strip(h.model.View()))
		}
	}
}

// settle processes messages until none arrive for a short period.
func (h *harness) settle() {
	for {
		select {
		case message := <-h.messages:
			h.process(message)
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func (h *harness) screen() string { return ansi.Strip(h.model.View()) }

func (h *harness) typeText(text string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func (h *harness) press(keyType tea.KeyType) {
	h.send(tea.KeyMsg{Type: keyType})
}

func (h *harness) waitForText(text string) {
	h.t.Helper()
	h.waitFor("screen to contain "+text, func(model Model) bool {
		return strings.Contains(ansi.Strip(model.View()), text)
	})
}

func TestLoginOpensConfiguredRoom(t *testing.T) {
	backend := newFakeBackend(false)
	loggedIn := 0
	h := newHarness(t, Config{Backend: backend, OnLogin: func() { loggedIn++ }})

	if h.model.Screen() != "login" {
		t.Fatalf("screen = %s, want login", h.model.Screen())
	}
	h.typeText("alice")
	h.press(tea.KeyEnter)
	h.typeText("hunter2")
	h.press(tea.KeyEnter)

	h.waitForText("hello from bob")
	if h.model.Screen() != "chat" {
		t.Errorf("screen = %s, want chat", h.model.Screen())
	}
	if len(backend.logins) != 1 || backend.logins[0] != "alice" || backend.passwords[0] != "hunter2" {
		t.Errorf("logins = %v passwords = %v", backend.logins, backend.passwords)
	}
	if loggedIn != 1 {
		t.Errorf("OnLogin ran %d times, want 1", loggedIn)
	}
	if !strings.Contains(h.screen(), "General") {
		t.Errorf("header does not name the room:\n%s", h.screen())
	}
}

func TestLoginFailureStaysOnForm(t *testing.T) {
	backend := newFakeBackend(false)
	backend.loginErr = chat.ErrLoginFailed
	h := newHarness(t, Config{Backend: backend, Username: "alice"})

	h.typeText("wrong")
	h.press(tea.KeyEnter)
	h.waitForText("Login failed: Invalid credentials or server unavailable")
	if h.model.Screen() != "login" {
		t.Errorf("screen = %s, want login", h.model.Screen())
	}
	if h.model.password.Value() != "" {
		t.Error("password field kept the rejected password")
	}
}

func TestLoginRequiresBothFields(t *testing.T) {
	h := newHarness(t, Config{Backend: newFakeBackend(false)})
	h.press(tea.KeyTab)
	h.press(tea.KeyEnter)
	if !strings.Contains(h.screen(), "Username and password are required") {
		t.Errorf("missing validation message:\n%s", h.screen())
	}
}

func TestLoginShowsAccountPreview(t *testing.T) {
	h := newHarness(t, Config{Backend: newFakeBackend(false)})
	h.typeText("bob")
	if !strings.Contains(h.screen(), "@bob:example.org") {
		t.Errorf("account preview missing:\n%s", h.screen())
	}
}

func TestRestoredSessionStartsInChat(t *testing.T) {
	h := newHarness(t, Config{Backend: newFakeBackend(true)})
	if h.model.Screen() != "chat" {
		t.Fatalf("screen = %s, want chat", h.model.Screen())
	}
	h.waitForText("hello from bob")
}

func TestUnjoinedRoomNameIsFetched(t *testing.T) {
	lobby := ref.MustParseRoomID("!lobby:example.org")
	backend := newFakeBackend(true)
	backend.roomNames = map[ref.RoomID]string{lobby: "Public Lobby"}
	h := newHarness(t, Config{Backend: backend, Room: lobby})

	h.waitFor("room name in the header", func(model Model) bool {
		return model.room.Name == "Public Lobby"
	})
	if !strings.Contains(h.screen(), "Public Lobby") {
		t.Errorf("header does not name the room:\n%s", h.screen())
	}
}

func TestAvatarsResolveAgainstSessionHomeserver(t *testing.T) {
	backend := newFakeBackend(true)
	backend.homeserver = "https://matrix.other.org"
	backend.profiles = chat.NewProfileDirectory(func(context.Context, ref.UserID) (chat.Profile, error) {
		return chat.Profile{DisplayName: "Bob", AvatarURL: "mxc://other.org/bob-avatar"}, nil
	}, quietLogger())
	h := newHarness(t, Config{Backend: backend})

	want := "https://matrix.other.org/_matrix/media/v3/download/other.org/bob-avatar"
	h.waitFor("resolved avatar", func(model Model) bool {
		return len(model.messages) == 1 && model.messages[0].AvatarURL == want
	})
}

func TestSendMessage(t *testing.T) {
	backend := newFakeBackend(true)
	h := newHarness(t, Config{Backend: backend})
	h.waitForText("hello from bob")

	h.typeText("hi there")
	h.press(tea.KeyCtrlS)
	h.waitFor("send to finish", func(model Model) bool { return !model.sending })

	if len(backend.sent) != 1 || backend.sent[0].text != "hi there" || backend.sent[0].roomID != general {
		t.Fatalf("sent = %+v", backend.sent)
	}
	if h.model.composer.Value() != "" {
		t.Errorf("composer = %q, want empty", h.model.composer.Value())
	}
}

func TestSendIgnoresBlankComposer(t *testing.T) {
	backend := newFakeBackend(true)
	h := newHarness(t, Config{Backend: backend})
	h.typeText("   ")
	h.press(tea.KeyCtrlS)
	h.settle()
	if len(backend.sent) != 0 {
		t.Errorf("blank message was sent: %+v", backend.sent)
	}
}

func TestSendFailureRestoresComposer(t *testing.T) {
	backend := newFakeBackend(true)
	backend.sendErr = chat.ErrMessageSendFailed
	h := newHarness(t, Config{Backend: backend})

	h.typeText("important")
	h.press(tea.KeyCtrlS)
	h.waitForText("Failed to send message. Please try again.")
	if h.model.composer.Value() != "important" {
		t.Errorf("composer = %q, want the unsent text", h.model.composer.Value())
	}
}

func TestLiveMessageAppears(t *testing.T) {
	backend := newFakeBackend(true)
	h := newHarness(t, Config{Backend: backend})
	h.waitForText("hello from bob")
	h.waitFor("room subscription", func(Model) bool { return backend.subscriberCount() == 1 })

	backend.emit(textMessage(general, "$g2", bob, "a **live** one"))
	h.waitForText("a live one")

	backend.emit(textMessage(random, "$r2", bob, "wrong room"))
	h.settle()
	if strings.Contains(h.screen(), "wrong room") {
		t.Error("message from another room was shown")
	}
}

func TestHistoryErrorIsShown(t *testing.T) {
	backend := newFakeBackend(true)
	backend.historyErr = chat.ErrHistoryFetchFailed
	h := newHarness(t, Config{Backend: backend})
	h.waitForText("Failed to load message history")
}

func TestRoomSwitcher(t *testing.T) {
	backend := newFakeBackend(true)
	h := newHarness(t, Config{Backend: backend})
	h.waitForText("hello from bob")

	h.press(tea.KeyCtrlO)
	if h.model.Screen() != "rooms" {
		t.Fatalf("screen = %s, want rooms", h.model.Screen())
	}
	for _, name := range []string{"General", "Random", "Design Review"} {
		if !strings.Contains(h.screen(), name) {
			t.Errorf("room %q not listed:\n%s", name, h.screen())
		}
	}

	h.typeText("rndm")
	if len(h.model.roomMatches) != 1 || h.model.roomMatches[0].room.ID != random {
		t.Fatalf("matches for %q = %+v", "rndm", h.model.roomMatches)
	}
	h.press(tea.KeyEnter)
	if h.model.Screen() != "chat" {
		t.Fatalf("screen = %s, want chat", h.model.Screen())
	}
	h.waitForText("random thoughts")
	if strings.Contains(h.screen(), "hello from bob") {
		t.Error("previous room's messages still shown")
	}
	h.waitFor("single subscription", func(Model) bool { return backend.subscriberCount() == 1 })
}

func TestRoomSwitcherEscape(t *testing.T) {
	h := newHarness(t, Config{Backend: newFakeBackend(true)})
	h.waitForText("hello from bob")
	h.press(tea.KeyCtrlO)
	h.press(tea.KeyEsc)
	if h.model.Screen() != "chat" {
		t.Fatalf("screen = %s, want chat", h.model.Screen())
	}
	if h.model.view == nil || h.model.view.RoomID() != general {
		t.Error("escape changed the room")
	}
}

func TestLogoutReturnsToLogin(t *testing.T) {
	backend := newFakeBackend(true)
	loggedOut := 0
	h := newHarness(t, Config{Backend: backend, OnLogout: func() { loggedOut++ }})
	h.waitForText("hello from bob")

	h.press(tea.KeyCtrlL)
	h.waitFor("login screen", func(model Model) bool { return model.Screen() == "login" })
	if backend.logouts != 1 {
		t.Errorf("logouts = %d, want 1", backend.logouts)
	}
	if loggedOut != 1 {
		t.Errorf("OnLogout ran %d times, want 1", loggedOut)
	}
	if backend.subscriberCount() != 0 {
		t.Errorf("subscribers after logout = %d, want 0", backend.subscriberCount())
	}
}

func pcmSource(samples ...int16) *voice.ReaderSource {
	var buffer bytes.Buffer
	for _, sample := range samples {
		binary.Write(&buffer, binary.LittleEndian, sample)
	}
	return &voice.ReaderSource{Reader: &buffer}
}

func newTestRecorder(t *testing.T, source voice.Source) *voice.Recorder {
	t.Helper()
	recorder, err := voice.NewRecorder(voice.RecorderConfig{
		Source:     source,
		SampleRate: 8000,
		Clock:      clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return recorder
}

func TestVoiceRecordAndSend(t *testing.T) {
	backend := newFakeBackend(true)
	recorder := newTestRecorder(t, pcmSource(100, 2000, -3000, 16000))
	h := newHarness(t, Config{Backend: backend, Recorder: recorder})
	h.waitForText("hello from bob")

	// The source is finite, so the capture ends by itself and the
	// model stops the recorder.
	h.press(tea.KeyCtrlR)
	h.waitFor("clip", func(model Model) bool { return model.clip != nil })
	if recorder.State() != voice.StateStopped {
		t.Fatalf("recorder state = %s, want stopped", recorder.State())
	}
	if !strings.Contains(h.screen(), "♪ 0:00") {
		t.Errorf("clip preview missing:\n%s", h.screen())
	}

	h.press(tea.KeyCtrlV)
	h.waitFor("clip sent", func(model Model) bool { return model.clip == nil && !model.sendingClip })
	if len(backend.voice) != 1 {
		t.Fatalf("voice messages sent = %d, want 1", len(backend.voice))
	}
	if backend.voice[0].MimeType != voice.MimeType {
		t.Errorf("mime type = %q", backend.voice[0].MimeType)
	}
	if recorder.State() != voice.StateIdle {
		t.Errorf("recorder state after send = %s, want idle", recorder.State())
	}
}

func TestVoiceSendFailureKeepsClip(t *testing.T) {
	backend := newFakeBackend(true)
	backend.voiceErr = chat.ErrVoiceSendFailed
	recorder := newTestRecorder(t, pcmSource(1, 2, 3))
	h := newHarness(t, Config{Backend: backend, Recorder: recorder})
	h.waitForText("hello from bob")

	h.press(tea.KeyCtrlR)
	h.waitFor("clip", func(model Model) bool { return model.clip != nil })
	h.press(tea.KeyCtrlV)
	h.waitFor("send attempt", func(model Model) bool { return !model.sendingClip && model.chatError != "" })
	if h.model.chatError != "Failed to send voice message. Please try again." {
		t.Errorf("error = %q", h.model.chatError)
	}
	if h.model.clip == nil {
		t.Error("clip discarded after a failed send")
	}
}

func TestVoiceDiscard(t *testing.T) {
	recorder := newTestRecorder(t, pcmSource(1, 2, 3))
	h := newHarness(t, Config{Backend: newFakeBackend(true), Recorder: recorder})
	h.press(tea.KeyCtrlR)
	h.waitFor("clip", func(model Model) bool { return model.clip != nil })

	h.press(tea.KeyCtrlX)
	if h.model.clip != nil {
		t.Error("clip survived discard")
	}
	if recorder.State() != voice.StateIdle {
		t.Errorf("recorder state = %s, want idle", recorder.State())
	}
}

func TestVoiceEmptyRecording(t *testing.T) {
	recorder := newTestRecorder(t, pcmSource())
	h := newHarness(t, Config{Backend: newFakeBackend(true), Recorder: recorder})
	h.press(tea.KeyCtrlR)
	h.waitForText("Nothing was recorded")
	if h.model.clip != nil {
		t.Error("empty recording produced a clip")
	}
}

func TestVoiceWithoutRecorder(t *testing.T) {
	h := newHarness(t, Config{Backend: newFakeBackend(true)})
	h.press(tea.KeyCtrlR)
	if !strings.Contains(h.screen(), "Voice recording is not configured") {
		t.Errorf("missing notice:\n%s", h.screen())
	}
}

func TestLogRecordFades(t *testing.T) {
	h := newHarness(t, Config{Backend: newFakeBackend(true)})
	h.send(logRecordMsg{summary: "sync retrying (attempt=2)", level: slog.LevelWarn})
	if !strings.Contains(h.screen(), "sync retrying (attempt=2)") {
		t.Fatalf("log record not on status bar:\n%s", h.screen())
	}
	h.send(logFadeMsg{sequence: h.model.statusSequence - 1})
	if h.model.status == "" {
		t.Error("stale fade cleared a newer record")
	}
	h.send(logFadeMsg{sequence: h.model.statusSequence})
	if h.model.status != "" {
		t.Error("fade did not clear the record")
	}
}
