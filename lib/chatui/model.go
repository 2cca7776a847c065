// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/secret"
	"github.com/bureau-foundation/roomchat/voice"
)

// Backend is the chat layer as the interface sees it. *chat.Service
// implements it.
type Backend interface {
	chat.RoomSource

	Server() string
	Homeserver() (string, error)
	Login(ctx context.Context, server, username string, password *secret.Buffer) error
	Logout(ctx context.Context) error
	LoggedIn() bool
	UserID() (ref.UserID, error)
	Rooms() ([]chat.Room, error)
	RoomName(ctx context.Context, roomID ref.RoomID) (string, error)
	SendMessage(ctx context.Context, roomID ref.RoomID, text string) (ref.EventID, error)
	SendVoiceMessage(ctx context.Context, roomID ref.RoomID, clip chat.AudioClip) (ref.EventID, error)
}

// ClipPlayer plays a recorded clip. voice.Player implements it.
type ClipPlayer interface {
	Play(ctx context.Context, clip *voice.Clip) (*voice.Playback, error)
}

// Config configures a Model. Backend and Room are required.
type Config struct {
	Backend Backend

	// Room is opened after login.
	Room ref.RoomID

	// HistoryLimit is the number of messages loaded when a room opens.
	// Zero uses the session default.
	HistoryLimit int

	// Username pre-fills the login form.
	Username string

	// Recorder and Player enable voice messages. Either may be nil.
	Recorder *voice.Recorder
	Player   ClipPlayer

	// OnLogin runs after a successful login from the login screen;
	// OnLogout after the user logs out. The CLI persists and removes
	// the saved session here.
	OnLogin  func()
	OnLogout func()

	Logger *slog.Logger
}

type screen int

const (
	screenLogin screen = iota
	screenChat
	screenRooms
)

// Messages delivered to Update from commands.
type (
	loginResultMsg struct{ err error }

	logoutResultMsg struct{ err error }

	roomActivatedMsg struct {
		view *chat.RoomView
		err  error
	}

	roomUpdateMsg struct{ view *chat.RoomView }

	roomNameMsg struct {
		roomID ref.RoomID
		name   string
	}

	sendResultMsg struct {
		text string
		err  error
	}

	voiceSentMsg struct{ err error }

	recorderTickMsg struct{ elapsed time.Duration }

	// recorderDoneMsg reports that the capture identified by done
	// ended on its own (source exhausted or length limit reached).
	recorderDoneMsg struct{ done <-chan struct{} }

	playbackDoneMsg struct {
		playback *voice.Playback
		err      error
	}
)

// Model is the bubbletea model for the whole interface.
type Model struct {
	config Config
	ctx    context.Context
	logger *slog.Logger
	theme  Theme
	keys   KeyMap

	screen        screen
	width, height int
	initCmd       tea.Cmd

	// Login screen.
	username   textinput.Model
	password   textinput.Model
	loginFocus int
	loggingIn  bool
	loginError string
	spinner    spinner.Model

	// Chat screen.
	userID    ref.UserID
	room      chat.Room
	view      *chat.RoomView
	viewStop  chan struct{}
	messages  []chat.Message
	viewport  viewport.Model
	composer  textarea.Model
	sending   bool
	chatError string

	// Voice.
	elapsed     time.Duration
	clip        *voice.Clip
	playback    *voice.Playback
	sendingClip bool

	// Room switcher.
	rooms       []chat.Room
	roomFilter  textinput.Model
	roomMatches []roomMatch
	roomCursor  int
	slab        *util.Slab

	// Status bar: the latest background log record.
	status         string
	statusLevel    slog.Level
	statusSequence int
}

const composerHeight = 3

// NewModel builds the interface. If the backend already has a session
// (a restored login), the model starts on the chat screen.
func NewModel(config Config) Model {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	username := textinput.New()
	username.Placeholder = "username"
	username.Prompt = "Username: "
	username.SetValue(config.Username)
	username.CharLimit = 255

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	composer := textarea.New()
	composer.Placeholder = "Write a message… (Ctrl+S to send)"
	composer.ShowLineNumbers = false
	composer.CharLimit = 0
	composer.SetHeight(composerHeight)

	roomFilter := textinput.New()
	roomFilter.Prompt = "Room: "
	roomFilter.Placeholder = "type to filter"

	model := Model{
		config:     config,
		ctx:        context.Background(),
		logger:     logger,
		theme:      DefaultTheme,
		keys:       DefaultKeyMap,
		username:   username,
		password:   password,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		viewport:   viewport.New(80, 20),
		composer:   composer,
		roomFilter: roomFilter,
		slab:       util.MakeSlab(16*1024, 2048),
	}

	if config.Backend.LoggedIn() {
		model.initCmd = model.enterChat()
	} else {
		model.focusLoginField(0)
		if config.Username != "" {
			model.focusLoginField(1)
		}
	}
	return model
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, model.initCmd)
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.layout()
		return model, nil

	case tea.KeyMsg:
		if key.Matches(message, model.keys.Quit) {
			model.shutdown()
			return model, tea.Quit
		}
		switch model.screen {
		case screenLogin:
			return model.updateLogin(message)
		case screenRooms:
			return model.updateRooms(message)
		default:
			return model.updateChat(message)
		}

	case spinner.TickMsg:
		if !model.loggingIn {
			return model, nil
		}
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(message)
		return model, cmd

	case loginResultMsg:
		return model.handleLoginResult(message)

	case logoutResultMsg:
		return model.handleLogoutResult(message)

	case roomActivatedMsg:
		if message.view == model.view && message.err != nil {
			model.chatError = message.err.Error()
		}
		model.refreshMessages()
		return model, nil

	case roomNameMsg:
		if message.roomID == model.room.ID && message.name != "" {
			model.room.Name = message.name
		}
		return model, nil

	case roomUpdateMsg:
		if message.view != model.view {
			return model, nil
		}
		model.refreshMessages()
		return model, waitForRoomUpdate(model.view, model.viewStop)

	case sendResultMsg:
		model.sending = false
		if message.err != nil {
			model.chatError = message.err.Error()
			if model.composer.Value() == "" {
				model.composer.SetValue(message.text)
			}
		} else {
			model.chatError = ""
		}
		return model, nil

	case voiceSentMsg:
		return model.handleVoiceSent(message)

	case recorderTickMsg:
		model.elapsed = message.elapsed
		if model.config.Recorder != nil && model.config.Recorder.State() == voice.StateRecording {
			return model, waitForRecorder(model.config.Recorder)
		}
		return model, nil

	case recorderDoneMsg:
		recorder := model.config.Recorder
		if recorder != nil && recorder.State() == voice.StateRecording && recorder.Done() == message.done {
			model.stopRecording()
		}
		return model, nil

	case playbackDoneMsg:
		if message.playback == model.playback {
			model.playback = nil
			if message.err != nil {
				model.chatError = message.err.Error()
			}
		}
		return model, nil

	case logRecordMsg:
		model.status = message.summary
		model.statusLevel = message.level
		model.statusSequence++
		sequence := model.statusSequence
		return model, tea.Tick(logFadeDelay, func(time.Time) tea.Msg {
			return logFadeMsg{sequence: sequence}
		})

	case logFadeMsg:
		if message.sequence == model.statusSequence {
			model.status = ""
		}
		return model, nil
	}

	// Anything else (cursor blinks, textarea internals) goes to the
	// focused input.
	return model.updateFocusedInput(message)
}

func (model Model) updateFocusedInput(message tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch model.screen {
	case screenLogin:
		if model.loginFocus == 0 {
			model.username, cmd = model.username.Update(message)
		} else {
			model.password, cmd = model.password.Update(message)
		}
	case screenRooms:
		model.roomFilter, cmd = model.roomFilter.Update(message)
	default:
		model.composer, cmd = model.composer.Update(message)
	}
	return model, cmd
}

// View implements tea.Model.
func (model Model) View() string {
	switch model.screen {
	case screenLogin:
		return model.viewLogin()
	case screenRooms:
		return model.viewRooms()
	default:
		return model.viewChat()
	}
}

// layout sizes the viewport and composer to the terminal.
func (model *Model) layout() {
	if model.width <= 0 || model.height <= 0 {
		return
	}
	// Header, separator, voice/error line, and help line.
	chrome := 4 + composerHeight
	model.viewport.Width = model.width
	model.viewport.Height = max(model.height-chrome, 1)
	model.composer.SetWidth(model.width)
	model.roomFilter.Width = max(model.width-len(model.roomFilter.Prompt)-1, 10)
	model.renderMessages()
}

// shutdown releases the room subscription and any audio in flight.
func (model *Model) shutdown() {
	model.closeView()
	if model.playback != nil {
		model.playback.Stop()
		model.playback = nil
	}
	if model.config.Recorder != nil {
		model.config.Recorder.Reset()
	}
}

// Screen reports which screen is showing: "login", "chat", or "rooms".
func (model Model) Screen() string {
	switch model.screen {
	case screenLogin:
		return "login"
	case screenRooms:
		return "rooms"
	default:
		return "chat"
	}
}
