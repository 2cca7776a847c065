// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/roomchat/lib/ref"
)

// RoomSource is what a RoomView needs from the service layer.
// *Service implements it.
type RoomSource interface {
	HistoricalMessages(ctx context.Context, roomID ref.RoomID, limit int) ([]Message, error)
	Subscribe(callback func(Message)) Subscription
	Unsubscribe(subscription Subscription) bool
	Profiles() *ProfileDirectory
}

// RoomViewOptions configures a RoomView.
type RoomViewOptions struct {
	// HistoryLimit is passed to HistoricalMessages. Zero uses the
	// session default.
	HistoryLimit int

	// Server resolves avatar references to URLs.
	Server string

	Logger *slog.Logger
}

// RoomView is the view model for one room: its message log, loading
// state, and last error.
//
// Activate subscribes to live messages before loading history. Live
// messages that arrive during the load are held back and appended
// after the history, skipping any the history already contains, so
// the log stays in delivery order without duplicates.
//
// The log stores messages without profile data; Messages joins it
// with the profile directory on every read. A profile that arrives
// after its sender's messages were shown triggers an update, and the
// next read carries the new name and avatar.
type RoomView struct {
	source  RoomSource
	roomID  ref.RoomID
	options RoomViewOptions
	logger  *slog.Logger

	updates chan struct{}

	mu     sync.Mutex
	active bool
	// generation changes on every Activate and Deactivate; a history
	// load applies only if it still matches.
	generation uint64
	loading    bool
	err        error
	log        []Message
	seen       map[ref.EventID]struct{}
	senders    map[ref.UserID]struct{}
	pending    []Message
	profiles   *ProfileDirectory
	liveSub    Subscription
	profileSub Subscription
}

// NewRoomView returns an inactive view of roomID.
func NewRoomView(source RoomSource, roomID ref.RoomID, options RoomViewOptions) *RoomView {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomView{
		source:  source,
		roomID:  roomID,
		options: options,
		logger:  logger.With("room_id", roomID),
		updates: make(chan struct{}, 1),
		seen:    make(map[ref.EventID]struct{}),
		senders: make(map[ref.UserID]struct{}),
	}
}

// RoomID returns the room this view follows.
func (v *RoomView) RoomID() ref.RoomID { return v.roomID }

// Activate subscribes to the room, loads its history, and requests
// the profile of every sender in it. It returns the history error, if
// any; the view stays active and keeps following live messages
// either way. Activating an active view is a no-op.
func (v *RoomView) Activate(ctx context.Context) error {
	v.mu.Lock()
	if v.active {
		v.mu.Unlock()
		return nil
	}
	v.active = true
	v.generation++
	generation := v.generation
	v.loading = true
	v.err = nil
	v.pending = nil
	profiles := v.source.Profiles()
	v.profiles = profiles
	v.mu.Unlock()

	profileSub := profiles.Subscribe(v.handleProfile)
	liveSub := v.source.Subscribe(v.handleLive)

	v.mu.Lock()
	if v.generation != generation {
		v.mu.Unlock()
		v.source.Unsubscribe(liveSub)
		profiles.Unsubscribe(profileSub)
		return nil
	}
	v.profileSub = profileSub
	v.liveSub = liveSub
	v.mu.Unlock()
	v.notify()

	history, err := v.source.HistoricalMessages(ctx, v.roomID, v.options.HistoryLimit)

	v.mu.Lock()
	if v.generation != generation {
		// Deactivated (and possibly reactivated) while loading.
		v.mu.Unlock()
		return err
	}
	v.loading = false
	v.err = err
	v.log = v.log[:0]
	clear(v.seen)
	for _, message := range history {
		v.appendLocked(message)
	}
	replayed := 0
	for _, message := range v.pending {
		if v.appendLocked(message) {
			replayed++
		}
	}
	v.pending = nil
	senders := v.senderListLocked()
	v.mu.Unlock()

	if err != nil {
		v.logger.Warn("room history unavailable", "error", err)
	} else {
		v.logger.Debug("room history loaded", "messages", len(history), "live_during_load", replayed)
	}
	profiles.RequestAll(senders)
	v.notify()
	return err
}

// Deactivate stops following the room. Profile lookups already
// started still complete into the directory but no longer notify this
// view. Safe to call on an inactive view.
func (v *RoomView) Deactivate() {
	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	v.active = false
	v.generation++
	v.loading = false
	liveSub, profileSub, profiles := v.liveSub, v.profileSub, v.profiles
	v.liveSub, v.profileSub = 0, 0
	v.mu.Unlock()

	v.source.Unsubscribe(liveSub)
	profiles.Unsubscribe(profileSub)
}

// appendLocked adds message unless its event ID is already in the
// log. Reports whether it was added.
func (v *RoomView) appendLocked(message Message) bool {
	if !message.ID.IsZero() {
		if _, duplicate := v.seen[message.ID]; duplicate {
			return false
		}
		v.seen[message.ID] = struct{}{}
	}
	v.log = append(v.log, message)
	v.senders[message.Sender] = struct{}{}
	return true
}

func (v *RoomView) senderListLocked() []ref.UserID {
	senders := make([]ref.UserID, 0, len(v.senders))
	for sender := range v.senders {
		senders = append(senders, sender)
	}
	return senders
}

func (v *RoomView) handleLive(message Message) {
	if message.RoomID != v.roomID {
		return
	}

	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	if v.loading {
		v.pending = append(v.pending, message)
		v.mu.Unlock()
		return
	}
	added := v.appendLocked(message)
	profiles := v.profiles
	v.mu.Unlock()

	if added {
		profiles.Request(message.Sender)
		v.notify()
	}
}

func (v *RoomView) handleProfile(userID ref.UserID) {
	v.mu.Lock()
	_, relevant := v.senders[userID]
	relevant = relevant && v.active
	v.mu.Unlock()
	if relevant {
		v.notify()
	}
}

// notify signals Updates without blocking. Signals coalesce: a reader
// that falls behind sees one pending update.
func (v *RoomView) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}

// Updates delivers a signal whenever the log, loading state, error, or
// a sender profile changes. Call Messages to read the new state.
func (v *RoomView) Updates() <-chan struct{} { return v.updates }

// Messages returns the log in order, each message stamped with its
// sender's current display name and avatar URL.
func (v *RoomView) Messages() []Message {
	v.mu.Lock()
	messages := make([]Message, len(v.log))
	copy(messages, v.log)
	profiles := v.profiles
	v.mu.Unlock()

	for index := range messages {
		var profile Profile
		if profiles != nil {
			profile, _ = profiles.Lookup(messages[index].Sender)
		}
		messages[index].DisplayName = profile.DisplayName
		if messages[index].DisplayName == "" {
			messages[index].DisplayName = ShortName(messages[index].Sender)
		}
		messages[index].AvatarURL = AvatarURL(messages[index].Sender, profile.AvatarURL, v.options.Server)
	}
	return messages
}

// Loading reports whether the history load is in progress.
func (v *RoomView) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Err returns the history load error, if any.
func (v *RoomView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Active reports whether the view is following its room.
func (v *RoomView) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}
