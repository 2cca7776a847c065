// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/roomchat/lib/ref"
)

// profileFetchTimeout bounds one profile lookup. Lookups are not tied
// to any view: a view that goes away leaves its lookups running.
const profileFetchTimeout = 15 * time.Second

// ProfileFetcher fetches one user's profile.
type ProfileFetcher func(ctx context.Context, userID ref.UserID) (Profile, error)

// ProfileDirectory caches sender profiles for the lifetime of a
// session. Each user is fetched at most once, whether the fetch
// succeeds or not; entries are never refreshed or evicted.
type ProfileDirectory struct {
	fetch  ProfileFetcher
	logger *slog.Logger

	mu        sync.Mutex
	profiles  map[ref.UserID]Profile
	requested map[ref.UserID]struct{}
	inflight  sync.WaitGroup

	subscribers registry[ref.UserID]
}

// NewProfileDirectory returns an empty directory backed by fetch.
func NewProfileDirectory(fetch ProfileFetcher, logger *slog.Logger) *ProfileDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileDirectory{
		fetch:     fetch,
		logger:    logger,
		profiles:  make(map[ref.UserID]Profile),
		requested: make(map[ref.UserID]struct{}),
	}
}

// Lookup returns the cached profile for userID.
func (d *ProfileDirectory) Lookup(userID ref.UserID) (Profile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	profile, ok := d.profiles[userID]
	return profile, ok
}

// Request starts a background fetch for userID unless one has already
// been started. Reports whether a fetch was started. Subscribers are
// notified when the result is stored.
func (d *ProfileDirectory) Request(userID ref.UserID) bool {
	if userID.IsZero() {
		return false
	}
	d.mu.Lock()
	if _, seen := d.requested[userID]; seen {
		d.mu.Unlock()
		return false
	}
	d.requested[userID] = struct{}{}
	d.inflight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), profileFetchTimeout)
		defer cancel()

		profile, err := d.fetch(ctx, userID)
		if err != nil {
			// Cached as empty: the placeholder avatar and short name
			// are used for this user until the next login.
			d.logger.Debug("profile lookup failed", "user_id", userID, "error", err)
		}
		d.store(userID, profile)
	}()
	return true
}

// RequestAll requests every user in userIDs.
func (d *ProfileDirectory) RequestAll(userIDs []ref.UserID) {
	for _, userID := range userIDs {
		d.Request(userID)
	}
}

func (d *ProfileDirectory) store(userID ref.UserID, profile Profile) {
	d.mu.Lock()
	d.profiles[userID] = profile
	d.mu.Unlock()
	d.subscribers.broadcast(userID)
}

// Subscribe registers callback for every stored profile. Callbacks
// run on the fetching goroutine.
func (d *ProfileDirectory) Subscribe(callback func(ref.UserID)) Subscription {
	return d.subscribers.add(callback)
}

// Unsubscribe removes a change subscriber.
func (d *ProfileDirectory) Unsubscribe(subscription Subscription) bool {
	return d.subscribers.remove(subscription)
}

// Wait blocks until every requested fetch has finished.
func (d *ProfileDirectory) Wait() { d.inflight.Wait() }
