// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "sync"

// Subscription identifies a registered handler. The zero value is
// never issued.
type Subscription uint64

type handler[T any] struct {
	id       Subscription
	callback func(T)
}

// registry is an ordered handler set with hooks on the empty ↔
// non-empty transitions. onFirst runs when the first handler is added
// and onEmpty when the last is removed; both run under the registry
// lock, so attach and detach never interleave.
type registry[T any] struct {
	mu       sync.Mutex
	next     Subscription
	handlers []handler[T]
	onFirst  func()
	onEmpty  func()
}

func (r *registry[T]) add(callback func(T)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.handlers = append(r.handlers, handler[T]{id: r.next, callback: callback})
	if len(r.handlers) == 1 && r.onFirst != nil {
		r.onFirst()
	}
	return r.next
}

// remove reports whether id was registered.
func (r *registry[T]) remove(id Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for index, registered := range r.handlers {
		if registered.id != id {
			continue
		}
		r.handlers = append(r.handlers[:index], r.handlers[index+1:]...)
		if len(r.handlers) == 0 && r.onEmpty != nil {
			r.onEmpty()
		}
		return true
	}
	return false
}

func (r *registry[T]) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handlers) == 0 {
		return
	}
	r.handlers = nil
	if r.onEmpty != nil {
		r.onEmpty()
	}
}

func (r *registry[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// broadcast calls every handler registered at the time of the call,
// in registration order, outside the lock.
func (r *registry[T]) broadcast(value T) {
	r.mu.Lock()
	snapshot := make([]handler[T], len(r.handlers))
	copy(snapshot, r.handlers)
	r.mu.Unlock()

	for _, registered := range snapshot {
		registered.callback(value)
	}
}
