/*
 * Vaultkeeper
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package events provides the multicast bus carrying authentication and
// certificate lifecycle events. Dispatch is synchronous on the publishing
// goroutine; integrators that want asynchronous fan-out wrap their listener
// in a buffered channel.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Listener consumes events of type E.
type Listener[E any] func(event E)

// ErrorListener consumes typed error events.
type ErrorListener func(err error)

// Bus multicasts events to zero or more listeners. Listeners added after an
// event was published do not see it. A listener panicking does not prevent
// other listeners from receiving the event and does not propagate to the
// publisher.
//
// The listener set is copy-on-write: dispatch iterates a snapshot, so
// listeners may subscribe or unsubscribe from within a callback.
type Bus[E any] struct {
	log *slog.Logger

	mu           sync.Mutex
	nextID       int
	listeners    map[int]Listener[E]
	errListeners map[int]ErrorListener
}

// NewBus creates a bus. A nil logger defaults to [slog.Default]; the logger
// backs the default error listener and panic reports.
func NewBus[E any](log *slog.Logger) *Bus[E] {
	if log == nil {
		log = slog.Default()
	}
	return &Bus[E]{
		log:          log,
		listeners:    make(map[int]Listener[E]),
		errListeners: make(map[int]ErrorListener),
	}
}

// Subscribe registers a listener for every event published after this call.
// The returned function removes it.
func (b *Bus[E]) Subscribe(l Listener[E]) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// SubscribeErrors registers a listener for error events. While no error
// listener is registered, published errors are logged at warn severity and
// swallowed.
func (b *Bus[E]) SubscribeErrors(l ErrorListener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.errListeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.errListeners, id)
	}
}

// Publish dispatches the event to every current listener. Dispatch order
// among listeners is unspecified but total for a single event.
func (b *Bus[E]) Publish(event E) {
	for _, l := range b.snapshot() {
		b.dispatch(func() { l(event) })
	}
}

// PublishError dispatches a typed error event to the error listeners, or to
// the default warn-logging listener when none are registered.
func (b *Bus[E]) PublishError(err error) {
	listeners := b.errSnapshot()
	if len(listeners) == 0 {
		b.log.WarnContext(context.Background(), "Unhandled error event", "error", err)
		return
	}
	for _, l := range listeners {
		b.dispatch(func() { l(err) })
	}
}

func (b *Bus[E]) dispatch(f func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WarnContext(context.Background(), "Event listener panicked", "panic", r)
		}
	}()
	f()
}

func (b *Bus[E]) snapshot() []Listener[E] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Listener[E], 0, len(b.listeners))
	for _, l := range b.listeners {
		out = append(out, l)
	}
	return out
}

func (b *Bus[E]) errSnapshot() []ErrorListener {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ErrorListener, 0, len(b.errListeners))
	for _, l := range b.errListeners {
		out = append(out, l)
	}
	return out
}
