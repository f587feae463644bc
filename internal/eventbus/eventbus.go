// Package eventbus fans session events out to live subscribers such as SSE
// streams.
package eventbus

import (
	"sync"

	"github.com/comigor/writer-chat/internal/chat"
)

const subscriberBuffer = 16

// Bus is an in-memory chat.Notifier with per-session subscriptions.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan chat.Event
}

var _ chat.Notifier = (*Bus)(nil)

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]chan chat.Event)}
}

// Subscribe returns a channel receiving the session's events until Unsubscribe.
func (b *Bus) Subscribe(sessionID string) chan chat.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan chat.Event, subscriberBuffer)
	b.subs[sessionID] = append(b.subs[sessionID], ch)
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(sessionID string, ch chan chat.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sessionID]
	for i, s := range subs {
		if s == ch {
			b.subs[sessionID] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
			return
		}
	}
}

// Close unsubscribes every subscriber of a session.
func (b *Bus) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[sessionID] {
		close(ch)
	}
	delete(b.subs, sessionID)
}

// Publish delivers ev to the session's subscribers without blocking.
func (b *Bus) Publish(sessionID string, ev chat.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[sessionID] {
		select {
		case ch <- ev:
		default:
			// Drop event if subscriber is too slow.
		}
	}
}
