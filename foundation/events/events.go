// Package events fans mining and chain notifications out to any number of
// subscribers, such as websocket clients of the node.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// messageBuffer is how many messages a subscriber can fall behind before
// new messages are dropped for it.
const messageBuffer = 100

// Events maintains the set of subscribers.
type Events struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]chan string
}

// New constructs an events value for subscribing and receiving messages.
func New() *Events {
	return &Events{
		subs: make(map[uuid.UUID]chan string),
	}
}

// Subscribe registers a new subscriber and returns its id along with the
// channel messages are delivered on.
func (evt *Events) Subscribe() (uuid.UUID, <-chan string) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	id := uuid.New()
	ch := make(chan string, messageBuffer)
	evt.subs[id] = ch

	return id, ch
}

// Unsubscribe closes and removes the subscriber's channel.
func (evt *Events) Unsubscribe(id uuid.UUID) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.subs[id]
	if !exists {
		return fmt.Errorf("subscriber %q does not exist", id)
	}

	delete(evt.subs, id)
	close(ch)

	return nil
}

// Count returns the number of subscribers.
func (evt *Events) Count() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.subs)
}

// Send delivers the message to every subscriber. Send never blocks; a
// subscriber whose buffer is full misses the message.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Shutdown closes and removes every subscriber.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.subs {
		delete(evt.subs, id)
		close(ch)
	}
}
