// Package events fans tree changes out to in-process observers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"docuflex/internal/metrics"
)

const (
	EventCreate = "item.created"
	EventUpdate = "item.updated"
	EventDelete = "item.deleted"
)

// Event describes one published tree snapshot.
type Event struct {
	Type     string
	ItemID   string
	ParentID string
	// Removed lists every id in a deleted subtree, the item itself included.
	Removed   []string
	Timestamp int64
}

// Broadcaster manages subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	dropped     atomic.Uint64
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers without blocking. A full
// subscriber misses the event; Dropped counts every miss.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			metrics.RecordEventDropped()
		}
	}
}

// Dropped returns how many deliveries have been missed so far.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
