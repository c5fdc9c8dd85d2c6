package events

import (
	"testing"
	"time"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	b.Unsubscribe(ch2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: EventDelete, ItemID: "folder-legal", Removed: []string{"folder-legal", "doc-nda"}})

	select {
	case received := <-ch:
		if received.Type != EventDelete {
			t.Fatalf("expected type %s, got %s", EventDelete, received.Type)
		}
		if len(received.Removed) != 2 {
			t.Fatalf("expected 2 removed ids, got %v", received.Removed)
		}
		if received.Timestamp == 0 {
			t.Fatal("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: EventUpdate, ItemID: "root"})
	}

	if len(ch) != cap(ch) {
		t.Fatalf("expected buffered channel to be full (%d), got %d", cap(ch), len(ch))
	}
	if want := uint64(100 - cap(ch)); b.Dropped() != want {
		t.Fatalf("expected %d dropped deliveries, got %d", want, b.Dropped())
	}
}
