package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()

	sub := b.Subscribe()
	b.Publish(EventFileCreated, "a/b.txt", "")

	select {
	case event := <-sub:
		if event.Type != EventFileCreated {
			t.Errorf("type = %s", event.Type)
		}
		if event.Path != "a/b.txt" {
			t.Errorf("path = %s", event.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	b.Stop()
}

func TestStopDrainsAndCloses(t *testing.T) {
	b := NewBroker()
	b.Start()

	sub := b.Subscribe()
	b.Publish(EventRunCompleted, "", "done")
	b.Stop()

	// The buffered event is still delivered, then the channel closes.
	var got []*Event
	for event := range sub {
		got = append(got, event)
	}
	if len(got) != 1 || got[0].Type != EventRunCompleted {
		t.Errorf("events = %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	if _, ok := <-sub; ok {
		t.Error("unsubscribed channel should be closed")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker() // not started: nothing drains eventCh

	for i := 0; i < 500; i++ {
		b.Publish(EventFileUpdated, "x", "")
	}
	// Reaching here without deadlock is the assertion.
}
