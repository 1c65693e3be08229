package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeReceivesPublished(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeRunStarted, Time: time.Now()})
	select {
	case ev := <-ch:
		if ev.Type != TypeRunStarted {
			t.Fatalf("event type = %q, want %q", ev.Type, TypeRunStarted)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	// Second publish overflows the buffer; it must drop, not block.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: TypeRunFinished})
		b.Publish(Event{Type: TypeRunFinished})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
}
