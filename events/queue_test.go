package events

import (
	"testing"
	"time"

	"github.com/jangala-dev/cyw43go/sdpcm"
)

func packetWithStatus(status uint32) sdpcm.EventPacket {
	return sdpcm.EventPacket{Msg: sdpcm.EventMessage{EventType: sdpcm.EventAuth, Status: status}}
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	q := New(4)
	a := q.Subscribe()
	b := q.Subscribe()

	q.Publish(packetWithStatus(1))

	for _, s := range []*Subscription{a, b} {
		select {
		case got := <-s.Events():
			if got.Msg.Status != 1 {
				t.Fatalf("got status %d, want 1", got.Msg.Status)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestLaggingSubscriberDropsOldest(t *testing.T) {
	q := New(2)
	s := q.Subscribe()

	q.Publish(packetWithStatus(1))
	q.Publish(packetWithStatus(2))
	q.Publish(packetWithStatus(3)) // inbox full, drops "1"

	if got := s.Lagged(); got != 1 {
		t.Fatalf("Lagged() = %d, want 1", got)
	}

	first := <-s.Events()
	second := <-s.Events()
	if first.Msg.Status != 2 || second.Msg.Status != 3 {
		t.Fatalf("got statuses %d, %d, want 2, 3", first.Msg.Status, second.Msg.Status)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	q := New(4)
	s := q.Subscribe()
	q.Unsubscribe(s)

	q.Publish(packetWithStatus(1))

	select {
	case got := <-s.Events():
		t.Fatalf("unexpected delivery after unsubscribe: %+v", got)
	case <-time.After(30 * time.Millisecond):
	}
}
