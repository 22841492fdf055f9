// Package events implements the lossy multi-subscriber broadcast of
// chip Event frames. Subscribers that fall behind lose their oldest
// undelivered message rather than stalling the publisher or panicking,
// mirroring the drop-oldest policy the HAL's IRQ worker applies to its
// own ISR queue, just applied per-subscriber instead of at the source.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/jangala-dev/cyw43go/sdpcm"
)

const defaultCapacity = 8

// Subscription is a single subscriber's lossy inbox.
type Subscription struct {
	ch     chan sdpcm.EventPacket
	lagged atomic.Uint32
}

func (s *Subscription) Events() <-chan sdpcm.EventPacket { return s.ch }

// Lagged reports how many events this subscriber lost to overflow.
func (s *Subscription) Lagged() uint32 { return s.lagged.Load() }

// Queue is the Runner's sole publish point; every subscribed Control
// or application task gets its own buffered channel.
type Queue struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	capacity int
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Queue{subs: map[*Subscription]struct{}{}, capacity: capacity}
}

func (q *Queue) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan sdpcm.EventPacket, q.capacity)}
	q.mu.Lock()
	q.subs[s] = struct{}{}
	q.mu.Unlock()
	return s
}

func (q *Queue) Unsubscribe(s *Subscription) {
	q.mu.Lock()
	delete(q.subs, s)
	q.mu.Unlock()
}

// Publish broadcasts evt to every current subscriber. A subscriber
// whose inbox is full has its oldest buffered event discarded to make
// room — this is the only place events are ever dropped, and it is
// always the oldest, never the newest.
func (q *Queue) Publish(evt sdpcm.EventPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for s := range q.subs {
		select {
		case s.ch <- evt:
			continue
		default:
		}
		select {
		case <-s.ch:
			s.lagged.Add(1)
		default:
		}
		select {
		case s.ch <- evt:
		default:
		}
	}
}
