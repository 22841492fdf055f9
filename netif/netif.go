// Package netif exposes the driver's upstream network interface: a
// pair of length-prefixed Ethernet frame queues built on a lock-free
// SPSC byte ring (x/shmring), plus a link-state/MAC signal the runner
// publishes as it associates and disassociates.
package netif

import (
	"encoding/binary"

	"github.com/jangala-dev/cyw43go/x/shmring"
)

// LinkState mirrors spec §3's link-state enum, owned by the runner.
type LinkState int

const (
	LinkDown LinkState = iota
	LinkUp
)

func (s LinkState) String() string {
	if s == LinkUp {
		return "up"
	}
	return "down"
}

const lengthPrefixSize = 2 // frames are well under 1518 bytes, fits a uint16

// FrameQueue is a single-producer/single-consumer queue of Ethernet
// frames, length-prefixed on top of a raw shmring.Ring so the existing
// edge-coalesced Readable()/Writable() notifications keep working
// unmodified.
type FrameQueue struct {
	ring *shmring.Ring
}

// NewFrameQueue allocates a queue backed by a byte ring of the given
// power-of-two capacity in bytes.
func NewFrameQueue(capacityBytes int) *FrameQueue {
	return &FrameQueue{ring: shmring.New(capacityBytes)}
}

// Readable/Writable forward the ring's edge-coalesced notifications so
// the Runner's multi-wait can select directly on frame availability.
func (q *FrameQueue) Readable() <-chan struct{} { return q.ring.Readable() }
func (q *FrameQueue) Writable() <-chan struct{} { return q.ring.Writable() }

// TryWrite enqueues frame if there is room for its length prefix plus
// body; it reports false (no partial write) if the ring doesn't have
// space right now.
func (q *FrameQueue) TryWrite(frame []byte) bool {
	need := lengthPrefixSize + len(frame)
	if q.ring.Space() < need {
		return false
	}
	var prefix [lengthPrefixSize]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(frame)))
	if q.ring.TryWriteFrom(prefix[:]) != lengthPrefixSize {
		return false
	}
	q.ring.TryWriteFrom(frame)
	return true
}

// TryRead dequeues the next whole frame, if one is fully buffered. It
// never partially consumes a frame: if only a prefix (or a partial
// body) is available, it returns false and leaves the ring untouched.
func (q *FrameQueue) TryRead() ([]byte, bool) {
	avail := q.ring.Available()
	if avail < lengthPrefixSize {
		return nil, false
	}
	p1, p2 := q.ring.ReadAcquire()
	prefix := peek(p1, p2, 0, lengthPrefixSize)
	frameLen := int(binary.LittleEndian.Uint16(prefix))
	total := lengthPrefixSize + frameLen
	if avail < total {
		return nil, false
	}
	frame := peek(p1, p2, lengthPrefixSize, total)
	out := append([]byte(nil), frame...)
	q.ring.ReadRelease(total)
	return out, true
}

// peek copies bytes [from, to) out of the two contiguous spans a
// ReadAcquire call returned, without committing anything.
func peek(p1, p2 []byte, from, to int) []byte {
	out := make([]byte, to-from)
	n := copy(out, sliceSpans(p1, p2, from, to))
	return out[:n]
}

// sliceSpans views [from,to) across the virtual concatenation of p1
// and p2 as a single slice when it falls entirely within one of them,
// and copies across the boundary otherwise.
func sliceSpans(p1, p2 []byte, from, to int) []byte {
	if to <= len(p1) {
		return p1[from:to]
	}
	if from >= len(p1) {
		return p2[from-len(p1) : to-len(p1)]
	}
	out := make([]byte, to-from)
	n := copy(out, p1[from:])
	copy(out[n:], p2[:to-len(p1)])
	return out
}

// HasFrame reports whether a full frame is currently buffered, without
// consuming it. Used by the runner to decide transmit-side fairness
// before committing to a read.
func (q *FrameQueue) HasFrame() bool {
	avail := q.ring.Available()
	if avail < lengthPrefixSize {
		return false
	}
	p1, p2 := q.ring.ReadAcquire()
	prefix := peek(p1, p2, 0, lengthPrefixSize)
	frameLen := int(binary.LittleEndian.Uint16(prefix))
	return avail >= lengthPrefixSize+frameLen
}

// State carries the runner's published link status and MAC address.
type State struct {
	Link LinkState
	MAC  [6]byte
}

// StatePublisher is a latest-value-wins broadcast of State: readers
// get the most recent value, never a backlog of every transition.
type StatePublisher struct {
	ch chan State
}

func NewStatePublisher() *StatePublisher {
	return &StatePublisher{ch: make(chan State, 1)}
}

// Set publishes a new state, discarding any unread previous value.
func (p *StatePublisher) Set(s State) {
	for {
		select {
		case p.ch <- s:
			return
		default:
		}
		select {
		case <-p.ch:
		default:
		}
	}
}

// Updates is the channel consumers read from.
func (p *StatePublisher) Updates() <-chan State { return p.ch }
