// Package irqpin adapts a single GPIO interrupt line — the CYW43xxx's
// host-wake / SPI-IRQ pin — into a channel the runner can select on,
// the same ISR-to-channel shape the HAL's gpioirq worker uses for its
// device inputs, narrowed to one pin with no per-device registry.
package irqpin

import (
	"context"
	"sync/atomic"
)

// Pin is the subset of a GPIO input the driver needs from the host
// platform: a level read and an edge-triggered interrupt hook. It is
// satisfied by a thin wrapper around tinygo.org/x/drivers/machine-style
// pins; tests substitute a software-driven fake.
type Pin interface {
	Get() bool
	SetIRQ(rising bool, handler func()) error
	ClearIRQ() error
}

// Line turns a rising-edge interrupt on Pin into a buffered, ISR-safe
// signal channel. The ISR handler never blocks: a full channel just
// increments a drop counter, because the runner treats the signal as a
// level ("there is work pending"), not an edge count, so a coalesced
// wake is never lost information.
type Line struct {
	pin    Pin
	sig    chan struct{}
	drops  uint32
	active atomic.Bool
}

// New arms rising-edge notification on pin and returns the Line.
func New(pin Pin) (*Line, error) {
	l := &Line{pin: pin, sig: make(chan struct{}, 1)}
	if err := pin.SetIRQ(true, l.handleISR); err != nil {
		return nil, err
	}
	l.active.Store(true)
	return l, nil
}

func (l *Line) handleISR() {
	select {
	case l.sig <- struct{}{}:
	default:
		atomic.AddUint32(&l.drops, 1)
	}
}

// Signal is the channel the runner selects on. A receive means "check
// the pin level and the bus status register again"; it carries no
// payload because coalesced wakeups must never be trusted to mean
// exactly one pending event.
func (l *Line) Signal() <-chan struct{} { return l.sig }

// Level reads the current pin state directly, bypassing the interrupt
// path. The runner uses this after waking for any reason to decide
// whether IRQ-driven work remains.
func (l *Line) Level() bool { return l.pin.Get() }

// WaitForHigh blocks until the pin reads high or ctx is done, servicing
// both the edge-triggered fast path and a level check for the case
// where the line was already high before the wait began.
func (l *Line) WaitForHigh(ctx context.Context) error {
	if l.Level() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.sig:
			if l.Level() {
				return nil
			}
		}
	}
}

// Drops reports interrupts that arrived while the signal channel was
// already full and had to be coalesced away.
func (l *Line) Drops() uint32 { return atomic.LoadUint32(&l.drops) }

// Close disarms the interrupt. The Line must not be used afterward.
func (l *Line) Close() error {
	if !l.active.CompareAndSwap(true, false) {
		return nil
	}
	return l.pin.ClearIRQ()
}
