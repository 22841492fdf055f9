// Package runner implements the single cooperative event loop that
// exclusively owns the gSPI bus and backplane: it waits on IRQ-or-work,
// drains inbound frames, and sends exactly one pending ioctl or
// Ethernet frame per pass, per spec's concurrency model — no other
// goroutine ever touches the Bus or Backplane.
package runner

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/jangala-dev/cyw43go/events"
	"github.com/jangala-dev/cyw43go/gspi"
	"github.com/jangala-dev/cyw43go/ioctl"
	"github.com/jangala-dev/cyw43go/irqpin"
	"github.com/jangala-dev/cyw43go/netif"
	"github.com/jangala-dev/cyw43go/sdpcm"
	"github.com/jangala-dev/cyw43go/x/fmtx"
	"github.com/jangala-dev/cyw43go/x/mathx"
)

// defaultPeriodicWake matches spec §4.3's 20ms liveness/credit check;
// minPeriodicWake/maxPeriodicWake bound what WithPeriodicWake accepts
// from a caller-supplied config value.
const (
	defaultPeriodicWake = 20 * time.Millisecond
	minPeriodicWake     = 5 * time.Millisecond
	maxPeriodicWake     = 200 * time.Millisecond
)

// ioctlFlagShift places the interface index in the CdcHeader.Flags
// high bits, above the 2-bit Get/Set kind.
const ioctlFlagShift = 12

// Runner drives the chip. Bus and Backplane are passed in but never
// touched from outside this package once Run starts.
type Runner struct {
	bus *gspi.Bus
	irq *irqpin.Line

	ioctlSlot *ioctl.Slot
	eventsQ   *events.Queue
	tx        *netif.FrameQueue
	rx        *netif.FrameQueue
	state     *netif.StatePublisher

	seq           sdpcm.SeqState
	nextTurnIoctl bool // full-duplex fairness coin, starts true (ioctl first)
	periodicWake  time.Duration
}

func New(bus *gspi.Bus, irq *irqpin.Line, slot *ioctl.Slot, eventsQ *events.Queue, tx, rx *netif.FrameQueue, state *netif.StatePublisher) *Runner {
	return &Runner{
		bus: bus, irq: irq,
		ioctlSlot: slot, eventsQ: eventsQ,
		tx: tx, rx: rx, state: state,
		nextTurnIoctl: true,
		periodicWake:  defaultPeriodicWake,
	}
}

// WithPeriodicWake overrides the default 20ms liveness/credit wake
// interval, clamping d into [5ms, 200ms]. Must be called before Run.
func (r *Runner) WithPeriodicWake(d time.Duration) *Runner {
	if d != 0 {
		r.periodicWake = mathx.Clamp(d, minPeriodicWake, maxPeriodicWake)
	}
	return r
}

// Run services the chip until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.periodicWake)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.irq.Signal():
		case <-r.ioctlSlot.Pending():
		case <-r.tx.Readable():
		case <-ticker.C:
		}

		if err := r.serviceRxUntilEmpty(); err != nil {
			return err
		}
		if err := r.serviceTx(); err != nil {
			return err
		}
	}
}

// serviceRxUntilEmpty drains the chip's RX FIFO while the IRQ line
// remains asserted. A zero length or a failed len/len_inv check aborts
// the current pass without treating it as fatal.
func (r *Runner) serviceRxUntilEmpty() error {
	for r.irq.Level() {
		frame, ok, err := r.readFrame()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		parsed, ok := sdpcm.ParseFrame(frame)
		if !ok {
			fmtx.Printf("runner: dropping header-corrupt frame\n")
			return nil
		}
		r.seq.UpdateCredit(parsed.Sdpcm.BusDataCredit)
		if !r.seq.ObserveRx(parsed.Sdpcm.Sequence) {
			fmtx.Printf("runner: rx sequence mismatch (advisory)\n")
		}
		r.dispatch(parsed)
	}
	return nil
}

// readFrame performs the chip's two-phase RX read: the first 4 bytes
// carry len/len_inv, which determine how many more bytes to clock in.
func (r *Runner) readFrame() (frame []byte, ok bool, err error) {
	head, err := r.bus.ReadBytes(gspi.FuncWLAN, 0, sdpcm.SdpcmHeaderLen)
	if err != nil {
		return nil, false, err
	}
	length := binary.LittleEndian.Uint16(head[0:2])
	lengthInv := binary.LittleEndian.Uint16(head[2:4])
	if length == 0 || length^lengthInv != 0xFFFF {
		return nil, false, nil
	}
	if int(length) <= sdpcm.SdpcmHeaderLen {
		return head[:length], true, nil
	}
	rest, err := r.bus.ReadBytes(gspi.FuncWLAN, 0, int(length)-sdpcm.SdpcmHeaderLen)
	if err != nil {
		return nil, false, err
	}
	return append(head, rest...), true, nil
}

func (r *Runner) dispatch(p sdpcm.ParsedFrame) {
	switch p.Channel {
	case sdpcm.ChannelControl:
		r.dispatchControl(p.Payload)
	case sdpcm.ChannelEvent:
		r.dispatchEvent(p.Payload)
	case sdpcm.ChannelData:
		r.dispatchData(p.Payload)
	}
}

func (r *Runner) dispatchControl(payload []byte) {
	cdc, ok := sdpcm.UnpackCdcHeader(payload)
	if !ok {
		return
	}
	body := payload[sdpcm.CdcHeaderLen:]
	if int(cdc.Len) <= len(body) {
		body = body[:cdc.Len]
	}
	r.ioctlSlot.Complete(cdc.ID, ioctl.Response{Data: body, Status: cdc.Status})
}

func (r *Runner) dispatchEvent(payload []byte) {
	pkt, ok := sdpcm.UnpackEventPacket(payload)
	if !ok {
		return
	}
	r.eventsQ.Publish(pkt)
}

func (r *Runner) dispatchData(payload []byte) {
	bdc, ok := sdpcm.UnpackBdcHeader(payload)
	if !ok {
		return
	}
	off := sdpcm.BdcHeaderLen + int(bdc.DataOffset)*4
	if off > len(payload) {
		return
	}
	if !r.rx.TryWrite(payload[off:]) {
		fmtx.Printf("runner: upstream rx backpressure, dropping frame\n")
	}
}

// serviceTx sends at most one item: a pending ioctl or a credit-gated
// Ethernet frame. When both are ready, it alternates which kind goes
// first, starting with ioctl on first contention.
func (r *Runner) serviceTx() error {
	hasIoctl := r.ioctlSlot.HasPending()
	hasData := r.seq.CanSend() && r.tx.HasFrame()

	if !hasIoctl && !hasData {
		return nil
	}

	pickIoctl := hasIoctl
	if hasIoctl && hasData {
		pickIoctl = r.nextTurnIoctl
		r.nextTurnIoctl = !r.nextTurnIoctl
	}

	if pickIoctl {
		return r.sendIoctl()
	}
	return r.sendDataFrame()
}

func (r *Runner) sendIoctl() error {
	req, id, ok := r.ioctlSlot.TakePending()
	if !ok {
		return nil
	}
	flags := req.Kind | uint16(req.Iface)<<ioctlFlagShift
	frame := sdpcm.PackControlFrame(r.seq.NextTxSeq(), 0, req.Cmd, flags, id, req.Buf)
	return r.bus.WriteBytes(gspi.FuncWLAN, 0, frame)
}

func (r *Runner) sendDataFrame() error {
	eth, ok := r.tx.TryRead()
	if !ok {
		return nil
	}
	frame := sdpcm.PackDataFrame(r.seq.NextTxSeq(), 0, eth)
	return r.bus.WriteBytes(gspi.FuncWLAN, 0, frame)
}
