package runner

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/jangala-dev/cyw43go/events"
	"github.com/jangala-dev/cyw43go/gspi"
	"github.com/jangala-dev/cyw43go/ioctl"
	"github.com/jangala-dev/cyw43go/irqpin"
	"github.com/jangala-dev/cyw43go/netif"
	"github.com/jangala-dev/cyw43go/sdpcm"
)

// fakeChip is a minimal F2-FIFO model: writes are captured for
// inspection, reads serve queued response frames.
type fakeChip struct {
	written  [][]byte
	rxQueue  [][]byte
	rxOffset int
}

func (c *fakeChip) Transfer(tx []byte) ([]byte, error) {
	cmdWord := binary.LittleEndian.Uint32(tx[0:4])
	write := cmdWord&(1<<31) != 0
	length := int(cmdWord & 0x7FF)
	rx := make([]byte, len(tx))
	if write {
		c.written = append(c.written, append([]byte(nil), tx[4:4+length]...))
		return rx, nil
	}
	if len(c.rxQueue) == 0 {
		return rx, nil // all zero -> len == 0, readFrame sees "nothing pending"
	}
	data := c.rxQueue[0]
	n := copy(rx[4:], data[c.rxOffset:])
	c.rxOffset += n
	if c.rxOffset >= len(data) {
		c.rxQueue = c.rxQueue[1:]
		c.rxOffset = 0
	}
	return rx, nil
}

type fakeIRQPin struct {
	chip *fakeChip
}

func (p *fakeIRQPin) Get() bool           { return len(p.chip.rxQueue) > 0 }
func (p *fakeIRQPin) SetIRQ(bool, func()) error { return nil }
func (p *fakeIRQPin) ClearIRQ() error           { return nil }

func newHarness(t *testing.T) (*Runner, *fakeChip, *ioctl.Slot, *events.Queue, *netif.FrameQueue, *netif.FrameQueue) {
	t.Helper()
	chip := &fakeChip{}
	bus := gspi.New(chip)
	irqLine, err := irqpin.New(&fakeIRQPin{chip: chip})
	if err != nil {
		t.Fatalf("irqpin.New: %v", err)
	}
	slot := ioctl.New()
	eventsQ := events.New(4)
	tx := netif.NewFrameQueue(256)
	rx := netif.NewFrameQueue(256)
	state := netif.NewStatePublisher()
	r := New(bus, irqLine, slot, eventsQ, tx, rx, state)
	return r, chip, slot, eventsQ, tx, rx
}

func TestRunnerSendsIoctlAndDeliversResponse(t *testing.T) {
	r, chip, slot, _, _, _ := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	reqDone := make(chan ioctl.Response, 1)
	go func() {
		resp, err := slot.Do(context.Background(), ioctl.Request{Cmd: 262, Kind: sdpcm.CdcFlagGet, Buf: []byte("bus:txglom\x00\x00\x00\x00")})
		if err != nil {
			t.Errorf("Do: %v", err)
			return
		}
		reqDone <- resp
	}()

	// Wait until the runner has written the ioctl frame, then craft and
	// queue the chip's CDC response using the id the runner assigned.
	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for runner to send ioctl")
		default:
		}
		chipWrites := len(chip.written)
		if chipWrites > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	sent := chip.written[0]
	parsed, ok := sdpcm.ParseFrame(sent)
	if !ok {
		t.Fatal("ParseFrame failed on the frame the runner sent")
	}
	cdc, ok := sdpcm.UnpackCdcHeader(parsed.Payload)
	if !ok {
		t.Fatal("UnpackCdcHeader failed")
	}

	respCdc := sdpcm.CdcHeader{Cmd: cdc.Cmd, Len: 0, Flags: cdc.Flags, ID: cdc.ID, Status: 0}
	respFrame := sdpcm.PackControlFrame(0, 1, respCdc.Cmd, respCdc.Flags, respCdc.ID, nil)
	chip.rxQueue = append(chip.rxQueue, respFrame)

	select {
	case resp := <-reqDone:
		if resp.Status != 0 {
			t.Fatalf("resp.Status = %d, want 0", resp.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ioctl completion")
	}
}

func TestRunnerDeliversEventToSubscriber(t *testing.T) {
	r, chip, _, eventsQ, _, _ := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := eventsQ.Subscribe()

	pkt := sdpcm.EventPacket{
		Eth: sdpcm.EthernetHeader{EtherType: 0x886C},
		Hdr: sdpcm.EventHeader{Subtype: 1, Length: sdpcm.EventMessageLen},
		Msg: sdpcm.EventMessage{EventType: sdpcm.EventJoin, Status: 0},
	}
	frame := sdpcm.PackEventFrame(0, 1, pkt)
	chip.rxQueue = append(chip.rxQueue, frame)

	go r.Run(ctx)

	select {
	case got := <-sub.Events():
		if got.Msg.EventType != sdpcm.EventJoin {
			t.Fatalf("EventType = %d, want %d", got.Msg.EventType, sdpcm.EventJoin)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event delivery")
	}
}

func TestRunnerDeliversDataFrameUpstream(t *testing.T) {
	r, chip, _, _, _, rx := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eth := bytes.Repeat([]byte{0x42}, 60)
	bdc := sdpcm.NewBdcHeader()
	body := append(bdc.Pack(), eth...)
	hdr := sdpcm.SdpcmHeader{ChannelAndFlags: uint8(sdpcm.ChannelData), HeaderLength: sdpcm.SdpcmHeaderLen}
	frame := append(hdr.Pack(), body...)
	for len(frame)%4 != 0 {
		frame = append(frame, 0)
	}
	hdrFinal := hdr
	hdrFinal.Len = uint16(len(frame))
	hdrFinal.LenInv = ^hdrFinal.Len
	copy(frame[:sdpcm.SdpcmHeaderLen], hdrFinal.Pack())
	chip.rxQueue = append(chip.rxQueue, frame)

	go r.Run(ctx)

	deadline := time.After(time.Second)
	for {
		if got, ok := rx.TryRead(); ok {
			if !bytes.Equal(got, eth) {
				t.Fatalf("got %v, want %v", got, eth)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for upstream data frame")
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func TestWithPeriodicWakeClamps(t *testing.T) {
	r, _, _, _, _, _ := newHarness(t)
	if r.periodicWake != defaultPeriodicWake {
		t.Fatalf("periodicWake = %v, want default %v", r.periodicWake, defaultPeriodicWake)
	}
	r.WithPeriodicWake(time.Millisecond)
	if r.periodicWake != minPeriodicWake {
		t.Fatalf("periodicWake = %v, want clamped min %v", r.periodicWake, minPeriodicWake)
	}
	r.WithPeriodicWake(time.Second)
	if r.periodicWake != maxPeriodicWake {
		t.Fatalf("periodicWake = %v, want clamped max %v", r.periodicWake, maxPeriodicWake)
	}
	r.WithPeriodicWake(0)
	if r.periodicWake != maxPeriodicWake {
		t.Fatalf("periodicWake = %v, want unchanged %v after zero-value call", r.periodicWake, maxPeriodicWake)
	}
}
