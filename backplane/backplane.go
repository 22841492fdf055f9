// Package backplane presents the chip's AXI backplane as flat
// 8/16/32-bit reads and writes at arbitrary 32-bit addresses, hiding
// the gSPI bus's 32 KiB windowed addressing (F1) behind a cached
// window base, and drives firmware upload over the same window.
package backplane

import (
	"github.com/jangala-dev/cyw43go/errcode"
	"github.com/jangala-dev/cyw43go/gspi"
	"github.com/jangala-dev/cyw43go/x/fmtx"
)

const (
	windowMask  = 0x7FFF
	windowWidth = uint32(windowMask + 1)

	// SBSDIO_FUNCTION2_WATERMARK… — the three F1 byte registers that
	// select the visible 32 KiB backplane window, written low/mid/high.
	regWindowLow  = 0x1000A
	regWindowMid  = 0x1000B
	regWindowHigh = 0x1000C

	// sizeBit32 marks an F1 offset as a 32-bit-wide access.
	sizeBit32 = 1 << 15

	chunkSize = 64 // firmware upload chunk size
)

// Backplane is the sole owner of the window-base cache; callers other
// than the runner must never touch it concurrently with the bus.
type Backplane struct {
	bus    *gspi.Bus
	window uint32 // cached window base, or ^uint32(0) before first access
}

func New(bus *gspi.Bus) *Backplane {
	return &Backplane{bus: bus, window: ^uint32(0)}
}

func (b *Backplane) selectWindow(addr uint32) (offset uint32, err error) {
	window := addr &^ windowMask
	if window != b.window {
		if err := b.bus.Write8(gspi.FuncBackplane, regWindowLow, uint8(window>>8)); err != nil {
			return 0, err
		}
		if err := b.bus.Write8(gspi.FuncBackplane, regWindowMid, uint8(window>>16)); err != nil {
			return 0, err
		}
		if err := b.bus.Write8(gspi.FuncBackplane, regWindowHigh, uint8(window>>24)); err != nil {
			return 0, err
		}
		b.window = window
	}
	return addr & windowMask, nil
}

func (b *Backplane) Read8(addr uint32) (uint8, error) {
	off, err := b.selectWindow(addr)
	if err != nil {
		return 0, err
	}
	return b.bus.Read8(gspi.FuncBackplane, off)
}

func (b *Backplane) Write8(addr uint32, v uint8) error {
	off, err := b.selectWindow(addr)
	if err != nil {
		return err
	}
	return b.bus.Write8(gspi.FuncBackplane, off, v)
}

func (b *Backplane) Read16(addr uint32) (uint16, error) {
	off, err := b.selectWindow(addr)
	if err != nil {
		return 0, err
	}
	data, err := b.bus.ReadBytes(gspi.FuncBackplane, off, 2)
	if err != nil {
		return 0, err
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

func (b *Backplane) Write16(addr uint32, v uint16) error {
	off, err := b.selectWindow(addr)
	if err != nil {
		return err
	}
	return b.bus.WriteBytes(gspi.FuncBackplane, off, []byte{byte(v), byte(v >> 8)})
}

func (b *Backplane) Read32(addr uint32) (uint32, error) {
	off, err := b.selectWindow(addr)
	if err != nil {
		return 0, err
	}
	return b.bus.Read32(gspi.FuncBackplane, off|sizeBit32)
}

func (b *Backplane) Write32(addr uint32, v uint32) error {
	off, err := b.selectWindow(addr)
	if err != nil {
		return err
	}
	return b.bus.Write32(gspi.FuncBackplane, off|sizeBit32, v)
}

// Write writes data starting at addr, crossing window boundaries as
// needed. Used for firmware upload and any other bulk transfer.
func (b *Backplane) Write(addr uint32, data []byte) error {
	for len(data) > 0 {
		off, err := b.selectWindow(addr)
		if err != nil {
			return err
		}
		room := windowWidth - off
		n := uint32(len(data))
		if n > room {
			n = room
		}
		if err := b.bus.WriteBytes(gspi.FuncBackplane, off|sizeBit32, data[:n]); err != nil {
			return err
		}
		addr += n
		data = data[n:]
	}
	return nil
}

// Read reads n bytes starting at addr, crossing window boundaries as
// needed.
func (b *Backplane) Read(addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		off, err := b.selectWindow(addr)
		if err != nil {
			return nil, err
		}
		room := int(windowWidth - off)
		want := n - len(out)
		if want > room {
			want = room
		}
		data, err := b.bus.ReadBytes(gspi.FuncBackplane, off|sizeBit32, want)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		addr += uint32(want)
	}
	return out, nil
}

// ChipControl is the backplane register layout needed to release the
// ARM core and observe clock readiness; addresses are device-specific
// constants supplied by the caller (they differ between CYW4343x and
// CYW4373x variants).
type ChipControl struct {
	RAMBase        uint32
	ResetVectorReg uint32
	ArmCtrlReg     uint32
	ArmCtrlRun     uint32 // value that releases the ARM core from reset
	ClockCSRReg    uint32
	ClockHTAvail   uint32 // bitmask indicating the HT clock is available
}

// UploadFirmware writes fw to RAMBase in 64-byte chunks, verifies up to
// 1 KiB of it by read-back, clears the reset vector, releases the ARM
// core, then polls the clock-status register until the HT clock is up.
func (b *Backplane) UploadFirmware(cc ChipControl, fw []byte, pollHT func() (bool, error)) error {
	addr := cc.RAMBase
	for off := 0; off < len(fw); off += chunkSize {
		end := off + chunkSize
		if end > len(fw) {
			end = len(fw)
		}
		if err := b.Write(addr+uint32(off), fw[off:end]); err != nil {
			return &errcode.E{C: errcode.BusWedged, Op: fmtx.Sprintf("firmware chunk at %#x", off), Err: err}
		}
	}

	verifyLen := 1024
	if verifyLen > len(fw) {
		verifyLen = len(fw)
	}
	got, err := b.Read(cc.RAMBase, verifyLen)
	if err != nil {
		return &errcode.E{C: errcode.BusWedged, Op: "firmware readback", Err: err}
	}
	for i, want := range fw[:verifyLen] {
		if got[i] != want {
			return &errcode.E{C: errcode.BusWedged, Op: "firmware readback", Msg: fmtx.Sprintf("mismatch at offset %d: got %#x want %#x", i, got[i], want)}
		}
	}

	if err := b.Write32(cc.ResetVectorReg, 0); err != nil {
		return &errcode.E{C: errcode.BusWedged, Op: "clear reset vector", Err: err}
	}
	if err := b.Write32(cc.ArmCtrlReg, cc.ArmCtrlRun); err != nil {
		return &errcode.E{C: errcode.BusWedged, Op: "release ARM core", Err: err}
	}

	const maxPolls = 1000
	for i := 0; i < maxPolls; i++ {
		ready, err := pollHT()
		if err != nil {
			return &errcode.E{C: errcode.BusWedged, Op: "HT clock poll", Err: err}
		}
		if ready {
			return nil
		}
	}
	return &errcode.E{C: errcode.BusWedged, Op: "HT clock poll", Msg: fmtx.Sprintf("never available after %d polls", maxPolls)}
}
