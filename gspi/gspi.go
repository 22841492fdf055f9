// Package gspi implements the CYW43xxx gSPI bus transport: 32-bit
// command-word framing over a half-duplex SPI link, the chip's three
// backplane functions (F0 bus registers, F1 backplane data, F2 DMA
// data), and little-endian word/byte transfers on top of a
// caller-supplied duplex transport.
package gspi

import "errors"

// Function selects one of the chip's gSPI function spaces.
type Function uint8

const (
	FuncBus       Function = 0 // F0: SPI bus registers (bus control, interrupt status)
	FuncBackplane Function = 1 // F1: backplane register/memory window
	FuncWLAN      Function = 2 // F2: WLAN DMA data FIFO
)

// Transport is the duplex byte-shuffling primitive the bus needs from
// the host platform: assert chip-select, clock len bytes in both
// directions, deassert. It is deliberately narrower than
// tinygo.org/x/drivers.SPI so a single hardware SPI peripheral plus a
// manually-driven CS pin satisfies it without adapting the whole
// driver interface.
type Transport interface {
	// Transfer clocks out tx and simultaneously clocks in len(tx) bytes,
	// framed by driving CS low for the duration of the call.
	Transfer(tx []byte) (rx []byte, err error)
}

var ErrShortFrame = errors.New("gspi: short transfer")

// Bus is the gSPI command/response framer. It owns no concurrency
// primitives of its own — the runner is the bus's only caller, exactly
// as the backplane above it assumes exclusive access.
type Bus struct {
	t Transport
}

func New(t Transport) *Bus { return &Bus{t: t} }

// cmd builds the 32-bit little-endian command word that precedes every
// gSPI transfer: write flag, auto-increment flag, function select,
// 17-bit address and 11-bit length.
func cmd(write, autoIncrement bool, fn Function, addr uint32, length uint16) uint32 {
	var w, ai uint32
	if write {
		w = 1
	}
	if autoIncrement {
		ai = 1
	}
	return (w << 31) | (ai << 30) | (uint32(fn&0xF) << 28) | ((addr & 0x1FFFF) << 11) | (uint32(length) & 0x7FF)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// ReadBytes performs a read of n bytes from fn at addr, auto-
// incrementing through addr..addr+n-1.
func (b *Bus) ReadBytes(fn Function, addr uint32, n int) ([]byte, error) {
	header := make([]byte, 4)
	putLE32(header, cmd(false, true, fn, addr, uint16(n)))
	tx := append(header, make([]byte, n)...)
	rx, err := b.t.Transfer(tx)
	if err != nil {
		return nil, err
	}
	if len(rx) < len(tx) {
		return nil, ErrShortFrame
	}
	return rx[4:], nil
}

// WriteBytes writes data to fn at addr, auto-incrementing through
// addr..addr+len(data)-1.
func (b *Bus) WriteBytes(fn Function, addr uint32, data []byte) error {
	header := make([]byte, 4)
	putLE32(header, cmd(true, true, fn, addr, uint16(len(data))))
	tx := append(header, data...)
	_, err := b.t.Transfer(tx)
	return err
}

// Read32 reads a single 32-bit little-endian word from fn at addr.
func (b *Bus) Read32(fn Function, addr uint32) (uint32, error) {
	data, err := b.ReadBytes(fn, addr, 4)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, ErrShortFrame
	}
	return getLE32(data), nil
}

// Write32 writes a single 32-bit little-endian word to fn at addr.
func (b *Bus) Write32(fn Function, addr uint32, v uint32) error {
	data := make([]byte, 4)
	putLE32(data, v)
	return b.WriteBytes(fn, addr, data)
}

// Read8 reads a single byte from fn at addr. addr is used as given;
// backplane callers pass the in-window offset from
// backplane.Backplane.selectWindow, with the 32-bit-access bit clear.
func (b *Bus) Read8(fn Function, addr uint32) (uint8, error) {
	data, err := b.ReadBytes(fn, addr, 1)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, ErrShortFrame
	}
	return data[0], nil
}

// Write8 writes a single byte to fn at addr.
func (b *Bus) Write8(fn Function, addr uint32, v uint8) error {
	return b.WriteBytes(fn, addr, []byte{v})
}
