package gspi

import (
	"bytes"
	"testing"
)

// fakeTransport models backplane register storage addressed by the
// command word's address field, enough to exercise read/write
// round-trips without real silicon.
type fakeTransport struct {
	mem map[uint32][]byte
}

func newFakeTransport() *fakeTransport { return &fakeTransport{mem: map[uint32][]byte{}} }

func (f *fakeTransport) Transfer(tx []byte) ([]byte, error) {
	c := getLE32(tx[:4])
	write := c&(1<<31) != 0
	addr := (c >> 11) & 0x1FFFF
	length := int(c & 0x7FF)
	rx := make([]byte, len(tx))
	if write {
		f.mem[addr] = append([]byte(nil), tx[4:4+length]...)
		return rx, nil
	}
	data := f.mem[addr]
	copy(rx[4:], data)
	return rx, nil
}

func TestWriteReadBytesRoundTrip(t *testing.T) {
	tr := newFakeTransport()
	b := New(tr)

	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	if err := b.WriteBytes(FuncBackplane, 0x100, payload); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	got, err := b.ReadBytes(FuncBackplane, 0x100, len(payload))
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %v, want %v", got, payload)
	}
}

func TestWriteRead32RoundTrip(t *testing.T) {
	tr := newFakeTransport()
	b := New(tr)

	if err := b.Write32(FuncBus, 0x08, 0xDEADBEEF); err != nil {
		t.Fatalf("Write32: %v", err)
	}
	got, err := b.Read32(FuncBus, 0x08)
	if err != nil {
		t.Fatalf("Read32: %v", err)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("got %#x, want %#x", got, 0xDEADBEEF)
	}
}

func TestCommandWordEncoding(t *testing.T) {
	c := cmd(true, true, FuncBackplane, 0x1234, 7)
	if c&(1<<31) == 0 {
		t.Fatal("write bit not set")
	}
	if c&(1<<30) == 0 {
		t.Fatal("autoincrement bit not set")
	}
	if fn := (c >> 28) & 0x3; fn != uint32(FuncBackplane) {
		t.Fatalf("function = %d, want %d", fn, FuncBackplane)
	}
	if addr := (c >> 11) & 0x1FFFF; addr != 0x1234 {
		t.Fatalf("addr = %#x, want %#x", addr, 0x1234)
	}
	if length := c & 0x7FF; length != 7 {
		t.Fatalf("length = %d, want 7", length)
	}
}

func TestWrite8Read8RoundTrip(t *testing.T) {
	tr := newFakeTransport()
	b := New(tr)

	if err := b.Write8(FuncBus, 0x0E, 0x42); err != nil {
		t.Fatalf("Write8: %v", err)
	}
	got, err := b.Read8(FuncBus, 0x0E)
	if err != nil {
		t.Fatalf("Read8: %v", err)
	}
	if got != 0x42 {
		t.Fatalf("got %#x, want 0x42", got)
	}
}
