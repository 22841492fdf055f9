package backplane

import (
	"bytes"
	"testing"

	"github.com/jangala-dev/cyw43go/gspi"
)

type fakeTransport struct {
	windowLow, windowMid, windowHigh uint8
	mem                              map[uint32]byte
}

func newFakeTransport() *fakeTransport { return &fakeTransport{mem: map[uint32]byte{}} }

func (f *fakeTransport) window() uint32 {
	return uint32(f.windowLow)<<8 | uint32(f.windowMid)<<16 | uint32(f.windowHigh)<<24
}

func (f *fakeTransport) Transfer(tx []byte) ([]byte, error) {
	c := uint32(tx[0]) | uint32(tx[1])<<8 | uint32(tx[2])<<16 | uint32(tx[3])<<24
	write := c&(1<<31) != 0
	fn := (c >> 28) & 0x3
	addr := (c >> 11) & 0x1FFFF
	length := int(c & 0x7FF)
	rx := make([]byte, len(tx))

	if gspi.Function(fn) == gspi.FuncBackplane {
		switch addr {
		case regWindowLow:
			if write {
				f.windowLow = tx[4]
			}
			return rx, nil
		case regWindowMid:
			if write {
				f.windowMid = tx[4]
			}
			return rx, nil
		case regWindowHigh:
			if write {
				f.windowHigh = tx[4]
			}
			return rx, nil
		}
	}

	key := f.window() | (addr &^ sizeBit32 & windowMask)
	if write {
		for i, v := range tx[4 : 4+length] {
			f.mem[key+uint32(i)] = v
		}
		return rx, nil
	}
	for i := 0; i < length; i++ {
		rx[4+i] = f.mem[key+uint32(i)]
	}
	return rx, nil
}

func TestWindowCrossingReadWrite(t *testing.T) {
	tr := newFakeTransport()
	bp := New(gspi.New(tr))

	payload := bytes.Repeat([]byte{0xAB}, 8)
	addr := uint32(0x7FFC) // straddles the 32 KiB window boundary at 0x8000
	if err := bp.Write(addr, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := bp.Read(addr, len(payload))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %v, want %v", got, payload)
	}
}

func TestRegisterRoundTrips(t *testing.T) {
	tr := newFakeTransport()
	bp := New(gspi.New(tr))

	if err := bp.Write32(0x1000, 0xCAFEBABE); err != nil {
		t.Fatalf("Write32: %v", err)
	}
	got32, err := bp.Read32(0x1000)
	if err != nil {
		t.Fatalf("Read32: %v", err)
	}
	if got32 != 0xCAFEBABE {
		t.Fatalf("Read32 = %#x, want %#x", got32, 0xCAFEBABE)
	}

	if err := bp.Write16(0x2000, 0xBEEF); err != nil {
		t.Fatalf("Write16: %v", err)
	}
	got16, err := bp.Read16(0x2000)
	if err != nil {
		t.Fatalf("Read16: %v", err)
	}
	if got16 != 0xBEEF {
		t.Fatalf("Read16 = %#x, want %#x", got16, 0xBEEF)
	}

	if err := bp.Write8(0x3000, 0x5A); err != nil {
		t.Fatalf("Write8: %v", err)
	}
	got8, err := bp.Read8(0x3000)
	if err != nil {
		t.Fatalf("Read8: %v", err)
	}
	if got8 != 0x5A {
		t.Fatalf("Read8 = %#x, want 0x5a", got8)
	}
}

func TestUploadFirmwareVerifiesAndReleasesCore(t *testing.T) {
	tr := newFakeTransport()
	bp := New(gspi.New(tr))

	fw := bytes.Repeat([]byte{0x11, 0x22, 0x33, 0x44}, 300) // 1200 bytes, > 1KiB verify window
	cc := ChipControl{
		RAMBase:        0x00000000,
		ResetVectorReg: 0x00000000,
		ArmCtrlReg:     0x00000010,
		ArmCtrlRun:     1,
		ClockCSRReg:    0x00000020,
		ClockHTAvail:   0x80,
	}

	polls := 0
	pollHT := func() (bool, error) {
		polls++
		return polls >= 3, nil
	}

	if err := bp.UploadFirmware(cc, fw, pollHT); err != nil {
		t.Fatalf("UploadFirmware: %v", err)
	}
	if polls != 3 {
		t.Fatalf("expected pollHT to be polled 3 times, got %d", polls)
	}

	runVal, err := bp.Read32(cc.ArmCtrlReg)
	if err != nil {
		t.Fatalf("Read32 ArmCtrlReg: %v", err)
	}
	if runVal != cc.ArmCtrlRun {
		t.Fatalf("ArmCtrlReg = %#x, want %#x", runVal, cc.ArmCtrlRun)
	}
}

// flakyReadTransport writes normally but always returns corrupted data
// on read, simulating a chip whose RAM didn't retain the upload.
type flakyReadTransport struct{ *fakeTransport }

func (f flakyReadTransport) Transfer(tx []byte) ([]byte, error) {
	rx, err := f.fakeTransport.Transfer(tx)
	if err != nil {
		return nil, err
	}
	c := uint32(tx[0]) | uint32(tx[1])<<8 | uint32(tx[2])<<16 | uint32(tx[3])<<24
	write := c&(1<<31) != 0
	if !write && gspi.Function((c>>28)&0x3) == gspi.FuncBackplane {
		for i := 4; i < len(rx); i++ {
			rx[i] ^= 0xFF
		}
	}
	return rx, nil
}

func TestUploadFirmwareMismatchFails(t *testing.T) {
	tr := flakyReadTransport{newFakeTransport()}
	bp := New(gspi.New(tr))

	fw := bytes.Repeat([]byte{0x01}, 128)
	cc := ChipControl{ArmCtrlReg: 0x10, ArmCtrlRun: 1}

	err := bp.UploadFirmware(cc, fw, func() (bool, error) { return true, nil })
	if err == nil {
		t.Fatal("expected readback mismatch error")
	}
}
