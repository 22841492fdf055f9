package main

import (
	"context"
	"strings"
	"testing"

	"github.com/jangala-dev/cyw43go/control"
	"github.com/jangala-dev/cyw43go/sdpcm"
)

type fakeDriver struct {
	joinedSSID string
	joinedPass string
	powerMode  control.PowerMode
	gpioPin    uint8
	gpioOn     bool
	scanResult []sdpcm.BssInfo
	failNext   bool
}

func (f *fakeDriver) JoinOpen(ctx context.Context, ssid string, mac [6]byte) error {
	if f.failNext {
		return errTest
	}
	f.joinedSSID = ssid
	return nil
}

func (f *fakeDriver) JoinWPA2(ctx context.Context, ssid, passphrase string, mac [6]byte) error {
	if f.failNext {
		return errTest
	}
	f.joinedSSID, f.joinedPass = ssid, passphrase
	return nil
}

func (f *fakeDriver) Scan(ctx context.Context) ([]sdpcm.BssInfo, error) {
	if f.failNext {
		return nil, errTest
	}
	return f.scanResult, nil
}

func (f *fakeDriver) SetPowerManagement(ctx context.Context, mode control.PowerMode) error {
	if f.failNext {
		return errTest
	}
	f.powerMode = mode
	return nil
}

func (f *fakeDriver) GPIOSet(ctx context.Context, pin uint8, on bool) error {
	if f.failNext {
		return errTest
	}
	f.gpioPin, f.gpioOn = pin, on
	return nil
}

var errTest = &testErr{"boom"}

type testErr struct{ s string }

func (e *testErr) Error() string { return e.s }

func newConsoleHarness() (*Console, *fakeDriver, *[]string) {
	drv := &fakeDriver{}
	var lines []string
	c := NewConsole(drv, [6]byte{1, 2, 3, 4, 5, 6}, func(s string) { lines = append(lines, s) })
	return c, drv, &lines
}

func TestConsoleJoinOpen(t *testing.T) {
	c, drv, lines := newConsoleHarness()
	c.Run(context.Background(), "join myssid")
	if drv.joinedSSID != "myssid" {
		t.Fatalf("joinedSSID = %q", drv.joinedSSID)
	}
	if len(*lines) == 0 || !strings.Contains((*lines)[0], "joined") {
		t.Fatalf("lines = %v", *lines)
	}
}

func TestConsoleJoinWPA2(t *testing.T) {
	c, drv, _ := newConsoleHarness()
	c.Run(context.Background(), `join myssid "a pass phrase"`)
	if drv.joinedSSID != "myssid" || drv.joinedPass != "a pass phrase" {
		t.Fatalf("joined = %q/%q", drv.joinedSSID, drv.joinedPass)
	}
}

func TestConsoleScan(t *testing.T) {
	c, drv, lines := newConsoleHarness()
	bss := sdpcm.BssInfo{SsidLen: 3}
	copy(bss.SSID[:], "net")
	drv.scanResult = []sdpcm.BssInfo{bss}
	c.Run(context.Background(), "scan")
	if len(*lines) != 1 || (*lines)[0] != "net" {
		t.Fatalf("lines = %v", *lines)
	}
}

func TestConsolePowerMode(t *testing.T) {
	c, drv, lines := newConsoleHarness()
	c.Run(context.Background(), "power power_save")
	if drv.powerMode != control.PMPowerSave {
		t.Fatalf("powerMode = %v", drv.powerMode)
	}
	if len(*lines) != 1 || (*lines)[0] != "ok" {
		t.Fatalf("lines = %v", *lines)
	}
}

func TestConsoleGPIO(t *testing.T) {
	c, drv, _ := newConsoleHarness()
	c.Run(context.Background(), "gpio 1 on")
	if drv.gpioPin != 1 || !drv.gpioOn {
		t.Fatalf("gpio = %d/%v", drv.gpioPin, drv.gpioOn)
	}
}

func TestConsoleUnknownCommand(t *testing.T) {
	c, _, lines := newConsoleHarness()
	c.Run(context.Background(), "frobnicate")
	if len(*lines) != 1 || !strings.Contains((*lines)[0], "unknown command") {
		t.Fatalf("lines = %v", *lines)
	}
}

func TestConsoleFailurePropagates(t *testing.T) {
	c, drv, lines := newConsoleHarness()
	drv.failNext = true
	c.Run(context.Background(), "join myssid")
	if len(*lines) != 1 || !strings.Contains((*lines)[0], "join failed") {
		t.Fatalf("lines = %v", *lines)
	}
}
