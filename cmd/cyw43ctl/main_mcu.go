//go:build rp2040 || rp2350

package main

import (
	"bufio"
	"context"
	"machine"
	"time"

	"github.com/jangala-dev/cyw43go/backplane"
	"github.com/jangala-dev/cyw43go/config"
	"github.com/jangala-dev/cyw43go/control"
	"github.com/jangala-dev/cyw43go/events"
	"github.com/jangala-dev/cyw43go/gspi"
	"github.com/jangala-dev/cyw43go/ioctl"
	"github.com/jangala-dev/cyw43go/irqpin"
	"github.com/jangala-dev/cyw43go/netif"
	"github.com/jangala-dev/cyw43go/runner"
)

// Board wiring for a Pico-class module with the CYW43xxx on a
// dedicated SPI bus (not the PIO-bitbanged link Pico W actually uses —
// a real SPI peripheral keeps this entrypoint a straightforward
// consumer of gspi.HostSPI rather than a PIO program of its own).
var (
	spiBus = machine.SPI0
	pinCS  = machine.GPIO9
	pinIRQ = machine.GPIO10
)

// cyw43439ChipControl holds the bring-up register layout for the
// CYW43439 (the part on a Pico-class board); a CYW4373x board would
// supply different constants here, per backplane.ChipControl's doc.
var cyw43439ChipControl = backplane.ChipControl{
	RAMBase:        0x00000000,
	ResetVectorReg: 0x18008000,
	ArmCtrlReg:     0x18008100,
	ArmCtrlRun:     0x00000004,
	ClockCSRReg:    0x18000620,
	ClockHTAvail:   0x00000002,
}

type machinePin struct{ p machine.Pin }

func (m machinePin) Low()  { m.p.Low() }
func (m machinePin) High() { m.p.High() }

type irqPinAdapter struct{ p machine.Pin }

func (a irqPinAdapter) Get() bool { return a.p.Get() }
func (a irqPinAdapter) SetIRQ(risingOrHigh bool, cb func()) error {
	return a.p.SetInterrupt(machine.PinRising, func(machine.Pin) { cb() })
}
func (a irqPinAdapter) ClearIRQ() error {
	return a.p.SetInterrupt(machine.PinRising, nil)
}

func main() {
	time.Sleep(250 * time.Millisecond)

	pinCS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinIRQ.Configure(machine.PinConfig{Mode: machine.PinInput})

	transport := gspi.NewHostSPI(spiBus, machinePin{pinCS})
	chipBus := gspi.New(transport)

	bp := backplane.New(chipBus)
	pollHT := func() (bool, error) {
		csr, err := bp.Read32(cyw43439ChipControl.ClockCSRReg)
		if err != nil {
			return false, err
		}
		return csr&cyw43439ChipControl.ClockHTAvail != 0, nil
	}
	if err := bp.UploadFirmware(cyw43439ChipControl, embeddedFirmware(), pollHT); err != nil {
		println("backplane.UploadFirmware:", err.Error())
		return
	}

	irqLine, err := irqpin.New(irqPinAdapter{pinIRQ})
	if err != nil {
		println("irqpin.New:", err.Error())
		return
	}

	cfg, err := config.Parse(embeddedConfig())
	if err != nil {
		println("config.Parse:", err.Error())
	}

	slot := ioctl.New()
	eventsQ := events.New(16)
	tx := netif.NewFrameQueue(cfg.TxQueueBytes)
	rx := netif.NewFrameQueue(cfg.RxQueueBytes)
	state := netif.NewStatePublisher()

	r := runner.New(chipBus, irqLine, slot, eventsQ, tx, rx, state).WithPeriodicWake(cfg.PeriodicWake)
	ctx := context.Background()
	go func() {
		if err := r.Run(ctx); err != nil {
			println("runner exited:", err.Error())
		}
	}()

	ctl := control.New(slot, eventsQ, state).WithTunables(cfg.Tunables)

	go publishStateUpdates(state)

	mac, err := ctl.Init(ctx, embeddedCLM())
	if err != nil {
		println("ctl.Init:", err.Error())
		return
	}

	if cfg.SSID != "" {
		if cfg.Passphrase != "" {
			err = ctl.JoinWPA2(ctx, cfg.SSID, cfg.Passphrase, mac)
		} else {
			err = ctl.JoinOpen(ctx, cfg.SSID, mac)
		}
		if err != nil {
			println("join:", err.Error())
		}
	}
	for _, g := range cfg.GPIOs {
		_ = ctl.GPIOSet(ctx, g.Pin, g.On)
	}
	_ = ctl.SetPowerManagement(ctx, cfg.PowerMode)

	console := NewConsole(ctl, mac, func(s string) { println(s) })
	scanner := bufio.NewScanner(machine.Serial)
	for scanner.Scan() {
		console.Run(ctx, scanner.Text())
	}
}

// publishStateUpdates drains the runner's link-state broadcast and
// reports each transition on the console, the board's only status
// surface once the firmware is up and the REPL owns machine.Serial.
func publishStateUpdates(state *netif.StatePublisher) {
	for s := range state.Updates() {
		println("link:", linkStateString(s))
	}
}

// embeddedFirmware, embeddedCLM and embeddedConfig are placeholders for
// the board's linked-in firmware/CLM blobs and JSON config; a real
// bring-up embeds these via go:embed from board-specific asset files.
func embeddedFirmware() []byte { return nil }
func embeddedCLM() []byte      { return nil }
func embeddedConfig() []byte   { return []byte(`{}`) }
