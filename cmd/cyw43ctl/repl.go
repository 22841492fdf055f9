// Command cyw43ctl is a minimal debug console over the driver's
// Control surface: join/scan/power/gpio as one-line commands, parsed
// shell-style so a flashed board can be driven interactively over its
// serial console the same way a developer would drive a real shell.
package main

import (
	"context"
	"strconv"

	"github.com/google/shlex"

	"github.com/jangala-dev/cyw43go/control"
	"github.com/jangala-dev/cyw43go/netif"
	"github.com/jangala-dev/cyw43go/sdpcm"
)

// Driver is the subset of *control.Control (plus link state) the REPL
// drives. Declared as an interface so it can be exercised without a
// live chip.
type Driver interface {
	JoinOpen(ctx context.Context, ssid string, mac [6]byte) error
	JoinWPA2(ctx context.Context, ssid, passphrase string, mac [6]byte) error
	Scan(ctx context.Context) ([]sdpcm.BssInfo, error)
	SetPowerManagement(ctx context.Context, mode control.PowerMode) error
	GPIOSet(ctx context.Context, pin uint8, on bool) error
}

// Console binds a Driver to a line-oriented command interpreter and
// the current MAC (read once at Init time).
type Console struct {
	drv Driver
	mac [6]byte
	out func(string)
}

func NewConsole(drv Driver, mac [6]byte, out func(string)) *Console {
	return &Console{drv: drv, mac: mac, out: out}
}

// Run parses one command line and executes it, writing any output or
// error through the console's out function. Unknown commands and
// parse errors are reported, never panicked on.
func (c *Console) Run(ctx context.Context, line string) {
	args, err := shlex.Split(line)
	if err != nil {
		c.out("parse error: " + err.Error())
		return
	}
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "join":
		c.cmdJoin(ctx, args[1:])
	case "scan":
		c.cmdScan(ctx)
	case "power":
		c.cmdPower(ctx, args[1:])
	case "gpio":
		c.cmdGPIO(ctx, args[1:])
	default:
		c.out("unknown command: " + args[0])
	}
}

func (c *Console) cmdJoin(ctx context.Context, args []string) {
	if len(args) < 1 {
		c.out("usage: join <ssid> [passphrase]")
		return
	}
	var err error
	if len(args) >= 2 {
		err = c.drv.JoinWPA2(ctx, args[0], args[1], c.mac)
	} else {
		err = c.drv.JoinOpen(ctx, args[0], c.mac)
	}
	if err != nil {
		c.out("join failed: " + err.Error())
		return
	}
	c.out("joined " + args[0])
}

func (c *Console) cmdScan(ctx context.Context) {
	results, err := c.drv.Scan(ctx)
	if err != nil {
		c.out("scan failed: " + err.Error())
		return
	}
	for _, bss := range results {
		c.out(bss.SSIDString())
	}
}

func (c *Console) cmdPower(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.out("usage: power <none|aggressive|balanced|power_save>")
		return
	}
	var mode control.PowerMode
	switch args[0] {
	case "none":
		mode = control.PMNone
	case "aggressive":
		mode = control.PMAggressive
	case "balanced":
		mode = control.PMBalanced
	case "power_save":
		mode = control.PMPowerSave
	default:
		c.out("unknown power mode: " + args[0])
		return
	}
	if err := c.drv.SetPowerManagement(ctx, mode); err != nil {
		c.out("power failed: " + err.Error())
		return
	}
	c.out("ok")
}

func (c *Console) cmdGPIO(ctx context.Context, args []string) {
	if len(args) != 2 {
		c.out("usage: gpio <pin> <on|off>")
		return
	}
	pin, err := strconv.Atoi(args[0])
	if err != nil || pin < 0 || pin > 255 {
		c.out("bad pin: " + args[0])
		return
	}
	on := args[1] == "on"
	if err := c.drv.GPIOSet(ctx, uint8(pin), on); err != nil {
		c.out("gpio failed: " + err.Error())
		return
	}
	c.out("ok")
}

// linkStateString renders a netif.State's link state as text; the
// hardware entrypoint uses it for its link-state reports.
func linkStateString(s netif.State) string {
	return s.Link.String()
}
