package control

import (
	"context"

	"github.com/jangala-dev/cyw43go/errcode"
)

// Power-save tuning applied only under PMPowerSave, matching the
// vendor defaults every CYW43xxx port of this driver ships with.
const (
	pm2SleepRetMs   = 200
	pm2BeaconPeriod = 1
	pm2DtimPeriod   = 1
	pm2AssocListen  = 10
)

// SetPowerManagement sets the chip's PM mode via ioctl (WLC_SET_PM).
// PMPowerSave additionally tunes the PM2 sleep/beacon/DTIM parameters
// before the mode switch takes effect.
func (c *Control) SetPowerManagement(ctx context.Context, mode PowerMode) error {
	if mode == PMPowerSave {
		if err := c.setIovarU32(ctx, "pm2_sleep_ret", pm2SleepRetMs); err != nil {
			return err
		}
		if err := c.setIovarU32(ctx, "bcn_li_bcn", pm2BeaconPeriod); err != nil {
			return err
		}
		if err := c.setIovarU32(ctx, "bcn_li_dtim", pm2DtimPeriod); err != nil {
			return err
		}
		if err := c.setIovarU32(ctx, "assoc_listen", pm2AssocListen); err != nil {
			return err
		}
	}
	return c.ioctlSetU32(ctx, ioctlCmdSetPM, mode.wireValue())
}

const maxGPIO = 3

// GPIOSet drives one of the chip's spare GPIO lines high or low via
// the gpioout iovar, addressed by bitmask.
func (c *Control) GPIOSet(ctx context.Context, pin uint8, on bool) error {
	if pin >= maxGPIO {
		return &errcode.E{C: errcode.InvalidParams, Op: "GPIOSet", Msg: "pin out of range"}
	}
	mask := uint32(1) << pin
	val := uint32(0)
	if on {
		val = mask
	}
	return c.setIovarU32x2(ctx, "gpioout", mask, val)
}
