package control

import (
	"context"

	"github.com/jangala-dev/cyw43go/errcode"
	"github.com/jangala-dev/cyw43go/netif"
	"github.com/jangala-dev/cyw43go/sdpcm"
)

// JoinOpen associates to an open (unencrypted) network.
func (c *Control) JoinOpen(ctx context.Context, ssid string, mac [6]byte) error {
	if err := c.setIovarU32(ctx, "ampdu_ba_wsize", 8); err != nil {
		return err
	}
	if err := c.ioctlSetU32(ctx, ioctlCmdSetWsec, 0); err != nil {
		return err
	}
	if err := c.setIovarU32x2(ctx, "bsscfg:sup_wpa", 0, 0); err != nil {
		return err
	}
	if err := c.ioctlSetU32(ctx, ioctlCmdSetInfra, 1); err != nil {
		return err
	}
	if err := c.ioctlSetU32(ctx, ioctlCmdSetAuth, 0); err != nil {
		return err
	}
	return c.waitForJoin(ctx, ssid, mac)
}

// JoinWPA2 associates to a WPA2-PSK network.
func (c *Control) JoinWPA2(ctx context.Context, ssid, passphrase string, mac [6]byte) error {
	if err := c.setIovarU32(ctx, "ampdu_ba_wsize", 8); err != nil {
		return err
	}
	if err := c.ioctlSetU32(ctx, ioctlCmdSetWsec, 4); err != nil {
		return err
	}
	if err := c.setIovarU32x2(ctx, "bsscfg:sup_wpa", 0, 1); err != nil {
		return err
	}
	if err := c.setIovarU32x2(ctx, "bsscfg:sup_wpa2_eapver", 0, 0xFFFFFFFF); err != nil {
		return err
	}
	if err := c.setIovarU32x2(ctx, "bsscfg:sup_wpa_tmo", 0, 2500); err != nil {
		return err
	}
	if err := sleep(ctx, 100*settleUnit); err != nil {
		return err
	}

	pfi := sdpcm.NewPassphraseInfo(passphrase)
	if _, err := c.Ioctl(ctx, sdpcm.CdcFlagSet, ioctlCmdSetPassphrase, pfi.Pack()); err != nil {
		return err
	}

	if err := c.ioctlSetU32(ctx, ioctlCmdSetInfra, 1); err != nil {
		return err
	}
	if err := c.ioctlSetU32(ctx, ioctlCmdSetAuth, 0); err != nil {
		return err
	}
	if err := c.ioctlSetU32(ctx, ioctlCmdSetWpaAuth, 0x80); err != nil {
		return err
	}
	return c.waitForJoin(ctx, ssid, mac)
}

// waitForJoin issues SET_SSID and watches the event stream for AUTH
// failures (which it retries by reissuing SET_SSID) and JOIN success,
// publishing link-up with the chip's MAC once it arrives.
func (c *Control) waitForJoin(ctx context.Context, ssid string, mac [6]byte) error {
	sub := c.events.Subscribe()
	defer c.events.Unsubscribe(sub)

	ssidInfo := sdpcm.NewSsidInfo(ssid)
	if _, err := c.Ioctl(ctx, sdpcm.CdcFlagSet, ioctlCmdSetSsid, ssidInfo.Pack()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-sub.Events():
			switch evt.Msg.EventType {
			case sdpcm.EventAuth:
				if evt.Msg.Status != 0 {
					if _, err := c.Ioctl(ctx, sdpcm.CdcFlagSet, ioctlCmdSetSsid, ssidInfo.Pack()); err != nil {
						return err
					}
				}
			case sdpcm.EventJoin:
				if evt.Msg.Status != 0 {
					return &errcode.E{C: errcode.JoinFailed, Op: "waitForJoin", Msg: "join event carried nonzero status"}
				}
				c.state.Set(netif.State{MAC: mac, Link: netif.LinkUp})
				return nil
			}
		}
	}
}
