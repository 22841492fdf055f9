package control

import (
	"context"

	"github.com/jangala-dev/cyw43go/errcode"
	"github.com/jangala-dev/cyw43go/netif"
	"github.com/jangala-dev/cyw43go/sdpcm"
	"github.com/jangala-dev/cyw43go/x/fmtx"
	"github.com/jangala-dev/cyw43go/x/mathx"
)

// noisyEventTypes are masked off: probe traffic, roaming, and
// radio/interface housekeeping events the control surface never acts
// on.
var noisyEventTypes = []int{
	eventRadio, eventIF, eventProbeReqMsg, eventProbeReqRx, eventProbeRespMsg, eventRoam,
}

// Init uploads the CLM (Country Locale Matrix) blob and brings the
// radio to an associable state: txglom disabled, AP+STA mode enabled,
// the MAC address read back, country forced to the worldwide default,
// antenna diversity and AMPDU parameters set, and the event mask
// narrowed to what the driver actually handles. Two writes the
// original driver found crashed the chip — a second apsta write and
// ampdu_rx_factor — are not issued here either.
func (c *Control) Init(ctx context.Context, clm []byte) (mac [6]byte, err error) {
	if err := c.uploadCLM(ctx, clm); err != nil {
		return mac, err
	}

	if err := c.setIovarU32(ctx, "bus:txglom", 0); err != nil {
		return mac, err
	}
	if err := c.setIovarU32(ctx, "apsta", 1); err != nil {
		return mac, err
	}

	addr, err := c.getIovar(ctx, "cur_etheraddr", 6)
	if err != nil {
		return mac, err
	}
	if len(addr) != 6 {
		return mac, &errcode.E{C: errcode.IoctlFailed, Op: "init", Msg: "cur_etheraddr returned wrong length"}
	}
	copy(mac[:], addr)

	country := sdpcm.CountryInfo{
		CountryAbbrev: [4]byte{'X', 'X', 0, 0},
		Rev:           -1,
		CountryCode:   [4]byte{'X', 'X', 0, 0},
	}
	if err := c.setIovar(ctx, "country", country.Pack()); err != nil {
		return mac, err
	}
	if err := sleep(ctx, 100*settleUnit); err != nil {
		return mac, err
	}

	if err := c.ioctlSetU32(ctx, ioctlCmdSetAntDiv, 0); err != nil {
		return mac, err
	}
	if err := c.setIovarU32(ctx, "bus:txglom", 0); err != nil {
		return mac, err
	}
	if err := sleep(ctx, 100*settleUnit); err != nil {
		return mac, err
	}

	if err := c.setIovarU32(ctx, "ampdu_ba_wsize", 8); err != nil {
		return mac, err
	}
	if err := sleep(ctx, 100*settleUnit); err != nil {
		return mac, err
	}
	if err := c.setIovarU32(ctx, "ampdu_mpdu", 4); err != nil {
		return mac, err
	}
	if err := sleep(ctx, 100*settleUnit); err != nil {
		return mac, err
	}

	mask := sdpcm.NewEventMaskAll()
	for _, evt := range noisyEventTypes {
		mask.Unset(evt)
	}
	if err := c.setIovar(ctx, "bsscfg:event_msgs", mask.Pack()); err != nil {
		return mac, err
	}
	if err := sleep(ctx, 100*settleUnit); err != nil {
		return mac, err
	}

	if err := c.ioctlSetU32(ctx, ioctlCmdUp, 0); err != nil {
		return mac, err
	}
	if err := sleep(ctx, 100*settleUnit); err != nil {
		return mac, err
	}

	if err := c.ioctlSetU32(ctx, ioctlCmdSetGMode, 1); err != nil { // 1 == auto
		return mac, err
	}
	if err := c.ioctlSetU32(ctx, ioctlCmdSetBand, 0); err != nil { // 0 == any
		return mac, err
	}
	if err := sleep(ctx, 100*settleUnit); err != nil {
		return mac, err
	}

	c.state.Set(netif.State{MAC: mac, Link: netif.LinkDown})
	return mac, nil
}

// uploadCLM streams clm to the chip in chunks of c.tun.ClmChunkSize
// bytes (1024 by default), each framed by
// a DownloadHeader with BEGIN set on the first chunk and END set on the
// last, then confirms the chip accepted it via clmload_status.
func (c *Control) uploadCLM(ctx context.Context, clm []byte) error {
	chunkSize := c.tun.ClmChunkSize
	chunks := mathx.CeilDiv(uint32(len(clm)), uint32(chunkSize))
	if chunks == 0 {
		chunks = 1 // an empty CLM still sends one BEGIN|END chunk
	}
	fmtx.Printf("control: uploading CLM in %d chunk(s) of up to %d bytes\n", chunks, chunkSize)

	for offset := 0; offset < len(clm) || offset == 0; {
		end := offset + chunkSize
		last := end >= len(clm)
		if last {
			end = len(clm)
		}
		chunk := clm[offset:end]

		flag := sdpcm.DownloadFlagHandlerVer
		if offset == 0 {
			flag |= sdpcm.DownloadFlagBegin
		}
		if last {
			flag |= sdpcm.DownloadFlagEnd
		}
		hdr := sdpcm.DownloadHeader{
			Flag:      flag,
			DloadType: sdpcm.DownloadTypeCLM,
			Len:       uint32(len(chunk)),
		}

		value := append(append([]byte(nil), hdr.Pack()...), chunk...)
		if err := c.setIovar(ctx, "clmload", value); err != nil {
			return err
		}

		offset = end
		if last {
			break
		}
	}

	status, err := c.getIovarU32(ctx, "clmload_status")
	if err != nil {
		return err
	}
	if status != 0 {
		return &errcode.E{C: errcode.IoctlFailed, Op: "uploadCLM", Msg: "clmload_status nonzero"}
	}
	return nil
}
