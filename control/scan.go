package control

import (
	"context"

	"github.com/jangala-dev/cyw43go/errcode"
	"github.com/jangala-dev/cyw43go/sdpcm"
)

const (
	escanActionStart = 1
	scanTypePassive  = 1
	scanBssTypeAny   = 2
)

// Scan issues a passive escan and collects BssInfo entries from
// ESCAN_RESULT events until the chip signals completion, returning
// everything gathered. The original driver only waited for the first
// status==0 event as a completion signal without surfacing any
// results; this keeps that wait but additionally accumulates the
// partial BssInfo payloads each event carries along the way.
func (c *Control) Scan(ctx context.Context) ([]sdpcm.BssInfo, error) {
	sub := c.events.Subscribe()
	defer c.events.Unsubscribe(sub)

	params := sdpcm.ScanParams{
		Version:     1,
		Action:      escanActionStart,
		SyncID:      1,
		SsidLen:     0,
		BSSID:       [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		BssType:     scanBssTypeAny,
		ScanType:    scanTypePassive,
		NProbes:     0xFFFFFFFF,
		ActiveTime:  0xFFFFFFFF,
		PassiveTime: 0xFFFFFFFF,
		HomeTime:    0xFFFFFFFF,
		ChannelNum:  0,
	}
	if err := c.setIovar(ctx, "escan", params.Pack()); err != nil {
		return nil, err
	}

	var results []sdpcm.BssInfo
	for {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case evt := <-sub.Events():
			if evt.Msg.EventType != sdpcm.EventEscanResult {
				continue
			}
			if len(evt.Body) > 0 {
				res, ok := parseEscanBody(evt.Body)
				if !ok {
					return results, &errcode.E{C: errcode.HeaderCorrupt, Op: "Scan", Msg: "malformed escan result"}
				}
				if res.count > 0 {
					results = append(results, res.info)
				}
			}
			if evt.Msg.Status == 0 {
				return results, nil
			}
		}
	}
}

type escanResult struct {
	count uint16
	info  sdpcm.BssInfo
}

// parseEscanBody extracts the ScanResults header and the single
// BssInfo entry that follows it in the event's trailing body.
func parseEscanBody(body []byte) (escanResult, bool) {
	var r escanResult
	sr, ok := sdpcm.UnpackScanResults(body)
	if !ok {
		return r, false
	}
	r.count = sr.BssCount
	if sr.BssCount == 0 {
		return r, true
	}
	info, ok := sdpcm.UnpackBssInfo(body[sdpcm.ScanResultsLen:])
	if !ok {
		return r, false
	}
	r.info = info
	return r, true
}
