// Package sdpcm implements the layered wire headers carried over the
// gSPI data channel: SDPCM framing, the CDC ioctl header, the BDC
// Ethernet preamble, and the big-endian Event header/message pair.
// Every struct below is packed and unpacked by hand, field by field —
// no unsafe conversions — because the wire layout is a hard contract
// with the chip's firmware, not merely a convenient Go struct layout.
package sdpcm

import "encoding/binary"

// Channel identifies the SDPCM channel_and_flags low nibble.
type Channel uint8

const (
	ChannelControl Channel = 0
	ChannelEvent   Channel = 1
	ChannelData    Channel = 2
)

const SdpcmHeaderLen = 12

// SdpcmHeader is the 12-byte header that begins every bus-level packet.
type SdpcmHeader struct {
	Len                 uint16
	LenInv              uint16
	Sequence            uint8
	ChannelAndFlags     uint8
	NextLength          uint8
	HeaderLength        uint8
	WirelessFlowControl uint8
	BusDataCredit       uint8
	Reserved            [2]uint8
}

func (h SdpcmHeader) Channel() Channel { return Channel(h.ChannelAndFlags & 0x0F) }

func (h SdpcmHeader) Pack() []byte {
	b := make([]byte, SdpcmHeaderLen)
	binary.LittleEndian.PutUint16(b[0:], h.Len)
	binary.LittleEndian.PutUint16(b[2:], h.LenInv)
	b[4] = h.Sequence
	b[5] = h.ChannelAndFlags
	b[6] = h.NextLength
	b[7] = h.HeaderLength
	b[8] = h.WirelessFlowControl
	b[9] = h.BusDataCredit
	b[10] = h.Reserved[0]
	b[11] = h.Reserved[1]
	return b
}

func UnpackSdpcmHeader(b []byte) (SdpcmHeader, bool) {
	var h SdpcmHeader
	if len(b) < SdpcmHeaderLen {
		return h, false
	}
	h.Len = binary.LittleEndian.Uint16(b[0:])
	h.LenInv = binary.LittleEndian.Uint16(b[2:])
	h.Sequence = b[4]
	h.ChannelAndFlags = b[5]
	h.NextLength = b[6]
	h.HeaderLength = b[7]
	h.WirelessFlowControl = b[8]
	h.BusDataCredit = b[9]
	h.Reserved[0] = b[10]
	h.Reserved[1] = b[11]
	return h, true
}

// Valid reports whether the length integrity check passes: a frame
// with Len == 0 or Len^LenInv != 0xFFFF must be discarded silently.
func (h SdpcmHeader) Valid() bool {
	return h.Len != 0 && h.Len^h.LenInv == 0xFFFF
}

const CdcHeaderLen = 16

// Ioctl kind, encoded in the low bits of CdcHeader.Flags.
const (
	CdcFlagGet uint16 = 0
	CdcFlagSet uint16 = 2
)

// CdcHeader carries an ioctl request or response on the control channel.
type CdcHeader struct {
	Cmd    uint32
	Len    uint32
	Flags  uint16
	ID     uint16
	Status int32
}

func (h CdcHeader) Pack() []byte {
	b := make([]byte, CdcHeaderLen)
	binary.LittleEndian.PutUint32(b[0:], h.Cmd)
	binary.LittleEndian.PutUint32(b[4:], h.Len)
	binary.LittleEndian.PutUint16(b[8:], h.Flags)
	binary.LittleEndian.PutUint16(b[10:], h.ID)
	binary.LittleEndian.PutUint32(b[12:], uint32(h.Status))
	return b
}

func UnpackCdcHeader(b []byte) (CdcHeader, bool) {
	var h CdcHeader
	if len(b) < CdcHeaderLen {
		return h, false
	}
	h.Cmd = binary.LittleEndian.Uint32(b[0:])
	h.Len = binary.LittleEndian.Uint32(b[4:])
	h.Flags = binary.LittleEndian.Uint16(b[8:])
	h.ID = binary.LittleEndian.Uint16(b[10:])
	h.Status = int32(binary.LittleEndian.Uint32(b[12:]))
	return h, true
}

const (
	BdcVersion      uint8 = 2
	BdcVersionShift       = 4
)

const BdcHeaderLen = 4

// BdcHeader is the 4-byte Broadcom Data Channel preamble for Ethernet
// frames: the version lives in the high nibble of Flags.
type BdcHeader struct {
	Flags      uint8
	Priority   uint8
	Flags2     uint8
	DataOffset uint8 // in 4-byte units
}

func NewBdcHeader() BdcHeader {
	return BdcHeader{Flags: BdcVersion << BdcVersionShift}
}

func (h BdcHeader) Pack() []byte {
	return []byte{h.Flags, h.Priority, h.Flags2, h.DataOffset}
}

func UnpackBdcHeader(b []byte) (BdcHeader, bool) {
	var h BdcHeader
	if len(b) < BdcHeaderLen {
		return h, false
	}
	h.Flags, h.Priority, h.Flags2, h.DataOffset = b[0], b[1], b[2], b[3]
	return h, true
}

const EthernetHeaderLen = 14

// EthernetHeader precedes Event payloads. Only EtherType is byte-order
// sensitive on the wire (the MAC addresses are opaque byte arrays).
type EthernetHeader struct {
	Destination [6]byte
	Source      [6]byte
	EtherType   uint16
}

func (h EthernetHeader) Pack() []byte {
	b := make([]byte, EthernetHeaderLen)
	copy(b[0:6], h.Destination[:])
	copy(b[6:12], h.Source[:])
	binary.BigEndian.PutUint16(b[12:], h.EtherType)
	return b
}

func UnpackEthernetHeader(b []byte) (EthernetHeader, bool) {
	var h EthernetHeader
	if len(b) < EthernetHeaderLen {
		return h, false
	}
	copy(h.Destination[:], b[0:6])
	copy(h.Source[:], b[6:12])
	h.EtherType = binary.BigEndian.Uint16(b[12:])
	return h, true
}

const EventHeaderLen = 10

// EventHeader is fully byte-swapped (big-endian on the wire).
type EventHeader struct {
	Subtype     uint16
	Length      uint16
	Version     uint8
	OUI         [3]byte
	UserSubtype uint16
}

func (h EventHeader) Pack() []byte {
	b := make([]byte, EventHeaderLen)
	binary.BigEndian.PutUint16(b[0:], h.Subtype)
	binary.BigEndian.PutUint16(b[2:], h.Length)
	b[4] = h.Version
	copy(b[5:8], h.OUI[:])
	binary.BigEndian.PutUint16(b[8:], h.UserSubtype)
	return b
}

func UnpackEventHeader(b []byte) (EventHeader, bool) {
	var h EventHeader
	if len(b) < EventHeaderLen {
		return h, false
	}
	h.Subtype = binary.BigEndian.Uint16(b[0:])
	h.Length = binary.BigEndian.Uint16(b[2:])
	h.Version = b[4]
	copy(h.OUI[:], b[5:8])
	h.UserSubtype = binary.BigEndian.Uint16(b[8:])
	return h, true
}

const EventMessageLen = 48

// EventMessage is big-endian on the wire for its integer fields; the
// address/interface-name/index fields are opaque bytes and are never
// swapped, matching the original firmware's wire format.
type EventMessage struct {
	Version   uint16
	Flags     uint16
	EventType uint32
	Status    uint32
	Reason    uint32
	AuthType  uint32
	DataLen   uint32
	Addr      [6]byte
	IfName    [16]byte
	IfIdx     uint8
	BSSCfgIdx uint8
}

func (m EventMessage) Pack() []byte {
	b := make([]byte, EventMessageLen)
	binary.BigEndian.PutUint16(b[0:], m.Version)
	binary.BigEndian.PutUint16(b[2:], m.Flags)
	binary.BigEndian.PutUint32(b[4:], m.EventType)
	binary.BigEndian.PutUint32(b[8:], m.Status)
	binary.BigEndian.PutUint32(b[12:], m.Reason)
	binary.BigEndian.PutUint32(b[16:], m.AuthType)
	binary.BigEndian.PutUint32(b[20:], m.DataLen)
	copy(b[24:30], m.Addr[:])
	copy(b[30:46], m.IfName[:])
	b[46] = m.IfIdx
	b[47] = m.BSSCfgIdx
	return b
}

func UnpackEventMessage(b []byte) (EventMessage, bool) {
	var m EventMessage
	if len(b) < EventMessageLen {
		return m, false
	}
	m.Version = binary.BigEndian.Uint16(b[0:])
	m.Flags = binary.BigEndian.Uint16(b[2:])
	m.EventType = binary.BigEndian.Uint32(b[4:])
	m.Status = binary.BigEndian.Uint32(b[8:])
	m.Reason = binary.BigEndian.Uint32(b[12:])
	m.AuthType = binary.BigEndian.Uint32(b[16:])
	m.DataLen = binary.BigEndian.Uint32(b[20:])
	copy(m.Addr[:], b[24:30])
	copy(m.IfName[:], b[30:46])
	m.IfIdx = b[46]
	m.BSSCfgIdx = b[47]
	return m, true
}

// Event type enum, the subset the control surface cares about.
const (
	EventAuth        uint32 = 3
	EventJoin        uint32 = 1
	EventEscanResult uint32 = 69
)

// EventPacket is the full Event-channel payload: Ethernet + EventHeader
// + EventMessage, plus whatever variable-length data follows (escan
// results carry a ScanResults+BssInfo pair here; most events carry
// nothing).
type EventPacket struct {
	Eth  EthernetHeader
	Hdr  EventHeader
	Msg  EventMessage
	Body []byte
}

func (p EventPacket) Pack() []byte {
	b := make([]byte, 0, EthernetHeaderLen+EventHeaderLen+EventMessageLen+len(p.Body))
	b = append(b, p.Eth.Pack()...)
	b = append(b, p.Hdr.Pack()...)
	b = append(b, p.Msg.Pack()...)
	b = append(b, p.Body...)
	return b
}

func UnpackEventPacket(b []byte) (EventPacket, bool) {
	var p EventPacket
	var ok bool
	if p.Eth, ok = UnpackEthernetHeader(b); !ok {
		return p, false
	}
	b = b[EthernetHeaderLen:]
	if p.Hdr, ok = UnpackEventHeader(b); !ok {
		return p, false
	}
	b = b[EventHeaderLen:]
	if p.Msg, ok = UnpackEventMessage(b); !ok {
		return p, false
	}
	b = b[EventMessageLen:]
	if len(b) > 0 {
		p.Body = append([]byte(nil), b...)
	}
	return p, true
}

// Download flags/types for firmware and CLM upload.
const (
	DownloadFlagNoCRC      uint16 = 0x0001
	DownloadFlagBegin      uint16 = 0x0002
	DownloadFlagEnd        uint16 = 0x0004
	DownloadFlagHandlerVer uint16 = 0x1000

	DownloadTypeCLM uint16 = 2
)

const DownloadHeaderLen = 12

type DownloadHeader struct {
	Flag      uint16
	DloadType uint16
	Len       uint32
	CRC       uint32
}

func (h DownloadHeader) Pack() []byte {
	b := make([]byte, DownloadHeaderLen)
	binary.LittleEndian.PutUint16(b[0:], h.Flag)
	binary.LittleEndian.PutUint16(b[2:], h.DloadType)
	binary.LittleEndian.PutUint32(b[4:], h.Len)
	binary.LittleEndian.PutUint32(b[8:], h.CRC)
	return b
}

const CountryInfoLen = 12

type CountryInfo struct {
	CountryAbbrev [4]byte
	Rev           int32
	CountryCode   [4]byte
}

func (c CountryInfo) Pack() []byte {
	b := make([]byte, CountryInfoLen)
	copy(b[0:4], c.CountryAbbrev[:])
	binary.LittleEndian.PutUint32(b[4:], uint32(c.Rev))
	copy(b[8:12], c.CountryCode[:])
	return b
}

const SsidInfoLen = 36

type SsidInfo struct {
	Len  uint32
	SSID [32]byte
}

func NewSsidInfo(ssid string) SsidInfo {
	var s SsidInfo
	s.Len = uint32(len(ssid))
	copy(s.SSID[:], ssid)
	return s
}

func (s SsidInfo) Pack() []byte {
	b := make([]byte, SsidInfoLen)
	binary.LittleEndian.PutUint32(b[0:], s.Len)
	copy(b[4:36], s.SSID[:])
	return b
}

const PassphraseInfoLen = 68

type PassphraseInfo struct {
	Len        uint16
	Flags      uint16
	Passphrase [64]byte
}

func NewPassphraseInfo(pass string) PassphraseInfo {
	var p PassphraseInfo
	p.Len = uint16(len(pass))
	p.Flags = 1
	copy(p.Passphrase[:], pass)
	return p
}

func (p PassphraseInfo) Pack() []byte {
	b := make([]byte, PassphraseInfoLen)
	binary.LittleEndian.PutUint16(b[0:], p.Len)
	binary.LittleEndian.PutUint16(b[2:], p.Flags)
	copy(b[4:68], p.Passphrase[:])
	return b
}

const EventMaskLen = 28

// EventMask is a bitmask of event types the chip is allowed to report,
// one bit per event, LSB-first within each byte (event evt is bit
// evt%8 of byte evt/8).
type EventMask struct {
	Iface  uint32
	Events [24]byte
}

// NewEventMaskAll returns a mask with every event bit set (the starting
// point control.Init masks down from).
func NewEventMaskAll() EventMask {
	var m EventMask
	for i := range m.Events {
		m.Events[i] = 0xFF
	}
	return m
}

// Unset clears the bit for event type evt.
func (m *EventMask) Unset(evt int) {
	m.Events[evt/8] &^= 1 << uint(evt%8)
}

func (m EventMask) Pack() []byte {
	b := make([]byte, EventMaskLen)
	binary.LittleEndian.PutUint32(b[0:], m.Iface)
	copy(b[4:28], m.Events[:])
	return b
}

const ScanParamsLen = 74

type ScanParams struct {
	Version     uint32
	Action      uint16
	SyncID      uint16
	SsidLen     uint32
	SSID        [32]byte
	BSSID       [6]byte
	BssType     uint8
	ScanType    uint8
	NProbes     uint32
	ActiveTime  uint32
	PassiveTime uint32
	HomeTime    uint32
	ChannelNum  uint32
	ChannelList [1]uint16
}

func (s ScanParams) Pack() []byte {
	b := make([]byte, ScanParamsLen)
	binary.LittleEndian.PutUint32(b[0:], s.Version)
	binary.LittleEndian.PutUint16(b[4:], s.Action)
	binary.LittleEndian.PutUint16(b[6:], s.SyncID)
	binary.LittleEndian.PutUint32(b[8:], s.SsidLen)
	copy(b[12:44], s.SSID[:])
	copy(b[44:50], s.BSSID[:])
	b[50] = s.BssType
	b[51] = s.ScanType
	binary.LittleEndian.PutUint32(b[52:], s.NProbes)
	binary.LittleEndian.PutUint32(b[56:], s.ActiveTime)
	binary.LittleEndian.PutUint32(b[60:], s.PassiveTime)
	binary.LittleEndian.PutUint32(b[64:], s.HomeTime)
	binary.LittleEndian.PutUint32(b[68:], s.ChannelNum)
	binary.LittleEndian.PutUint16(b[72:], s.ChannelList[0])
	return b
}

const ScanResultsLen = 12

type ScanResults struct {
	BufLen   uint32
	Version  uint32
	SyncID   uint16
	BssCount uint16
}

func UnpackScanResults(b []byte) (ScanResults, bool) {
	var r ScanResults
	if len(b) < ScanResultsLen {
		return r, false
	}
	r.BufLen = binary.LittleEndian.Uint32(b[0:])
	r.Version = binary.LittleEndian.Uint32(b[4:])
	r.SyncID = binary.LittleEndian.Uint16(b[8:])
	r.BssCount = binary.LittleEndian.Uint16(b[10:])
	return r, true
}

const BssInfoLen = 51

// BssInfo is the leading, stable portion of the firmware's bss_info_t;
// real firmware appends further rate/RSNE fields the driver does not
// parse.
type BssInfo struct {
	Version       uint32
	Length        uint32
	BSSID         [6]byte
	BeaconPeriod  uint16
	Capability    uint16
	SsidLen       uint8
	SSID          [32]byte
}

func UnpackBssInfo(b []byte) (BssInfo, bool) {
	var info BssInfo
	if len(b) < BssInfoLen {
		return info, false
	}
	info.Version = binary.LittleEndian.Uint32(b[0:])
	info.Length = binary.LittleEndian.Uint32(b[4:])
	copy(info.BSSID[:], b[8:14])
	info.BeaconPeriod = binary.LittleEndian.Uint16(b[14:])
	info.Capability = binary.LittleEndian.Uint16(b[16:])
	info.SsidLen = b[18]
	copy(info.SSID[:], b[19:51])
	return info, true
}

func (info BssInfo) SSIDString() string {
	n := int(info.SsidLen)
	if n > len(info.SSID) {
		n = len(info.SSID)
	}
	return string(info.SSID[:n])
}
