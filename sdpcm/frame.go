package sdpcm

// SeqState tracks the host's half of the SDPCM credit/sequence
// protocol: tx_seq is the next frame number to send, tx_seq_max is the
// largest the chip currently accepts (refreshed from every RX frame's
// BusDataCredit), and rxSeq is the next expected inbound sequence,
// checked only advisorially.
type SeqState struct {
	txSeq    uint8
	txSeqMax uint8
	rxSeq    uint8
}

// CanSend reports whether the credit window allows another frame out.
func (s *SeqState) CanSend() bool { return s.txSeq != s.txSeqMax }

// NextTxSeq consumes and returns the next outbound sequence number.
// Callers must check CanSend first.
func (s *SeqState) NextTxSeq() uint8 {
	v := s.txSeq
	s.txSeq++
	return v
}

// UpdateCredit absorbs the chip's advertised credit from an RX frame.
func (s *SeqState) UpdateCredit(credit uint8) { s.txSeqMax = credit }

// ObserveRx compares an inbound sequence number against the expected
// value and advances the expectation regardless of match: a mismatch
// is advisory only, never fatal.
func (s *SeqState) ObserveRx(seq uint8) (matched bool) {
	matched = seq == s.rxSeq
	s.rxSeq = seq + 1
	return matched
}

func pad4(b []byte) []byte {
	if r := len(b) % 4; r != 0 {
		b = append(b, make([]byte, 4-r)...)
	}
	return b
}

// PackControlFrame wraps an ioctl request in CDC+SDPCM headers, ready
// for transmission on the control channel.
func PackControlFrame(seq uint8, busCredit uint8, cmd uint32, flags uint16, id uint16, payload []byte) []byte {
	cdc := CdcHeader{Cmd: cmd, Len: uint32(len(payload)), Flags: flags, ID: id}
	body := append(cdc.Pack(), payload...)

	hdr := SdpcmHeader{
		Sequence:        seq,
		ChannelAndFlags: uint8(ChannelControl),
		HeaderLength:    SdpcmHeaderLen,
		BusDataCredit:   busCredit,
	}
	frame := append(hdr.Pack(), body...)
	frame = pad4(frame)
	hdr.Len = uint16(len(frame))
	hdr.LenInv = ^hdr.Len
	copy(frame[:SdpcmHeaderLen], hdr.Pack())
	return frame
}

// PackDataFrame wraps an Ethernet frame in BDC+SDPCM headers, ready for
// transmission on the data channel.
func PackDataFrame(seq uint8, busCredit uint8, ethernetFrame []byte) []byte {
	bdc := NewBdcHeader()
	body := append(bdc.Pack(), ethernetFrame...)

	hdr := SdpcmHeader{
		Sequence:        seq,
		ChannelAndFlags: uint8(ChannelData),
		HeaderLength:    SdpcmHeaderLen,
		BusDataCredit:   busCredit,
	}
	frame := append(hdr.Pack(), body...)
	frame = pad4(frame)
	hdr.Len = uint16(len(frame))
	hdr.LenInv = ^hdr.Len
	copy(frame[:SdpcmHeaderLen], hdr.Pack())
	return frame
}

// PackEventFrame wraps an EventPacket in an SDPCM header for the event
// channel. Used by the chip side in tests; the host never transmits
// event frames itself.
func PackEventFrame(seq uint8, busCredit uint8, pkt EventPacket) []byte {
	body := pkt.Pack()
	hdr := SdpcmHeader{
		Sequence:        seq,
		ChannelAndFlags: uint8(ChannelEvent),
		HeaderLength:    SdpcmHeaderLen,
		BusDataCredit:   busCredit,
	}
	frame := append(hdr.Pack(), body...)
	frame = pad4(frame)
	hdr.Len = uint16(len(frame))
	hdr.LenInv = ^hdr.Len
	copy(frame[:SdpcmHeaderLen], hdr.Pack())
	return frame
}

// ParsedFrame is the result of splitting a raw SDPCM frame into its
// header and sub-header payload.
type ParsedFrame struct {
	Sdpcm   SdpcmHeader
	Channel Channel
	Payload []byte // bytes after SdpcmHeader.HeaderLength
}

// ParseFrame validates the SDPCM length check and returns the channel
// and the payload starting at HeaderLength, i.e. at the CDC, BDC or
// Ethernet+event sub-header. A HeaderCorrupt frame yields
// ok == false and must be silently discarded.
func ParseFrame(raw []byte) (ParsedFrame, bool) {
	hdr, ok := UnpackSdpcmHeader(raw)
	if !ok || !hdr.Valid() {
		return ParsedFrame{}, false
	}
	if int(hdr.HeaderLength) > len(raw) {
		return ParsedFrame{}, false
	}
	return ParsedFrame{
		Sdpcm:   hdr,
		Channel: hdr.Channel(),
		Payload: raw[hdr.HeaderLength:],
	}, true
}
