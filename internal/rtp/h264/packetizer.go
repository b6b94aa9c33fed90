// Package h264 implements the RTP H.264 packetizer and depacketizer
// (RFC 6184).
package h264

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pion/rtp"

	"github.com/streamcenter/streamcenter/internal/errs"
	h264pkg "github.com/streamcenter/streamcenter/internal/h264"
)

// ClockRate is the RTP clock rate used for every H.264 media stream.
const ClockRate = 90000

// rtpHeaderSize is the fixed RTP header size with no CSRC list or
// extension (version, P/X/CC, M/PT, sequence, timestamp, SSRC; RFC 3550
// §5.1), matching rtp.Header{}.MarshalSize() for the headers this
// packetizer builds. Every MTU check below budgets this many bytes for
// the header on top of the payload.
const rtpHeaderSize = 12

// Mode selects the packetization strategy.
type Mode int

const (
	// ModeSingleNALU emits one RTP packet per NAL unit and fails if any
	// NALU exceeds the MTU.
	ModeSingleNALU Mode = iota
	// ModeNonInterleaved is the default: STAP-A aggregation plus FU-A
	// fragmentation.
	ModeNonInterleaved
	// ModeInterleaved (STAP-B/MTAP/FU-B) is rejected; no publisher or
	// player this broker targets negotiates it.
	ModeInterleaved
)

func randUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Packetizer turns access units (ordered slices of NAL units) into RTP
// packets.
type Packetizer struct {
	PayloadType int
	SSRC        uint32
	Mode        Mode

	// MTU is the maximum size in bytes of a full RTP packet (header plus
	// payload), default 1455. Every packing decision below budgets
	// rtpHeaderSize out of it before fitting NALU bytes, so the payload
	// a packet actually carries is at most MTU-rtpHeaderSize(-2 for
	// FU-A/STAP-A framing).
	MTU int

	baseTimestamp      uint32
	firstWallclockNS   int64
	haveFirstWallclock bool
	sequenceNumber     uint16
}

// NewPacketizer builds a Packetizer with a random SSRC and initial sequence
// number, per RFC 3550 §5.1.
func NewPacketizer(payloadType int, mode Mode) (*Packetizer, error) {
	if mode == ModeInterleaved {
		return nil, errs.UnsupportedFeature("RTP H.264 interleaved packetization mode")
	}
	return &Packetizer{
		PayloadType:    payloadType,
		SSRC:           randUint32(),
		Mode:           mode,
		MTU:            1455,
		baseTimestamp:  randUint32(),
		sequenceNumber: uint16(randUint32()),
	}, nil
}

func (p *Packetizer) rtpTimestamp(wallclockNS int64) uint32 {
	if !p.haveFirstWallclock {
		p.firstWallclockNS = wallclockNS
		p.haveFirstWallclock = true
	}
	elapsed := wallclockNS - p.firstWallclockNS
	return p.baseTimestamp + uint32(elapsed*ClockRate/1e9)
}

// Packetize encodes one access unit (already ordered so that SPS/PPS, if
// present, come first) into RTP packets timestamped from wallclockNS.
func (p *Packetizer) Packetize(nalus [][]byte, wallclockNS int64) ([]*rtp.Packet, error) {
	if len(nalus) == 0 {
		return nil, errs.WireFormat("h264 rtp: empty access unit")
	}

	ts := p.rtpTimestamp(wallclockNS)

	var out []*rtp.Packet
	var batch [][]byte

	flush := func(last bool) error {
		if batch == nil {
			return nil
		}
		pkts, err := p.packBatch(batch, ts, last)
		if err != nil {
			return err
		}
		out = append(out, pkts...)
		batch = nil
		return nil
	}

	for i, nalu := range nalus {
		last := i == len(nalus)-1

		if p.Mode == ModeSingleNALU {
			if len(nalu)+rtpHeaderSize > p.MTU {
				return nil, errs.Overflow("h264 rtp: NALU size %d exceeds MTU %d in single-NALU mode", len(nalu), p.MTU)
			}
			pkt, err := p.singlePacket(nalu, ts, last)
			if err != nil {
				return nil, err
			}
			out = append(out, pkt)
			continue
		}

		if aggregatedLen(batch, nalu)+rtpHeaderSize <= p.MTU {
			batch = append(batch, nalu)
			if !last {
				continue
			}
			if err := flush(true); err != nil {
				return nil, err
			}
			continue
		}

		if err := flush(false); err != nil {
			return nil, err
		}

		if len(nalu)+rtpHeaderSize <= p.MTU {
			batch = [][]byte{nalu}
			if last {
				if err := flush(true); err != nil {
					return nil, err
				}
			}
			continue
		}

		pkts, err := p.fragment(nalu, ts, last)
		if err != nil {
			return nil, err
		}
		out = append(out, pkts...)
	}

	return out, nil
}

// aggregatedLen returns the STAP-A payload size (header byte plus each
// aggregated NALU's 2-byte length prefix and body), the bytes that end
// up in rtp.Packet.Payload, NOT counting the RTP header itself (the
// caller adds rtpHeaderSize separately when checking against the MTU).
func aggregatedLen(batch [][]byte, add []byte) int {
	n := 1 // STAP-A header byte
	for _, b := range batch {
		n += 2 + len(b)
	}
	if add != nil {
		n += 2 + len(add)
	}
	return n
}

func (p *Packetizer) newHeader(ts uint32, marker bool) rtp.Header {
	h := rtp.Header{
		Version:        2,
		PayloadType:    uint8(p.PayloadType),
		SequenceNumber: p.sequenceNumber,
		Timestamp:      ts,
		SSRC:           p.SSRC,
		Marker:         marker,
	}
	p.sequenceNumber++
	return h
}

func (p *Packetizer) singlePacket(nalu []byte, ts uint32, marker bool) (*rtp.Packet, error) {
	if len(nalu)+rtpHeaderSize > p.MTU {
		return nil, errs.Overflow("h264 rtp: NALU size %d exceeds MTU %d", len(nalu), p.MTU)
	}
	return &rtp.Packet{Header: p.newHeader(ts, marker), Payload: nalu}, nil
}

func (p *Packetizer) packBatch(nalus [][]byte, ts uint32, marker bool) ([]*rtp.Packet, error) {
	if len(nalus) == 1 {
		pkt, err := p.singlePacket(nalus[0], ts, marker)
		if err != nil {
			return nil, err
		}
		return []*rtp.Packet{pkt}, nil
	}
	return p.aggregate(nalus, ts, marker)
}

func (p *Packetizer) aggregate(nalus [][]byte, ts uint32, marker bool) ([]*rtp.Packet, error) {
	payload := make([]byte, aggregatedLen(nalus, nil))

	var nri uint8
	for _, nalu := range nalus {
		if n := (nalu[0] >> 5) & 0x03; n > nri {
			nri = n
		}
	}
	payload[0] = (nri << 5) | uint8(h264pkg.NALUTypeSTAPA)

	pos := 1
	for _, nalu := range nalus {
		binary.BigEndian.PutUint16(payload[pos:], uint16(len(nalu)))
		pos += 2
		pos += copy(payload[pos:], nalu)
	}

	return []*rtp.Packet{{Header: p.newHeader(ts, marker), Payload: payload}}, nil
}

func (p *Packetizer) fragment(nalu []byte, ts uint32, marker bool) ([]*rtp.Packet, error) {
	fragSize := p.MTU - rtpHeaderSize - 2
	if fragSize < 1 {
		return nil, errs.InvalidMTU(p.MTU)
	}

	nri := (nalu[0] >> 5) & 0x03
	typ := nalu[0] & 0x1f
	body := nalu[1:]

	packetCount := (len(body) + fragSize - 1) / fragSize
	if packetCount == 0 {
		packetCount = 1
	}

	ret := make([]*rtp.Packet, packetCount)
	for i := 0; i < packetCount; i++ {
		start := i * fragSize
		end := start + fragSize
		if end > len(body) {
			end = len(body)
		}
		chunk := body[start:end]

		s := uint8(0)
		if i == 0 {
			s = 1
		}
		e := uint8(0)
		isLast := i == packetCount-1
		if isLast {
			e = 1
		}

		data := make([]byte, 2+len(chunk))
		data[0] = (nri << 5) | uint8(h264pkg.NALUTypeFUA)
		data[1] = (s << 7) | (e << 6) | typ
		copy(data[2:], chunk)

		ret[i] = &rtp.Packet{
			Header:  p.newHeader(ts, isLast && marker),
			Payload: data,
		}
	}

	return ret, nil
}
