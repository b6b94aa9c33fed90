// Package aac implements the RTP MPEG4-generic AAC packetizer and
// depacketizer (RFC 3640). Every access unit maps to exactly one RTP
// packet: at the frame sizes this broker forwards, fragmentation is never
// needed.
package aac

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pion/rtp"

	"github.com/streamcenter/streamcenter/internal/errs"
)

func randUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Packetizer emits one AU per RTP packet using the SDP fmtp sizeLength/
// indexLength convention (13/3 by default).
type Packetizer struct {
	PayloadType int
	SSRC        uint32
	ClockRateHz int

	// SizeLength and IndexLength are the AU-header bit widths negotiated
	// via SDP fmtp; 13/3 unless the peer specifies otherwise.
	SizeLength  int
	IndexLength int

	baseTimestamp      uint32
	firstWallclockNS   int64
	haveFirstWallclock bool
	sequenceNumber     uint16
}

// NewPacketizer builds a Packetizer with RFC 3550 §5.1 random SSRC/seq/ts.
func NewPacketizer(payloadType, clockRateHz int) *Packetizer {
	return &Packetizer{
		PayloadType:    payloadType,
		SSRC:           randUint32(),
		ClockRateHz:    clockRateHz,
		SizeLength:     13,
		IndexLength:    3,
		baseTimestamp:  randUint32(),
		sequenceNumber: uint16(randUint32()),
	}
}

func (p *Packetizer) rtpTimestamp(wallclockNS int64) uint32 {
	if !p.haveFirstWallclock {
		p.firstWallclockNS = wallclockNS
		p.haveFirstWallclock = true
	}
	elapsed := wallclockNS - p.firstWallclockNS
	return p.baseTimestamp + uint32(elapsed*int64(p.ClockRateHz)/1e9)
}

// Packetize wraps one AAC access unit into one RTP packet.
func (p *Packetizer) Packetize(au []byte, wallclockNS int64) (*rtp.Packet, error) {
	if p.SizeLength != 13 || p.IndexLength != 3 {
		return nil, errs.UnsupportedFeature("MPEG4-generic AU-header sizeLength/indexLength other than 13/3")
	}
	if len(au)>>p.SizeLength != 0 {
		return nil, errs.Overflow("aac rtp: AU size %d exceeds %d-bit sizeLength", len(au), p.SizeLength)
	}

	// 2-byte AU-headers-length (bit count of the header section that
	// follows) then one 13-bit size + 3-bit index pair per AU.
	payload := make([]byte, 4+len(au))
	binary.BigEndian.PutUint16(payload[0:2], uint16(p.SizeLength+p.IndexLength))
	binary.BigEndian.PutUint16(payload[2:4], uint16(len(au))<<uint(p.IndexLength))
	copy(payload[4:], au)

	ts := p.rtpTimestamp(wallclockNS)
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    uint8(p.PayloadType),
			SequenceNumber: p.sequenceNumber,
			Timestamp:      ts,
			SSRC:           p.SSRC,
			Marker:         true,
		},
		Payload: payload,
	}
	p.sequenceNumber++
	return pkt, nil
}

// Depacketizer inverts Packetizer: one Audio MediaFrame per AU.
type Depacketizer struct {
	SizeLength  int
	IndexLength int
}

// NewDepacketizer builds a Depacketizer for the negotiated AU-header shape.
func NewDepacketizer(sizeLength, indexLength int) (*Depacketizer, error) {
	if sizeLength != 13 || indexLength != 3 {
		return nil, errs.UnsupportedFeature("MPEG4-generic AU-header sizeLength/indexLength other than 13/3")
	}
	return &Depacketizer{SizeLength: sizeLength, IndexLength: indexLength}, nil
}

// AccessUnit is one depacketized AAC frame with its RTP timestamp.
type AccessUnit struct {
	TimestampRTP uint32
	Payload      []byte
}

// Depacketize extracts the access units carried by one RTP packet. RFC 3640
// allows multiple AUs per packet; this broker's publishers emit exactly
// one, but the header-length field is honored generally.
func (d *Depacketizer) Depacketize(pkt *rtp.Packet) ([]AccessUnit, error) {
	payload := pkt.Payload
	if len(payload) < 2 {
		return nil, errs.WireFormat("aac rtp: truncated AU-headers-length")
	}
	headersLengthBits := int(binary.BigEndian.Uint16(payload[0:2]))
	headerBits := d.SizeLength + d.IndexLength
	if headerBits == 0 || headersLengthBits%headerBits != 0 {
		return nil, errs.WireFormat("aac rtp: AU-headers-length %d not a multiple of header size %d", headersLengthBits, headerBits)
	}
	numAUs := headersLengthBits / headerBits
	headersLenBytes := (headersLengthBits + 7) / 8
	pos := 2
	if len(payload) < pos+headersLenBytes {
		return nil, errs.WireFormat("aac rtp: AU-headers section exceeds payload")
	}

	headerBuf := payload[pos : pos+headersLenBytes]
	pos += headersLenBytes

	out := make([]AccessUnit, 0, numAUs)
	bitPos := 0
	for i := 0; i < numAUs; i++ {
		size := readBits(headerBuf, bitPos, d.SizeLength)
		bitPos += d.SizeLength
		bitPos += d.IndexLength // AU-index / AU-index-delta, unused here

		if pos+size > len(payload) {
			return nil, errs.WireFormat("aac rtp: AU size exceeds remaining payload")
		}
		au := make([]byte, size)
		copy(au, payload[pos:pos+size])
		pos += size

		out = append(out, AccessUnit{TimestampRTP: pkt.Timestamp, Payload: au})
	}
	return out, nil
}

func readBits(buf []byte, bitOffset, n int) int {
	v := 0
	for i := 0; i < n; i++ {
		byteIdx := (bitOffset + i) / 8
		bitIdx := 7 - (bitOffset+i)%8
		bit := 0
		if byteIdx < len(buf) {
			bit = int((buf[byteIdx] >> uint(bitIdx)) & 1)
		}
		v = (v << 1) | bit
	}
	return v
}
