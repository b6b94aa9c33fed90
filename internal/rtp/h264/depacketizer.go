package h264

import (
	"github.com/pion/rtp"

	"github.com/streamcenter/streamcenter/internal/errs"
	h264pkg "github.com/streamcenter/streamcenter/internal/h264"
)

// fuAssembly accumulates FU-A fragments for one in-progress NAL unit.
type fuAssembly struct {
	started   bool
	forbidden uint8
	nri       uint8
	typ       uint8
	body      []byte
}

// Depacketizer reconstructs access units (ordered NAL unit groups) from a
// stream of already-reordered RTP packets. One Depacketizer serves one
// SSRC/media.
type Depacketizer struct {
	Mode Mode

	// OnLostFragment, if set, is called whenever a new FU-A start fragment
	// preempts an incomplete in-progress assembly. reason
	// describes what was dropped; callers use it to drive an
	// observer.Observer.LostFragment report instead of silently discarding
	// the partial NAL unit.
	OnLostFragment func(reason string)

	fu           fuAssembly
	curTimestamp uint32
	haveCur      bool
	pending      [][]byte
}

// NewDepacketizer builds a Depacketizer. Interleaved mode is rejected at
// construction: STAP-B/MTAP16/MTAP24/FU-B are never parsed.
func NewDepacketizer(mode Mode) (*Depacketizer, error) {
	if mode == ModeInterleaved {
		return nil, errs.UnsupportedFeature("RTP H.264 interleaved depacketization mode")
	}
	return &Depacketizer{Mode: mode}, nil
}

// AccessUnit is a group of NAL units sharing one RTP timestamp, the unit
// the depacketizer hands upstream for AVCC re-framing.
type AccessUnit struct {
	TimestampRTP uint32
	NALUs        [][]byte
	IsKeyframe   bool
}

// Push feeds one RTP packet. It returns a completed AccessUnit whenever the
// packet's timestamp differs from the access unit under construction (all
// NALs sharing one RTP timestamp flush as one access unit), or ok=false
// if pkt only extends the current access unit.
func (d *Depacketizer) Push(pkt *rtp.Packet) (AccessUnit, bool, error) {
	if len(pkt.Payload) == 0 {
		return AccessUnit{}, false, errs.WireFormat("h264 rtp: empty packet payload")
	}

	var flushed AccessUnit
	haveFlush := false
	if d.haveCur && pkt.Timestamp != d.curTimestamp {
		flushed = d.flush()
		haveFlush = true
	}
	if !d.haveCur {
		d.curTimestamp = pkt.Timestamp
		d.haveCur = true
	}

	typ := h264pkg.NALUType(pkt.Payload[0] & 0x1f)

	switch {
	case typ == h264pkg.NALUTypeSTAPA:
		nalus, err := splitSTAPA(pkt.Payload[1:])
		if err != nil {
			return AccessUnit{}, false, err
		}
		d.pending = append(d.pending, nalus...)

	case typ == h264pkg.NALUTypeFUA:
		nalu, complete, err := d.pushFUA(pkt.Payload)
		if err != nil {
			return AccessUnit{}, false, err
		}
		if complete {
			d.pending = append(d.pending, nalu)
		}

	case typ == h264pkg.NALUTypeSTAPB || typ == h264pkg.NALUTypeMTAP16 ||
		typ == h264pkg.NALUTypeMTAP24 || typ == h264pkg.NALUTypeFUB:
		if d.Mode != ModeInterleaved {
			return AccessUnit{}, false, errs.UnexpectedPacketType(uint8(typ))
		}
		return AccessUnit{}, false, errs.UnsupportedFeature("interleaved H.264 aggregation/fragmentation types")

	default:
		// Single NAL unit packet: the payload byte 0 is a normal NAL
		// header, typ is its NALUType.
		nalu := make([]byte, len(pkt.Payload))
		copy(nalu, pkt.Payload)
		d.pending = append(d.pending, nalu)
	}

	if haveFlush {
		return flushed, true, nil
	}
	return AccessUnit{}, false, nil
}

// Flush forces emission of whatever access unit is under construction, used
// when the caller knows no more packets for this timestamp are coming
// (e.g. session teardown).
func (d *Depacketizer) Flush() (AccessUnit, bool) {
	if !d.haveCur || len(d.pending) == 0 {
		return AccessUnit{}, false
	}
	return d.flush(), true
}

func (d *Depacketizer) flush() AccessUnit {
	au := AccessUnit{TimestampRTP: d.curTimestamp, NALUs: d.pending}
	for _, n := range au.NALUs {
		if h264pkg.IsKeyframe(n) {
			au.IsKeyframe = true
			break
		}
	}
	d.pending = nil
	d.haveCur = false
	return au
}

func splitSTAPA(payload []byte) ([][]byte, error) {
	var out [][]byte
	pos := 0
	for pos < len(payload) {
		if len(payload)-pos < 2 {
			return nil, errs.WireFormat("h264 rtp: truncated STAP-A length")
		}
		size := int(payload[pos])<<8 | int(payload[pos+1])
		pos += 2
		if size == 0 || pos+size > len(payload) {
			return nil, errs.WireFormat("h264 rtp: STAP-A size exceeds remaining payload")
		}
		nalu := make([]byte, size)
		copy(nalu, payload[pos:pos+size])
		out = append(out, nalu)
		pos += size
	}
	if len(out) == 0 {
		return nil, errs.WireFormat("h264 rtp: empty STAP-A aggregate")
	}
	return out, nil
}

// pushFUA accumulates one FU-A fragment. On E=1 it returns the
// reconstructed NAL unit with complete=true. A new FU-A start fragment
// arriving before the previous assembly's E=1 drops the partial assembly
// and reports a lost fragment.
func (d *Depacketizer) pushFUA(payload []byte) ([]byte, bool, error) {
	if len(payload) < 2 {
		return nil, false, errs.WireFormat("h264 rtp: truncated FU-A header")
	}
	indicator := payload[0]
	fuHeader := payload[1]
	s := fuHeader&0x80 != 0
	e := fuHeader&0x40 != 0
	typ := fuHeader & 0x1f
	fragment := payload[2:]

	if s {
		if d.fu.started {
			if d.OnLostFragment != nil {
				d.OnLostFragment("FU-A start fragment preempted incomplete assembly")
			}
			d.fu = fuAssembly{}
		}
		d.fu = fuAssembly{
			started:   true,
			forbidden: indicator >> 7,
			nri:       (indicator >> 5) & 0x03,
			typ:       typ,
			body:      append([]byte{}, fragment...),
		}
		return nil, false, nil
	}

	if !d.fu.started || d.fu.typ != typ {
		return nil, false, errs.WireFormat("h264 rtp: FU-A continuation without start (lost fragment)")
	}
	d.fu.body = append(d.fu.body, fragment...)

	if !e {
		return nil, false, nil
	}

	header := (d.fu.forbidden << 7) | (d.fu.nri << 5) | d.fu.typ
	nalu := make([]byte, 1+len(d.fu.body))
	nalu[0] = header
	copy(nalu[1:], d.fu.body)
	d.fu = fuAssembly{}
	return nalu, true, nil
}
