// Package jitter implements the bounded reorder buffer that sits in front
// of the H.264/AAC depacketizers. It is a small window kept sorted by RTP
// sequence number (wraparound-aware): packets are released oldest sequence
// number first, once the buffer holds more than MaxPackets or once the
// oldest buffered packet has waited at least LatencyNS. The arrival of a
// missing predecessor does not by itself release anything. Over capacity
// it releases the oldest by sequence rather than dropping new arrivals,
// since in-order depacketizing matters more than raw throughput here.
package jitter

import (
	"sort"

	"github.com/pion/rtp"
)

// Entry is one buffered RTP packet plus its arrival instant.
type Entry struct {
	Seq         uint16
	Packet      *rtp.Packet
	ArrivedAtNS int64
}

// Buffer holds packets sorted by sequence number, releasing the oldest once
// the buffer holds more than MaxPackets or once it has waited at least
// LatencyNS.
type Buffer struct {
	MaxPackets int
	LatencyNS  int64

	entries   []Entry
	haveBase  bool
	baseSeq   uint16
	lostTotal uint64
}

// New builds a Buffer. Publish sessions use 200 packets with a 10 ms
// latency budget.
func New(maxPackets int, latencyNS int64) *Buffer {
	return &Buffer{MaxPackets: maxPackets, LatencyNS: latencyNS}
}

// Push inserts pkt, keeping entries sorted by sequence number (mod 2^16
// aware via a rolling base so an old wraparound packet doesn't sort as
// "newest"). It returns the packets now ready to drain.
func (b *Buffer) Push(pkt *rtp.Packet, nowNS int64) []*rtp.Packet {
	if !b.haveBase {
		b.haveBase = true
		b.baseSeq = pkt.SequenceNumber
	}

	b.entries = append(b.entries, Entry{Seq: pkt.SequenceNumber, Packet: pkt, ArrivedAtNS: nowNS})
	sort.Slice(b.entries, func(i, j int) bool {
		return b.relSeq(b.entries[i].Seq) < b.relSeq(b.entries[j].Seq)
	})

	return b.drainReady(nowNS)
}

// relSeq maps a sequence number onto an unwrapped, monotone counter
// relative to the buffer's base, so sort ordering survives one u16 wrap.
func (b *Buffer) relSeq(seq uint16) int {
	d := int(seq) - int(b.baseSeq)
	if d < -32768 {
		d += 65536
	} else if d > 32768 {
		d -= 65536
	}
	return d
}

func (b *Buffer) drainReady(nowNS int64) []*rtp.Packet {
	var out []*rtp.Packet

	for len(b.entries) > 0 {
		over := len(b.entries) > b.MaxPackets
		oldest := b.entries[0]
		aged := b.LatencyNS > 0 && nowNS-oldest.ArrivedAtNS >= b.LatencyNS
		if !over && !aged {
			break
		}
		out = append(out, oldest.Packet)
		b.baseSeq = oldest.Seq + 1
		if len(b.entries) > 1 {
			gap := b.relSeq(b.entries[1].Seq) - b.relSeq(oldest.Seq) - 1
			if gap > 0 {
				b.lostTotal += uint64(gap)
			}
		}
		b.entries = b.entries[1:]
	}
	return out
}

// Flush drains every remaining buffered packet regardless of age, used at
// session teardown so no trailing packets are silently discarded.
func (b *Buffer) Flush() []*rtp.Packet {
	out := make([]*rtp.Packet, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Packet
	}
	b.entries = nil
	return out
}

// LostTotal reports the cumulative gap (in sequence numbers) observed
// across drains so far, for diagnostics.
func (b *Buffer) LostTotal() uint64 {
	return b.lostTotal
}
