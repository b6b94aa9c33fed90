package jitter

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestPushEvictsOldestOnceCapacityExceeded(t *testing.T) {
	b := New(2, 0)

	assert.Empty(t, b.Push(pkt(10), 0))
	assert.Empty(t, b.Push(pkt(11), 0), "at capacity, not yet over")

	out := b.Push(pkt(12), 0)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(10), out[0].SequenceNumber)
}

func TestPushReordersOutOfOrderArrivalBeforeEviction(t *testing.T) {
	b := New(2, 0)

	assert.Empty(t, b.Push(pkt(11), 0)) // arrives before 10
	assert.Empty(t, b.Push(pkt(10), 0))

	out := b.Push(pkt(12), 0)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(10), out[0].SequenceNumber, "reordered into sequence order before eviction")
}

func TestPushDrainsAgedPacketsByLatencyBudget(t *testing.T) {
	b := New(100, 10) // 10ns latency budget, large capacity

	out := b.Push(pkt(5), 0)
	assert.Empty(t, out)

	out = b.Push(pkt(6), 10)
	require.Len(t, out, 1, "oldest packet aged past the 10ns budget")
	assert.Equal(t, uint16(5), out[0].SequenceNumber)
}

func TestPushHandlesSequenceWraparound(t *testing.T) {
	b := New(2, 0)

	assert.Empty(t, b.Push(pkt(65534), 0))
	assert.Empty(t, b.Push(pkt(65535), 0))

	out := b.Push(pkt(0), 0)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(65534), out[0].SequenceNumber, "0 sorts after 65535, not before 65534")
}

func TestFlushReturnsRemainingPacketsRegardlessOfAge(t *testing.T) {
	b := New(100, 0)
	b.Push(pkt(1), 0)
	b.Push(pkt(2), 0)

	out := b.Flush()
	require.Len(t, out, 2)
	assert.Equal(t, []uint16{1, 2}, seqs(out))
	assert.Empty(t, b.Flush(), "buffer drained after Flush")
}

func TestLostTotalCountsGapsBetweenDrainedPackets(t *testing.T) {
	b := New(1, 0)
	b.Push(pkt(1), 0)
	out := b.Push(pkt(4), 0) // gap of 2 missing sequence numbers (2, 3)
	require.Len(t, out, 1)

	assert.Equal(t, uint64(2), b.LostTotal())
}

func seqs(pkts []*rtp.Packet) []uint16 {
	out := make([]uint16, len(pkts))
	for i, p := range pkts {
		out[i] = p.SequenceNumber
	}
	return out
}
