package h264

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	h264pkg "github.com/streamcenter/streamcenter/internal/h264"
)

func depacketizeAll(t *testing.T, mode Mode, pkts []*rtp.Packet) []AccessUnit {
	t.Helper()
	d, err := NewDepacketizer(mode)
	require.NoError(t, err)

	var aus []AccessUnit
	for _, pkt := range pkts {
		au, ok, err := d.Push(pkt)
		require.NoError(t, err)
		if ok {
			aus = append(aus, au)
		}
	}
	if au, ok := d.Flush(); ok {
		aus = append(aus, au)
	}
	return aus
}

func TestPacketizeSingleNALUFitsOnePacketPerNALU(t *testing.T) {
	p, err := NewPacketizer(96, ModeSingleNALU)
	require.NoError(t, err)

	nalus := [][]byte{{0x67, 0x01, 0x02}, {0x68, 0x03}, {0x65, 0x04, 0x05, 0x06}}
	pkts, err := p.Packetize(nalus, 0)
	require.NoError(t, err)
	require.Len(t, pkts, len(nalus))

	for i, pkt := range pkts {
		assert.Equal(t, nalus[i], pkt.Payload)
		assert.Equal(t, i == len(pkts)-1, pkt.Marker)
		assert.Equal(t, uint8(96), pkt.PayloadType)
	}
}

func TestPacketizeSingleNALURejectsOversizeNALU(t *testing.T) {
	p, err := NewPacketizer(96, ModeSingleNALU)
	require.NoError(t, err)
	p.MTU = 4

	_, err = p.Packetize([][]byte{{0x65, 1, 2, 3, 4, 5}}, 0)
	require.Error(t, err)
}

func TestPacketizeNonInterleavedAggregatesSmallNALUsIntoOneSTAPA(t *testing.T) {
	p, err := NewPacketizer(96, ModeNonInterleaved)
	require.NoError(t, err)

	nalus := [][]byte{{0x67, 0x01, 0x02}, {0x68, 0x03}, {0x65, 0x04, 0x05, 0x06}}
	pkts, err := p.Packetize(nalus, 0)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, uint8(h264pkg.NALUTypeSTAPA), pkts[0].Payload[0]&0x1f)
	assert.True(t, pkts[0].Marker)

	aus := depacketizeAll(t, ModeNonInterleaved, pkts)
	require.Len(t, aus, 1)
	assert.Equal(t, nalus, aus[0].NALUs)
	assert.True(t, aus[0].IsKeyframe)
}

func TestPacketizeNonInterleavedFragmentsOversizeNALUIntoFUA(t *testing.T) {
	p, err := NewPacketizer(96, ModeNonInterleaved)
	require.NoError(t, err)
	p.MTU = 20 // force fragmentation: fragSize = 20-12-2 = 6, body doesn't fit in one fragment

	nalu := append([]byte{0x65}, bytes.Repeat([]byte{0xab}, 40)...)
	pkts, err := p.Packetize([][]byte{nalu}, 0)
	require.NoError(t, err)
	require.Greater(t, len(pkts), 1)

	for i, pkt := range pkts {
		require.Equal(t, uint8(h264pkg.NALUTypeFUA), pkt.Payload[0]&0x1f)
		s := pkt.Payload[1]&0x80 != 0
		e := pkt.Payload[1]&0x40 != 0
		if i == 0 {
			assert.True(t, s, "first fragment must set S")
		} else {
			assert.False(t, s, "continuation fragments must not set S")
		}
		if i == len(pkts)-1 {
			assert.True(t, e, "last fragment must set E")
			assert.True(t, pkt.Marker)
		} else {
			assert.False(t, e)
			assert.False(t, pkt.Marker)
		}
		assert.Equal(t, pkts[0].Timestamp, pkt.Timestamp)
		assert.Equal(t, pkts[0].SequenceNumber+uint16(i), pkt.SequenceNumber)
	}

	aus := depacketizeAll(t, ModeNonInterleaved, pkts)
	require.Len(t, aus, 1)
	require.Len(t, aus[0].NALUs, 1)
	assert.Equal(t, nalu, aus[0].NALUs[0])
	assert.True(t, aus[0].IsKeyframe)
}

func TestPacketizeFragmentsAccountForRTPHeaderInMTUBudget(t *testing.T) {
	p, err := NewPacketizer(96, ModeNonInterleaved)
	require.NoError(t, err)
	p.MTU = 1400

	nalu := append([]byte{0x65}, bytes.Repeat([]byte{0xcd}, 4095)...) // 4096-byte NAL
	pkts, err := p.Packetize([][]byte{nalu}, 0)
	require.NoError(t, err)

	// fragSize = MTU(1400) - rtpHeaderSize(12) - 2 (FU indicator+header) = 1386;
	// ceil(4095/1386) = 3 fragments, each within the MTU once the RTP header
	// is accounted for.
	require.Len(t, pkts, 3)

	var reassembled []byte
	for _, pkt := range pkts {
		assert.LessOrEqual(t, len(pkt.Payload)+rtpHeaderSize, p.MTU)
		reassembled = append(reassembled, pkt.Payload[2:]...)
	}
	assert.Equal(t, nalu[1:], reassembled)
}

func TestPacketizeMixedBatchSeparatesAccessUnitsByTimestamp(t *testing.T) {
	p, err := NewPacketizer(96, ModeNonInterleaved)
	require.NoError(t, err)

	au1, err := p.Packetize([][]byte{{0x67, 1}, {0x41, 2}}, 0)
	require.NoError(t, err)
	au2, err := p.Packetize([][]byte{{0x41, 3}}, int64(33*1e6)) // ~1 frame later at 30fps

	require.NoError(t, err)

	all := append(append([]*rtp.Packet{}, au1...), au2...)
	aus := depacketizeAll(t, ModeNonInterleaved, all)
	require.Len(t, aus, 2)
	assert.NotEqual(t, aus[0].TimestampRTP, aus[1].TimestampRTP)
}

func TestDepacketizerRejectsFUAContinuationWithoutStart(t *testing.T) {
	d, err := NewDepacketizer(ModeNonInterleaved)
	require.NoError(t, err)

	// E=1, S=0 with no prior start fragment for this NAL type.
	pkt := &rtp.Packet{
		Header:  rtp.Header{Timestamp: 1000},
		Payload: []byte{(1 << 5) | uint8(h264pkg.NALUTypeFUA), 0x40 | 5, 0xaa},
	}
	_, _, err = d.Push(pkt)
	require.Error(t, err)
}

func TestDepacketizerRejectsInterleavedTypesOutsideInterleavedMode(t *testing.T) {
	d, err := NewDepacketizer(ModeNonInterleaved)
	require.NoError(t, err)

	pkt := &rtp.Packet{
		Header:  rtp.Header{Timestamp: 1000},
		Payload: []byte{uint8(h264pkg.NALUTypeFUB), 0x00},
	}
	_, _, err = d.Push(pkt)
	require.Error(t, err)
}

func TestNewPacketizerRejectsInterleavedMode(t *testing.T) {
	_, err := NewPacketizer(96, ModeInterleaved)
	require.Error(t, err)
}

func TestNewDepacketizerRejectsInterleavedMode(t *testing.T) {
	_, err := NewDepacketizer(ModeInterleaved)
	require.Error(t, err)
}
