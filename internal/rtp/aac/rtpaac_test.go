package aac

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketizeDepacketizeRoundTrip(t *testing.T) {
	p := NewPacketizer(97, 48000)
	au := []byte{0x21, 0x19, 0x56, 0xe5, 0x00}

	pkt, err := p.Packetize(au, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(97), pkt.PayloadType)
	assert.True(t, pkt.Marker)

	d, err := NewDepacketizer(13, 3)
	require.NoError(t, err)
	aus, err := d.Depacketize(pkt)
	require.NoError(t, err)
	require.Len(t, aus, 1)
	assert.Equal(t, au, aus[0].Payload)
	assert.Equal(t, pkt.Timestamp, aus[0].TimestampRTP)
}

func TestPacketizeAssignsIncreasingSequenceNumbers(t *testing.T) {
	p := NewPacketizer(97, 48000)
	pkt1, err := p.Packetize([]byte{1, 2, 3}, 0)
	require.NoError(t, err)
	pkt2, err := p.Packetize([]byte{4, 5, 6}, int64(20*1e6))
	require.NoError(t, err)

	assert.Equal(t, pkt1.SequenceNumber+1, pkt2.SequenceNumber)
	assert.NotEqual(t, pkt1.Timestamp, pkt2.Timestamp)
}

func TestPacketizeRejectsNonDefaultHeaderShape(t *testing.T) {
	p := NewPacketizer(97, 48000)
	p.SizeLength = 8
	_, err := p.Packetize([]byte{1}, 0)
	require.Error(t, err)
}

func TestPacketizeRejectsOversizeAU(t *testing.T) {
	p := NewPacketizer(97, 48000)
	big := make([]byte, 1<<13) // exactly 2^13: one bit too wide for a 13-bit size field
	_, err := p.Packetize(big, 0)
	require.Error(t, err)
}

func TestNewDepacketizerRejectsNonDefaultHeaderShape(t *testing.T) {
	_, err := NewDepacketizer(14, 3)
	require.Error(t, err)
}

func TestDepacketizeRejectsTruncatedHeader(t *testing.T) {
	d, err := NewDepacketizer(13, 3)
	require.NoError(t, err)
	_, err = d.Depacketize(&rtp.Packet{Payload: []byte{0x00}})
	require.Error(t, err)
}
