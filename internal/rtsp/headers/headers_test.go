package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamcenter/streamcenter/internal/rtsp/base"
)

func TestSessionReadWriteRoundTrip(t *testing.T) {
	var h Session
	require.NoError(t, h.Read(base.HeaderValue{"abc123;timeout=60"}))
	assert.Equal(t, "abc123", h.ID)
	require.NotNil(t, h.Timeout)
	assert.Equal(t, uint(60), *h.Timeout)

	written := h.Write()
	assert.Equal(t, base.HeaderValue{"abc123;timeout=60"}, written)
}

func TestSessionReadWithoutTimeout(t *testing.T) {
	var h Session
	require.NoError(t, h.Read(base.HeaderValue{"xyz"}))
	assert.Equal(t, "xyz", h.ID)
	assert.Nil(t, h.Timeout)
}

func TestSessionReadRejectsEmptyHeader(t *testing.T) {
	var h Session
	err := h.Read(base.HeaderValue{})
	require.Error(t, err)
}

func TestTransportUnmarshalUDPUnicastClientPorts(t *testing.T) {
	var tr Transport
	require.NoError(t, tr.Unmarshal("RTP/AVP;unicast;client_port=4000-4001"))

	assert.Equal(t, TransportProtocolUDP, tr.Protocol)
	require.NotNil(t, tr.Delivery)
	assert.Equal(t, TransportDeliveryUnicast, *tr.Delivery)
	require.NotNil(t, tr.ClientPorts)
	assert.Equal(t, [2]int{4000, 4001}, *tr.ClientPorts)
}

func TestTransportUnmarshalTCPInterleaved(t *testing.T) {
	var tr Transport
	require.NoError(t, tr.Unmarshal("RTP/AVP/TCP;interleaved=0-1"))

	assert.Equal(t, TransportProtocolTCP, tr.Protocol)
	require.NotNil(t, tr.InterleavedIDs)
	assert.Equal(t, [2]int{0, 1}, *tr.InterleavedIDs)
}

func TestTransportUnmarshalRejectsMissingProtocol(t *testing.T) {
	var tr Transport
	err := tr.Unmarshal("unicast;client_port=4000-4001")
	require.Error(t, err)
}

func TestTransportUnmarshalSSRCAndMode(t *testing.T) {
	var tr Transport
	require.NoError(t, tr.Unmarshal(`RTP/AVP;unicast;ssrc=DEADBEEF;mode="record"`))

	require.NotNil(t, tr.SSRC)
	assert.Equal(t, uint32(0xDEADBEEF), *tr.SSRC)
	require.NotNil(t, tr.Mode)
	assert.Equal(t, TransportModeRecord, *tr.Mode)
}

func TestTransportMarshalRoundTripsServerPorts(t *testing.T) {
	delivery := TransportDeliveryUnicast
	tr := Transport{Protocol: TransportProtocolUDP, Delivery: &delivery, ServerPorts: &[2]int{6970, 6971}}

	out := tr.Marshal()
	var parsed Transport
	require.NoError(t, parsed.Unmarshal(out))
	require.NotNil(t, parsed.ServerPorts)
	assert.Equal(t, [2]int{6970, 6971}, *parsed.ServerPorts)
}

func TestReadTransportPicksFirstOfCommaSeparatedList(t *testing.T) {
	tr, err := ReadTransport(base.HeaderValue{"RTP/AVP;unicast;client_port=4000-4001,RTP/AVP/TCP;interleaved=0-1"})
	require.NoError(t, err)
	assert.Equal(t, TransportProtocolUDP, tr.Protocol)
}

func TestReadTransportRejectsEmptyHeader(t *testing.T) {
	_, err := ReadTransport(base.HeaderValue{})
	require.Error(t, err)
}
