package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamcenter/streamcenter/internal/amf/amf0"
	"github.com/streamcenter/streamcenter/internal/broker"
	"github.com/streamcenter/streamcenter/internal/clock"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/observer"
	"github.com/streamcenter/streamcenter/internal/rtmp/chunk"
)

// clientHandshake drives the client side of the simple RTMP handshake
// against a Session's chunk.ServerHandshake: C0+C1, read
// S0+S1+S2, C2. chunk.ServerHandshake never validates C1's digest, so the
// random bytes here only need to be the right size.
func clientHandshake(t *testing.T, conn net.Conn) {
	t.Helper()
	c0c1 := make([]byte, chunk.HandshakeSize)
	c0c1[0] = 3
	_, err := conn.Write(c0c1)
	require.NoError(t, err)

	s0s1s2 := make([]byte, 1+1536+1536)
	_, err = io.ReadFull(conn, s0s1s2)
	require.NoError(t, err)
	require.Equal(t, byte(3), s0s1s2[0])

	c2 := make([]byte, 1536)
	_, err = conn.Write(c2)
	require.NoError(t, err)
}

// nextCommand drains control messages from msgs until it finds the next
// AMF0/AMF3 command message and returns its decoded values.
func nextCommand(t *testing.T, msgs <-chan chunk.Message) []amf0.Value {
	t.Helper()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				t.Fatal("server closed the connection before sending a command")
				return nil
			}
			if msg.TypeID != chunk.TypeCommandAMF0 && msg.TypeID != chunk.TypeCommandAMF3 {
				continue
			}
			vals, err := decodeCommand(msg.Payload)
			require.NoError(t, err)
			return vals
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a command message")
			return nil
		}
	}
}

// TestHandshakeConnectPublishSingleFrame drives the full publish path:
// handshake -> connect -> createStream -> publish -> a single audio frame,
// asserting the frame reaches the broker unchanged.
func TestHandshakeConnectPublishSingleFrame(t *testing.T) {
	b := broker.New(observer.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	clk := clock.NewManual(1_000_000_000)
	sess := New(serverConn, b, clk, observer.Nop{}, 0)

	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run() }()

	clientHandshake(t, clientConn)

	cw := chunk.NewWriter(clientConn)
	cr := chunk.NewReader(clientConn)
	msgs := make(chan chunk.Message, 64)
	go func() {
		for {
			msg, _, err := cr.ReadMessage()
			if err != nil {
				close(msgs)
				return
			}
			msgs <- msg
		}
	}()

	connectPayload, err := encodeValues(
		amf0.String("connect"), amf0.Number(1),
		amf0.Object(
			amf0.Pair{Key: "app", Value: amf0.String("live")},
			amf0.Pair{Key: "objectEncoding", Value: amf0.Number(0)},
		),
	)
	require.NoError(t, err)
	require.NoError(t, cw.WriteMessage(commandCSID, chunk.TypeCommandAMF0, 0, 0, connectPayload))

	connectResult := nextCommand(t, msgs)
	require.Equal(t, "_result", connectResult[0].Str)

	createStreamPayload, err := encodeValues(amf0.String("createStream"), amf0.Number(2), amf0.Null)
	require.NoError(t, err)
	require.NoError(t, cw.WriteMessage(commandCSID, chunk.TypeCommandAMF0, 0, 0, createStreamPayload))

	createStreamResult := nextCommand(t, msgs)
	require.Equal(t, "_result", createStreamResult[0].Str)
	require.Equal(t, amf0.KindNumber, createStreamResult[3].Kind)
	rtmpStreamID := uint32(createStreamResult[3].Number)

	publishPayload, err := encodeValues(
		amf0.String("publish"), amf0.Number(3), amf0.Null, amf0.String("stream1"), amf0.String("live"),
	)
	require.NoError(t, err)
	require.NoError(t, cw.WriteMessage(commandCSID, chunk.TypeCommandAMF0, rtmpStreamID, 0, publishPayload))

	publishResult := nextCommand(t, msgs)
	require.Equal(t, "onStatus", publishResult[0].Str)
	code, ok := publishResult[3].Get("code")
	require.True(t, ok)
	require.Equal(t, "NetStream.Publish.Start", code.Str)

	id := frame.Identifier{App: "live", Name: "stream1"}
	sub, err := b.Subscribe(context.Background(), id, nil, true, true, clk.NowNS())
	require.NoError(t, err)

	// AAC raw packet: soundFormat=AAC (10), rate/size/stereo flags, AACPacketType=raw.
	audioPayload := []byte{0xAF, 0x01, 0x21, 0x10}
	require.NoError(t, cw.WriteMessage(4, chunk.TypeAudio, rtmpStreamID, 40, audioPayload))

	select {
	case f := <-sub.MediaReceiver:
		require.Equal(t, frame.KindAudio, f.Kind)
		require.Equal(t, audioPayload[2:], f.Payload)
		require.Equal(t, uint64(40)*1_000_000, f.TimestampNS)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the broker to relay the audio frame")
	}

	clientConn.Close()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("session.Run did not return after the connection closed")
	}
}
