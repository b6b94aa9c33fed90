package session

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/streamcenter/streamcenter/internal/broker"
	"github.com/streamcenter/streamcenter/internal/clock"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/observer"
	aacrtp "github.com/streamcenter/streamcenter/internal/rtp/aac"
	"github.com/streamcenter/streamcenter/internal/rtsp/base"
)

// aacLC44100Stereo is a well-known AudioSpecificConfig: AAC-LC, 44100Hz,
// stereo, used by many encoders as the default MPEG4-generic config.
var aacLC44100Stereo = []byte{0x12, 0x10}

// readNextResponse drains interleaved RTP/RTCP frames arriving ahead of a
// text response, mirroring how Session.Run itself distinguishes the two
// (base.PeekIsInterleavedFrame).
func readNextResponse(t *testing.T, rb *bufio.Reader) base.Response {
	t.Helper()
	for {
		isFrame, err := base.PeekIsInterleavedFrame(rb)
		require.NoError(t, err)
		if !isFrame {
			var res base.Response
			require.NoError(t, res.Read(rb))
			return res
		}
		var f base.InterleavedFrame
		require.NoError(t, f.Read(64*1024, rb))
	}
}

// readNextInterleavedFrame waits for the next $-framed RTP/RTCP packet,
// skipping none (the caller expects no text response until the next request
// is sent).
func readNextInterleavedFrame(t *testing.T, rb *bufio.Reader) base.InterleavedFrame {
	t.Helper()
	type result struct {
		f   base.InterleavedFrame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		isFrame, err := base.PeekIsInterleavedFrame(rb)
		if err != nil {
			ch <- result{err: err}
			return
		}
		if !isFrame {
			ch <- result{err: errUnexpectedText}
			return
		}
		var f base.InterleavedFrame
		err = f.Read(64*1024, rb)
		ch <- result{f: f, err: err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an interleaved frame")
		return base.InterleavedFrame{}
	}
}

var errUnexpectedText = &textInsteadOfFrameError{}

type textInsteadOfFrameError struct{}

func (*textInsteadOfFrameError) Error() string { return "rtsp test: expected an interleaved frame, got text" }

func mustURL(t *testing.T, raw string) *base.URL {
	t.Helper()
	u, err := base.ParseURL(raw)
	require.NoError(t, err)
	return u
}

func sendRequest(t *testing.T, bw *bufio.Writer, req base.Request) {
	t.Helper()
	require.NoError(t, req.Write(bw))
}

// TestDescribeSetupPlayTeardown drives the full subscriber path:
// DESCRIBE -> SETUP -> PLAY -> TEARDOWN, asserting the SDP answer, the
// Transport answer, an actual RTP packet reaching the client, and a clean
// TEARDOWN.
func TestDescribeSetupPlayTeardown(t *testing.T) {
	b := broker.New(observer.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	id := frame.Identifier{App: "live", Name: "cam1"}
	producer, err := b.Publish(ctx, id, frame.TypeLive, nil)
	require.NoError(t, err)

	clk := clock.NewManual(1_000_000_000)
	producer <- frame.AudioConfig(uint64(clk.NowNS()), frame.AudioSoundInfo{SampleRateHz: 44100, SampleSizeBit: 16, Stereo: true}, aacLC44100Stereo)

	// The broker applies published frames asynchronously (internal/broker's
	// pump goroutine re-enters the event loop); poll Describe until the
	// config lands rather than assuming a fixed delay.
	require.Eventually(t, func() bool {
		dr, err := b.Describe(ctx, id)
		return err == nil && dr.AudioConfig != nil
	}, 2*time.Second, 5*time.Millisecond)

	ports := NewPortAllocator(35000, 35010)
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	sess := New(serverConn, b, clk, observer.Nop{}, ports)
	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run() }()

	rb := bufio.NewReader(clientConn)
	bw := bufio.NewWriter(clientConn)

	streamURL := mustURL(t, "rtsp://127.0.0.1/live/cam1")

	sendRequest(t, bw, base.Request{
		Method: base.MethodDescribe,
		URL:    streamURL,
		Proto:  "RTSP/1.0",
		Header: base.Header{"CSeq": base.HeaderValue{"1"}},
	})
	describeRes := readNextResponse(t, rb)
	require.Equal(t, base.StatusOK, describeRes.StatusCode)
	require.Contains(t, string(describeRes.Body), "m=audio")
	require.Contains(t, string(describeRes.Body), "trackID=1")

	sendRequest(t, bw, base.Request{
		Method: base.MethodSetup,
		URL:    mustURL(t, "rtsp://127.0.0.1/live/cam1/trackID=1"),
		Proto:  "RTSP/1.0",
		Header: base.Header{
			"CSeq":      base.HeaderValue{"2"},
			"Transport": base.HeaderValue{"RTP/AVP/TCP;unicast;interleaved=0-1"},
		},
	})
	setupRes := readNextResponse(t, rb)
	require.Equal(t, base.StatusOK, setupRes.StatusCode)
	transportHeader, ok := setupRes.Header.Get("Transport")
	require.True(t, ok)
	require.Contains(t, transportHeader, "interleaved=0-1")
	sessionID, ok := setupRes.Header.Get("Session")
	require.True(t, ok)
	require.NotEmpty(t, sessionID)

	sendRequest(t, bw, base.Request{
		Method: base.MethodPlay,
		URL:    streamURL,
		Proto:  "RTSP/1.0",
		Header: base.Header{"CSeq": base.HeaderValue{"3"}, "Session": base.HeaderValue{sessionID}},
	})
	playRes := readNextResponse(t, rb)
	require.Equal(t, base.StatusOK, playRes.StatusCode)

	audioPayload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	producer <- frame.Audio(uint64(clk.NowNS()), audioPayload)

	var f base.InterleavedFrame
	for {
		f = readNextInterleavedFrame(t, rb)
		if f.Channel == 0 {
			break
		}
	}

	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(f.Payload))

	dep, err := aacrtp.NewDepacketizer(13, 3)
	require.NoError(t, err)
	aus, err := dep.Depacketize(&pkt)
	require.NoError(t, err)
	require.Len(t, aus, 1)
	require.Equal(t, audioPayload, aus[0].Payload)

	sendRequest(t, bw, base.Request{
		Method: base.MethodTeardown,
		URL:    streamURL,
		Proto:  "RTSP/1.0",
		Header: base.Header{"CSeq": base.HeaderValue{"4"}, "Session": base.HeaderValue{sessionID}},
	})
	teardownRes := readNextResponse(t, rb)
	require.Equal(t, base.StatusOK, teardownRes.StatusCode)

	clientConn.Close()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("session.Run did not return after the connection closed")
	}
}
