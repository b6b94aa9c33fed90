package session

import (
	"net"
	"strings"
	"sync"

	"github.com/streamcenter/streamcenter/internal/rtsp/base"
	"github.com/streamcenter/streamcenter/internal/rtsp/headers"
)

// PortAllocator hands out UDP port pairs from an ephemeral range, RTP port
// always even.
type PortAllocator struct {
	mu   sync.Mutex
	next int
	low  int
	high int
}

// NewPortAllocator builds an allocator over [low, high], low rounded up to
// an even number. The server launcher builds one shared instance and hands
// it to every Session via New.
func NewPortAllocator(low, high int) *PortAllocator {
	if low%2 != 0 {
		low++
	}
	return &PortAllocator{next: low, low: low, high: high}
}

// pair returns the next even/odd RTP/RTCP pair, wrapping at the top of the
// range.
func (a *PortAllocator) pair() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.next+1 > a.high {
		a.next = a.low
	}
	rtp := a.next
	a.next += 2
	return rtp, rtp + 1
}

// matchMedia finds the SETUP request URL's media by resolving each media's
// `a=control:` attribute against the session's base URL.
func matchMedia(desc *sessionDescription, reqURL *base.URL) (*mediaDescAttrs, int) {
	path := reqURL.String()

	for i := range desc.medias {
		c := desc.medias[i].control
		if c == "" {
			continue
		}
		if c == "*" {
			return &desc.medias[i], i
		}
		if strings.HasSuffix(path, c) {
			return &desc.medias[i], i
		}
	}
	return nil, -1
}

// mediaSetup is the per-media RTP/RTCP state created by one SETUP request.
type mediaSetup struct {
	index   int
	isVideo bool
	isAudio bool
	attrs   mediaDescAttrs

	interleaved bool
	rtpChannel  int
	rtcpChannel int

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	clientRTPAddr  *net.UDPAddr
	clientRTCPAddr *net.UDPAddr

	done chan struct{}
	wg   sync.WaitGroup

	pub  *mediaPublishState
	play *mediaPlayState

	// onRTP and onRTCP receive one raw packet's worth of payload, wired by
	// handleSetup to either the RECORD-direction receive path or the
	// PLAY-direction RTCP-receive path; both the interleaved-TCP framing and the UDP read loops feed
	// the same closures so the two transports converge on one code path.
	onRTP  func(payload []byte)
	onRTCP func(payload []byte)
}

// onInterleavedRTP and onInterleavedRTCP are the single dispatch point for
// this media's RTP/RTCP, fed either by the session's $-framed interleaved
// reads or by udpReadLoop below.
func (m *mediaSetup) onInterleavedRTP(payload []byte) {
	if m.onRTP != nil {
		m.onRTP(payload)
	}
}

func (m *mediaSetup) onInterleavedRTCP(payload []byte) {
	if m.onRTCP != nil {
		m.onRTCP(payload)
	}
}

// startUDPLoops launches the read loops for a non-interleaved media's RTP
// and RTCP sockets, each feeding the same onRTP/onRTCP dispatch the
// interleaved-TCP path uses.
func (m *mediaSetup) startUDPLoops() {
	if m.interleaved {
		return
	}
	m.wg.Add(2)
	go m.udpReadLoop(m.rtpConn, m.onInterleavedRTP)
	go m.udpReadLoop(m.rtcpConn, m.onInterleavedRTCP)
}

func (m *mediaSetup) udpReadLoop(conn *net.UDPConn, dispatch func([]byte)) {
	defer m.wg.Done()
	buf := make([]byte, 2048)
	for {
		select {
		case <-m.done:
			return
		default:
		}
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		dispatch(payload)
	}
}

func (m *mediaSetup) close() {
	if m.done != nil {
		select {
		case <-m.done:
		default:
			close(m.done)
		}
	}
	if m.rtpConn != nil {
		_ = m.rtpConn.Close()
	}
	if m.rtcpConn != nil {
		_ = m.rtcpConn.Close()
	}
	m.wg.Wait()
}

// transportAnswer builds the Transport header value this session echoes on
// a successful SETUP response.
func (m *mediaSetup) transportAnswer(clientTransport *headers.Transport) headers.Transport {
	t := headers.Transport{Protocol: clientTransport.Protocol}
	if m.interleaved {
		ids := [2]int{m.rtpChannel, m.rtcpChannel}
		t.InterleavedIDs = &ids
	} else {
		ports := [2]int{m.rtpConn.LocalAddr().(*net.UDPAddr).Port, m.rtcpConn.LocalAddr().(*net.UDPAddr).Port}
		t.ServerPorts = &ports
	}
	d := headers.TransportDeliveryUnicast
	t.Delivery = &d
	return t
}
