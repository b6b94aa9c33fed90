package session

import (
	"net"

	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/rtsp/base"
	"github.com/streamcenter/streamcenter/internal/rtsp/headers"
)

// handleSetup allocates one media's RTP/RTCP endpoints and records its
// direction-specific state, moving Ready{Announced|Described} -> Setup.
func (s *Session) handleSetup(req *base.Request, res *base.Response) error {
	if s.description == nil || (s.state != StateReadyAnnounced && s.state != StateReadyDescribed && s.state != StateSetup) {
		return errInvalidState("rtsp: SETUP received in state %s", s.state)
	}

	transport, err := headers.ReadTransport(req.Header["Transport"])
	if err != nil {
		return errs.WireFormat("%s", err.Error())
	}

	attrs, idx := matchMedia(s.description, req.URL)
	if attrs == nil {
		res.StatusCode = base.StatusNotFound
		return nil
	}
	for _, existing := range s.medias {
		if existing.index == idx {
			return errInvalidState("rtsp: media %d already set up", idx)
		}
	}

	m := &mediaSetup{
		index:   idx,
		isVideo: attrs.isVideo,
		isAudio: attrs.isAudio,
		attrs:   *attrs,
		done:    make(chan struct{}),
	}

	switch transport.Protocol {
	case headers.TransportProtocolTCP:
		if err := s.setupInterleaved(m, transport, idx); err != nil {
			return err
		}
	case headers.TransportProtocolUDP:
		if err := s.setupUDP(m, transport); err != nil {
			return err
		}
	}

	switch s.direction {
	case "record":
		m.pub = newMediaPublishState(*attrs, s.clock, s.obs, s.ID)
		m.onRTP = func(payload []byte) { s.handleRecordRTP(m, payload) }
		m.onRTCP = func(payload []byte) { s.handleRecordRTCP(m, payload) }
	case "play":
		m.play = newMediaPlayState(*attrs, s.clock)
		m.onRTCP = func(payload []byte) { s.handlePlayRTCP(m, payload) }
	default:
		return errInvalidState("rtsp: SETUP received before ANNOUNCE/DESCRIBE")
	}

	m.startUDPLoops()
	s.medias = append(s.medias, m)
	s.setState(StateSetup)

	res.Header.Set("Transport", m.transportAnswer(transport).Marshal())
	res.StatusCode = base.StatusOK
	return nil
}

func (s *Session) setupInterleaved(m *mediaSetup, transport *headers.Transport, idx int) error {
	m.interleaved = true
	if transport.InterleavedIDs != nil {
		m.rtpChannel = transport.InterleavedIDs[0]
		m.rtcpChannel = transport.InterleavedIDs[1]
	} else {
		m.rtpChannel = 2 * idx
		m.rtcpChannel = 2*idx + 1
	}
	return nil
}

func (s *Session) setupUDP(m *mediaSetup, transport *headers.Transport) error {
	if transport.ClientPorts == nil {
		return errs.UnsupportedFeature("SETUP over UDP without client_port")
	}
	remoteIP, err := s.remoteIP()
	if err != nil {
		return err
	}

	rtpPort, rtcpPort := s.ports.pair()
	rtpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: rtpPort})
	if err != nil {
		return errs.Overflow("rtsp setup: %s", err.Error())
	}
	rtcpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: rtcpPort})
	if err != nil {
		rtpConn.Close()
		return errs.Overflow("rtsp setup: %s", err.Error())
	}

	m.rtpConn = rtpConn
	m.rtcpConn = rtcpConn
	m.clientRTPAddr = &net.UDPAddr{IP: remoteIP, Port: transport.ClientPorts[0]}
	m.clientRTCPAddr = &net.UDPAddr{IP: remoteIP, Port: transport.ClientPorts[1]}
	return nil
}

func (s *Session) remoteIP() (net.IP, error) {
	a, ok := s.conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return nil, errs.WireFormat("rtsp setup: connection has no TCP remote address")
	}
	return a.IP, nil
}
