package session

import (
	"context"
	"net"

	"github.com/streamcenter/streamcenter/internal/rtsp/base"
)

// handleDescribe answers with SDP built from the broker's current stream
// configuration and moves Init -> ReadyDescribed.
func (s *Session) handleDescribe(req *base.Request, res *base.Response) error {
	if s.state != StateInit {
		return errInvalidState("rtsp: DESCRIBE received in state %s", s.state)
	}

	id, err := identifierFromURL(req.URL)
	if err != nil {
		return err
	}

	dr, err := s.broker.Describe(context.Background(), id)
	if err != nil {
		return err
	}

	body, desc, err := buildDescribeSDP(dr, s.localAddr())
	if err != nil {
		return err
	}

	s.id = id
	s.baseURL = req.URL.CloneWithoutCredentials()
	s.description = desc
	s.streamType = dr.StreamType
	s.direction = "play"
	s.setState(StateReadyDescribed)

	res.Header.Set("Content-Type", "application/sdp")
	res.Body = body
	res.StatusCode = base.StatusOK
	return nil
}

// localAddr reports the IP this session's control connection is locally
// bound to, used as the SDP connection-information address.
func (s *Session) localAddr() string {
	if a, ok := s.conn.LocalAddr().(*net.TCPAddr); ok {
		return a.IP.String()
	}
	return "0.0.0.0"
}
