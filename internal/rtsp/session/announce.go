package session

import (
	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/rtsp/base"
)

// handleAnnounce stores the publisher's session-level SDP and per-media
// descriptions, and moves Init -> ReadyAnnounced.
func (s *Session) handleAnnounce(req *base.Request, res *base.Response) error {
	if s.state != StateInit {
		return errInvalidState("rtsp: ANNOUNCE received in state %s", s.state)
	}
	ct, _ := req.Header.Get("Content-Type")
	if ct != "" && ct != "application/sdp" {
		return errs.UnsupportedFeature("ANNOUNCE Content-Type " + ct)
	}

	desc, err := parseAnnounceSDP(req.Content)
	if err != nil {
		return errs.WireFormat("%s", err.Error())
	}

	id, err := identifierFromURL(req.URL)
	if err != nil {
		return err
	}

	s.id = id
	s.baseURL = req.URL.CloneWithoutCredentials()
	s.description = desc
	s.direction = "record"
	s.setState(StateReadyAnnounced)

	res.StatusCode = base.StatusOK
	return nil
}
