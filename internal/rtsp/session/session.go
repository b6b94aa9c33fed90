// Package session drives one RTSP control connection through method
// dispatch and its state machine: ANNOUNCE/SETUP/RECORD for publishers,
// DESCRIBE/SETUP/PLAY for subscribers, with TEARDOWN collapsing either
// into Closed from any state. It shares internal/rtmp/session's shape
// (explicit State enum, idle-watchdog bookkeeping, per-direction state
// structs), generalized to RTSP's text-request-plus-interleaved-binary
// framing; the wire types live in internal/rtsp/base and
// internal/rtsp/headers.
package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/streamcenter/streamcenter/internal/broker"
	"github.com/streamcenter/streamcenter/internal/clock"
	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/observer"
	"github.com/streamcenter/streamcenter/internal/rtsp/base"
	"github.com/streamcenter/streamcenter/internal/rtsp/headers"
)

// State is the RTSP session state machine's current node.
type State int

const (
	StateInit State = iota
	StateReadyAnnounced
	StateReadyDescribed
	StateSetup
	StateRecording
	StatePlaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateReadyAnnounced:
		return "ReadyAnnounced"
	case StateReadyDescribed:
		return "ReadyDescribed"
	case StateSetup:
		return "Setup"
	case StateRecording:
		return "Recording"
	case StatePlaying:
		return "Playing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// idleSessionTimeout tears a session down after this long without a
// request.
const idleSessionTimeout = 60 * time.Second

// maxInterleavedPayload bounds one $-framed RTP/RTCP packet.
const maxInterleavedPayload = 64 * 1024

// ServerName is the value of the Server header this session answers with.
const ServerName = "streamcenter"

// Session drives one accepted RTSP TCP control connection end to end.
type Session struct {
	ID string

	conn net.Conn
	rb   *bufio.Reader
	bw   *bufio.Writer
	bwMu sync.Mutex    // guards bw: the main loop, play loop and per-media RTCP loops all write to it

	broker *broker.Broker
	clock  clock.Clock
	obs    observer.Observer
	ports  *PortAllocator

	state State

	// direction is "record" or "play", set by ANNOUNCE/DESCRIBE respectively
	// and consulted by SETUP/RECORD/PLAY to reject the wrong method for the
	// session's role.
	direction string
	paused    atomic.Bool

	id          frame.Identifier
	streamType  frame.Type
	baseURL     *base.URL
	description *sessionDescription // built on ANNOUNCE, or on DESCRIBE from the broker's config

	medias []*mediaSetup

	producer chan<- frame.MediaFrame // set once RECORD begins
	sub      broker.SubscribeResult  // set once PLAY begins
	playDone chan struct{}           // closed to stop playLoop, set once PLAY begins

	lastActivityNS int64
}

// New builds a Session bound to an already-accepted TCP connection.
func New(conn net.Conn, b *broker.Broker, clk clock.Clock, obs observer.Observer, ports *PortAllocator) *Session {
	if obs == nil {
		obs = observer.Nop{}
	}
	id, err := uuid.NewV7()
	sid := id.String()
	if err != nil {
		sid = uuid.New().String()
	}
	return &Session{
		ID:     sid,
		conn:   conn,
		rb:     bufio.NewReaderSize(conn, 4096),
		bw:     bufio.NewWriterSize(conn, 4096),
		broker: b,
		clock:  clk,
		obs:    obs,
		ports:  ports,
		state:  StateInit,
	}
}

func (s *Session) setState(to State) {
	from := s.state
	s.state = to
	s.obs.SessionStateChange("rtsp", s.ID, from.String(), to.String())
}

func (s *Session) touchActivity() {
	s.lastActivityNS = s.clock.NowNS()
}

// Run drives the session until TEARDOWN, a protocol error, or the idle
// watchdog fires. It always tears down broker registrations and per-media
// RTP/RTCP sessions before returning.
func (s *Session) Run() error {
	defer s.teardown()
	s.touchActivity()

	for s.state != StateClosed {
		deadline := time.Unix(0, s.lastActivityNS).Add(idleSessionTimeout)
		_ = s.conn.SetReadDeadline(deadline)

		isFrame, err := base.PeekIsInterleavedFrame(s.rb)
		if err != nil {
			return err
		}
		if isFrame {
			var f base.InterleavedFrame
			if err := f.Read(maxInterleavedPayload, s.rb); err != nil {
				return err
			}
			s.touchActivity()
			s.handleInterleavedFrame(f)
			continue
		}

		var req base.Request
		if err := req.Read(s.rb); err != nil {
			return err
		}
		s.touchActivity()

		res := s.handleRequest(&req)
		if err := s.writeResponse(&res); err != nil {
			return err
		}
	}
	return nil
}

// writeResponse serializes res under bwMu, since play/record RTCP loops
// write interleaved frames to the same connection concurrently with the
// main request/response loop.
func (s *Session) writeResponse(res *base.Response) error {
	s.bwMu.Lock()
	defer s.bwMu.Unlock()
	return res.Write(s.bw)
}

// writeInterleaved sends one $-framed RTP/RTCP packet on the control
// connection, used by media loops whose Transport negotiated interleaved
// delivery instead of UDP.
func (s *Session) writeInterleaved(channel int, payload []byte) error {
	s.bwMu.Lock()
	defer s.bwMu.Unlock()
	f := base.InterleavedFrame{Channel: channel, Payload: payload}
	if err := f.Write(s.bw); err != nil {
		return err
	}
	return s.bw.Flush()
}

func (s *Session) handleRequest(req *base.Request) base.Response {
	res := base.Response{Header: base.Header{}}
	if cseq, ok := req.Header.Get("CSeq"); ok {
		res.Header.Set("CSeq", cseq)
	}
	res.Header.Set("Server", ServerName)
	if s.id.App != "" || s.id.Name != "" {
		res.Header.Set("Session", headers.Session{ID: s.ID}.Write()[0])
	}
	// Supported is echoed, not stored or interpreted: we require no RTSP
	// extensions, so truthfully answering what the peer already offered is
	// enough.
	if supported, ok := req.Header.Get("Supported"); ok {
		res.Header.Set("Supported", supported)
	}

	var err error
	switch req.Method {
	case base.MethodOptions:
		err = s.handleOptions(req, &res)
	case base.MethodDescribe:
		err = s.handleDescribe(req, &res)
	case base.MethodAnnounce:
		err = s.handleAnnounce(req, &res)
	case base.MethodSetup:
		err = s.handleSetup(req, &res)
	case base.MethodPlay:
		err = s.handlePlay(req, &res)
	case base.MethodRecord:
		err = s.handleRecord(req, &res)
	case base.MethodPause:
		err = s.handlePause(req, &res)
	case base.MethodTeardown:
		err = s.handleTeardown(req, &res)
	case base.MethodGetParameter:
		res.StatusCode = base.StatusOK
	case base.MethodSetParameter:
		res.StatusCode = base.StatusOK
	case base.MethodRedirect, base.MethodPlayNotify:
		// Server-initiated methods; a client sending one at us is out of
		// protocol, and this server never originates them itself.
		res.StatusCode = base.StatusMethodNotAllowed
	default:
		res.StatusCode = base.StatusMethodNotAllowed
	}

	if err != nil {
		s.obs.Error("rtsp", s.ID, err)
		if res.StatusCode == 0 {
			res.StatusCode = statusForErr(err)
		}
	}
	if res.StatusCode == 0 {
		res.StatusCode = base.StatusOK
	}
	return res
}

func statusForErr(err error) base.StatusCode {
	if _, ok := err.(*stateError); ok {
		return base.StatusMethodNotValidInThisState
	}
	e, ok := err.(*errs.Error)
	if !ok {
		return base.StatusInternalServerError
	}
	switch e.Kind() {
	case errs.KindWireFormat:
		return base.StatusBadRequest
	case errs.KindProtocolState:
		return base.StatusMethodNotValidInThisState
	case errs.KindUnsupportedFeature:
		return base.StatusUnsupportedTransport
	case errs.KindStreamMissing:
		return base.StatusNotFound
	case errs.KindOverflow:
		return base.StatusBadRequest
	default:
		return base.StatusInternalServerError
	}
}

// identifierFromURL derives the stream identity from an RTSP request URL's
// path, `/<app>/<name>`, mirroring RTMP's app+stream-name pair onto the
// single RTSP URI.
func identifierFromURL(u *base.URL) (frame.Identifier, error) {
	path := strings.Trim(u.Path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return frame.Identifier{}, errs.WireFormat("rtsp: URL path %q is not /<app>/<name>", u.Path)
	}
	return frame.Identifier{App: parts[0], Name: parts[1]}, nil
}

func (s *Session) handleOptions(_ *base.Request, res *base.Response) error {
	res.Header.Set("Public", "OPTIONS, DESCRIBE, ANNOUNCE, SETUP, PLAY, RECORD, PAUSE, TEARDOWN, GET_PARAMETER, SET_PARAMETER")
	res.StatusCode = base.StatusOK
	return nil
}

func (s *Session) handleTeardown(_ *base.Request, res *base.Response) error {
	s.teardown()
	s.setState(StateClosed)
	res.StatusCode = base.StatusOK
	return nil
}

func (s *Session) teardown() {
	ctx := context.Background()

	if s.playDone != nil {
		select {
		case <-s.playDone:
		default:
			close(s.playDone)
		}
		s.playDone = nil
	}

	for _, m := range s.medias {
		s.sendGoodbye(m)
		m.close()
	}
	s.medias = nil

	if s.producer != nil {
		_ = s.broker.Unpublish(ctx, s.id)
		s.producer = nil
	}
	if s.sub.MediaReceiver != nil {
		_ = s.broker.Unsubscribe(ctx, s.id, s.sub.SubscribeID)
		s.sub = broker.SubscribeResult{}
	}
}

func (s *Session) handleInterleavedFrame(f base.InterleavedFrame) {
	for _, m := range s.medias {
		if m.rtpChannel == f.Channel {
			m.onInterleavedRTP(f.Payload)
			return
		}
		if m.rtcpChannel == f.Channel {
			m.onInterleavedRTCP(f.Payload)
			return
		}
	}
}

// errInvalidState builds the error this package's handlers return when a
// request arrives in a state that can't serve it; handleRequest maps it to
// StatusMethodNotValidInThisState.
type stateError struct{ msg string }

func (e *stateError) Error() string { return e.msg }

func errInvalidState(format string, args ...any) error {
	return &stateError{msg: fmt.Sprintf(format, args...)}
}
