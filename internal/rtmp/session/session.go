// Package session drives one RTMP connection through the handshake,
// connect/createStream/publish/play command state machine, and the
// resulting media loop, handing decoded frames to and pulling them back
// from the Stream Center broker.
package session

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/streamcenter/streamcenter/internal/aac"
	"github.com/streamcenter/streamcenter/internal/broker"
	"github.com/streamcenter/streamcenter/internal/clock"
	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/h264"
	"github.com/streamcenter/streamcenter/internal/observer"
	"github.com/streamcenter/streamcenter/internal/rtmp/chunk"
)

// State is the RTMP session state machine's current node.
type State int

const (
	StateAwaitHandshake State = iota
	StateConnected
	StateReady
	StatePublishing
	StatePlaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitHandshake:
		return "AwaitHandshake"
	case StateConnected:
		return "Connected"
	case StateReady:
		return "Ready"
	case StatePublishing:
		return "Publishing"
	case StatePlaying:
		return "Playing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// idlePublisherTimeout tears a publishing session down after this long
// without an Audio/Video/Data/Aggregate message.
const idlePublisherTimeout = 10 * time.Second

// defaultWindowAckSize is announced to every connecting client.
const defaultWindowAckSize = 5_000_000

// publishStats counts what a publishing session has pushed through.
type publishStats struct {
	audioFrameCnt      uint64
	videoFrameCnt      uint64
	scriptFrameCnt     uint64
	aggregateFrameCnt  uint64
	failedAudioCnt     uint64
	failedVideoCnt     uint64
	failedScriptCnt    uint64
	failedAggregateCnt uint64
}

// publishState is populated when the session enters StatePublishing.
type publishState struct {
	id              frame.Identifier
	producer        chan<- frame.MediaFrame
	lastActivityNS  int64
	videoLengthSize int                     // LengthSizeMinusOne+1 learned from the publisher's VideoConfig
	audioConfig     *aac.Config
	stats           publishStats
}

// playState is populated when the session enters StatePlaying. wantAudio
// and wantVideo are atomic: receiveAudio/receiveVideo commands flip them
// from the connection's read loop while playLoop reads them concurrently
// from its own goroutine.
type playState struct {
	id              frame.Identifier
	sub             broker.SubscribeResult
	wantAudio       atomic.Bool
	wantVideo       atomic.Bool
	videoLengthSize int                    // learned from the broker's latest VideoConfig, default 4
	rtmpStreamID    uint32
	done            chan struct{}
}

// Session drives one accepted RTMP TCP connection end to end.
type Session struct {
	ID string

	conn   net.Conn
	reader *chunk.Reader
	writer *chunk.Writer

	broker *broker.Broker
	clock  clock.Clock
	obs    observer.Observer

	state State

	app            string
	objectEncoding float64
	nextStreamID   uint32

	windowAckSize uint32
	bytesReceived uint32
	bytesSinceAck uint32
	outChunkSize  uint32

	pub  *publishState
	play *playState
}

// New builds a Session bound to an already-accepted TCP connection.
// outChunkSize is the chunk size this session announces to the peer via
// SetChunkSize once connect completes;
// 0 falls back to the RTMP-default 128 bytes.
func New(conn net.Conn, b *broker.Broker, clk clock.Clock, obs observer.Observer, outChunkSize uint32) *Session {
	if obs == nil {
		obs = observer.Nop{}
	}
	if outChunkSize == 0 {
		outChunkSize = 128
	}
	id, err := uuid.NewV7()
	sid := id.String()
	if err != nil {
		sid = uuid.New().String()
	}
	return &Session{
		ID:            sid,
		conn:          conn,
		reader:        chunk.NewReader(conn),
		writer:        chunk.NewWriter(conn),
		broker:        b,
		clock:         clk,
		obs:           obs,
		state:         StateAwaitHandshake,
		nextStreamID:  1,
		windowAckSize: defaultWindowAckSize,
		outChunkSize:  outChunkSize,
	}
}

func (s *Session) setState(to State) {
	from := s.state
	s.state = to
	s.obs.SessionStateChange("rtmp", s.ID, from.String(), to.String())
}

// Run drives the session until the peer disconnects or a protocol error
// forces a close. It always tears down broker registrations before
// returning.
func (s *Session) Run() error {
	defer s.teardown()

	if err := chunk.ServerHandshake(s.conn); err != nil {
		return err
	}
	s.setState(StateConnected)

	for s.state != StateClosed {
		if s.state == StatePublishing {
			idleDeadline := time.Unix(0, s.pub.lastActivityNS).Add(idlePublisherTimeout)
			_ = s.conn.SetReadDeadline(idleDeadline)
		} else {
			_ = s.conn.SetReadDeadline(time.Time{})
		}

		msg, consumed, err := s.reader.ReadMessage()
		if err != nil {
			if e, ok := err.(*errs.Error); ok && e.Kind() == errs.KindPeerClosed {
				// Covers both a clean disconnect and the idle-publisher read
				// deadline expiring.
				return nil
			}
			return err
		}

		s.bytesReceived += consumed
		s.bytesSinceAck += consumed
		if s.windowAckSize > 0 && s.bytesSinceAck >= s.windowAckSize {
			s.bytesSinceAck = 0
			s.sendControl(chunk.TypeAcknowledgement, 0, chunk.EncodeAcknowledgement(s.bytesReceived))
		}

		if err := s.dispatch(msg); err != nil {
			if e, ok := err.(*errs.Error); ok && e.Kind() != errs.KindWireFormat && e.Kind() != errs.KindProtocolState {
				s.obs.Error("rtmp", s.ID, err)
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Session) dispatch(msg chunk.Message) error {
	switch msg.TypeID {
	case chunk.TypeSetChunkSize:
		size, err := chunk.DecodeSetChunkSize(msg.Payload)
		if err != nil {
			return err
		}
		s.reader.SetChunkSize(size)
	case chunk.TypeWindowAckSize, chunk.TypeSetPeerBW, chunk.TypeAcknowledgement, chunk.TypeAbortMessage, chunk.TypeUserControl:
		// Acknowledged implicitly; this server does not throttle on peer
		// acks and treats SetPeerBandwidth/UserControl as advisory only.
	case chunk.TypeAudio:
		if s.state == StatePublishing {
			s.handleAudio(msg.Timestamp, msg.Payload)
		}
	case chunk.TypeVideo:
		if s.state == StatePublishing {
			s.handleVideo(msg.Timestamp, msg.Payload)
		}
	case chunk.TypeDataAMF0, chunk.TypeDataAMF3:
		if s.state == StatePublishing {
			s.handleScript(msg.Timestamp, msg.Payload)
		}
	case chunk.TypeAggregate:
		if s.state == StatePublishing {
			s.handleAggregate(msg.Payload)
		}
	case chunk.TypeCommandAMF0, chunk.TypeCommandAMF3:
		return s.handleCommand(msg)
	default:
		// SharedObject and anything else this server doesn't model.
	}
	return nil
}

func (s *Session) sendControl(typeID uint8, streamID uint32, payload []byte) {
	_ = s.writer.WriteMessage(2, typeID, streamID, 0, payload)
}

func (s *Session) touchPublisherActivity() {
	if s.pub != nil {
		s.pub.lastActivityNS = s.clock.NowNS()
	}
}

func (s *Session) teardown() {
	ctx := context.Background()
	if s.pub != nil {
		_ = s.broker.Unpublish(ctx, s.pub.id)
		s.pub = nil
	}
	if s.play != nil {
		close(s.play.done)
		_ = s.broker.Unsubscribe(ctx, s.play.id, s.play.sub.SubscribeID)
		s.play = nil
	}
	s.setState(StateClosed)
}

// avccLengthSizeFromConfig parses a VideoConfig payload's declared AVCC
// length size, defaulting to 4 if it cannot be read.
func avccLengthSizeFromConfig(payload []byte) int {
	var dcr h264.AVCDecoderConfigurationRecord
	if err := dcr.Unmarshal(payload); err != nil {
		return 4
	}
	return int(dcr.LengthSizeMinusOne) + 1
}
