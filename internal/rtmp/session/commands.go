package session

import (
	"context"

	"github.com/streamcenter/streamcenter/internal/amf/amf0"
	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/rtmp/chunk"
)

// commandCSID is the chunk stream every command/status message in this
// server travels on, matching common server implementations that keep the
// control channel (3) separate from data (4/5/6).
const commandCSID = 3

// decodeCommand splits an AMF0 command payload into its ordered values
// (name, transaction id, command object, ...args).
func decodeCommand(payload []byte) ([]amf0.Value, error) {
	dec := amf0.NewDecoder(payload)
	var vals []amf0.Value
	for !dec.AtEnd() {
		v, err := dec.Decode()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func encodeValues(vals ...amf0.Value) ([]byte, error) {
	enc := amf0.NewEncoder()
	var buf []byte
	for _, v := range vals {
		b, err := enc.Encode(buf, v)
		if err != nil {
			return nil, err
		}
		buf = b
	}
	return buf, nil
}

func statusObject(level, code, description string) amf0.Value {
	return amf0.Object(
		amf0.Pair{Key: "level", Value: amf0.String(level)},
		amf0.Pair{Key: "code", Value: amf0.String(code)},
		amf0.Pair{Key: "description", Value: amf0.String(description)},
	)
}

func (s *Session) commandTypeID() uint8 {
	if s.objectEncoding == 3 {
		return chunk.TypeCommandAMF3
	}
	return chunk.TypeCommandAMF0
}

func (s *Session) sendCommand(streamID uint32, vals ...amf0.Value) error {
	payload, err := encodeValues(vals...)
	if err != nil {
		return err
	}
	return s.writer.WriteMessage(commandCSID, s.commandTypeID(), streamID, 0, payload)
}

func (s *Session) sendOnStatus(streamID uint32, level, code, description string) error {
	return s.sendCommand(streamID, amf0.String("onStatus"), amf0.Number(0), amf0.Null, statusObject(level, code, description))
}

// handleCommand dispatches one AMF0/AMF3 command message by name.
func (s *Session) handleCommand(msg chunk.Message) error {
	vals, err := decodeCommand(msg.Payload)
	if err != nil {
		return err
	}
	if len(vals) == 0 || vals[0].Kind != amf0.KindString {
		return errs.WireFormat("rtmp command: missing command name")
	}
	name := vals[0].Str
	var txID float64
	if len(vals) > 1 && vals[1].Kind == amf0.KindNumber {
		txID = vals[1].Number
	}

	switch name {
	case "connect":
		return s.handleConnect(vals, txID)
	case "createStream":
		return s.handleCreateStream(txID)
	case "publish":
		return s.handlePublish(msg.StreamID, vals)
	case "play":
		return s.handlePlay(msg.StreamID, vals)
	case "deleteStream", "FCUnpublish", "releaseStream":
		return s.handleDeleteStream(msg.StreamID)
	case "receiveAudio":
		s.handleReceiveFlag(vals, true)
	case "receiveVideo":
		s.handleReceiveFlag(vals, false)
	case "pause", "closeStream":
		// Acknowledged implicitly; an active play handle keeps flowing.
	default:
		// Unknown commands (FCPublish, onBWDone negotiation, etc.) are
		// ignored; they don't gate any state transition this server models.
	}
	return nil
}

func (s *Session) handleConnect(vals []amf0.Value, txID float64) error {
	if s.state != StateConnected {
		return errs.ProtocolState("rtmp: connect received in state %s", s.state)
	}
	if len(vals) < 3 || vals[2].Kind != amf0.KindObject {
		return errs.WireFormat("rtmp connect: missing command object")
	}
	cmdObj := vals[2]
	if app, ok := cmdObj.Get("app"); ok && app.Kind == amf0.KindString {
		s.app = app.Str
	}
	s.objectEncoding = 0
	if oe, ok := cmdObj.Get("objectEncoding"); ok && oe.Kind == amf0.KindNumber {
		s.objectEncoding = oe.Number
	}

	s.sendControl(chunk.TypeWindowAckSize, 0, chunk.EncodeWindowAckSize(defaultWindowAckSize))
	s.sendControl(chunk.TypeSetPeerBW, 0, chunk.EncodeSetPeerBandwidth(defaultWindowAckSize, chunk.LimitDynamic))
	if s.outChunkSize != 128 {
		s.sendControl(chunk.TypeSetChunkSize, 0, chunk.EncodeSetChunkSize(s.outChunkSize))
		s.writer.SetChunkSize(s.outChunkSize)
	}

	props := amf0.Object(
		amf0.Pair{Key: "fmsVer", Value: amf0.String("FMS/3,0,1,123")},
		amf0.Pair{Key: "capabilities", Value: amf0.Number(31)},
	)
	info := amf0.Object(
		amf0.Pair{Key: "level", Value: amf0.String("status")},
		amf0.Pair{Key: "code", Value: amf0.String("NetConnection.Connect.Success")},
		amf0.Pair{Key: "description", Value: amf0.String("Connection succeeded.")},
		amf0.Pair{Key: "objectEncoding", Value: amf0.Number(s.objectEncoding)},
	)
	if err := s.sendCommand(0, amf0.String("_result"), amf0.Number(txID), props, info); err != nil {
		return err
	}
	s.setState(StateReady)
	return nil
}

func (s *Session) handleCreateStream(txID float64) error {
	if s.state != StateReady {
		return errs.ProtocolState("rtmp: createStream received in state %s", s.state)
	}
	id := s.nextStreamID
	s.nextStreamID++
	return s.sendCommand(0, amf0.String("_result"), amf0.Number(txID), amf0.Null, amf0.Number(float64(id)))
}

func (s *Session) handlePublish(rtmpStreamID uint32, vals []amf0.Value) error {
	if s.state != StateReady {
		return errs.ProtocolState("rtmp: publish received in state %s", s.state)
	}
	if len(vals) < 4 || vals[3].Kind != amf0.KindString {
		return errs.WireFormat("rtmp publish: missing stream name")
	}
	name := vals[3].Str
	streamType := frame.TypeLive
	if len(vals) > 4 && vals[4].Kind == amf0.KindString {
		if t, ok := frame.ParseType(vals[4].Str); ok {
			streamType = t
		}
	}

	id := frame.Identifier{App: s.app, Name: name}
	producer, err := s.broker.Publish(context.Background(), id, streamType, nil)
	if err != nil {
		s.obs.Error("rtmp", s.ID, err)
		_ = s.sendOnStatus(rtmpStreamID, "error", "NetStream.Publish.BadName", err.Error())
		return nil
	}

	s.pub = &publishState{id: id, producer: producer, lastActivityNS: s.clock.NowNS(), videoLengthSize: 4}
	s.setState(StatePublishing)
	return s.sendOnStatus(rtmpStreamID, "status", "NetStream.Publish.Start", "Publishing "+id.String()+".")
}

func (s *Session) handlePlay(rtmpStreamID uint32, vals []amf0.Value) error {
	if s.state != StateReady {
		return errs.ProtocolState("rtmp: play received in state %s", s.state)
	}
	if len(vals) < 4 || vals[3].Kind != amf0.KindString {
		return errs.WireFormat("rtmp play: missing stream name")
	}
	name := vals[3].Str
	reset := true
	if len(vals) > 6 && vals[6].Kind == amf0.KindBoolean {
		reset = vals[6].Bool
	}

	id := frame.Identifier{App: s.app, Name: name}
	result, err := s.broker.Subscribe(context.Background(), id, nil, true, true, s.clock.NowNS())
	if err != nil {
		if e, ok := err.(*errs.Error); ok && e.Kind() == errs.KindStreamMissing {
			return s.sendOnStatus(rtmpStreamID, "error", "NetStream.Play.StreamNotFound", err.Error())
		}
		return err
	}

	s.play = &playState{
		id:              id,
		sub:             result,
		videoLengthSize: 4,
		rtmpStreamID:    rtmpStreamID,
		done:            make(chan struct{}),
	}
	s.play.wantAudio.Store(true)
	s.play.wantVideo.Store(true)

	s.sendControl(chunk.TypeUserControl, 0, chunk.EncodeUserControlStreamBegin(rtmpStreamID))
	if reset {
		if err := s.sendOnStatus(rtmpStreamID, "status", "NetStream.Play.Reset", "Playing and resetting "+id.String()+"."); err != nil {
			return err
		}
	}
	if err := s.sendOnStatus(rtmpStreamID, "status", "NetStream.Play.Start", "Started playing "+id.String()+"."); err != nil {
		return err
	}

	s.setState(StatePlaying)
	go s.playLoop(s.play)
	return nil
}

func (s *Session) handleDeleteStream(rtmpStreamID uint32) error {
	if s.pub != nil {
		_ = s.broker.Unpublish(context.Background(), s.pub.id)
		s.pub = nil
		s.setState(StateReady)
	}
	if s.play != nil {
		close(s.play.done)
		_ = s.broker.Unsubscribe(context.Background(), s.play.id, s.play.sub.SubscribeID)
		s.play = nil
		s.setState(StateReady)
	}
	return s.sendOnStatus(rtmpStreamID, "status", "NetStream.DeleteStream.Success", "")
}

func (s *Session) handleReceiveFlag(vals []amf0.Value, audio bool) {
	if s.play == nil {
		return
	}
	want := true
	if len(vals) > 3 && vals[3].Kind == amf0.KindBoolean {
		want = vals[3].Bool
	}
	if audio {
		s.play.wantAudio.Store(want)
	} else {
		s.play.wantVideo.Store(want)
	}
}

