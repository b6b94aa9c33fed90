package chunk

import (
	"io"

	"github.com/streamcenter/streamcenter/internal/errs"
)

// Message is one fully reassembled RTMP message, dispatched by TypeID.
type Message struct {
	TypeID    uint8
	StreamID  uint32
	Timestamp uint32
	Payload   []byte
}

// Protocol control / user message type IDs.
const (
	TypeSetChunkSize    uint8 = 1
	TypeAbortMessage    uint8 = 2
	TypeAcknowledgement uint8 = 3
	TypeUserControl     uint8 = 4
	TypeWindowAckSize   uint8 = 5
	TypeSetPeerBW       uint8 = 6
	TypeAudio           uint8 = 8
	TypeVideo           uint8 = 9
	TypeDataAMF3        uint8 = 15
	TypeSharedObjAMF3   uint8 = 16
	TypeCommandAMF3     uint8 = 17
	TypeDataAMF0        uint8 = 18
	TypeSharedObjAMF0   uint8 = 19
	TypeCommandAMF0     uint8 = 20
	TypeAggregate       uint8 = 22
)

// streamState is the per-chunk-stream-id reassembly state.
type streamState struct {
	haveHeader      bool
	timestamp       uint32
	timestampDelta  uint32
	messageLength   uint32
	typeID          uint8
	messageStreamID uint32
	extendedTSInUse bool

	assembly []byte
	received uint32
}

// Reader reassembles RTMP messages from a chunked byte stream. One
// Reader serves one RTMP connection.
type Reader struct {
	src       io.Reader
	chunkSize uint32
	streams   map[uint32]*streamState

	// MaxMessageSize bounds a single reassembled message, guarding against
	// a peer claiming an unbounded message length.
	MaxMessageSize uint32
}

// NewReader builds a Reader with the RTMP default chunk size (128 bytes)
// until a SetChunkSize control message changes it.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:            src,
		chunkSize:      128,
		streams:        make(map[uint32]*streamState),
		MaxMessageSize: 16 * 1024 * 1024,
	}
}

// SetChunkSize updates the inbound chunk size (applied by the peer's
// SetChunkSize control message).
func (r *Reader) SetChunkSize(size uint32) {
	if size > 0 {
		r.chunkSize = size
	}
}

// ReadMessage reads chunks until one full message has been reassembled.
// BytesConsumed lets the caller track Acknowledgement thresholds.
func (r *Reader) ReadMessage() (Message, uint32, error) {
	var totalConsumed uint32
	for {
		format, csid, err := readBasicHeader(r.src)
		if err != nil {
			return Message{}, totalConsumed, errs.PeerClosed("rtmp chunk: reading basic header: %v", err)
		}
		consumed := uint32(1)
		if csid >= 64+256 {
			consumed = 3
		} else if csid >= 64 {
			consumed = 2
		}

		st, ok := r.streams[csid]
		if !ok {
			if format != Format0 {
				return Message{}, totalConsumed, errNeedFormat0
			}
			st = &streamState{}
			r.streams[csid] = st
		}

		mh, err := readMessageHeader(r.src, format)
		if err != nil {
			return Message{}, totalConsumed, errs.WireFormat("rtmp chunk: reading message header: %v", err)
		}
		switch format {
		case Format0:
			consumed += 11
		case Format1:
			consumed += 7
		case Format2:
			consumed += 3
		}

		if format <= Format2 {
			st.extendedTSInUse = mh.extended
		}
		extTS := mh.timestampOrDelta
		if st.extendedTSInUse {
			extTS, err = readExtendedTimestamp(r.src)
			if err != nil {
				return Message{}, totalConsumed, errs.WireFormat("rtmp chunk: reading extended timestamp: %v", err)
			}
			consumed += 4
		}

		switch format {
		case Format0:
			st.timestamp = extTS
			st.timestampDelta = 0
		case Format1:
			st.timestampDelta = extTS
			st.timestamp += st.timestampDelta
		case Format2:
			st.timestampDelta = extTS
			st.timestamp += st.timestampDelta
		case Format3:
			// A fmt3 header either starts a new message (inheriting the
			// previous delta) or continues an in-progress one; only the
			// former advances the timestamp.
			if st.received == 0 {
				st.timestamp += st.timestampDelta
			}
		}

		if mh.haveLength {
			st.messageLength = mh.length
			st.assembly = nil
			st.received = 0
		}
		if mh.haveTypeID {
			st.typeID = mh.typeID
		}
		if mh.haveStreamID {
			st.messageStreamID = mh.streamID
		}
		st.haveHeader = true

		if st.messageLength > r.MaxMessageSize {
			return Message{}, totalConsumed, errs.Overflow("rtmp chunk: message length %d exceeds maximum %d", st.messageLength, r.MaxMessageSize)
		}
		if st.assembly == nil {
			st.assembly = make([]byte, 0, st.messageLength)
		}

		remaining := st.messageLength - st.received
		want := remaining
		if want > r.chunkSize {
			want = r.chunkSize
		}

		buf := make([]byte, want)
		if want > 0 {
			if _, err := io.ReadFull(r.src, buf); err != nil {
				return Message{}, totalConsumed, errs.WireFormat("rtmp chunk: reading chunk payload: %v", err)
			}
			consumed += want
		}
		st.assembly = append(st.assembly, buf...)
		st.received += want
		totalConsumed += consumed

		if st.received == st.messageLength {
			msg := Message{
				TypeID:    st.typeID,
				StreamID:  st.messageStreamID,
				Timestamp: st.timestamp,
				Payload:   st.assembly,
			}
			st.assembly = nil
			st.received = 0
			return msg, totalConsumed, nil
		}
	}
}
