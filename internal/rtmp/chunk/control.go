package chunk

import (
	"encoding/binary"

	"github.com/streamcenter/streamcenter/internal/errs"
)

// LimitType is the SetPeerBandwidth limit kind.
type LimitType uint8

const (
	LimitHard    LimitType = 0
	LimitSoft    LimitType = 1
	LimitDynamic LimitType = 2
)

// UserControlEvent IDs (subset meaningful to this broker).
const (
	UserControlStreamBegin uint16 = 0
	UserControlStreamEOF   uint16 = 1
)

// EncodeSetChunkSize builds a type-1 SetChunkSize payload.
func EncodeSetChunkSize(size uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, size&0x7fffffff)
	return b
}

// DecodeSetChunkSize parses a type-1 SetChunkSize payload.
func DecodeSetChunkSize(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, errs.WireFormat("rtmp control: truncated SetChunkSize")
	}
	return binary.BigEndian.Uint32(payload) & 0x7fffffff, nil
}

// EncodeWindowAckSize builds a type-5 WindowAckSize payload.
func EncodeWindowAckSize(size uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, size)
	return b
}

// DecodeWindowAckSize parses a type-5 WindowAckSize payload.
func DecodeWindowAckSize(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, errs.WireFormat("rtmp control: truncated WindowAckSize")
	}
	return binary.BigEndian.Uint32(payload), nil
}

// EncodeSetPeerBandwidth builds a type-6 SetPeerBandwidth payload.
func EncodeSetPeerBandwidth(size uint32, limit LimitType) []byte {
	b := make([]byte, 5)
	binary.BigEndian.PutUint32(b, size)
	b[4] = byte(limit)
	return b
}

// DecodeSetPeerBandwidth parses a type-6 SetPeerBandwidth payload.
func DecodeSetPeerBandwidth(payload []byte) (uint32, LimitType, error) {
	if len(payload) < 5 {
		return 0, 0, errs.WireFormat("rtmp control: truncated SetPeerBandwidth")
	}
	return binary.BigEndian.Uint32(payload), LimitType(payload[4]), nil
}

// EncodeAcknowledgement builds a type-3 Acknowledgement payload.
func EncodeAcknowledgement(sequenceNumber uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, sequenceNumber)
	return b
}

// EncodeUserControl builds a type-4 UserControlMessage payload.
func EncodeUserControl(event uint16, data []byte) []byte {
	b := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(b, event)
	copy(b[2:], data)
	return b
}

// EncodeUserControlStreamBegin builds the StreamBegin (event 0) payload
// for the given message stream id, sent ahead of the play onStatus replies.
func EncodeUserControlStreamBegin(streamID uint32) []byte {
	var sid [4]byte
	binary.BigEndian.PutUint32(sid[:], streamID)
	return EncodeUserControl(UserControlStreamBegin, sid[:])
}
