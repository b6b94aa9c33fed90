package chunk

import (
	"encoding/binary"
	"io"

	"github.com/streamcenter/streamcenter/internal/errs"
)

// Format is the 2-bit chunk header format selector.
type Format uint8

const (
	Format0 Format = 0 // 11-byte header: full timestamp, length, type, stream id
	Format1 Format = 1 // 7-byte header: timestamp delta, length, type
	Format2 Format = 2 // 3-byte header: timestamp delta only
	Format3 Format = 3 // 0-byte header: everything inherited
)

const extendedTimestampMarker = 0xffffff

// readBasicHeader reads the chunk basic header and returns (format, csid).
// csid encoding: 0 -> 6-bit value + 1 byte (64-319), 1 ->
// 6-bit value + 2 bytes LE (64-65599), else the 6 bits directly (2-63).
func readBasicHeader(r io.Reader) (Format, uint32, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, 0, err
	}
	format := Format(b[0] >> 6)
	low := uint32(b[0] & 0x3f)

	switch low {
	case 0:
		var ext [1]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, 0, err
		}
		return format, 64 + uint32(ext[0]), nil
	case 1:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, 0, err
		}
		return format, 64 + uint32(ext[0]) + uint32(ext[1])<<8, nil
	default:
		return format, low, nil
	}
}

// writeBasicHeader encodes the chunk basic header for (format, csid).
func writeBasicHeader(format Format, csid uint32) []byte {
	switch {
	case csid >= 64+256:
		v := csid - 64
		return []byte{byte(format)<<6 | 1, byte(v), byte(v >> 8)}
	case csid >= 64:
		return []byte{byte(format) << 6, byte(csid - 64)}
	default:
		return []byte{byte(format)<<6 | byte(csid)}
	}
}

// read24 reads a big-endian 24-bit unsigned integer.
func read24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func put24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// messageHeader is the decoded fmt-0..3 header fields actually present on
// the wire for one chunk (before inheritance is applied).
type messageHeader struct {
	timestampOrDelta uint32
	haveLength       bool
	length           uint32
	haveTypeID       bool
	typeID           uint8
	haveStreamID     bool
	streamID         uint32
	extended         bool
}

func readMessageHeader(r io.Reader, format Format) (messageHeader, error) {
	var mh messageHeader
	if format == Format3 {
		return mh, nil
	}

	var ts [3]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return mh, err
	}
	mh.timestampOrDelta = read24(ts[:])
	if mh.timestampOrDelta == extendedTimestampMarker {
		mh.extended = true
	}

	if format == Format2 {
		return mh, nil
	}

	var lt [4]byte
	if _, err := io.ReadFull(r, lt[:]); err != nil {
		return mh, err
	}
	mh.haveLength = true
	mh.length = read24(lt[:3])
	mh.haveTypeID = true
	mh.typeID = lt[3]

	if format == Format1 {
		return mh, nil
	}

	var sid [4]byte
	if _, err := io.ReadFull(r, sid[:]); err != nil {
		return mh, err
	}
	mh.haveStreamID = true
	mh.streamID = binary.LittleEndian.Uint32(sid[:])
	return mh, nil
}

func readExtendedTimestamp(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeExtendedTimestamp(ts uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ts)
	return b[:]
}

// encodeMessageHeader renders the fmt-0..3 header bytes for one chunk.
func encodeMessageHeader(format Format, timestampOrDelta uint32, length uint32, typeID uint8, streamID uint32) []byte {
	var out []byte
	if format <= Format2 {
		var ts [3]byte
		if timestampOrDelta >= extendedTimestampMarker {
			put24(ts[:], extendedTimestampMarker)
		} else {
			put24(ts[:], timestampOrDelta)
		}
		out = append(out, ts[:]...)
	}
	if format <= Format1 {
		var lt [4]byte
		put24(lt[:3], length)
		lt[3] = typeID
		out = append(out, lt[:]...)
	}
	if format == Format0 {
		var sid [4]byte
		binary.LittleEndian.PutUint32(sid[:], streamID)
		out = append(out, sid[:]...)
	}
	return out
}

var errNeedFormat0 = errs.ProtocolState("rtmp chunk: fmt 1/2/3 chunk before any fmt 0 established chunk-stream state")
