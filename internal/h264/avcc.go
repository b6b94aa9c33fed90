package h264

import (
	"github.com/streamcenter/streamcenter/internal/errs"
)

// AVCCUnmarshal splits an AVCC byte stream (each NALU prefixed by a 4-byte
// big-endian length) into its constituent NAL units. The broker and RTMP
// session always use a 4-byte length regardless of what
// AVCDecoderConfigurationRecord.LengthSizeMinusOne the peer announced; RTP
// ingress normalizes to 4 bytes before handing frames to the broker.
func AVCCUnmarshal(buf []byte) ([][]byte, error) {
	return AVCCUnmarshalSized(buf, 4)
}

// AVCCUnmarshalSized is AVCCUnmarshal generalized to a length-prefix width
// other than 4, for peers whose AVCDecoderConfigurationRecord declares a
// LengthSizeMinusOne other than 3.
func AVCCUnmarshalSized(buf []byte, lengthSize int) ([][]byte, error) {
	if lengthSize < 1 || lengthSize > 4 {
		return nil, errs.Overflow("h264: unsupported AVCC length size %d", lengthSize)
	}
	bl := len(buf)
	pos := 0
	var ret [][]byte

	for {
		if bl-pos < lengthSize {
			return nil, errs.WireFormat("h264: truncated AVCC length prefix")
		}
		le := readLengthPrefix(buf[pos:pos+lengthSize], lengthSize)
		pos += lengthSize

		if bl-pos < le {
			return nil, errs.WireFormat("h264: AVCC length prefix exceeds remaining buffer")
		}
		if le > MaxNALUSize {
			return nil, errs.Overflow("h264: NALU size %d exceeds maximum %d", le, MaxNALUSize)
		}
		if len(ret)+1 > MaxNALUsPerGroup {
			return nil, errs.Overflow("h264: NALU count %d exceeds maximum %d", len(ret)+1, MaxNALUsPerGroup)
		}

		ret = append(ret, buf[pos:pos+le])
		pos += le

		if bl-pos == 0 {
			break
		}
	}

	return ret, nil
}

// AVCCMarshal joins NAL units into an AVCC byte stream using a 4-byte
// length prefix per NALU.
func AVCCMarshal(nalus [][]byte) []byte {
	return AVCCMarshalSized(nalus, 4)
}

// AVCCMarshalSized is AVCCMarshal generalized to a length-prefix width
// other than 4, used on the RTMP play path to re-frame an internally
// 4-byte-normalized access unit to whatever length size the subscriber's
// AVCDecoderConfigurationRecord declared.
func AVCCMarshalSized(nalus [][]byte, lengthSize int) []byte {
	n := 0
	for _, nalu := range nalus {
		n += lengthSize + len(nalu)
	}
	buf := make([]byte, n)
	pos := 0
	for _, nalu := range nalus {
		writeLengthPrefix(buf[pos:pos+lengthSize], lengthSize, uint32(len(nalu)))
		pos += lengthSize
		pos += copy(buf[pos:], nalu)
	}
	return buf
}

func readLengthPrefix(b []byte, size int) int {
	var v uint32
	for i := 0; i < size; i++ {
		v = v<<8 | uint32(b[i])
	}
	return int(v)
}

func writeLengthPrefix(b []byte, size int, v uint32) {
	for i := size - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
