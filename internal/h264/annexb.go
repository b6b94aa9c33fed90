package h264

import "github.com/streamcenter/streamcenter/internal/errs"

// AnnexBUnmarshal splits an Annex-B byte stream (start codes 0x000001 or
// 0x00000001) into its constituent NAL units.
func AnnexBUnmarshal(buf []byte) ([][]byte, error) {
	bl := len(buf)
	initZeroCount := 0
	start := 0

outer:
	for {
		if start >= bl || start >= 4 {
			return nil, errs.WireFormat("h264: initial Annex-B delimiter not found")
		}
		switch initZeroCount {
		case 0, 1:
			if buf[start] != 0 {
				return nil, errs.WireFormat("h264: initial Annex-B delimiter not found")
			}
			initZeroCount++
		case 2, 3:
			switch buf[start] {
			case 1:
				start++
				break outer
			case 0:
			default:
				return nil, errs.WireFormat("h264: initial Annex-B delimiter not found")
			}
			initZeroCount++
		}
		start++
	}

	zeroCount := 0
	n := 0
	for i := start; i < bl; i++ {
		switch buf[i] {
		case 0:
			zeroCount++
		case 1:
			if zeroCount == 2 || zeroCount == 3 {
				n++
			}
			zeroCount = 0
		default:
			zeroCount = 0
		}
	}

	if n+1 > MaxNALUsPerGroup {
		return nil, errs.Overflow("h264: NALU count %d exceeds maximum %d", n+1, MaxNALUsPerGroup)
	}

	ret := make([][]byte, n+1)
	pos := 0
	start = initZeroCount + 1
	zeroCount = 0
	delimStart := 0

	for i := start; i < bl; i++ {
		switch buf[i] {
		case 0:
			if zeroCount == 0 {
				delimStart = i
			}
			zeroCount++
		case 1:
			if zeroCount == 2 || zeroCount == 3 {
				l := delimStart - start
				if l == 0 {
					return nil, errs.WireFormat("h264: empty NALU in Annex-B stream")
				}
				if l > MaxNALUSize {
					return nil, errs.Overflow("h264: NALU size %d exceeds maximum %d", l, MaxNALUSize)
				}
				ret[pos] = buf[start:delimStart]
				pos++
				start = i + 1
			}
			zeroCount = 0
		default:
			zeroCount = 0
		}
	}

	l := bl - start
	if l == 0 {
		return nil, errs.WireFormat("h264: empty NALU in Annex-B stream")
	}
	if l > MaxNALUSize {
		return nil, errs.Overflow("h264: NALU size %d exceeds maximum %d", l, MaxNALUSize)
	}
	ret[pos] = buf[start:bl]

	return ret, nil
}

// AnnexBMarshal joins NAL units into an Annex-B byte stream, using the
// 4-byte start code before every NALU.
func AnnexBMarshal(nalus [][]byte) []byte {
	n := 0
	for _, nalu := range nalus {
		n += 4 + len(nalu)
	}
	buf := make([]byte, n)
	pos := 0
	for _, nalu := range nalus {
		pos += copy(buf[pos:], []byte{0x00, 0x00, 0x00, 0x01})
		pos += copy(buf[pos:], nalu)
	}
	return buf
}
