// Package h264 implements NAL unit framing, Annex-B/AVCC conversion,
// SPS/PPS parsing, and the AVCDecoderConfigurationRecord container.
package h264

import "fmt"

// NALUType is the type field of a H.264 NAL unit header (low 5 bits of the
// first byte).
type NALUType uint8

const (
	NALUTypeNonIDR                        NALUType = 1
	NALUTypeDataPartitionA                NALUType = 2
	NALUTypeDataPartitionB                NALUType = 3
	NALUTypeDataPartitionC                NALUType = 4
	NALUTypeIDR                           NALUType = 5
	NALUTypeSEI                           NALUType = 6
	NALUTypeSPS                           NALUType = 7
	NALUTypePPS                           NALUType = 8
	NALUTypeAccessUnitDelimiter           NALUType = 9
	NALUTypeEndOfSequence                 NALUType = 10
	NALUTypeEndOfStream                   NALUType = 11
	NALUTypeFillerData                    NALUType = 12
	NALUTypeSPSExtension                  NALUType = 13
	NALUTypePrefix                        NALUType = 14
	NALUTypeSubsetSPS                     NALUType = 15
	NALUTypeSliceLayerWithoutPartitioning NALUType = 19
	NALUTypeSliceExtension                NALUType = 20

	// RTP/H.264 (RFC 6184) payload-structure types; never appear in a real
	// NAL stream, only as the type field of an RTP packet's first byte.
	NALUTypeSTAPA  NALUType = 24
	NALUTypeSTAPB  NALUType = 25
	NALUTypeMTAP16 NALUType = 26
	NALUTypeMTAP24 NALUType = 27
	NALUTypeFUA    NALUType = 28
	NALUTypeFUB    NALUType = 29
)

var naluTypeLabels = map[NALUType]string{
	NALUTypeNonIDR:                        "NonIDR",
	NALUTypeIDR:                           "IDR",
	NALUTypeSEI:                           "SEI",
	NALUTypeSPS:                           "SPS",
	NALUTypePPS:                           "PPS",
	NALUTypeAccessUnitDelimiter:           "AccessUnitDelimiter",
	NALUTypeSliceLayerWithoutPartitioning: "SliceLayerWithoutPartitioning",
	NALUTypeSTAPA:                         "STAP-A",
	NALUTypeSTAPB:                         "STAP-B",
	NALUTypeMTAP16:                        "MTAP-16",
	NALUTypeMTAP24:                        "MTAP-24",
	NALUTypeFUA:                           "FU-A",
	NALUTypeFUB:                           "FU-B",
}

func (nt NALUType) String() string {
	if l, ok := naluTypeLabels[nt]; ok {
		return l
	}
	return fmt.Sprintf("unknown (%d)", nt)
}

const (
	// MaxNALUSize bounds a single NAL unit; a 250 Mbps stream tops out
	// around 2.2 MB per access unit.
	MaxNALUSize = 3 * 1024 * 1024

	// MaxNALUsPerGroup bounds how many NALs one access unit or Annex-B
	// buffer may contain.
	MaxNALUsPerGroup = 20
)

// IsKeyframe reports whether nalu (including its 1-byte header) starts an
// IDR access unit.
func IsKeyframe(nalu []byte) bool {
	if len(nalu) == 0 {
		return false
	}
	return NALUType(nalu[0]&0x1f) == NALUTypeIDR
}

// EmulationPreventionRemove strips 0x03 emulation-prevention bytes
// (0x00 0x00 0x03 {0x00,0x01,0x02,0x03} -> 0x00 0x00 {...}) from an RBSP.
func EmulationPreventionRemove(nalu []byte) []byte {
	l := len(nalu)
	n := l
	for i := 2; i < l; i++ {
		if nalu[i-2] == 0 && nalu[i-1] == 0 && nalu[i] == 3 {
			n--
		}
	}

	ret := make([]byte, n)
	pos := 0
	start := 0
	for i := 2; i < l; i++ {
		if nalu[i-2] == 0 && nalu[i-1] == 0 && nalu[i] == 3 {
			pos += copy(ret[pos:], nalu[start:i])
			start = i + 1
		}
	}
	copy(ret[pos:], nalu[start:])
	return ret
}
