package h264

import (
	"github.com/streamcenter/streamcenter/internal/bits"
	"github.com/streamcenter/streamcenter/internal/errs"
)

// chromaInfoProfiles lists profile_idc values whose SPS carries
// chroma_format_idc and the bit-depth fields (ISO/IEC 14496-10 7.3.2.1.1).
var chromaInfoProfiles = map[uint8]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
	135: true,
}

// SPS holds the fields of a H.264 sequence parameter set this server
// consumes: the profile-level-id triple exchanged in SDP and the
// AVCDecoderConfigurationRecord, plus the chroma/bit-depth values the
// record's extension trailer carries for high profiles. The rest of the
// SPS syntax (frame geometry, VUI, timing) is decoder business; the stream
// passes through this broker compressed, so it is left unparsed.
type SPS struct {
	ProfileIdc         uint8
	ConstraintSet0Flag bool
	ConstraintSet1Flag bool
	ConstraintSet2Flag bool
	ConstraintSet3Flag bool
	ConstraintSet4Flag bool
	ConstraintSet5Flag bool
	ReservedZero2Bits  uint8
	LevelIdc           uint8
	ID                 uint32

	// ChromaFormatIdc, SeparateColourPlaneFlag and the bit-depth fields
	// are only present when ProfileIdc selects them; they stay zero for
	// baseline/main profiles (the bitstream then implies 4:2:0, 8-bit).
	ChromaFormatIdc         uint32
	SeparateColourPlaneFlag bool
	BitDepthLumaMinus8      uint32
	BitDepthChromaMinus8    uint32
}

// Unmarshal decodes the leading fields of a SPS from a full NAL unit
// (including its 1-byte header); emulation-prevention bytes are stripped
// first. Parsing stops after the chroma/bit-depth section; trailing RBSP
// is ignored.
func (s *SPS) Unmarshal(nalu []byte) error {
	nalu = EmulationPreventionRemove(nalu)
	if len(nalu) < 4 {
		return errs.WireFormat("h264: SPS NALU too short")
	}

	if nalu[0]>>7 != 0 {
		return errs.WireFormat("h264: SPS forbidden_zero_bit set")
	}
	nalRefIdc := (nalu[0] >> 5) & 0x03
	if nalRefIdc == 0 {
		return errs.WireFormat("h264: SPS nal_ref_idc is zero")
	}
	typ := NALUType(nalu[0] & 0x1f)
	if typ != NALUTypeSPS {
		return errs.WireFormat("h264: NALU type %s is not SPS", typ)
	}

	s.ProfileIdc = nalu[1]
	s.ConstraintSet0Flag = nalu[2]>>7 == 1
	s.ConstraintSet1Flag = (nalu[2]>>6)&0x01 == 1
	s.ConstraintSet2Flag = (nalu[2]>>5)&0x01 == 1
	s.ConstraintSet3Flag = (nalu[2]>>4)&0x01 == 1
	s.ConstraintSet4Flag = (nalu[2]>>3)&0x01 == 1
	s.ConstraintSet5Flag = (nalu[2]>>2)&0x01 == 1
	s.ReservedZero2Bits = nalu[2] & 0x03
	s.LevelIdc = nalu[3]

	r := bits.NewReader(nalu[4:])

	var err error
	s.ID, err = r.ReadGolombUnsigned()
	if err != nil {
		return err
	}

	if !chromaInfoProfiles[s.ProfileIdc] {
		return nil
	}

	if s.ChromaFormatIdc, err = r.ReadGolombUnsigned(); err != nil {
		return err
	}
	if s.ChromaFormatIdc > 3 {
		return errs.WireFormat("h264: SPS chroma_format_idc %d out of range", s.ChromaFormatIdc)
	}
	if s.ChromaFormatIdc == 3 {
		if s.SeparateColourPlaneFlag, err = r.ReadFlag(); err != nil {
			return err
		}
	}
	if s.BitDepthLumaMinus8, err = r.ReadGolombUnsigned(); err != nil {
		return err
	}
	if s.BitDepthChromaMinus8, err = r.ReadGolombUnsigned(); err != nil {
		return err
	}

	return nil
}

// ProfileCompatibility reassembles the constraint_set flags and reserved
// bits into the profile_compatibility byte, the middle octet of
// profile-level-id and of the AVCDecoderConfigurationRecord header.
func (s SPS) ProfileCompatibility() uint8 {
	var b uint8
	for i, f := range []bool{
		s.ConstraintSet0Flag, s.ConstraintSet1Flag, s.ConstraintSet2Flag,
		s.ConstraintSet3Flag, s.ConstraintSet4Flag, s.ConstraintSet5Flag,
	} {
		if f {
			b |= 1 << (7 - i)
		}
	}
	return b | s.ReservedZero2Bits
}
