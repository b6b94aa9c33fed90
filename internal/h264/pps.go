package h264

import (
	"github.com/streamcenter/streamcenter/internal/bits"
	"github.com/streamcenter/streamcenter/internal/errs"
)

// PPS is a H.264 picture parameter set (ISO/IEC 14496-10 7.3.2.2). Slice
// groups (num_slice_groups_minus1 > 0, FMO) are not implemented: every
// deployed encoder this broker targets emits a single slice group, and
// parsing the six FMO mapping types for a feature nothing exercises would
// just be dead code.
type PPS struct {
	ID                                    uint32
	SPSID                                 uint32
	EntropyCodingModeFlag                 bool
	BottomFieldPicOrderInFramePresentFlag bool

	NumSliceGroupsMinus1 uint32

	NumRefIdxL0DefaultActiveMinus1     uint32
	NumRefIdxL1DefaultActiveMinus1     uint32
	WeightedPredFlag                   bool
	WeightedBipredIdc                  uint8
	PicInitQPMinus26                   int32
	PicInitQSMinus26                   int32
	ChromaQPIndexOffset                int32
	DeblockingFilterControlPresentFlag bool
	ConstrainedIntraPredFlag           bool
	RedundantPicCntPresentFlag         bool

	Extension *PPSExtension
}

// PPSExtension carries the fields present when more_rbsp_data indicates an
// extended PPS: transform_8x8_mode_flag (as TransformBypassFlag) and
// second_chroma_qp_index_offset. A PPS whose extension signals a picture
// scaling matrix is rejected by Unmarshal.
type PPSExtension struct {
	TransformBypassFlag       bool
	SecondChromaQPIndexOffset int32
}

// Unmarshal decodes a PPS from a full NAL unit (including its 1-byte
// header); emulation-prevention bytes are stripped first. Only the base
// syntax through second_chroma_qp_index_offset is parsed; a PPS whose
// extension signals a picture scaling matrix fails with
// errs.UnsupportedFeature.
func (p *PPS) Unmarshal(nalu []byte) error {
	nalu = EmulationPreventionRemove(nalu)
	if len(nalu) < 2 {
		return errs.WireFormat("h264: PPS NALU too short")
	}

	if nalu[0]>>7 != 0 {
		return errs.WireFormat("h264: PPS forbidden_zero_bit set")
	}
	typ := NALUType(nalu[0] & 0x1f)
	if typ != NALUTypePPS {
		return errs.WireFormat("h264: NALU type %s is not PPS", typ)
	}

	r := bits.NewReader(nalu[1:])

	var err error
	if p.ID, err = r.ReadGolombUnsigned(); err != nil {
		return err
	}
	if p.SPSID, err = r.ReadGolombUnsigned(); err != nil {
		return err
	}
	if p.EntropyCodingModeFlag, err = r.ReadFlag(); err != nil {
		return err
	}
	if p.BottomFieldPicOrderInFramePresentFlag, err = r.ReadFlag(); err != nil {
		return err
	}
	if p.NumSliceGroupsMinus1, err = r.ReadGolombUnsigned(); err != nil {
		return err
	}
	if p.NumSliceGroupsMinus1 > 0 {
		return errs.UnsupportedFeature("PPS slice groups (FMO)")
	}

	if p.NumRefIdxL0DefaultActiveMinus1, err = r.ReadGolombUnsigned(); err != nil {
		return err
	}
	if p.NumRefIdxL1DefaultActiveMinus1, err = r.ReadGolombUnsigned(); err != nil {
		return err
	}
	if p.WeightedPredFlag, err = r.ReadFlag(); err != nil {
		return err
	}
	v, err := r.ReadBits(2)
	if err != nil {
		return err
	}
	p.WeightedBipredIdc = uint8(v)

	if p.PicInitQPMinus26, err = r.ReadGolombSigned(); err != nil {
		return err
	}
	if p.PicInitQSMinus26, err = r.ReadGolombSigned(); err != nil {
		return err
	}
	if p.ChromaQPIndexOffset, err = r.ReadGolombSigned(); err != nil {
		return err
	}
	if p.DeblockingFilterControlPresentFlag, err = r.ReadFlag(); err != nil {
		return err
	}
	if p.ConstrainedIntraPredFlag, err = r.ReadFlag(); err != nil {
		return err
	}
	if p.RedundantPicCntPresentFlag, err = r.ReadFlag(); err != nil {
		return err
	}

	if r.Remaining() < 8 {
		return nil
	}

	p.Extension = &PPSExtension{}
	if p.Extension.TransformBypassFlag, err = r.ReadFlag(); err != nil {
		return err
	}
	picScalingMatrixPresentFlag, err := r.ReadFlag()
	if err != nil {
		return err
	}
	if picScalingMatrixPresentFlag {
		return errs.UnsupportedFeature("PPS picture scaling matrix")
	}
	if p.Extension.SecondChromaQPIndexOffset, err = r.ReadGolombSigned(); err != nil {
		return err
	}

	return nil
}
