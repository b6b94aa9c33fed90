package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKeyframe(t *testing.T) {
	assert.True(t, IsKeyframe([]byte{0x65, 0x88}))
	assert.False(t, IsKeyframe([]byte{0x41, 0x9a}))
}

func TestEmulationPreventionRemove(t *testing.T) {
	in := []byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x02, 0x00, 0x00, 0x03, 0x03}
	out := EmulationPreventionRemove(in)
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x02, 0x00, 0x00, 0x03}, out)
}

func TestAnnexBRoundTrip(t *testing.T) {
	nalus := [][]byte{{0x67, 0x01, 0x02}, {0x68, 0x03}, {0x65, 0x04, 0x05, 0x06}}
	buf := AnnexBMarshal(nalus)
	out, err := AnnexBUnmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, nalus, out)
}

func TestAnnexBUnmarshalRejectsMissingDelimiter(t *testing.T) {
	_, err := AnnexBUnmarshal([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
}

func TestAVCCRoundTrip(t *testing.T) {
	nalus := [][]byte{{0x67, 0x01, 0x02}, {0x68, 0x03}, {0x65, 0x04, 0x05, 0x06}}
	buf := AVCCMarshal(nalus)
	out, err := AVCCUnmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, nalus, out)
}

func TestAVCCUnmarshalRejectsTruncatedLength(t *testing.T) {
	_, err := AVCCUnmarshal([]byte{0x00, 0x00, 0x00})
	require.Error(t, err)
}

// TestSPSUnmarshalBaseline uses a hand-built baseline-profile SPS:
// profile_idc=66, all constraint flags clear, level_idc=30,
// seq_parameter_set_id=0. Baseline carries no chroma/bit-depth section, so
// those fields stay zero.
func TestSPSUnmarshalBaseline(t *testing.T) {
	nalu := []byte{0x67, 0x42, 0x00, 0x1e, 0xf4, 0x0a, 0x0f, 0xc0}

	var sps SPS
	err := sps.Unmarshal(nalu)
	require.NoError(t, err)

	assert.Equal(t, uint8(66), sps.ProfileIdc)
	assert.False(t, sps.ConstraintSet0Flag)
	assert.Equal(t, uint8(0), sps.ReservedZero2Bits)
	assert.Equal(t, uint8(30), sps.LevelIdc)
	assert.Equal(t, uint32(0), sps.ID)
	assert.Equal(t, uint32(0), sps.ChromaFormatIdc)
	assert.Equal(t, uint8(0), sps.ProfileCompatibility())
}

// TestSPSUnmarshalHighProfileChroma uses a hand-built high-profile SPS
// whose RBSP reads seq_parameter_set_id=0, chroma_format_idc=1,
// bit_depth_luma_minus8=0, bit_depth_chroma_minus8=0 (the standard 4:2:0
// 8-bit layout); parsing stops there.
func TestSPSUnmarshalHighProfileChroma(t *testing.T) {
	nalu := []byte{0x67, 0x64, 0xc0, 0x1f, 0xae}

	var sps SPS
	err := sps.Unmarshal(nalu)
	require.NoError(t, err)

	assert.Equal(t, uint8(100), sps.ProfileIdc)
	assert.True(t, sps.ConstraintSet0Flag)
	assert.True(t, sps.ConstraintSet1Flag)
	assert.Equal(t, uint8(31), sps.LevelIdc)
	assert.Equal(t, uint32(1), sps.ChromaFormatIdc)
	assert.Equal(t, uint32(0), sps.BitDepthLumaMinus8)
	assert.Equal(t, uint32(0), sps.BitDepthChromaMinus8)
	assert.Equal(t, uint8(0xc0), sps.ProfileCompatibility())
}

func TestSPSUnmarshalRejectsWrongNALUType(t *testing.T) {
	var sps SPS
	err := sps.Unmarshal([]byte{0x68, 0xce, 0x38})
	require.Error(t, err)
}

// TestPPSUnmarshalBaseline uses a hand-built PPS with every field at its
// default (zero) value: pic_parameter_set_id=0, seq_parameter_set_id=0,
// entropy_coding_mode_flag=0 (CAVLC), num_slice_groups_minus1=0,
// num_ref_idx_l0/l1_default_active_minus1=0, weighted_pred_flag=0,
// weighted_bipred_idc=0, pic_init_qp/qs_minus26=0, chroma_qp_index_offset=0.
func TestPPSUnmarshalBaseline(t *testing.T) {
	nalu := []byte{0x68, 0xce, 0x38}

	var pps PPS
	err := pps.Unmarshal(nalu)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), pps.ID)
	assert.Equal(t, uint32(0), pps.SPSID)
	assert.False(t, pps.EntropyCodingModeFlag)
	assert.Equal(t, uint32(0), pps.NumSliceGroupsMinus1)
	assert.Nil(t, pps.Extension)
}

func TestPPSUnmarshalRejectsWrongNALUType(t *testing.T) {
	var pps PPS
	err := pps.Unmarshal([]byte{0x67, 0x42, 0x00, 0x1e, 0xf4, 0x0a, 0x0f, 0xc0})
	require.Error(t, err)
}

func TestNewAVCDecoderConfigurationRecord(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1e, 0xf4, 0x0a, 0x0f, 0xc0}
	pps := []byte{0x68, 0xce, 0x38}

	rec, err := NewAVCDecoderConfigurationRecord([][]byte{sps}, [][]byte{pps})
	require.NoError(t, err)

	assert.Equal(t, uint8(1), rec.ConfigurationVersion)
	assert.Equal(t, uint8(66), rec.AVCProfileIndication)
	assert.Equal(t, uint8(0), rec.ProfileCompatibility)
	assert.Equal(t, uint8(30), rec.AVCLevelIndication)
	assert.False(t, rec.HasExtension)
	assert.Equal(t, [][]byte{sps}, rec.SPS)
	assert.Equal(t, [][]byte{pps}, rec.PPS)
}

func TestNewAVCDecoderConfigurationRecordHighProfile(t *testing.T) {
	sps := []byte{0x67, 0x64, 0xc0, 0x1f, 0xae}
	pps := []byte{0x68, 0xce, 0x38}

	rec, err := NewAVCDecoderConfigurationRecord([][]byte{sps}, [][]byte{pps})
	require.NoError(t, err)

	assert.Equal(t, uint8(100), rec.AVCProfileIndication)
	assert.Equal(t, uint8(0xc0), rec.ProfileCompatibility)
	assert.True(t, rec.HasExtension)
	assert.Equal(t, uint8(1), rec.ChromaFormat)
	assert.Equal(t, uint8(0), rec.BitDepthLumaMinus8)
}

func TestNewAVCDecoderConfigurationRecordRejectsBadInput(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1e, 0xf4, 0x0a, 0x0f, 0xc0}
	pps := []byte{0x68, 0xce, 0x38}

	_, err := NewAVCDecoderConfigurationRecord(nil, [][]byte{pps})
	require.Error(t, err)

	_, err = NewAVCDecoderConfigurationRecord([][]byte{{0x68, 0xce, 0x38}}, [][]byte{pps})
	require.Error(t, err, "PPS in the SPS slot must be rejected")

	_, err = NewAVCDecoderConfigurationRecord([][]byte{sps}, [][]byte{{0x68}})
	require.Error(t, err, "truncated PPS must be rejected")
}

func TestAVCDecoderConfigurationRecordRoundTrip(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1e, 0xf4, 0x0a, 0x0f, 0xc0}
	pps := []byte{0x68, 0xce, 0x38}

	rec := AVCDecoderConfigurationRecord{
		AVCProfileIndication: 66,
		ProfileCompatibility: 0,
		AVCLevelIndication:   30,
		SPS:                  [][]byte{sps},
		PPS:                  [][]byte{pps},
	}

	buf := rec.Marshal()

	var rec2 AVCDecoderConfigurationRecord
	err := rec2.Unmarshal(buf)
	require.NoError(t, err)

	assert.Equal(t, uint8(1), rec2.ConfigurationVersion)
	assert.Equal(t, rec.AVCProfileIndication, rec2.AVCProfileIndication)
	assert.Equal(t, rec.AVCLevelIndication, rec2.AVCLevelIndication)
	assert.Equal(t, rec.SPS, rec2.SPS)
	assert.Equal(t, rec.PPS, rec2.PPS)
	assert.False(t, rec2.HasExtension)
}

func TestAVCDecoderConfigurationRecordExtensionTrailer(t *testing.T) {
	rec := AVCDecoderConfigurationRecord{
		AVCProfileIndication: 100,
		AVCLevelIndication:   31,
		SPS:                  [][]byte{{0x67, 0x64, 0x00, 0x1f}},
		PPS:                  [][]byte{{0x68, 0xce}},
		HasExtension:         true,
		ChromaFormat:         1,
		BitDepthLumaMinus8:   0,
		BitDepthChromaMinus8: 0,
	}

	buf := rec.Marshal()

	var rec2 AVCDecoderConfigurationRecord
	err := rec2.Unmarshal(buf)
	require.NoError(t, err)
	assert.True(t, rec2.HasExtension)
	assert.Equal(t, uint8(1), rec2.ChromaFormat)
}

func TestAVCDecoderConfigurationRecordRejectsBadVersion(t *testing.T) {
	buf := []byte{2, 0x42, 0x00, 0x1e, 0xff, 0x00}
	var rec AVCDecoderConfigurationRecord
	err := rec.Unmarshal(buf)
	require.Error(t, err)
}
