package h264

import "github.com/streamcenter/streamcenter/internal/errs"

// chromaExtensionProfiles lists AVCProfileIndication values that carry the
// chroma/bit-depth extension trailer in the AVCDecoderConfigurationRecord
// (ISO/IEC 14496-15 5.2.4.1.1).
var chromaExtensionProfiles = map[uint8]bool{
	100: true, 110: true, 122: true, 144: true,
}

// AVCDecoderConfigurationRecord is the container the RTMP/RTSP publishers
// exchange out-of-band to describe the H.264 stream (ISO/IEC 14496-15
// 5.2.4.1).
type AVCDecoderConfigurationRecord struct {
	ConfigurationVersion uint8
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	LengthSizeMinusOne   uint8

	SPS [][]byte
	PPS [][]byte

	// ChromaFormat, BitDepthLumaMinus8 and BitDepthChromaMinus8 are only
	// meaningful when AVCProfileIndication selects the extension trailer.
	ChromaFormat         uint8
	BitDepthLumaMinus8   uint8
	BitDepthChromaMinus8 uint8
	HasExtension         bool
}

// NewAVCDecoderConfigurationRecord builds a record from raw SPS/PPS NAL
// units. profile-level-id and the chroma/bit-depth extension are derived
// from the parsed first SPS rather than read off raw byte offsets, and
// every parameter set is parsed up front so a malformed one is rejected
// before any config frame is built from it.
func NewAVCDecoderConfigurationRecord(spsList, ppsList [][]byte) (AVCDecoderConfigurationRecord, error) {
	if len(spsList) == 0 || len(ppsList) == 0 {
		return AVCDecoderConfigurationRecord{}, errs.WireFormat("h264: need at least one SPS and one PPS")
	}

	var sps SPS
	if err := sps.Unmarshal(spsList[0]); err != nil {
		return AVCDecoderConfigurationRecord{}, err
	}
	for _, b := range ppsList {
		var pps PPS
		if err := pps.Unmarshal(b); err != nil {
			return AVCDecoderConfigurationRecord{}, err
		}
	}

	c := AVCDecoderConfigurationRecord{
		ConfigurationVersion: 1,
		AVCProfileIndication: sps.ProfileIdc,
		ProfileCompatibility: sps.ProfileCompatibility(),
		AVCLevelIndication:   sps.LevelIdc,
		LengthSizeMinusOne:   3,
		SPS:                  spsList,
		PPS:                  ppsList,
	}
	if chromaExtensionProfiles[sps.ProfileIdc] {
		c.HasExtension = true
		c.ChromaFormat = uint8(sps.ChromaFormatIdc)
		c.BitDepthLumaMinus8 = uint8(sps.BitDepthLumaMinus8)
		c.BitDepthChromaMinus8 = uint8(sps.BitDepthChromaMinus8)
	}
	return c, nil
}

// Unmarshal decodes an AVCDecoderConfigurationRecord.
func (c *AVCDecoderConfigurationRecord) Unmarshal(buf []byte) error {
	if len(buf) < 6 {
		return errs.WireFormat("h264: AVCDecoderConfigurationRecord too short")
	}

	c.ConfigurationVersion = buf[0]
	if c.ConfigurationVersion != 1 {
		return errs.WireFormat("h264: unsupported AVCDecoderConfigurationRecord version %d", c.ConfigurationVersion)
	}
	c.AVCProfileIndication = buf[1]
	c.ProfileCompatibility = buf[2]
	c.AVCLevelIndication = buf[3]
	c.LengthSizeMinusOne = buf[4] & 0x03

	pos := 5
	numSPS := int(buf[pos] & 0x1f)
	pos++

	for i := 0; i < numSPS; i++ {
		if pos+2 > len(buf) {
			return errs.WireFormat("h264: truncated SPS length in AVCDecoderConfigurationRecord")
		}
		l := int(buf[pos])<<8 | int(buf[pos+1])
		pos += 2
		if pos+l > len(buf) {
			return errs.WireFormat("h264: truncated SPS in AVCDecoderConfigurationRecord")
		}
		c.SPS = append(c.SPS, buf[pos:pos+l])
		pos += l
	}

	if pos >= len(buf) {
		return errs.WireFormat("h264: truncated AVCDecoderConfigurationRecord (no PPS count)")
	}
	numPPS := int(buf[pos])
	pos++

	for i := 0; i < numPPS; i++ {
		if pos+2 > len(buf) {
			return errs.WireFormat("h264: truncated PPS length in AVCDecoderConfigurationRecord")
		}
		l := int(buf[pos])<<8 | int(buf[pos+1])
		pos += 2
		if pos+l > len(buf) {
			return errs.WireFormat("h264: truncated PPS in AVCDecoderConfigurationRecord")
		}
		c.PPS = append(c.PPS, buf[pos:pos+l])
		pos += l
	}

	if chromaExtensionProfiles[c.AVCProfileIndication] && pos+4 <= len(buf) {
		c.HasExtension = true
		c.ChromaFormat = buf[pos] & 0x03
		c.BitDepthLumaMinus8 = buf[pos+1] & 0x07
		c.BitDepthChromaMinus8 = buf[pos+2] & 0x07
		// buf[pos+3] is numOfSequenceParameterSetExt, always 0 in practice
		// (extension SPS NALs are a rarely-used feature no publisher in
		// this system emits); skip it rather than parse further entries.
		pos += 4
	}

	return nil
}

// Marshal re-serializes the record. LengthSizeMinusOne is always emitted
// as 3 (4-byte length prefix) regardless of the input value, matching the
// broker's AVCC convention.
func (c AVCDecoderConfigurationRecord) Marshal() []byte {
	n := 6
	for _, s := range c.SPS {
		n += 2 + len(s)
	}
	n++
	for _, p := range c.PPS {
		n += 2 + len(p)
	}
	if c.HasExtension {
		n += 4
	}

	buf := make([]byte, n)
	buf[0] = 1
	buf[1] = c.AVCProfileIndication
	buf[2] = c.ProfileCompatibility
	buf[3] = c.AVCLevelIndication
	buf[4] = 0xfc | 0x03
	buf[5] = 0xe0 | byte(len(c.SPS))

	pos := 6
	for _, s := range c.SPS {
		buf[pos] = byte(len(s) >> 8)
		buf[pos+1] = byte(len(s))
		pos += 2
		pos += copy(buf[pos:], s)
	}

	buf[pos] = byte(len(c.PPS))
	pos++
	for _, p := range c.PPS {
		buf[pos] = byte(len(p) >> 8)
		buf[pos+1] = byte(len(p))
		pos += 2
		pos += copy(buf[pos:], p)
	}

	if c.HasExtension {
		buf[pos] = 0xfc | c.ChromaFormat
		buf[pos+1] = 0xf8 | c.BitDepthLumaMinus8
		buf[pos+2] = 0xf8 | c.BitDepthChromaMinus8
		buf[pos+3] = 0
		pos += 4
	}

	return buf
}
