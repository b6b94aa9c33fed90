package session

import (
	"github.com/streamcenter/streamcenter/internal/aac"
	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/h264"
)

// FLV sound/video tag header constants, the framing this server's RTMP
// Audio/Video messages carry unchanged.
const (
	soundFormatAAC = 10
	videoCodecAVC  = 7

	avcPacketTypeSeqHeader = 0
	avcPacketTypeNALU      = 1
	avcPacketTypeEOS       = 2

	aacPacketTypeSeqHeader = 0
	aacPacketTypeRaw       = 1

	frameTypeKey = 1
)

func (s *Session) submit(f frame.MediaFrame) {
	s.touchPublisherActivity()
	select {
	case s.pub.producer <- f:
	default:
		// Producer -> broker is bounded; a full channel here
		// means the broker is falling behind, which is the publisher's own
		// problem to notice via its own timeout, not this session's.
	}
}

// handleAudio decodes one FLV AudioTagHeader + body carried in an RTMP
// Audio message.
func (s *Session) handleAudio(timestamp uint32, payload []byte) {
	f, err := s.decodeAudioTag(timestamp, payload)
	if err != nil {
		s.pub.stats.failedAudioCnt++
		s.obs.Error("rtmp", s.ID, err)
		return
	}
	s.pub.stats.audioFrameCnt++
	s.submit(f)
}

func (s *Session) decodeAudioTag(timestamp uint32, payload []byte) (frame.MediaFrame, error) {
	if len(payload) < 1 {
		return frame.MediaFrame{}, errs.WireFormat("rtmp audio tag: empty payload")
	}
	soundFormat := payload[0] >> 4
	if soundFormat != soundFormatAAC {
		return frame.MediaFrame{}, errs.UnsupportedFeature("audio codec other than AAC")
	}
	if len(payload) < 2 {
		return frame.MediaFrame{}, errs.WireFormat("rtmp audio tag: missing AACPacketType")
	}
	packetType := payload[1]
	body := payload[2:]
	tsNS := uint64(timestamp) * 1_000_000

	switch packetType {
	case aacPacketTypeSeqHeader:
		cfg, err := aac.Parse(body)
		if err != nil {
			return frame.MediaFrame{}, err
		}
		s.pub.audioConfig = &cfg
		info := frame.AudioSoundInfo{SampleRateHz: cfg.SampleRate, SampleSizeBit: 16, Stereo: cfg.ChannelCount == 2}
		return frame.AudioConfig(tsNS, info, body), nil
	case aacPacketTypeRaw:
		return frame.Audio(tsNS, body), nil
	default:
		return frame.MediaFrame{}, errs.UnsupportedFeature("AACPacketType")
	}
}

// handleVideo decodes one FLV VideoTagHeader + body carried in an RTMP
// Video message.
func (s *Session) handleVideo(timestamp uint32, payload []byte) {
	f, err := s.decodeVideoTag(timestamp, payload)
	if err != nil {
		s.pub.stats.failedVideoCnt++
		s.obs.Error("rtmp", s.ID, err)
		return
	}
	s.pub.stats.videoFrameCnt++
	s.submit(f)
}

func (s *Session) decodeVideoTag(timestamp uint32, payload []byte) (frame.MediaFrame, error) {
	if len(payload) < 1 {
		return frame.MediaFrame{}, errs.WireFormat("rtmp video tag: empty payload")
	}
	frameType := payload[0] >> 4
	codecID := payload[0] & 0x0f
	if codecID != videoCodecAVC {
		return frame.MediaFrame{}, errs.UnsupportedFeature("video codec other than AVC")
	}
	if len(payload) < 5 {
		return frame.MediaFrame{}, errs.WireFormat("rtmp video tag: truncated AVCVIDEOPACKET header")
	}
	packetType := payload[1]
	compositionTime := int32(payload[2])<<16 | int32(payload[3])<<8 | int32(payload[4])
	if compositionTime&0x800000 != 0 {
		compositionTime -= 0x1000000 // sign-extend 24-bit
	}
	body := payload[5:]
	tsNS := uint64(timestamp) * 1_000_000
	ctNS := int64(compositionTime) * 1_000_000

	switch packetType {
	case avcPacketTypeSeqHeader:
		var dcr h264.AVCDecoderConfigurationRecord
		if err := dcr.Unmarshal(body); err != nil {
			return frame.MediaFrame{}, err
		}
		s.pub.videoLengthSize = int(dcr.LengthSizeMinusOne) + 1
		return frame.VideoConfig(tsNS, dcr.Marshal()), nil
	case avcPacketTypeNALU:
		nalus, err := h264.AVCCUnmarshalSized(body, s.pub.videoLengthSize)
		if err != nil {
			return frame.MediaFrame{}, err
		}
		return frame.Video(tsNS, frameType == frameTypeKey, ctNS, h264.AVCCMarshal(nalus)), nil
	case avcPacketTypeEOS:
		return frame.MediaFrame{}, errs.UnsupportedFeature("AVC end-of-sequence marker")
	default:
		return frame.MediaFrame{}, errs.UnsupportedFeature("AVCPacketType")
	}
}

// handleScript decodes an AMF0/AMF3 Data message (onMetaData and similar)
// as an opaque Script frame; the broker keeps the latest one for replay.
func (s *Session) handleScript(timestamp uint32, payload []byte) {
	s.touchPublisherActivity()
	s.pub.stats.scriptFrameCnt++
	s.submit(frame.Script(uint64(timestamp)*1_000_000, payload))
}

// handleAggregate parses an FLV tag sequence embedded in a Type 22
// Aggregate message: `<tag_header:11><body><prev_tag_size:4>`* with each
// tag re-timestamped relative to the aggregate's own outer timestamp.
func (s *Session) handleAggregate(payload []byte) {
	s.touchPublisherActivity()
	if err := s.decodeAggregate(payload); err != nil {
		s.pub.stats.failedAggregateCnt++
		s.obs.Error("rtmp", s.ID, err)
		return
	}
	s.pub.stats.aggregateFrameCnt++
}

func (s *Session) decodeAggregate(payload []byte) error {
	pos := 0
	var baseTimestamp int64 = -1

	for pos < len(payload) {
		if len(payload)-pos < 11 {
			return errs.WireFormat("rtmp aggregate: truncated tag header")
		}
		tagType := payload[pos]
		dataSize := int(payload[pos+1])<<16 | int(payload[pos+2])<<8 | int(payload[pos+3])
		ts := int64(payload[pos+4])<<16 | int64(payload[pos+5])<<8 | int64(payload[pos+6])
		tsExt := int64(payload[pos+7])
		ts |= tsExt << 24
		pos += 11

		if len(payload)-pos < dataSize+4 {
			return errs.WireFormat("rtmp aggregate: tag body exceeds aggregate bounds")
		}
		body := payload[pos : pos+dataSize]
		pos += dataSize + 4 // skip body + PreviousTagSize

		if baseTimestamp < 0 {
			baseTimestamp = ts
		}
		relativeTS := uint32(ts - baseTimestamp)

		switch tagType {
		case 8:
			s.handleAudio(relativeTS, body)
		case 9:
			s.handleVideo(relativeTS, body)
		case 18:
			s.handleScript(relativeTS, body)
		default:
			return errs.WireFormat("rtmp aggregate: unsupported tag type %d", tagType)
		}
	}
	return nil
}
