package session

import (
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/h264"
	"github.com/streamcenter/streamcenter/internal/rtmp/chunk"
)

// playBatchSize bounds how many frames the play loop drains per wakeup
// before yielding back to the scheduler.
const playBatchSize = 128

// playLoop drains p's media receiver and writes each frame back to the
// peer as an FLV-tag-shaped RTMP Audio/Video/Data message, converting
// timestamps from nanoseconds to the RTMP millisecond clock.
func (s *Session) playLoop(p *playState) {
	for {
		select {
		case <-p.done:
			return
		case f, ok := <-p.sub.MediaReceiver:
			if !ok {
				_ = s.sendOnStatus(p.rtmpStreamID, "status", "NetStream.Play.Stop", "")
				return
			}
			s.writePlayFrame(p, f)

			drained := 1
			for drained < playBatchSize {
				select {
				case f2, ok := <-p.sub.MediaReceiver:
					if !ok {
						_ = s.sendOnStatus(p.rtmpStreamID, "status", "NetStream.Play.Stop", "")
						return
					}
					s.writePlayFrame(p, f2)
					drained++
				default:
					drained = playBatchSize
				}
			}
		}
	}
}

func (s *Session) writePlayFrame(p *playState, f frame.MediaFrame) {
	timestamp := uint32(f.TimestampNS / 1_000_000)

	switch f.Kind {
	case frame.KindVideoConfig:
		p.videoLengthSize = avccLengthSizeFromConfig(f.Payload)
		s.writeVideoSeqHeader(timestamp, f.Payload)
	case frame.KindVideo:
		if !p.wantVideo.Load() {
			return
		}
		s.writeVideoFrame(timestamp, f.IsKeyframe, int32(f.CompositionTimeNS/1_000_000), f.Payload, p.videoLengthSize)
	case frame.KindAudioConfig:
		s.writeAudioTag(timestamp, aacPacketTypeSeqHeader, f.Payload)
	case frame.KindAudio:
		if !p.wantAudio.Load() {
			return
		}
		s.writeAudioTag(timestamp, aacPacketTypeRaw, f.Payload)
	case frame.KindScript:
		_ = s.writer.WriteMessage(6, chunk.TypeDataAMF0, p.rtmpStreamID, timestamp, f.Payload)
	}
}

func (s *Session) writeVideoSeqHeader(timestamp uint32, config []byte) {
	header := [5]byte{1<<4 | videoCodecAVC, avcPacketTypeSeqHeader, 0, 0, 0}
	msg := append(header[:], config...)
	_ = s.writer.WriteMessage(4, chunk.TypeVideo, 0, timestamp, msg)
}

// writeVideoFrame re-frames the internally 4-byte-normalized access unit
// to lengthSize, the subscriber's declared AVCDecoderConfigurationRecord
// length, so the peer always sees NAL units framed the way its config
// message announced.
func (s *Session) writeVideoFrame(timestamp uint32, isKeyframe bool, compositionTimeMS int32, payload []byte, lengthSize int) {
	frameType := byte(2)
	if isKeyframe {
		frameType = 1
	}
	header := [5]byte{frameType<<4 | videoCodecAVC, avcPacketTypeNALU, byte(compositionTimeMS >> 16), byte(compositionTimeMS >> 8), byte(compositionTimeMS)}

	body := payload
	if lengthSize != 4 {
		if nalus, err := h264.AVCCUnmarshal(payload); err == nil {
			body = h264.AVCCMarshalSized(nalus, lengthSize)
		}
	}

	msg := append(header[:], body...)
	_ = s.writer.WriteMessage(4, chunk.TypeVideo, 0, timestamp, msg)
}

func (s *Session) writeAudioTag(timestamp uint32, packetType byte, payload []byte) {
	header := [2]byte{soundFormatAAC<<4 | 0x0f, packetType}
	msg := append(header[:], payload...)
	_ = s.writer.WriteMessage(5, chunk.TypeAudio, 0, timestamp, msg)
}
