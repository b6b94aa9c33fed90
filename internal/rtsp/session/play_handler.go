package session

import (
	"context"
	"sync/atomic"

	pionrtcp "github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/streamcenter/streamcenter/internal/clock"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/h264"
	"github.com/streamcenter/streamcenter/internal/rtcp"
	aacrtp "github.com/streamcenter/streamcenter/internal/rtp/aac"
	rtph264 "github.com/streamcenter/streamcenter/internal/rtp/h264"
	"github.com/streamcenter/streamcenter/internal/rtsp/base"
)

// playBatchSize bounds how many frames the play loop drains per wakeup
// before yielding back to the scheduler, mirroring the RTMP session's
// playLoop.
const playBatchSize = 128

// mediaPlayState is the PLAY-direction per-media state: the RTP packetizer
// and RTCP context feeding a subscriber. The loop receives MediaFrames
// from the broker, feeds them into the H.264 or AAC packetizer, and sends
// the resulting RTP packets.
type mediaPlayState struct {
	attrs mediaDescAttrs

	packH264 *rtph264.Packetizer
	packAAC  *aacrtp.Packetizer

	rtcpCtx *rtcp.Context

	wantAudio atomic.Bool
	wantVideo atomic.Bool
}

func newMediaPlayState(attrs mediaDescAttrs, clk clock.Clock) *mediaPlayState {
	p := &mediaPlayState{
		attrs:   attrs,
		rtcpCtx: rtcp.NewContext(randUint32(), "streamcenter", clk, defaultSessionBandwidthBPS*0.05),
	}
	p.wantVideo.Store(true)
	p.wantAudio.Store(true)

	if attrs.isVideo {
		p.packH264, _ = rtph264.NewPacketizer(attrs.payloadType, rtph264.ModeNonInterleaved)
	}
	if attrs.isAudio {
		rate := attrs.clockRateHz
		if rate == 0 {
			rate = rtph264.ClockRate
		}
		p.packAAC = aacrtp.NewPacketizer(attrs.payloadType, rate)
	}
	return p
}

// handlePlay starts or resumes delivery to a subscriber. A PLAY while
// already Playing, or a PLAY after PAUSE, resumes the existing broker
// subscription instead of opening a second one.
func (s *Session) handlePlay(_ *base.Request, res *base.Response) error {
	if s.direction != "play" || (s.state != StateSetup && s.state != StatePlaying) {
		return errInvalidState("rtsp: PLAY received in state %s", s.state)
	}
	if len(s.medias) == 0 {
		return errInvalidState("rtsp: PLAY received before any SETUP")
	}

	if s.sub.MediaReceiver == nil {
		wantAudio, wantVideo := mediaWants(s.medias)
		sub, err := s.broker.Subscribe(context.Background(), s.id, nil, wantAudio, wantVideo, s.clock.NowNS())
		if err != nil {
			return err
		}
		s.sub = sub
		for _, m := range s.medias {
			m.wg.Add(1)
			go s.rtcpSendLoop(m)
		}
	}

	s.playDone = make(chan struct{})
	go s.playLoop(s.playDone)

	s.paused.Store(false)
	s.setState(StatePlaying)
	res.StatusCode = base.StatusOK
	return nil
}

// handlePause stops the play loop without tearing down the broker
// subscription, so a following PLAY resumes from wherever the broker's
// live feed currently is.
func (s *Session) handlePause(_ *base.Request, res *base.Response) error {
	if s.direction != "play" || s.state != StatePlaying {
		return errInvalidState("rtsp: PAUSE received in state %s", s.state)
	}
	if s.playDone != nil {
		close(s.playDone)
		s.playDone = nil
	}
	s.paused.Store(true)
	s.setState(StateSetup)
	res.StatusCode = base.StatusOK
	return nil
}

func mediaWants(medias []*mediaSetup) (wantAudio, wantVideo bool) {
	for _, m := range medias {
		if m.isAudio {
			wantAudio = true
		}
		if m.isVideo {
			wantVideo = true
		}
	}
	return
}

func (s *Session) videoMedia() *mediaSetup {
	for _, m := range s.medias {
		if m.isVideo {
			return m
		}
	}
	return nil
}

func (s *Session) audioMedia() *mediaSetup {
	for _, m := range s.medias {
		if m.isAudio {
			return m
		}
	}
	return nil
}

// playLoop drains the broker subscription and converts each MediaFrame to
// RTP, mirroring internal/rtmp/session's playLoop/writePlayFrame shape but
// producing RTP packets instead of FLV tags.
func (s *Session) playLoop(done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case f, ok := <-s.sub.MediaReceiver:
			if !ok {
				return
			}
			s.writePlayFrame(f)

			drained := 1
			for drained < playBatchSize {
				select {
				case f2, ok := <-s.sub.MediaReceiver:
					if !ok {
						return
					}
					s.writePlayFrame(f2)
					drained++
				default:
					drained = playBatchSize
				}
			}
		}
	}
}

func (s *Session) writePlayFrame(f frame.MediaFrame) {
	switch f.Kind {
	case frame.KindVideo:
		m := s.videoMedia()
		if m == nil || m.play == nil || !m.play.wantVideo.Load() {
			return
		}
		nalus, err := h264.AVCCUnmarshal(f.Payload)
		if err != nil {
			s.obs.Error("rtsp", s.ID, err)
			return
		}
		pkts, err := m.play.packH264.Packetize(nalus, int64(f.TimestampNS))
		if err != nil {
			s.obs.Error("rtsp", s.ID, err)
			return
		}
		s.writeRTPPackets(m, pkts)
	case frame.KindAudio:
		m := s.audioMedia()
		if m == nil || m.play == nil || !m.play.wantAudio.Load() {
			return
		}
		pkt, err := m.play.packAAC.Packetize(f.Payload, int64(f.TimestampNS))
		if err != nil {
			s.obs.Error("rtsp", s.ID, err)
			return
		}
		s.writeRTPPackets(m, []*rtp.Packet{pkt})
	}
}

func (s *Session) writeRTPPackets(m *mediaSetup, pkts []*rtp.Packet) {
	for _, pkt := range pkts {
		buf, err := pkt.Marshal()
		if err != nil {
			continue
		}
		m.play.rtcpCtx.ObserveSentRTP(pkt)

		if m.interleaved {
			_ = s.writeInterleaved(m.rtpChannel, buf)
			continue
		}
		if m.rtpConn == nil || m.clientRTPAddr == nil {
			continue
		}
		_, _ = m.rtpConn.WriteToUDP(buf, m.clientRTPAddr)
	}
}

// handlePlayRTCP is wired as a mediaSetup's onRTCP closure for the PLAY
// direction: the player sends RR/SDES/BYE about our own SR stream, the
// same shape as handleRecordRTCP's publisher-side handling.
func (s *Session) handlePlayRTCP(m *mediaSetup, payload []byte) {
	pkts, err := pionrtcp.Unmarshal(payload)
	if err != nil {
		return
	}
	for _, p := range pkts {
		switch v := p.(type) {
		case *pionrtcp.SourceDescription:
			for _, chunk := range v.Chunks {
				m.play.rtcpCtx.ObserveSDES(chunk)
			}
		case *pionrtcp.Goodbye:
			m.play.rtcpCtx.ObserveBye(v.Sources)
		}
	}
}
