package session

import (
	"context"

	pionrtcp "github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/streamcenter/streamcenter/internal/aac"
	"github.com/streamcenter/streamcenter/internal/clock"
	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/h264"
	"github.com/streamcenter/streamcenter/internal/observer"
	"github.com/streamcenter/streamcenter/internal/rtcp"
	aacrtp "github.com/streamcenter/streamcenter/internal/rtp/aac"
	rtph264 "github.com/streamcenter/streamcenter/internal/rtp/h264"
	"github.com/streamcenter/streamcenter/internal/rtp/jitter"
	"github.com/streamcenter/streamcenter/internal/rtsp/base"
)

// jitterMaxPackets and jitterLatencyNS are the reorder buffer's bounds:
// 200 packets, 10 ms latency budget.
const (
	jitterMaxPackets = 200
	jitterLatencyNS  = 10 * 1_000_000

	// defaultSessionBandwidthBPS seeds the RTCP bandwidth fraction
	// (rtcp_bw = 0.05*session_bw) absent any real bandwidth negotiation
	// in this server.
	defaultSessionBandwidthBPS = 512_000
)

// mediaPublishState is the RECORD-direction per-media state: the reorder
// buffer, depacketizer, and RTCP context feeding the broker. Received RTP
// goes through the reorder jitter buffer, then the H.264 or AAC
// depacketizer, and the resulting MediaFrames are forwarded to the broker.
type mediaPublishState struct {
	attrs mediaDescAttrs

	depH264 *rtph264.Depacketizer
	depAAC  *aacrtp.Depacketizer

	jit     *jitter.Buffer
	rtcpCtx *rtcp.Context

	haveBaseTS bool
	baseTS     uint32
	baseWallNS int64

	sentVideoConfig bool
	sentAudioConfig bool
}

func newMediaPublishState(attrs mediaDescAttrs, clk clock.Clock, obs observer.Observer, sessionID string) *mediaPublishState {
	p := &mediaPublishState{
		attrs:   attrs,
		jit:     jitter.New(jitterMaxPackets, jitterLatencyNS),
		rtcpCtx: rtcp.NewContext(randUint32(), "streamcenter", clk, defaultSessionBandwidthBPS*0.05),
	}
	if attrs.isVideo {
		p.depH264, _ = rtph264.NewDepacketizer(rtph264.ModeNonInterleaved)
		if p.depH264 != nil {
			p.depH264.OnLostFragment = func(reason string) {
				obs.LostFragment("rtsp", sessionID, reason)
			}
		}
	}
	if attrs.isAudio {
		p.depAAC, _ = aacrtp.NewDepacketizer(13, 3)
	}
	return p
}

func (p *mediaPublishState) clockRateHz() int {
	if p.attrs.isVideo {
		return rtph264.ClockRate
	}
	if p.attrs.clockRateHz > 0 {
		return p.attrs.clockRateHz
	}
	return 90000
}

// wallclockNS anchors the first observed RTP timestamp to the local clock
// and converts every subsequent one relative to that anchor, tolerant of
// one 32-bit wraparound.
func (p *mediaPublishState) wallclockNS(rtpTS uint32, nowNS int64) uint64 {
	if !p.haveBaseTS {
		p.haveBaseTS = true
		p.baseTS = rtpTS
		p.baseWallNS = nowNS
	}
	delta := int64(int32(rtpTS - p.baseTS))
	return uint64(p.baseWallNS + delta*1_000_000_000/int64(p.clockRateHz()))
}

// handleRecord starts publishing the medias set up so far, moving the
// session from Setup to Recording.
func (s *Session) handleRecord(_ *base.Request, res *base.Response) error {
	if s.direction != "record" || s.state != StateSetup {
		return errInvalidState("rtsp: RECORD received in state %s", s.state)
	}
	if len(s.medias) == 0 {
		return errInvalidState("rtsp: RECORD received before any SETUP")
	}

	producer, err := s.broker.Publish(context.Background(), s.id, frame.TypeLive, nil)
	if err != nil {
		return err
	}
	s.producer = producer

	s.emitPresetConfigs()

	for _, m := range s.medias {
		m.wg.Add(1)
		go s.rtcpSendLoop(m)
	}

	s.setState(StateRecording)
	res.StatusCode = base.StatusOK
	return nil
}

// emitPresetConfigs submits VideoConfig/AudioConfig frames derived from the
// ANNOUNCE SDP's fmtp parameters ahead of any media data, for publishers
// that declared sprop-parameter-sets/config up front, so subscribers see
// configs before any media data.
func (s *Session) emitPresetConfigs() {
	nowNS := s.clock.NowNS()
	for _, m := range s.medias {
		if m.pub == nil {
			continue
		}
		if m.isVideo {
			if cfg, ok := videoConfigFromFmtp(m.attrs); ok {
				s.submitRecord(m, frame.VideoConfig(uint64(nowNS), cfg))
				m.pub.sentVideoConfig = true
			}
		}
		if m.isAudio {
			if cfg, ok := audioConfigFromFmtp(m.attrs); ok {
				if parsed, err := aac.Parse(cfg); err == nil {
					info := frame.AudioSoundInfo{SampleRateHz: parsed.SampleRate, SampleSizeBit: 16, Stereo: parsed.ChannelCount == 2}
					s.submitRecord(m, frame.AudioConfig(uint64(nowNS), info, cfg))
					m.pub.sentAudioConfig = true
				}
			}
		}
	}
}

func (s *Session) submitRecord(_ *mediaSetup, f frame.MediaFrame) {
	if s.producer == nil {
		return
	}
	select {
	case s.producer <- f:
	default:
		// Producer -> broker is bounded; a full channel here
		// is the publisher's own problem to notice, not this session's.
	}
}

// handleRecordRTP is wired as a mediaSetup's onRTP closure for the RECORD
// direction: unmarshal, feed the jitter buffer, depacketize, forward.
func (s *Session) handleRecordRTP(m *mediaSetup, payload []byte) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(payload); err != nil {
		s.obs.Error("rtsp", s.ID, errs.WireFormat("rtsp record: %s", err.Error()))
		return
	}

	m.pub.rtcpCtx.ObserveReceivedRTP(&pkt)

	nowNS := s.clock.NowNS()
	for _, ready := range m.pub.jit.Push(&pkt, nowNS) {
		s.depacketizeRecord(m, ready, nowNS)
	}
}

func (s *Session) depacketizeRecord(m *mediaSetup, pkt *rtp.Packet, nowNS int64) {
	switch {
	case m.isVideo:
		au, ok, err := m.pub.depH264.Push(pkt)
		if err != nil {
			s.obs.Error("rtsp", s.ID, err)
			return
		}
		if ok {
			s.emitVideoAccessUnit(m, au, nowNS)
		}
	case m.isAudio:
		aus, err := m.pub.depAAC.Depacketize(pkt)
		if err != nil {
			s.obs.Error("rtsp", s.ID, err)
			return
		}
		for _, au := range aus {
			s.submitRecord(m, frame.Audio(m.pub.wallclockNS(au.TimestampRTP, nowNS), au.Payload))
		}
	}
}

func (s *Session) emitVideoAccessUnit(m *mediaSetup, au rtph264.AccessUnit, nowNS int64) {
	if !m.pub.sentVideoConfig {
		if dcr, ok := dcrFromNALUs(au.NALUs); ok {
			s.submitRecord(m, frame.VideoConfig(m.pub.wallclockNS(au.TimestampRTP, nowNS), dcr))
			m.pub.sentVideoConfig = true
		}
	}
	tsNS := m.pub.wallclockNS(au.TimestampRTP, nowNS)
	s.submitRecord(m, frame.Video(tsNS, au.IsKeyframe, 0, h264.AVCCMarshal(au.NALUs)))
}

// dcrFromNALUs builds an AVCDecoderConfigurationRecord from the SPS/PPS
// found in one access unit, for publishers that rely on in-band parameter
// sets instead of an up-front sprop-parameter-sets fmtp value. Parameter
// sets that fail to parse yield no config; the next access unit carrying
// valid ones gets another chance.
func dcrFromNALUs(nalus [][]byte) ([]byte, bool) {
	var sps, pps [][]byte
	for _, n := range nalus {
		if len(n) == 0 {
			continue
		}
		switch h264.NALUType(n[0] & 0x1f) {
		case h264.NALUTypeSPS:
			sps = append(sps, n)
		case h264.NALUTypePPS:
			pps = append(pps, n)
		}
	}
	dcr, err := h264.NewAVCDecoderConfigurationRecord(sps, pps)
	if err != nil {
		return nil, false
	}
	return dcr.Marshal(), true
}

// handleRecordRTCP is wired as a mediaSetup's onRTCP closure for the
// RECORD direction: it folds the publisher's SR/SDES/BYE into the RTCP
// context; receiver reports are ignored.
func (s *Session) handleRecordRTCP(m *mediaSetup, payload []byte) {
	pkts, err := pionrtcp.Unmarshal(payload)
	if err != nil {
		return
	}
	for _, p := range pkts {
		switch v := p.(type) {
		case *pionrtcp.SenderReport:
			m.pub.rtcpCtx.ObserveReceivedSR(v)
		case *pionrtcp.SourceDescription:
			for _, chunk := range v.Chunks {
				m.pub.rtcpCtx.ObserveSDES(chunk)
			}
		case *pionrtcp.Goodbye:
			m.pub.rtcpCtx.ObserveBye(v.Sources)
		}
	}
}
