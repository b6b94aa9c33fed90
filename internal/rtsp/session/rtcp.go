package session

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	pionrtcp "github.com/pion/rtcp"

	"github.com/streamcenter/streamcenter/internal/rtcp"
)

// randUint32 seeds a new RTCP context's SSRC, the same approach
// internal/rtp/h264 and internal/rtp/aac use for their own SSRCs.
func randUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// rtcpTickInterval bounds how often the send loop checks the RFC 3550
// reconsideration schedule; the schedule itself (Context.ShouldSend)
// decides whether a given tick actually produces a report.
const rtcpTickInterval = 500 * time.Millisecond

// writeRTCP sends one already-marshaled compound RTCP packet for media m,
// over whichever transport SETUP negotiated.
func (s *Session) writeRTCP(m *mediaSetup, payload []byte) error {
	if m.interleaved {
		return s.writeInterleaved(m.rtcpChannel, payload)
	}
	if m.rtcpConn == nil || m.clientRTCPAddr == nil {
		return nil
	}
	_, err := m.rtcpConn.WriteToUDP(payload, m.clientRTCPAddr)
	return err
}

// rtcpContextFor returns whichever direction's RTCP context is live for m.
func rtcpContextFor(m *mediaSetup) *rtcp.Context {
	if m.pub != nil {
		return m.pub.rtcpCtx
	}
	if m.play != nil {
		return m.play.rtcpCtx
	}
	return nil
}

// rtcpSendLoop drives one media's RFC 3550 §6.3 scheduled reports until
// m.done closes.
func (s *Session) rtcpSendLoop(m *mediaSetup) {
	defer m.wg.Done()
	ctx := rtcpContextFor(m)
	if ctx == nil {
		return
	}

	ticker := time.NewTicker(rtcpTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			nowNS := s.clock.NowNS()
			if !ctx.ShouldSend(nowNS) {
				continue
			}
			pkts := ctx.BuildReport(nowNS, false)
			if len(pkts) == 0 {
				continue
			}
			buf, err := pionrtcp.Marshal(pkts)
			if err != nil {
				continue
			}
			_ = s.writeRTCP(m, buf)
		}
	}
}

// sendGoodbye emits a final RTCP BYE for m's RTCP context, best-effort,
// as part of TEARDOWN.
func (s *Session) sendGoodbye(m *mediaSetup) {
	ctx := rtcpContextFor(m)
	if ctx == nil {
		return
	}
	pkts := ctx.BuildReport(s.clock.NowNS(), true)
	if len(pkts) == 0 {
		return
	}
	buf, err := pionrtcp.Marshal(pkts)
	if err != nil {
		return
	}
	_ = s.writeRTCP(m, buf)
}
