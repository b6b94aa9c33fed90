package rtcp

import (
	"testing"

	pionrtcp "github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/streamcenter/streamcenter/internal/clock"
)

func TestContextSenderReportCounters(t *testing.T) {
	clk := clock.NewManual(0)
	ctx := NewContext(0x1234, "test-cname", clk, 64000)

	for i := 0; i < 100; i++ {
		pkt := &rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 3000), SSRC: 0x1234},
			Payload: make([]byte, 1200),
		}
		ctx.ObserveSentRTP(pkt)
	}

	packets := ctx.BuildReport(clk.NowNS(), false)
	if len(packets) < 2 {
		t.Fatalf("expected at least SR+SDES, got %d packets", len(packets))
	}
	sr, ok := packets[0].(*pionrtcp.SenderReport)
	if !ok {
		t.Fatalf("first packet should be a SenderReport, got %T", packets[0])
	}
	if sr.PacketCount != 100 {
		t.Errorf("sender_packet_count = %d, want 100", sr.PacketCount)
	}
	if sr.OctetCount != 120000 {
		t.Errorf("sender_octet_count = %d, want 120000", sr.OctetCount)
	}
}

func TestContextIntervalWithinBounds(t *testing.T) {
	clk := clock.NewManual(0)
	ctx := NewContext(1, "cname", clk, 64000)
	td := ctx.TdNS()
	interval := ctx.intervalNS()
	if interval < td/2 || interval > td+td/2 {
		t.Errorf("interval %d not within [0.5*Td, 1.5*Td] for Td=%d", interval, td)
	}
}

func TestContextReverseReconsiderationOnBye(t *testing.T) {
	clk := clock.NewManual(0)
	ctx := NewContext(1, "cname", clk, 64000)
	ctx.participant(2)
	ctx.participant(3)
	ctx.pmembers = ctx.members()

	clk.Set(1_000_000_000)
	tnBefore := ctx.tnNS
	ctx.ObserveBye([]uint32{2})

	if ctx.members() != 2 {
		t.Errorf("members after bye = %d, want 2", ctx.members())
	}
	if ctx.tnNS >= tnBefore {
		t.Errorf("tn should shrink after reverse reconsideration: before=%d after=%d", tnBefore, ctx.tnNS)
	}
}
