package rtcp

// Participant is the per-SSRC bookkeeping record. One exists for every
// SSRC this session has observed, whether that SSRC sends RTP (a "sender")
// or only RTCP.
type Participant struct {
	SSRC  uint32
	CNAME string

	JoinedAtNS      int64
	LastRTPSentAtNS int64

	SentPacketCount uint32
	SentByteCount   uint32

	// highestSeq/cycles implement the RFC 3550 §A.1 extended sequence
	// number: HighestSeq + 65536*cycles must be monotone.
	haveSeq    bool
	baseSeq    uint16
	highestSeq uint16
	cycles     uint32

	// expectedPrior/receivedPrior/received back the §A.3 fraction-lost
	// computation across two consecutive reporting intervals.
	received      uint32
	expectedPrior uint32
	receivedPrior uint32

	// jitter accumulates the RFC 3550 §6.4.1 interarrival jitter estimate,
	// stored already scaled by the 1/16 smoothing factor.
	jitter          float64
	haveLastArrival bool
	lastArrivalRTP  uint32
	lastTransitNS   int64

	LastSRTimestamp  uint32 // middle 32 bits of the NTP field of the last SR we received from this SSRC
	LastSRReceivedAt int64  // our wallclock, ns, when we received that SR

	ByeSent bool
}

// extendedSeq returns the unwrapped 32-bit sequence counter.
func (p *Participant) extendedSeq() uint32 {
	return uint32(p.cycles)<<16 | uint32(p.highestSeq)
}

// observeRTP folds one received RTP packet's sequence number into the
// extended-sequence and jitter state (RFC 3550 §A.1/§6.4.1). arrivalRTP is
// the arrival instant expressed in the media clock's units (for jitter,
// which is computed entirely in RTP timestamp units).
func (p *Participant) observeRTP(seq uint16, rtpTimestamp uint32, arrivalRTP uint32, nowNS int64) {
	if !p.haveSeq {
		p.haveSeq = true
		p.baseSeq = seq
		p.highestSeq = seq
	} else {
		delta := int16(seq - p.highestSeq)
		if delta > 0 {
			if seq < p.highestSeq {
				p.cycles++
			}
			p.highestSeq = seq
		}
	}
	p.received++
	p.LastRTPSentAtNS = nowNS

	if p.haveLastArrival {
		d := int64(arrivalRTP) - int64(rtpTimestamp) - p.lastTransitNS
		if d < 0 {
			d = -d
		}
		p.jitter += (float64(d) - p.jitter) / 16
	}
	p.lastTransitNS = int64(arrivalRTP) - int64(rtpTimestamp)
	p.lastArrivalRTP = arrivalRTP
	p.haveLastArrival = true
}

// fractionLost and cumulativeLost implement RFC 3550 §A.3 over the interval
// since the previous report.
func (p *Participant) fractionLost() (fraction uint8, cumulative int32) {
	expected := p.extendedSeq() - uint32(p.baseSeq) + 1
	expectedInterval := expected - p.expectedPrior
	receivedInterval := p.received - p.receivedPrior
	lostInterval := int32(expectedInterval) - int32(receivedInterval)

	p.expectedPrior = expected
	p.receivedPrior = p.received

	if expectedInterval == 0 || lostInterval <= 0 {
		fraction = 0
	} else {
		fraction = uint8((int64(lostInterval) << 8) / int64(expectedInterval))
	}

	cumulative = int32(expected) - int32(p.received)
	return fraction, cumulative
}
