package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToNTPFromNTPRoundTrip(t *testing.T) {
	in := time.Date(2024, 3, 15, 12, 30, 0, 500_000_000, time.UTC)
	ntp := ToNTP(in)
	out := FromNTP(ntp)
	assert.WithinDuration(t, in, out, time.Millisecond)
}

func TestToNTPEpochOffset(t *testing.T) {
	// At the Unix epoch, the NTP seconds field must equal the NTP/Unix
	// epoch offset and the fraction must be zero.
	ntp := ToNTP(time.Unix(0, 0).UTC())
	assert.Equal(t, uint64(ntpEpochOffset)<<32, ntp)
}

func TestManualClockAdvanceAndSet(t *testing.T) {
	m := NewManual(1000)
	assert.Equal(t, int64(1000), m.NowNS())

	m.Advance(500 * time.Nanosecond)
	assert.Equal(t, int64(1500), m.NowNS())

	m.Set(42)
	assert.Equal(t, int64(42), m.NowNS())
}

func TestManualNTPNowTracksNowNS(t *testing.T) {
	m := NewManual(0)
	assert.Equal(t, ToNTP(time.Unix(0, 0).UTC()), m.NTPNow())
}

func TestSystemClockProducesIncreasingTimestamps(t *testing.T) {
	var s System
	a := s.NowNS()
	b := s.NowNS()
	assert.GreaterOrEqual(t, b, a)
	assert.Greater(t, s.NTPNow(), uint64(0))
}
