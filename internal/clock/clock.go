// Package clock provides the monotonic wallclock capability injected into
// every subsystem that derives RTP/RTMP timestamps, so tests can drive
// deterministic scenarios instead of racing against time.Now.
package clock

import "time"

// ntpEpochOffset is the number of seconds between the NTP epoch (1900-01-01)
// and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// Clock is the capability used by everything that needs "now": RTP
// timestamp derivation, RTCP NTP fields, idle watchdogs.
type Clock interface {
	// NowNS returns the current instant in nanoseconds, on an arbitrary but
	// monotonically nondecreasing timeline.
	NowNS() int64

	// NTPNow returns the current instant as an RFC 5905 64-bit NTP
	// timestamp (32-bit seconds-since-1900, 32-bit fraction).
	NTPNow() uint64
}

// System is a Clock backed by the real wallclock.
type System struct{}

// NowNS implements Clock.
func (System) NowNS() int64 {
	return time.Now().UnixNano()
}

// NTPNow implements Clock.
func (System) NTPNow() uint64 {
	return ToNTP(time.Now())
}

// ToNTP converts a time.Time to an RFC 5905 64-bit NTP timestamp.
func ToNTP(t time.Time) uint64 {
	secs := uint64(t.Unix()+ntpEpochOffset) << 32
	frac := uint64(t.Nanosecond()) * (uint64(1) << 32) / 1e9
	return secs | frac
}

// FromNTP converts an RFC 5905 64-bit NTP timestamp back to a time.Time,
// useful in tests that assert against SR/RR fields.
func FromNTP(ntp uint64) time.Time {
	secs := int64(ntp>>32) - ntpEpochOffset
	frac := ntp & 0xffffffff
	nanos := int64(frac * 1e9 / (uint64(1) << 32))
	return time.Unix(secs, nanos).UTC()
}

// Manual is a Clock that only advances when told to, for deterministic
// tests of RTCP scheduling and idle watchdogs.
type Manual struct {
	now int64
}

// NewManual returns a Manual clock starting at the given instant.
func NewManual(startNS int64) *Manual {
	return &Manual{now: startNS}
}

// NowNS implements Clock.
func (m *Manual) NowNS() int64 {
	return m.now
}

// NTPNow implements Clock.
func (m *Manual) NTPNow() uint64 {
	return ToNTP(time.Unix(0, m.now).UTC())
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.now += int64(d)
}

// Set moves the clock to an absolute instant.
func (m *Manual) Set(ns int64) {
	m.now = ns
}
