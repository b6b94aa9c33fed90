package aac

// sampleRates maps a 4-bit sampling-frequency-index (0-12) to its rate in
// Hz. Indices 13 and 14 are reserved; 15 is the escape code read as a raw
// 24-bit value instead (ISO/IEC 14496-3 Table 1.6.3.3).
var sampleRates = [13]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

const samplingFrequencyEscape = 15

// channelCounts maps a 4-bit channelConfiguration (1-7) to an explicit
// channel count; 0 means the channel layout is carried out-of-band via a
// program_config_element, which this package does not parse.
var channelCounts = [8]int{0, 1, 2, 3, 4, 5, 6, 8}

func sampleRateForIndex(idx uint64) (int, bool) {
	if idx >= uint64(len(sampleRates)) {
		return 0, false
	}
	return sampleRates[idx], true
}

// sampleRateIndex returns the index for an exact standard rate, or -1 if
// rate must be encoded via the 24-bit escape.
func sampleRateIndex(rate int) int {
	for i, r := range sampleRates {
		if r == rate {
			return i
		}
	}
	return -1
}
