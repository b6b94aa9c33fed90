package aac

import (
	"github.com/streamcenter/streamcenter/internal/bits"
	"github.com/streamcenter/streamcenter/internal/errs"
)

// GAConfig is the General Audio specific config carried by AAC Main/LC/SSR/
// LTP/Scalable/TwinVQ and their error-resilient variants (ISO/IEC 14496-3
// 4.4.1). This is the only specific-config form this server's RTP/RTMP
// payloads ever carry.
type GAConfig struct {
	FrameLength500Samples bool   // frameLengthFlag: true selects 960/960-sample frames over the default 1024/1152
	DependsOnCoreCoder    bool
	CoreCoderDelay        uint16 // valid only if DependsOnCoreCoder
}

// Config is a bit-exact decode of an AudioSpecificConfig. Only the GA path
// is fully modeled; other specific-config forms (CELP, HVXC, TTS,
// structured audio, SSC, DST, ALS, SLS) make Parse fail with
// errs.KindUnsupportedFeature rather than a wire-format error.
type Config struct {
	Type         ObjectType
	SampleRate   int
	ChannelCount int        // 0 if the channel layout requires a program_config_element this package doesn't parse

	GA *GAConfig // set when Type.isGA()

	ExtensionType       ObjectType // ObjectTypeSBR if an SBR/PS header preceded Type
	ExtensionSampleRate int
	PSPresent           bool
}

// Parse decodes an AudioSpecificConfig.
func Parse(b []byte) (Config, error) {
	r := bits.NewReader(b)
	return parseFrom(r)
}

func readObjectType(r *bits.Reader) (ObjectType, error) {
	v, err := r.ReadBits(5)
	if err != nil {
		return 0, err
	}
	if v == 31 {
		ext, err := r.ReadBits(6)
		if err != nil {
			return 0, err
		}
		v = 32 + ext
	}
	return ObjectType(v), nil
}

func readSamplingFrequency(r *bits.Reader) (int, error) {
	idx, err := r.ReadBits(4)
	if err != nil {
		return 0, err
	}
	if idx == samplingFrequencyEscape {
		v, err := r.ReadBits(24)
		if err != nil {
			return 0, err
		}
		return int(v), nil
	}
	rate, ok := sampleRateForIndex(idx)
	if !ok {
		return 0, errs.WireFormat("aac: reserved sampling frequency index %d", idx)
	}
	return rate, nil
}

func parseFrom(r *bits.Reader) (Config, error) {
	var c Config

	aot, err := readObjectType(r)
	if err != nil {
		return Config{}, err
	}
	c.Type = aot

	rate, err := readSamplingFrequency(r)
	if err != nil {
		return Config{}, err
	}
	c.SampleRate = rate

	chanCfg, err := r.ReadBits(4)
	if err != nil {
		return Config{}, err
	}
	if chanCfg >= uint64(len(channelCounts)) {
		return Config{}, errs.WireFormat("aac: invalid channel configuration %d", chanCfg)
	}
	c.ChannelCount = channelCounts[chanCfg]

	if aot == ObjectTypeSBR || aot == ObjectTypePS {
		c.ExtensionType = ObjectTypeSBR
		if aot == ObjectTypePS {
			c.PSPresent = true
		}
		extRate, err := readSamplingFrequency(r)
		if err != nil {
			return Config{}, err
		}
		c.ExtensionSampleRate = extRate

		innerAOT, err := readObjectType(r)
		if err != nil {
			return Config{}, err
		}
		c.Type = innerAOT
		if innerAOT == ObjectTypeERBSAC {
			if _, err := r.ReadBits(4); err != nil { // extensionChannelConfiguration
				return Config{}, err
			}
		}
		aot = innerAOT
	}

	if aot.isGA() {
		ga, err := parseGASpecificConfig(r, aot, chanCfg)
		if err != nil {
			return Config{}, err
		}
		c.GA = ga
	} else {
		return Config{}, errs.UnsupportedFeature(aot.String() + " specific config")
	}

	if aot.isERVariant() {
		epConfig, err := r.ReadBits(2)
		if err != nil {
			return Config{}, err
		}
		if epConfig == 2 || epConfig == 3 {
			return Config{}, errs.UnsupportedFeature("error protection specific config")
		}
		if epConfig == 3 {
			return Config{}, errs.UnsupportedFeature("AAC direct-mapping error protection")
		}
	}

	// Sync extension: only read when the extension header
	// above hasn't already consumed it and enough bits remain.
	if c.ExtensionType != ObjectTypeSBR && r.Remaining() >= 16 {
		syncType, err := r.ReadBits(11)
		if err == nil && syncType == 0x2b7 {
			extAOT, err := readObjectType(r)
			if err == nil && extAOT == ObjectTypeSBR {
				c.ExtensionType = ObjectTypeSBR
				if sbrFlag, err := r.ReadFlag(); err == nil && sbrFlag {
					if extRate, err := readSamplingFrequency(r); err == nil {
						c.ExtensionSampleRate = extRate
					}
				}
			}
		}
	}

	return c, nil
}

func parseGASpecificConfig(r *bits.Reader, aot ObjectType, chanCfg uint64) (*GAConfig, error) {
	ga := &GAConfig{}

	frameLen, err := r.ReadFlag()
	if err != nil {
		return nil, err
	}
	ga.FrameLength500Samples = frameLen

	dependsOnCore, err := r.ReadFlag()
	if err != nil {
		return nil, err
	}
	ga.DependsOnCoreCoder = dependsOnCore
	if dependsOnCore {
		delay, err := r.ReadBits(14)
		if err != nil {
			return nil, err
		}
		ga.CoreCoderDelay = uint16(delay)
	}

	extensionFlag, err := r.ReadFlag()
	if err != nil {
		return nil, err
	}

	if chanCfg == 0 {
		return nil, errs.UnsupportedFeature("program_config_element channel layout")
	}

	if aot == ObjectTypeAACScalable || aot == ObjectTypeERAACScalable {
		if _, err := r.ReadBits(3); err != nil { // layerNr
			return nil, err
		}
	}

	if extensionFlag {
		if aot == ObjectTypeERBSAC {
			if _, err := r.ReadBits(5); err != nil { // numOfSubFrame
				return nil, err
			}
			if _, err := r.ReadBits(11); err != nil { // layerLength
				return nil, err
			}
		}
		if aot == ObjectTypeERAACLC || aot == ObjectTypeERAACLTP ||
			aot == ObjectTypeERAACScalable || aot == ObjectTypeERAACLD {
			if _, err := r.ReadBits(3); err != nil { // resilience flags
				return nil, err
			}
		}
		if _, err := r.ReadFlag(); err != nil { // extensionFlag3, reserved for future use
			return nil, err
		}
	}

	return ga, nil
}

// Write re-serializes a GA-only Config (the only form this server emits: it
// never originates SBR/PS or the unsupported specific-config forms).
func (c Config) Write() ([]byte, error) {
	if c.GA == nil {
		return nil, errs.UnsupportedFeature("writing a non-GA AudioSpecificConfig")
	}
	w := bits.NewWriter(8)

	if c.Type >= 31 {
		return nil, errs.Overflow("aac: object type %d needs the 6-bit extension form, unsupported on encode", c.Type)
	}
	w.WriteBits(uint64(c.Type), 5)

	idx := sampleRateIndex(c.SampleRate)
	if idx < 0 {
		w.WriteBits(samplingFrequencyEscape, 4)
		w.WriteBits(uint64(c.SampleRate), 24)
	} else {
		w.WriteBits(uint64(idx), 4)
	}

	chanIdx := -1
	for i, n := range channelCounts {
		if n == c.ChannelCount && i != 0 {
			chanIdx = i
			break
		}
	}
	if chanIdx < 0 {
		return nil, errs.WireFormat("aac: channel count %d has no direct channelConfiguration", c.ChannelCount)
	}
	w.WriteBits(uint64(chanIdx), 4)

	w.WriteFlag(c.GA.FrameLength500Samples)
	w.WriteFlag(c.GA.DependsOnCoreCoder)
	if c.GA.DependsOnCoreCoder {
		w.WriteBits(uint64(c.GA.CoreCoderDelay), 14)
	}
	w.WriteFlag(false) // extensionFlag

	return w.Bytes(), nil
}
