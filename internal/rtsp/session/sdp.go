package session

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"

	"github.com/streamcenter/streamcenter/internal/aac"
	"github.com/streamcenter/streamcenter/internal/broker"
	"github.com/streamcenter/streamcenter/internal/h264"
	rtph264 "github.com/streamcenter/streamcenter/internal/rtp/h264"
)

// mediaDescAttrs is the subset of one SDP media description this session
// needs, whichever direction it was built from: parsed out of an ANNOUNCE
// body, or synthesized from the broker's DescribeResult for a DESCRIBE
// answer.
type mediaDescAttrs struct {
	isVideo     bool
	isAudio     bool
	payloadType int
	clockRateHz int
	channels    int
	control     string
	fmtp        map[string]string
}

// sessionDescription is the session-level state SETUP matches request
// URLs against.
type sessionDescription struct {
	medias []mediaDescAttrs
}

func parseFmtp(value string) map[string]string {
	out := make(map[string]string)
	_, rest, ok := strings.Cut(value, " ")
	if !ok {
		return out
	}
	for _, kv := range strings.Split(rest, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// parseAnnounceSDP decodes an ANNOUNCE request body into per-media
// attributes.
func parseAnnounceSDP(body []byte) (*sessionDescription, error) {
	var sd psdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("rtsp announce: invalid sdp: %w", err)
	}

	desc := &sessionDescription{}
	for _, m := range sd.MediaDescriptions {
		attrs := mediaDescAttrs{fmtp: map[string]string{}}

		switch m.MediaName.Media {
		case "video":
			attrs.isVideo = true
		case "audio":
			attrs.isAudio = true
		default:
			continue
		}

		if len(m.MediaName.Formats) > 0 {
			attrs.payloadType, _ = strconv.Atoi(m.MediaName.Formats[0])
		}

		for _, a := range m.Attributes {
			switch strings.ToLower(a.Key) {
			case "control":
				attrs.control = a.Value
			case "rtpmap":
				parts := strings.SplitN(a.Value, " ", 2)
				if len(parts) == 2 {
					encParts := strings.Split(parts[1], "/")
					if len(encParts) >= 2 {
						rate, _ := strconv.Atoi(encParts[1])
						attrs.clockRateHz = rate
					}
					if len(encParts) >= 3 {
						ch, _ := strconv.Atoi(encParts[2])
						attrs.channels = ch
					}
				}
			case "fmtp":
				for k, v := range parseFmtp(a.Value) {
					attrs.fmtp[k] = v
				}
			}
		}

		desc.medias = append(desc.medias, attrs)
	}

	if len(desc.medias) == 0 {
		return nil, fmt.Errorf("rtsp announce: sdp has no audio/video media")
	}
	return desc, nil
}

// buildDescribeSDP synthesizes an SDP answer from the broker's current
// config records and returns the same per-media attributes SETUP needs, so a
// played-back session is driven by the identical matching code ANNOUNCE
// uses.
func buildDescribeSDP(dr broker.DescribeResult, serverAddr string) ([]byte, *sessionDescription, error) {
	sd := psdp.SessionDescription{
		Version: 0,
		Origin: psdp.Origin{
			Username:       "-",
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: serverAddr,
		},
		SessionName: "streamcenter",
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: serverAddr},
		},
		TimeDescriptions: []psdp.TimeDescription{{}},
	}

	desc := &sessionDescription{}

	if dr.VideoConfig != nil {
		var dcr h264.AVCDecoderConfigurationRecord
		if err := dcr.Unmarshal(dr.VideoConfig.Payload); err != nil {
			return nil, nil, fmt.Errorf("rtsp describe: %w", err)
		}
		const pt = 96
		fmtpVal := fmt.Sprintf("%d packetization-mode=1;profile-level-id=%02x%02x%02x;sprop-parameter-sets=%s",
			pt, dcr.AVCProfileIndication, dcr.ProfileCompatibility, dcr.AVCLevelIndication, spropParameterSets(dcr))

		sd.MediaDescriptions = append(sd.MediaDescriptions, &psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   "video",
				Port:    psdp.RangedPort{Value: 0},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{strconv.Itoa(pt)},
			},
			Attributes: []psdp.Attribute{
				{Key: "control", Value: "trackID=0"},
				{Key: "rtpmap", Value: fmt.Sprintf("%d H264/%d", pt, rtph264.ClockRate)},
				{Key: "fmtp", Value: fmtpVal},
			},
		})
		desc.medias = append(desc.medias, mediaDescAttrs{
			isVideo: true, payloadType: pt, clockRateHz: rtph264.ClockRate,
			control: "trackID=0", fmtp: parseFmtp(fmtpVal),
		})
	}

	if dr.AudioConfig != nil {
		cfg, err := aac.Parse(dr.AudioConfig.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("rtsp describe: %w", err)
		}
		const pt = 97
		fmtpVal := fmt.Sprintf("%d profile-level-id=1;mode=AAC-hbr;sizelength=13;indexlength=3;indexdeltalength=3;config=%s",
			pt, hex.EncodeToString(dr.AudioConfig.Payload))

		sd.MediaDescriptions = append(sd.MediaDescriptions, &psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   "audio",
				Port:    psdp.RangedPort{Value: 0},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{strconv.Itoa(pt)},
			},
			Attributes: []psdp.Attribute{
				{Key: "control", Value: "trackID=1"},
				{Key: "rtpmap", Value: fmt.Sprintf("%d mpeg4-generic/%d/%d", pt, cfg.SampleRate, cfg.ChannelCount)},
				{Key: "fmtp", Value: fmtpVal},
			},
		})
		desc.medias = append(desc.medias, mediaDescAttrs{
			isAudio: true, payloadType: pt, clockRateHz: cfg.SampleRate, channels: cfg.ChannelCount,
			control: "trackID=1", fmtp: parseFmtp(fmtpVal),
		})
	}

	buf, err := sd.Marshal()
	if err != nil {
		return nil, nil, err
	}
	return buf, desc, nil
}

func spropParameterSets(dcr h264.AVCDecoderConfigurationRecord) string {
	var parts []string
	for _, s := range dcr.SPS {
		parts = append(parts, base64.StdEncoding.EncodeToString(s))
	}
	for _, p := range dcr.PPS {
		parts = append(parts, base64.StdEncoding.EncodeToString(p))
	}
	return strings.Join(parts, ",")
}

// videoConfigFromFmtp builds a VideoConfig payload (a marshaled
// AVCDecoderConfigurationRecord) from an ANNOUNCE media's sprop-parameter-
// sets, when the publisher announced one up front rather than relying on
// in-band SPS/PPS. The sets are parsed, not trusted: a publisher whose
// sprop value doesn't decode as valid SPS+PPS gets no preset config and
// falls back to the in-band path.
func videoConfigFromFmtp(attrs mediaDescAttrs) ([]byte, bool) {
	raw, ok := attrs.fmtp["sprop-parameter-sets"]
	if !ok {
		return nil, false
	}
	var sps, pps [][]byte
	for _, part := range strings.Split(raw, ",") {
		b, err := base64.StdEncoding.DecodeString(part)
		if err != nil || len(b) == 0 {
			continue
		}
		if h264.NALUType(b[0]&0x1f) == h264.NALUTypeSPS {
			sps = append(sps, b)
		} else if h264.NALUType(b[0]&0x1f) == h264.NALUTypePPS {
			pps = append(pps, b)
		}
	}
	dcr, err := h264.NewAVCDecoderConfigurationRecord(sps, pps)
	if err != nil {
		return nil, false
	}
	return dcr.Marshal(), true
}

// audioConfigFromFmtp decodes the hex `config=` fmtp value into the raw
// AudioSpecificConfig bytes this broker forwards as-is.
func audioConfigFromFmtp(attrs mediaDescAttrs) ([]byte, bool) {
	raw, ok := attrs.fmtp["config"]
	if !ok {
		return nil, false
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, false
	}
	return b, true
}
