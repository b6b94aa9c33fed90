package frame

import (
	"github.com/streamcenter/streamcenter/internal/amf/amf0"
	"github.com/streamcenter/streamcenter/internal/errs"
)

var errNotOnMetaData = errs.WireFormat("frame: script payload is not an onMetaData message")

// OnMetaData is the known-shape subset of RTMP onMetaData scripts. It is
// a convenience layered on top of the opaque Script payload, not a
// replacement for it:
// the RTMP session still carries Script frames around as opaque AMF bytes,
// and uses this type only when it needs to construct or interpret an
// onMetaData body specifically.
type OnMetaData struct {
	Duration        float64
	Width           float64
	Height          float64
	VideoCodecID    float64
	VideoDataRate   float64
	FrameRate       float64
	AudioCodecID    float64
	AudioDataRate   float64
	AudioSampleRate float64
	AudioSampleSize float64
	Stereo          bool
	Encoder         string
}

// Encode renders m as the body of a Type 18 (Script) FLV tag: the AMF0
// string "onMetaData" followed by an AMF0 ECMA array of its known fields,
// matching the shape handleScript (internal/rtmp/session) stores verbatim
// as a Script MediaFrame's opaque Payload.
func (m OnMetaData) Encode() ([]byte, error) {
	pairs := []amf0.Pair{
		{Key: "duration", Value: amf0.Number(m.Duration)},
		{Key: "width", Value: amf0.Number(m.Width)},
		{Key: "height", Value: amf0.Number(m.Height)},
		{Key: "videocodecid", Value: amf0.Number(m.VideoCodecID)},
		{Key: "videodatarate", Value: amf0.Number(m.VideoDataRate)},
		{Key: "framerate", Value: amf0.Number(m.FrameRate)},
		{Key: "audiocodecid", Value: amf0.Number(m.AudioCodecID)},
		{Key: "audiodatarate", Value: amf0.Number(m.AudioDataRate)},
		{Key: "audiosamplerate", Value: amf0.Number(m.AudioSampleRate)},
		{Key: "audiosamplesize", Value: amf0.Number(m.AudioSampleSize)},
		{Key: "stereo", Value: amf0.Bool(m.Stereo)},
		{Key: "encoder", Value: amf0.String(m.Encoder)},
	}

	enc := amf0.NewEncoder()
	buf, err := enc.Encode(nil, amf0.String("onMetaData"))
	if err != nil {
		return nil, err
	}
	return enc.Encode(buf, amf0.ECMAArray(pairs...))
}

// DecodeOnMetaData extracts the known-shape fields from a Script frame's
// raw payload, the inverse of Encode. Fields absent from the array (a
// publisher that only sends a subset) are left at their zero value.
func DecodeOnMetaData(payload []byte) (OnMetaData, error) {
	dec := amf0.NewDecoder(payload)

	name, err := dec.Decode()
	if err != nil {
		return OnMetaData{}, err
	}
	if name.Kind != amf0.KindString || name.Str != "onMetaData" {
		return OnMetaData{}, errNotOnMetaData
	}

	props, err := dec.Decode()
	if err != nil {
		return OnMetaData{}, err
	}

	var m OnMetaData
	for _, p := range props.Pairs {
		switch p.Key {
		case "duration":
			m.Duration = p.Value.Number
		case "width":
			m.Width = p.Value.Number
		case "height":
			m.Height = p.Value.Number
		case "videocodecid":
			m.VideoCodecID = p.Value.Number
		case "videodatarate":
			m.VideoDataRate = p.Value.Number
		case "framerate":
			m.FrameRate = p.Value.Number
		case "audiocodecid":
			m.AudioCodecID = p.Value.Number
		case "audiodatarate":
			m.AudioDataRate = p.Value.Number
		case "audiosamplerate":
			m.AudioSampleRate = p.Value.Number
		case "audiosamplesize":
			m.AudioSampleSize = p.Value.Number
		case "stereo":
			m.Stereo = p.Value.Bool
		case "encoder":
			m.Encoder = p.Value.Str
		}
	}
	return m, nil
}
