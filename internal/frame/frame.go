// Package frame defines the data model shared by every protocol session
// and the broker: stream identity, stream type and the MediaFrame tagged
// variant that flows from a publisher, through the Stream Center, to every
// subscriber.
package frame

import "fmt"

// Identifier is the (app, stream_name) primary key of the broker.
type Identifier struct {
	App  string
	Name string
}

// String renders the identifier the way log lines and error messages want
// it: "app/name".
func (id Identifier) String() string {
	return fmt.Sprintf("%s/%s", id.App, id.Name)
}

// Type is the publish type of a stream, immutable after publish.
type Type int

const (
	// TypeLive is a live, non-recorded stream.
	TypeLive Type = iota
	// TypeRecord means the publisher asked the server to persist. The
	// broker keeps the type with the stream record for protocol fidelity;
	// nothing is written to disk.
	TypeRecord
	// TypeAppend is like TypeRecord but appends to an existing recording.
	TypeAppend
)

func (t Type) String() string {
	switch t {
	case TypeLive:
		return "live"
	case TypeRecord:
		return "record"
	case TypeAppend:
		return "append"
	default:
		return "unknown"
	}
}

// ParseType maps the RTMP/RTSP wire string to a Type.
func ParseType(s string) (Type, bool) {
	switch s {
	case "live":
		return TypeLive, true
	case "record":
		return TypeRecord, true
	case "append":
		return TypeAppend, true
	default:
		return 0, false
	}
}

// Kind discriminates the MediaFrame tagged variant.
type Kind int

const (
	KindVideoConfig Kind = iota
	KindAudioConfig
	KindVideo
	KindAudio
	KindScript
)

// MediaFrame is the single unit of data the broker fans out. Exactly one
// of the Kind-specific fields is meaningful, selected by Kind; this is a
// tagged variant expressed the idiomatic Go way (a discriminant plus fields
// that are simply unused in the other branches) rather than an interface
// hierarchy, since every consumer (GOP cache, RTP packetizer, RTMP tag
// writer) needs to switch on Kind anyway.
type MediaFrame struct {
	Kind Kind

	// TimestampNS is meaningful for every kind; within each track it must
	// be monotone nondecreasing.
	TimestampNS uint64

	// CompositionTimeNS is only meaningful for KindVideo (PTS-DTS offset).
	CompositionTimeNS int64

	// IsKeyframe is only meaningful for KindVideo.
	IsKeyframe bool

	// SoundInfo is only meaningful for KindAudioConfig: codec-specific
	// sample rate/channel/bit-depth summary distinct from the opaque
	// Config payload, mirroring FLV AudioTagHeader semantics.
	SoundInfo AudioSoundInfo

	// Payload carries:
	//   KindVideoConfig / KindAudioConfig: the opaque decoder configuration
	//     (e.g. AVCDecoderConfigurationRecord, AAC AudioSpecificConfig).
	//   KindVideo: one coded picture, AVCC length-prefixed.
	//   KindAudio: one coded audio frame.
	//   KindScript: metadata (e.g. onMetaData), AMF-encoded.
	Payload []byte
}

// AudioSoundInfo mirrors the FLV/RTMP AudioTagHeader fixed fields that
// accompany an AudioConfig frame.
type AudioSoundInfo struct {
	SampleRateHz  int
	SampleSizeBit int
	Stereo        bool
}

// VideoConfig builds a KindVideoConfig frame.
func VideoConfig(tsNS uint64, config []byte) MediaFrame {
	return MediaFrame{Kind: KindVideoConfig, TimestampNS: tsNS, Payload: config}
}

// AudioConfig builds a KindAudioConfig frame.
func AudioConfig(tsNS uint64, info AudioSoundInfo, config []byte) MediaFrame {
	return MediaFrame{Kind: KindAudioConfig, TimestampNS: tsNS, SoundInfo: info, Payload: config}
}

// Video builds a KindVideo frame.
func Video(tsNS uint64, isKeyframe bool, compositionTimeNS int64, payload []byte) MediaFrame {
	return MediaFrame{
		Kind:              KindVideo,
		TimestampNS:       tsNS,
		IsKeyframe:        isKeyframe,
		CompositionTimeNS: compositionTimeNS,
		Payload:           payload,
	}
}

// Audio builds a KindAudio frame.
func Audio(tsNS uint64, payload []byte) MediaFrame {
	return MediaFrame{Kind: KindAudio, TimestampNS: tsNS, Payload: payload}
}

// Script builds a KindScript (metadata) frame.
func Script(tsNS uint64, payload []byte) MediaFrame {
	return MediaFrame{Kind: KindScript, TimestampNS: tsNS, Payload: payload}
}

// ApproxSize estimates the frame's footprint for GOP cache byte budgets.
func (f MediaFrame) ApproxSize() int {
	return len(f.Payload) + 32
}
