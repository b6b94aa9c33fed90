package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierString(t *testing.T) {
	id := Identifier{App: "live", Name: "cam1"}
	assert.Equal(t, "live/cam1", id.String())
}

func TestParseTypeRoundTrip(t *testing.T) {
	for _, s := range []string{"live", "record", "append"} {
		typ, ok := ParseType(s)
		require.True(t, ok)
		assert.Equal(t, s, typ.String())
	}
	_, ok := ParseType("bogus")
	assert.False(t, ok)
}

func TestConstructorsSetKindAndFields(t *testing.T) {
	vc := VideoConfig(1, []byte{1, 2})
	assert.Equal(t, KindVideoConfig, vc.Kind)
	assert.Equal(t, []byte{1, 2}, vc.Payload)

	ac := AudioConfig(2, AudioSoundInfo{SampleRateHz: 48000, Stereo: true}, []byte{3})
	assert.Equal(t, KindAudioConfig, ac.Kind)
	assert.True(t, ac.SoundInfo.Stereo)

	v := Video(3, true, 10, []byte{4, 5, 6})
	assert.Equal(t, KindVideo, v.Kind)
	assert.True(t, v.IsKeyframe)
	assert.Equal(t, int64(10), v.CompositionTimeNS)

	a := Audio(4, []byte{7})
	assert.Equal(t, KindAudio, a.Kind)

	s := Script(5, []byte{8, 9})
	assert.Equal(t, KindScript, s.Kind)
}

func TestApproxSizeIncludesPayloadAndOverhead(t *testing.T) {
	f := Video(0, false, 0, make([]byte, 100))
	assert.Equal(t, 132, f.ApproxSize())
}

func TestOnMetaDataEncodeDecodeRoundTrip(t *testing.T) {
	in := OnMetaData{
		Duration:        12.5,
		Width:           1920,
		Height:          1080,
		VideoCodecID:    7,
		FrameRate:       30,
		AudioCodecID:    10,
		AudioSampleRate: 48000,
		Stereo:          true,
		Encoder:         "streamcenter",
	}

	payload, err := in.Encode()
	require.NoError(t, err)

	out, err := DecodeOnMetaData(payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestOnMetaDataEncodeProducesAScriptFramePayload(t *testing.T) {
	payload, err := (OnMetaData{Width: 640, Height: 480}).Encode()
	require.NoError(t, err)

	f := Script(0, payload)
	assert.Equal(t, payload, f.Payload)

	out, err := DecodeOnMetaData(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, float64(640), out.Width)
	assert.Equal(t, float64(480), out.Height)
}

func TestDecodeOnMetaDataRejectsOtherScriptNames(t *testing.T) {
	payload, err := (OnMetaData{}).Encode()
	require.NoError(t, err)
	// corrupt the encoded string's first content byte so it no longer reads "onMetaData"
	payload[3] = 'X'

	_, err = DecodeOnMetaData(payload)
	require.Error(t, err)
}
