package aac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAACLC16kMono(t *testing.T) {
	c, err := Parse([]byte{0x14, 0x08})
	require.NoError(t, err)
	assert.Equal(t, ObjectTypeAACLC, c.Type)
	assert.Equal(t, 16000, c.SampleRate)
	assert.Equal(t, 1, c.ChannelCount)
	require.NotNil(t, c.GA)
	assert.False(t, c.GA.DependsOnCoreCoder)
}

func TestParseAACLC48kStereo(t *testing.T) {
	c, err := Parse([]byte{17, 144})
	require.NoError(t, err)
	assert.Equal(t, ObjectTypeAACLC, c.Type)
	assert.Equal(t, 48000, c.SampleRate)
	assert.Equal(t, 2, c.ChannelCount)
}

func TestParseAACLCCoreCoderDelay(t *testing.T) {
	c, err := Parse([]byte{0x10, 0x12, 0x0c, 0x08})
	require.NoError(t, err)
	assert.Equal(t, 96000, c.SampleRate)
	assert.Equal(t, 2, c.ChannelCount)
	require.NotNil(t, c.GA)
	assert.True(t, c.GA.DependsOnCoreCoder)
	assert.Equal(t, uint16(385), c.GA.CoreCoderDelay)
}

func TestParseEscapeSampleRate(t *testing.T) {
	c, err := Parse([]byte{0x17, 0x80, 0x67, 0x84, 0x10})
	require.NoError(t, err)
	assert.Equal(t, 53000, c.SampleRate)
	assert.Equal(t, 2, c.ChannelCount)
}

func TestParseSBRExtension(t *testing.T) {
	c, err := Parse([]byte{0x2b, 0x8a, 0x08, 0x00})
	require.NoError(t, err)
	assert.Equal(t, ObjectTypeSBR, c.ExtensionType)
	assert.Equal(t, ObjectTypeAACLC, c.Type)
	assert.Equal(t, 44100, c.ExtensionSampleRate)
}

func TestWriteRoundTripGA(t *testing.T) {
	c, err := Parse([]byte{0x14, 0x08})
	require.NoError(t, err)
	b, err := c.Write()
	require.NoError(t, err)

	c2, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, c.Type, c2.Type)
	assert.Equal(t, c.SampleRate, c2.SampleRate)
	assert.Equal(t, c.ChannelCount, c2.ChannelCount)
}

func TestInvalidChannelConfigurationRejected(t *testing.T) {
	// AOT=2 (AAC-LC), freq idx=4 (44100), channelConfig=0 -> PCE, unsupported.
	_, err := Parse([]byte{0x12, 0x00})
	require.Error(t, err)
}

func TestUnsupportedSpecificConfig(t *testing.T) {
	// AOT=8 (CELP), freq idx=4 (44100), channelConfig=1.
	// bits: 01000 0100 0001 -> bytes 01000010 00001(000 pad)
	_, err := Parse([]byte{0x42, 0x08})
	require.Error(t, err)
}
