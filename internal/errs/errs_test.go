package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindHelpersClassifyCorrectly(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"WireFormat", WireFormat("bad byte"), KindWireFormat},
		{"ProtocolState", ProtocolState("wrong state"), KindProtocolState},
		{"UnsupportedFeature", UnsupportedFeature("foo"), KindUnsupportedFeature},
		{"Overflow", Overflow("too big"), KindOverflow},
		{"ResourceBusy", ResourceBusy("full"), KindResourceBusy},
		{"StreamMissing", StreamMissing("gone"), KindStreamMissing},
		{"PeerTimeout", PeerTimeout("slow"), KindPeerTimeout},
		{"PeerClosed", PeerClosed("bye"), KindPeerClosed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.kind, c.err.Kind())
			assert.NotEmpty(t, c.err.Error())
		})
	}
}

func TestKindStringCoversEveryKind(t *testing.T) {
	assert.Equal(t, "wire_format", KindWireFormat.String())
	assert.Equal(t, "protocol_state", KindProtocolState.String())
	assert.Equal(t, "unsupported_feature", KindUnsupportedFeature.String())
	assert.Equal(t, "overflow", KindOverflow.String())
	assert.Equal(t, "resource_busy", KindResourceBusy.String())
	assert.Equal(t, "stream_missing", KindStreamMissing.String())
	assert.Equal(t, "peer_timeout", KindPeerTimeout.String())
	assert.Equal(t, "peer_closed", KindPeerClosed.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestWrapAttachesCauseToErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("eof")
	err := WireFormat("short read").Wrap(cause)

	assert.Equal(t, "short read: eof", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestUnsupportedExternalizableIsUnsupportedFeature(t *testing.T) {
	err := UnsupportedExternalizable("flex.messaging.ArrayCollection")
	assert.Equal(t, KindUnsupportedFeature, err.Kind())
	assert.Contains(t, err.Error(), "flex.messaging.ArrayCollection")
}

func TestAlreadyPublishedAndNotFoundNameTheStream(t *testing.T) {
	pub := AlreadyPublished("live", "cam1")
	assert.Equal(t, KindProtocolState, pub.Kind())
	assert.Contains(t, pub.Error(), "live/cam1")

	nf := NotFound("live", "cam2")
	assert.Equal(t, KindStreamMissing, nf.Kind())
	assert.Contains(t, nf.Error(), "live/cam2")
}

func TestInvalidMTUIsOverflow(t *testing.T) {
	err := InvalidMTU(1)
	assert.Equal(t, KindOverflow, err.Kind())
}

func TestErrorsAsRecoversConcreteType(t *testing.T) {
	var target *Error
	err := error(StreamMissing("nope"))
	require.True(t, errors.As(err, &target))
	assert.Equal(t, KindStreamMissing, target.Kind())
}
