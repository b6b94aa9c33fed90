package amf0

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	b, err := NewEncoder().Encode(nil, v)
	require.NoError(t, err)
	got, err := NewDecoder(b).Decode()
	require.NoError(t, err)
	return got
}

func TestScalarRoundTrip(t *testing.T) {
	assert.Equal(t, Null, roundTrip(t, Null))
	assert.Equal(t, Undefined, roundTrip(t, Undefined))
	assert.Equal(t, Number(3.25), roundTrip(t, Number(3.25)))
	assert.Equal(t, Bool(true), roundTrip(t, Bool(true)))
	assert.Equal(t, String("rtmp://example"), roundTrip(t, String("rtmp://example")))
}

func TestLongStringPromotion(t *testing.T) {
	long := make([]byte, 0x10000)
	v := String(string(long))
	assert.Equal(t, KindLongString, v.Kind)
}

func TestObjectOrderPreserved(t *testing.T) {
	v := Object(
		Pair{Key: "app", Value: String("live")},
		Pair{Key: "type", Value: String("nonprivate")},
		Pair{Key: "objectEncoding", Value: Number(0)},
	)
	got := roundTrip(t, v)
	require.Equal(t, KindObject, got.Kind)
	require.Len(t, got.Pairs, 3)
	assert.Equal(t, "app", got.Pairs[0].Key)
	assert.Equal(t, "type", got.Pairs[1].Key)
	assert.Equal(t, "objectEncoding", got.Pairs[2].Key)
}

func TestECMAArrayRoundTrip(t *testing.T) {
	v := ECMAArray(
		Pair{Key: "duration", Value: Number(0)},
		Pair{Key: "width", Value: Number(1920)},
	)
	got := roundTrip(t, v)
	require.Equal(t, KindECMAArray, got.Kind)
	assert.Equal(t, v.Pairs, got.Pairs)
}

func TestStrictArrayRoundTrip(t *testing.T) {
	v := StrictArray(Number(1), String("two"), Bool(false))
	got := roundTrip(t, v)
	require.Equal(t, KindStrictArray, got.Kind)
	require.Len(t, got.Dense, 3)
	assert.Equal(t, Number(1), got.Dense[0])
}

func TestDateRejectsNonZeroTimeZone(t *testing.T) {
	buf := []byte{markerDate}
	buf = appendF64(buf, 0)
	buf = append(buf, 0x00, 0x01) // non-zero timezone offset
	_, err := NewDecoder(buf).Decode()
	require.Error(t, err)
}

func TestDateRejectsNegativeAndNonFinite(t *testing.T) {
	for _, ms := range []float64{-1, math.NaN(), math.Inf(1)} {
		buf := []byte{markerDate}
		buf = appendF64(buf, ms)
		buf = append(buf, 0x00, 0x00)
		_, err := NewDecoder(buf).Decode()
		require.Error(t, err, "ms=%v must be rejected on decode", ms)

		_, err = NewEncoder().Encode(nil, Value{Kind: KindDate, Number: ms})
		require.Error(t, err, "ms=%v must be rejected on encode", ms)
	}
}

func TestDateEncodeRejectsNonZeroTimeZone(t *testing.T) {
	_, err := NewEncoder().Encode(nil, Value{Kind: KindDate, Number: 0, DateTimeZone: 60})
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	v := Object(Pair{Key: "app", Value: String("live")})
	got, ok := v.Get("app")
	require.True(t, ok)
	assert.Equal(t, "live", got.Str)

	_, ok = v.Get("missing")
	assert.False(t, ok)
}

func TestObjectReferenceRoundTrip(t *testing.T) {
	e := NewEncoder()
	var buf []byte
	buf, err := e.Encode(buf, Object(Pair{Key: "a", Value: Number(1)}))
	require.NoError(t, err)
	buf, err = e.Encode(buf, Value{Kind: KindReference, RefIndex: 0})
	require.NoError(t, err)

	d := NewDecoder(buf)
	first, err := d.Decode()
	require.NoError(t, err)
	require.Equal(t, KindObject, first.Kind)
	second, err := d.Decode()
	require.NoError(t, err)
	assert.Equal(t, KindReference, second.Kind)
	assert.Equal(t, 0, second.RefIndex)
}
