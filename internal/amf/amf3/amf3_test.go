package amf3

import (
	"encoding/binary"
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
	assert.Equal(t, Undefined, roundTrip(t, Undefined))
	assert.Equal(t, Null, roundTrip(t, Null))
	assert.Equal(t, True, roundTrip(t, True))
	assert.Equal(t, False, roundTrip(t, False))
	assert.Equal(t, Integer(42), roundTrip(t, Integer(42)))
	assert.Equal(t, Integer(-1), roundTrip(t, Integer(-1)))
	assert.Equal(t, Double(3.5), roundTrip(t, Double(3.5)))
	assert.Equal(t, String("hello"), roundTrip(t, String("hello")))
}

func TestU29NegativeRange(t *testing.T) {
	got := roundTrip(t, Integer(-(1 << 28)))
	assert.Equal(t, int32(-(1<<28)), got.Int)
}

func TestObjectRoundTrip(t *testing.T) {
	v := Value{
		Kind: KindObject,
		Traits: Traits{
			ClassName: "",
			Dynamic:   true,
		},
		Pairs: []Pair{{Key: "app", Value: String("live")}, {Key: "id", Value: Integer(7)}},
	}
	got := roundTrip(t, v)
	require.Equal(t, KindObject, got.Kind)
	assert.Equal(t, v.Pairs, got.Pairs)
}

func TestDateRejectsNegativeAndNonFinite(t *testing.T) {
	for _, ms := range []float64{-1, math.NaN(), math.Inf(1)} {
		buf := []byte{markerDate, 0x01}
		var fb [8]byte
		binary.BigEndian.PutUint64(fb[:], math.Float64bits(ms))
		buf = append(buf, fb[:]...)
		_, err := NewDecoder(buf).Decode()
		require.Error(t, err, "ms=%v must be rejected on decode", ms)

		_, err = NewEncoder().Encode(nil, Value{Kind: KindDate, Double: ms})
		require.Error(t, err, "ms=%v must be rejected on encode", ms)
	}
}

func TestStringTableReference(t *testing.T) {
	e := NewEncoder()
	var buf []byte
	buf, err := e.Encode(buf, String("repeat"))
	require.NoError(t, err)
	buf, err = e.Encode(buf, Value{Kind: KindReference, RefTable: TableStrings, RefIndex: 0})
	require.NoError(t, err)

	d := NewDecoder(buf)
	first, err := d.Decode()
	require.NoError(t, err)
	assert.Equal(t, "repeat", first.Str)
	second, err := d.Decode()
	require.NoError(t, err)
	assert.Equal(t, "repeat", second.Str)
}

func TestObjectTableReferenceRoundTrip(t *testing.T) {
	inner := Value{Kind: KindArray, Dense: []Value{Integer(1), Integer(2)}}
	b1, err := NewEncoder().Encode(nil, inner)
	require.NoError(t, err)

	d := NewDecoder(b1)
	_, err = d.Decode()
	require.NoError(t, err)

	ref := Value{Kind: KindReference, RefTable: TableObjects, RefIndex: 0, RefOriginalKind: KindArray}
	b2, err := NewEncoder().Encode(nil, ref)
	require.NoError(t, err)
	assert.Equal(t, byte(markerArray), b2[0])
}

func TestEmptyStringNeverReferenced(t *testing.T) {
	e := NewEncoder()
	var buf []byte
	buf, err := e.Encode(buf, String(""))
	require.NoError(t, err)
	buf, err = e.Encode(buf, String(""))
	require.NoError(t, err)

	d := NewDecoder(buf)
	first, err := d.Decode()
	require.NoError(t, err)
	assert.Equal(t, "", first.Str)
	second, err := d.Decode()
	require.NoError(t, err)
	assert.Equal(t, "", second.Str)
}

func TestCircularReferenceDetected(t *testing.T) {
	// Outer array: inline (header 0x03 -> dense count 1), no associative
	// pairs (empty-string terminator 0x01), one dense item that is a
	// reference back to object index 0 (itself, still under construction).
	buf := []byte{markerArray, 0x03, 0x01}
	buf = append(buf, markerArray, 0x00) // reference to object table idx 0
	d := NewDecoder(buf)
	_, err := d.Decode()
	require.Error(t, err)
}

func TestUnsupportedExternalizable(t *testing.T) {
	// object marker, inline traits header (inline object | inline traits |
	// externalizable, 0 sealed members), then the class name "Foo".
	buf := []byte{markerObject, 0x07}
	buf = append(buf, 0x07) // U29 len=3 string "Foo" -> (3<<1)|1 = 7
	buf = append(buf, "Foo"...)
	d := NewDecoder(buf)
	_, err := d.Decode()
	require.Error(t, err)
}
