package amf0

import (
	"encoding/binary"
	"math"

	"github.com/streamcenter/streamcenter/internal/amf/amf3"
	"github.com/streamcenter/streamcenter/internal/errs"
)

// Encoder mirrors Decoder's reference table on the write side. Like amf3's
// Encoder, it never invents sharing: a Value is only emitted as a reference
// when its Kind is KindReference.
type Encoder struct {
	objects int
}

// NewEncoder creates an Encoder with an empty reference table.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode appends the wire form of v to dst and returns the result.
func (e *Encoder) Encode(dst []byte, v Value) ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		dst = append(dst, markerNumber)
		return appendF64(dst, v.Number), nil
	case KindBoolean:
		dst = append(dst, markerBoolean)
		if v.Bool {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case KindString:
		dst = append(dst, markerString)
		return e.appendShortString(dst, v.Str)
	case KindLongString:
		dst = append(dst, markerLongString)
		return appendLongString(dst, v.Str), nil
	case KindXMLDocument:
		dst = append(dst, markerXMLDocument)
		return appendLongString(dst, v.Str), nil
	case KindNull:
		return append(dst, markerNull), nil
	case KindUndefined:
		return append(dst, markerUndefined), nil
	case KindReference:
		dst = append(dst, markerReference)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v.RefIndex))
		return append(dst, b[:]...), nil
	case KindDate:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) || v.Number < 0 {
			return nil, errs.InvalidDate(v.Number)
		}
		if v.DateTimeZone != 0 {
			return nil, errs.UnexpectedTimeZone(v.DateTimeZone)
		}
		dst = append(dst, markerDate)
		dst = appendF64(dst, v.Number)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v.DateTimeZone))
		return append(dst, b[:]...), nil
	case KindObject:
		dst = append(dst, markerObject)
		e.objects++
		return e.appendPairs(dst, v.Pairs)
	case KindECMAArray:
		dst = append(dst, markerECMAArray)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(v.Pairs)))
		dst = append(dst, b[:]...)
		e.objects++
		return e.appendPairs(dst, v.Pairs)
	case KindStrictArray:
		dst = append(dst, markerStrictArray)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(v.Dense)))
		dst = append(dst, b[:]...)
		e.objects++
		var err error
		for _, item := range v.Dense {
			dst, err = e.Encode(dst, item)
			if err != nil {
				return nil, err
			}
		}
		return dst, nil
	case KindTypedObject:
		dst = append(dst, markerTypedObject)
		var err error
		dst, err = e.appendShortString(dst, v.Str)
		if err != nil {
			return nil, err
		}
		e.objects++
		return e.appendPairs(dst, v.Pairs)
	case KindAMF3:
		dst = append(dst, markerSwitchAMF3)
		av, ok := v.AMF3.(amf3.Value)
		if !ok {
			return nil, errs.WireFormat("amf0: KindAMF3 value does not hold an amf3.Value")
		}
		return amf3.NewEncoder().Encode(dst, av)
	default:
		return nil, errs.WireFormat("amf0: cannot encode kind %d", v.Kind)
	}
}

func appendF64(dst []byte, f float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	return append(dst, b[:]...)
}

func appendLongString(dst []byte, s string) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(s)))
	dst = append(dst, b[:]...)
	return append(dst, s...)
}

// appendShortString fails with Overflow if s exceeds the 16-bit length
// field; callers that might receive long strings should use Value.String's
// automatic long-string promotion instead of constructing KindString
// directly.
func (e *Encoder) appendShortString(dst []byte, s string) ([]byte, error) {
	if len(s) > 0xffff {
		return nil, errs.Overflow("amf0: string of %d bytes too long for short-string marker", len(s))
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	dst = append(dst, b[:]...)
	return append(dst, s...), nil
}

func (e *Encoder) appendPairs(dst []byte, pairs []Pair) ([]byte, error) {
	var err error
	for _, p := range pairs {
		dst, err = e.appendShortString(dst, p.Key)
		if err != nil {
			return nil, err
		}
		dst, err = e.Encode(dst, p.Value)
		if err != nil {
			return nil, err
		}
	}
	dst, err = e.appendShortString(dst, "")
	if err != nil {
		return nil, err
	}
	return append(dst, markerObjectEnd), nil
}
