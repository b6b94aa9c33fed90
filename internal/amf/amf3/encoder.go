package amf3

import (
	"encoding/binary"
	"math"

	"github.com/streamcenter/streamcenter/internal/errs"
)

// Encoder mirrors Decoder's reference tables on the write side. It does not
// invent sharing on its own: a Value is only emitted as a reference when
// its Kind is KindReference. Strings and traits are always written inline,
// so input that used string or trait references is not reproduced byte for
// byte.
type Encoder struct {
	strings []string
	objects int      // count of objects/arrays/etc emitted so far, for bookkeeping
	traits  []Traits
}

// NewEncoder creates an Encoder with empty reference tables.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode appends the wire form of v to dst and returns the result.
func (e *Encoder) Encode(dst []byte, v Value) ([]byte, error) {
	switch v.Kind {
	case KindUndefined:
		return append(dst, markerUndefined), nil
	case KindNull:
		return append(dst, markerNull), nil
	case KindBoolean:
		if v.Bool {
			return append(dst, markerTrue), nil
		}
		return append(dst, markerFalse), nil
	case KindInteger:
		dst = append(dst, markerInteger)
		b, err := writeU29(u29FromSigned(v.Int))
		if err != nil {
			return nil, err
		}
		return append(dst, b...), nil
	case KindDouble:
		dst = append(dst, markerDouble)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Double))
		return append(dst, b[:]...), nil
	case KindString:
		dst = append(dst, markerString)
		return e.writeUTF8(dst, v.Str), nil
	case KindXMLDocument:
		return e.encodeByteRun(dst, markerXMLDocument, []byte(v.Str))
	case KindXML:
		return e.encodeByteRun(dst, markerXML, []byte(v.Str))
	case KindByteArray:
		return e.encodeByteRun(dst, markerByteArray, v.Bytes)
	case KindDate:
		if math.IsNaN(v.Double) || math.IsInf(v.Double, 0) || v.Double < 0 {
			return nil, errs.InvalidDate(v.Double)
		}
		dst = append(dst, markerDate)
		b, err := writeU29(1) // always inline; AMF3 Date has no internal length beyond the flag bit
		if err != nil {
			return nil, err
		}
		dst = append(dst, b...)
		var fb [8]byte
		binary.BigEndian.PutUint64(fb[:], math.Float64bits(v.Double))
		e.objects++
		return append(dst, fb[:]...), nil
	case KindArray:
		return e.encodeArray(dst, v)
	case KindObject:
		return e.encodeObject(dst, v)
	case KindIntVector:
		return e.encodeIntVector(dst, v)
	case KindUIntVector:
		return e.encodeUIntVector(dst, v)
	case KindDoubleVector:
		return e.encodeDoubleVector(dst, v)
	case KindObjectVector:
		return e.encodeObjectVector(dst, v)
	case KindDictionary:
		return e.encodeDictionary(dst, v)
	case KindReference:
		return e.encodeReference(dst, v)
	default:
		return nil, errs.WireFormat("amf3: cannot encode kind %d", v.Kind)
	}
}

func (e *Encoder) encodeReference(dst []byte, v Value) ([]byte, error) {
	var marker byte
	switch v.RefTable {
	case TableStrings:
		marker = markerString
	case TableObjects:
		switch v.RefOriginalKind {
		case KindXMLDocument:
			marker = markerXMLDocument
		case KindXML:
			marker = markerXML
		case KindByteArray:
			marker = markerByteArray
		case KindDate:
			marker = markerDate
		case KindArray:
			marker = markerArray
		case KindObject:
			marker = markerObject
		case KindIntVector:
			marker = markerIntVector
		case KindUIntVector:
			marker = markerUIntVector
		case KindDoubleVector:
			marker = markerDoubleVector
		case KindObjectVector:
			marker = markerObjectVector
		case KindDictionary:
			marker = markerDictionary
		default:
			return nil, errs.WireFormat("amf3: reference has unknown original kind %d", v.RefOriginalKind)
		}
	}
	dst = append(dst, marker)
	b, err := writeU29(uint32(v.RefIndex) << 1)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

// writeUTF8 appends a U29-length-prefixed UTF-8 string, tracking the
// strings table exactly like Decoder (empty strings never added).
func (e *Encoder) writeUTF8(dst []byte, s string) []byte {
	b, _ := writeU29(uint32(len(s))<<1 | 1)
	dst = append(dst, b...)
	dst = append(dst, s...)
	if s != "" {
		e.strings = append(e.strings, s)
	}
	return dst
}

func (e *Encoder) encodeByteRun(dst []byte, marker byte, body []byte) ([]byte, error) {
	dst = append(dst, marker)
	header, err := writeU29(uint32(len(body))<<1 | 1)
	if err != nil {
		return nil, err
	}
	dst = append(dst, header...)
	e.objects++
	return append(dst, body...), nil
}

func (e *Encoder) encodeArray(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, markerArray)
	header, err := writeU29(uint32(len(v.Dense))<<1 | 1)
	if err != nil {
		return nil, err
	}
	dst = append(dst, header...)
	e.objects++

	for _, p := range v.Pairs {
		dst = e.writeUTF8(dst, p.Key)
		dst, err = e.Encode(dst, p.Value)
		if err != nil {
			return nil, err
		}
	}
	dst = e.writeUTF8(dst, "")

	for _, item := range v.Dense {
		dst, err = e.Encode(dst, item)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (e *Encoder) encodeTraits(dst []byte, t Traits) []byte {
	header := uint32(0x03) // not-reference, not-trait-reference
	if t.Externalizable {
		header |= 0x04
	}
	if t.Dynamic {
		header |= 0x08
	}
	header |= uint32(len(t.Sealed)) << 4
	b, _ := writeU29(header)
	dst = append(dst, b...)
	dst = e.writeUTF8(dst, t.ClassName)
	for _, name := range t.Sealed {
		dst = e.writeUTF8(dst, name)
	}
	e.traits = append(e.traits, t)
	return dst
}

func (e *Encoder) encodeObject(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, markerObject)
	dst = e.encodeTraits(dst, v.Traits)
	e.objects++

	var err error
	for _, s := range v.Sealed {
		dst, err = e.Encode(dst, s)
		if err != nil {
			return nil, err
		}
	}
	if v.Traits.Dynamic {
		for _, p := range v.Pairs {
			dst = e.writeUTF8(dst, p.Key)
			dst, err = e.Encode(dst, p.Value)
			if err != nil {
				return nil, err
			}
		}
		dst = e.writeUTF8(dst, "")
	}
	return dst, nil
}

func (e *Encoder) encodeIntVector(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, markerIntVector)
	header, err := writeU29(uint32(len(v.IntVec))<<1 | 1)
	if err != nil {
		return nil, err
	}
	dst = append(dst, header...)
	e.objects++
	if v.VecFixed {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	for _, n := range v.IntVec {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		dst = append(dst, b[:]...)
	}
	return dst, nil
}

func (e *Encoder) encodeUIntVector(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, markerUIntVector)
	header, err := writeU29(uint32(len(v.UIntVec))<<1 | 1)
	if err != nil {
		return nil, err
	}
	dst = append(dst, header...)
	e.objects++
	if v.VecFixed {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	for _, n := range v.UIntVec {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], n)
		dst = append(dst, b[:]...)
	}
	return dst, nil
}

func (e *Encoder) encodeDoubleVector(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, markerDoubleVector)
	header, err := writeU29(uint32(len(v.DoubleVec))<<1 | 1)
	if err != nil {
		return nil, err
	}
	dst = append(dst, header...)
	e.objects++
	if v.VecFixed {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	for _, n := range v.DoubleVec {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(n))
		dst = append(dst, b[:]...)
	}
	return dst, nil
}

func (e *Encoder) encodeObjectVector(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, markerObjectVector)
	header, err := writeU29(uint32(len(v.Dense))<<1 | 1)
	if err != nil {
		return nil, err
	}
	dst = append(dst, header...)
	e.objects++
	if v.VecFixed {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	dst = e.writeUTF8(dst, v.VecClass)
	for _, item := range v.Dense {
		dst, err = e.Encode(dst, item)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (e *Encoder) encodeDictionary(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, markerDictionary)
	header, err := writeU29(uint32(len(v.Pairs))<<1 | 1)
	if err != nil {
		return nil, err
	}
	dst = append(dst, header...)
	e.objects++
	if v.DictWeakKeys {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	for _, p := range v.Pairs {
		dst, err = e.Encode(dst, String(p.Key))
		if err != nil {
			return nil, err
		}
		dst, err = e.Encode(dst, p.Value)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}
