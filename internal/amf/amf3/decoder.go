package amf3

import (
	"encoding/binary"
	"math"

	"github.com/streamcenter/streamcenter/internal/errs"
)

// marker bytes.
const (
	markerUndefined     = 0x00
	markerNull          = 0x01
	markerFalse         = 0x02
	markerTrue          = 0x03
	markerInteger       = 0x04
	markerDouble        = 0x05
	markerString        = 0x06
	markerXMLDocument   = 0x07
	markerDate          = 0x08
	markerArray         = 0x09
	markerObject        = 0x0A
	markerXML           = 0x0B
	markerByteArray     = 0x0C
	markerIntVector     = 0x0D
	markerUIntVector    = 0x0E
	markerDoubleVector  = 0x0F
	markerObjectVector  = 0x10
	markerDictionary    = 0x11
)

// Decoder decodes a sequence of AMF3 values sharing one set of reference
// tables.
type Decoder struct {
	buf     []byte
	pos     int
	strings []string
	objects []Value
	pending []bool   // parallel to objects: true while the slot is reserved but not yet filled
	traits  []Traits
}

// NewDecoder wraps buf for decoding, starting with empty reference tables.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Pos reports the current byte offset, so callers embedding AMF3 inside a
// larger stream (e.g. AMF0's "switch to AMF3" marker) know how much was
// consumed.
func (d *Decoder) Pos() int { return d.pos }

func (d *Decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, errs.WireFormat("amf3: unexpected end of buffer")
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readBytes(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, errs.WireFormat("amf3: unexpected end of buffer (need %d)", n)
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) readU29() (uint32, error) {
	return readU29(d.buf, &d.pos)
}

// readUTF8 reads a U29-length-prefixed UTF-8 string that participates in
// the `strings` reference table, with the rule that empty strings are
// never added to the table.
func (d *Decoder) readUTF8() (string, error) {
	header, err := d.readU29()
	if err != nil {
		return "", err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if idx >= len(d.strings) {
			return "", errs.OutOfRangeReference(idx)
		}
		return d.strings[idx], nil
	}
	n := int(header >> 1)
	b, err := d.readBytes(n)
	if err != nil {
		return "", err
	}
	s := string(b)
	if s != "" {
		d.strings = append(d.strings, s)
	}
	return s, nil
}

// reserveObject pushes a placeholder slot so an inner reference resolving
// to a still-under-construction value can be detected, and returns its
// index.
func (d *Decoder) reserveObject() int {
	idx := len(d.objects)
	d.objects = append(d.objects, Value{})
	d.pending = append(d.pending, true)
	return idx
}

func (d *Decoder) fillObject(idx int, v Value) {
	d.objects[idx] = v
	d.pending[idx] = false
}

// resolveObjectRef validates a reference index into the objects table,
// failing with CircularReference if it points at a value still under
// construction.
func (d *Decoder) resolveObjectRef(idx int) error {
	if idx >= len(d.objects) {
		return errs.OutOfRangeReference(idx)
	}
	if d.pending[idx] {
		return errs.CircularReference(idx)
	}
	return nil
}

// Decode reads one AMF3 value.
func (d *Decoder) Decode() (Value, error) {
	marker, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	return d.decodeByMarker(marker)
}

func (d *Decoder) decodeByMarker(marker byte) (Value, error) {
	switch marker {
	case markerUndefined:
		return Undefined, nil
	case markerNull:
		return Null, nil
	case markerFalse:
		return False, nil
	case markerTrue:
		return True, nil
	case markerInteger:
		u, err := d.readU29()
		if err != nil {
			return Value{}, err
		}
		return Integer(signedFromU29(u)), nil
	case markerDouble:
		b, err := d.readBytes(8)
		if err != nil {
			return Value{}, err
		}
		return Double(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case markerString:
		s, err := d.readUTF8()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case markerXMLDocument:
		return d.decodeByteRun(KindXMLDocument)
	case markerXML:
		return d.decodeByteRun(KindXML)
	case markerByteArray:
		return d.decodeByteRun(KindByteArray)
	case markerDate:
		return d.decodeDate()
	case markerArray:
		return d.decodeArray()
	case markerObject:
		return d.decodeObject()
	case markerIntVector:
		return d.decodeIntVector()
	case markerUIntVector:
		return d.decodeUIntVector()
	case markerDoubleVector:
		return d.decodeDoubleVector()
	case markerObjectVector:
		return d.decodeObjectVector()
	case markerDictionary:
		return d.decodeDictionary()
	default:
		return Value{}, errs.WireFormat("amf3: unknown marker 0x%02x", marker)
	}
}

// decodeByteRun handles the three markers (ByteArray, XML, XMLDocument)
// that share the "ref-or-length" U29 header followed by raw bytes.
func (d *Decoder) decodeByteRun(kind Kind) (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: kind}, nil
	}

	idx := d.reserveObject()
	n := int(header >> 1)
	b, err := d.readBytes(n)
	if err != nil {
		return Value{}, err
	}

	var v Value
	switch kind {
	case KindByteArray:
		v = Value{Kind: KindByteArray, Bytes: append([]byte(nil), b...)}
	default:
		v = Value{Kind: kind, Str: string(b)}
	}
	d.fillObject(idx, v)
	return v, nil
}

func (d *Decoder) decodeDate() (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: KindDate}, nil
	}

	idx := d.reserveObject()
	b, err := d.readBytes(8)
	if err != nil {
		return Value{}, err
	}
	ms := math.Float64frombits(binary.BigEndian.Uint64(b))
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return Value{}, errs.InvalidDate(ms)
	}
	v := Value{Kind: KindDate, Double: ms}
	d.fillObject(idx, v)
	return v, nil
}

func (d *Decoder) decodeArray() (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: KindArray}, nil
	}

	idx := d.reserveObject()
	denseCount := int(header >> 1)

	var pairs []Pair
	for {
		key, err := d.readUTF8()
		if err != nil {
			return Value{}, err
		}
		if key == "" {
			break
		}
		val, err := d.Decode()
		if err != nil {
			return Value{}, err
		}
		pairs = append(pairs, Pair{Key: key, Value: val})
	}

	dense := make([]Value, denseCount)
	for i := 0; i < denseCount; i++ {
		val, err := d.Decode()
		if err != nil {
			return Value{}, err
		}
		dense[i] = val
	}

	v := Value{Kind: KindArray, Pairs: pairs, Dense: dense}
	d.fillObject(idx, v)
	return v, nil
}

// decodeTraits reads the trait header and body, applying the same
// reference-table rule but against the `traits` table instead of `objects`.
func (d *Decoder) decodeTraits(header uint32) (Traits, error) {
	if header&0x02 == 0 {
		idx := int(header >> 2)
		if idx >= len(d.traits) {
			return Traits{}, errs.OutOfRangeReference(idx)
		}
		return d.traits[idx], nil
	}

	externalizable := header&0x04 != 0
	dynamic := header&0x08 != 0
	sealedCount := int(header >> 4)

	className, err := d.readUTF8()
	if err != nil {
		return Traits{}, err
	}

	if externalizable {
		// Traits are still recorded (class name, no sealed members) so a
		// later trait-reference can resolve, but the object body itself is
		// unsupported.
		t := Traits{ClassName: className, Externalizable: true}
		d.traits = append(d.traits, t)
		return t, errs.UnsupportedExternalizable(className)
	}

	sealed := make([]string, sealedCount)
	for i := range sealed {
		name, err := d.readUTF8()
		if err != nil {
			return Traits{}, err
		}
		sealed[i] = name
	}

	t := Traits{ClassName: className, Dynamic: dynamic, Sealed: sealed}
	d.traits = append(d.traits, t)
	return t, nil
}

func (d *Decoder) decodeObject() (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: KindObject}, nil
	}

	idx := d.reserveObject()

	traits, err := d.decodeTraits(header)
	if err != nil {
		// UnsupportedExternalizable still needs the placeholder resolved so
		// later decode calls that reference this index don't see a
		// permanently-pending slot.
		d.fillObject(idx, Value{Kind: KindObject, Traits: traits})
		return Value{}, err
	}

	sealed := make([]Value, len(traits.Sealed))
	for i := range sealed {
		val, err := d.Decode()
		if err != nil {
			return Value{}, err
		}
		sealed[i] = val
	}

	var pairs []Pair
	if traits.Dynamic {
		for {
			key, err := d.readUTF8()
			if err != nil {
				return Value{}, err
			}
			if key == "" {
				break
			}
			val, err := d.Decode()
			if err != nil {
				return Value{}, err
			}
			pairs = append(pairs, Pair{Key: key, Value: val})
		}
	}

	v := Value{Kind: KindObject, Traits: traits, Sealed: sealed, Pairs: pairs}
	d.fillObject(idx, v)
	return v, nil
}

func (d *Decoder) decodeIntVector() (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: KindIntVector}, nil
	}
	idx := d.reserveObject()
	count := int(header >> 1)
	fixed, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	vec := make([]int32, count)
	for i := range vec {
		b, err := d.readBytes(4)
		if err != nil {
			return Value{}, err
		}
		vec[i] = int32(binary.BigEndian.Uint32(b))
	}
	v := Value{Kind: KindIntVector, IntVec: vec, VecFixed: fixed != 0}
	d.fillObject(idx, v)
	return v, nil
}

func (d *Decoder) decodeUIntVector() (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: KindUIntVector}, nil
	}
	idx := d.reserveObject()
	count := int(header >> 1)
	fixed, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	vec := make([]uint32, count)
	for i := range vec {
		b, err := d.readBytes(4)
		if err != nil {
			return Value{}, err
		}
		vec[i] = binary.BigEndian.Uint32(b)
	}
	v := Value{Kind: KindUIntVector, UIntVec: vec, VecFixed: fixed != 0}
	d.fillObject(idx, v)
	return v, nil
}

func (d *Decoder) decodeDoubleVector() (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: KindDoubleVector}, nil
	}
	idx := d.reserveObject()
	count := int(header >> 1)
	fixed, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	vec := make([]float64, count)
	for i := range vec {
		b, err := d.readBytes(8)
		if err != nil {
			return Value{}, err
		}
		vec[i] = math.Float64frombits(binary.BigEndian.Uint64(b))
	}
	v := Value{Kind: KindDoubleVector, DoubleVec: vec, VecFixed: fixed != 0}
	d.fillObject(idx, v)
	return v, nil
}

func (d *Decoder) decodeObjectVector() (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: KindObjectVector}, nil
	}
	idx := d.reserveObject()
	count := int(header >> 1)
	fixed, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	className, err := d.readUTF8()
	if err != nil {
		return Value{}, err
	}
	dense := make([]Value, count)
	for i := range dense {
		val, err := d.Decode()
		if err != nil {
			return Value{}, err
		}
		dense[i] = val
	}
	v := Value{Kind: KindObjectVector, Dense: dense, VecFixed: fixed != 0, VecClass: className}
	d.fillObject(idx, v)
	return v, nil
}

func (d *Decoder) decodeDictionary() (Value, error) {
	header, err := d.readU29()
	if err != nil {
		return Value{}, err
	}
	if header&1 == 0 {
		idx := int(header >> 1)
		if err := d.resolveObjectRef(idx); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefTable: TableObjects, RefIndex: idx, RefOriginalKind: KindDictionary}, nil
	}
	idx := d.reserveObject()
	count := int(header >> 1)
	weakKeys, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	pairs := make([]Pair, count)
	for i := range pairs {
		key, err := d.Decode()
		if err != nil {
			return Value{}, err
		}
		val, err := d.Decode()
		if err != nil {
			return Value{}, err
		}
		// Dictionary keys are themselves AMF3 values; we key Pair.Key by
		// their string rendering when the key is a String, else leave Key
		// empty and rely on positional pairing (Dictionary keys are rarely
		// strings-only in practice, but RTMP never sends one).
		k := ""
		if key.Kind == KindString {
			k = key.Str
		}
		pairs[i] = Pair{Key: k, Value: val}
	}
	v := Value{Kind: KindDictionary, Pairs: pairs, DictWeakKeys: weakKeys != 0}
	d.fillObject(idx, v)
	return v, nil
}
