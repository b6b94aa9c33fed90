package amf0

import (
	"encoding/binary"
	"math"

	"github.com/streamcenter/streamcenter/internal/amf/amf3"
	"github.com/streamcenter/streamcenter/internal/errs"
)

// marker bytes.
const (
	markerNumber      = 0x00
	markerBoolean     = 0x01
	markerString      = 0x02
	markerObject      = 0x03
	markerMovieClip   = 0x04 // reserved, never produced; decoding it fails
	markerNull        = 0x05
	markerUndefined   = 0x06
	markerReference   = 0x07
	markerECMAArray   = 0x08
	markerObjectEnd   = 0x09
	markerStrictArray = 0x0A
	markerDate        = 0x0B
	markerLongString  = 0x0C
	markerUnsupported = 0x0D // reserved, never produced; decoding it fails
	markerRecordSet   = 0x0E // reserved, never produced; decoding it fails
	markerXMLDocument = 0x0F
	markerTypedObject = 0x10
	markerSwitchAMF3  = 0x11
)

// Decoder decodes a sequence of AMF0 values sharing one object reference
// table. Object, ECMAArray, StrictArray and TypedObject all
// register in the same table, in first-appearance order, per the AMF0
// specification.
type Decoder struct {
	buf     []byte
	pos     int
	objects []bool // true once the slot at that index has finished decoding
}

// NewDecoder wraps buf for decoding, starting with an empty reference table.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Pos reports the current byte offset.
func (d *Decoder) Pos() int { return d.pos }

// AtEnd reports whether every byte of buf has been consumed.
func (d *Decoder) AtEnd() bool { return d.pos >= len(d.buf) }

func (d *Decoder) readBytes(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, errs.WireFormat("amf0: unexpected end of buffer (need %d)", n)
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) peekByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, errs.WireFormat("amf0: unexpected end of buffer")
	}
	return d.buf[d.pos], nil
}

func (d *Decoder) readMarker() (byte, error) {
	b, err := d.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) readU16() (uint16, error) {
	b, err := d.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) readU32() (uint32, error) {
	b, err := d.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) readF64() (float64, error) {
	b, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (d *Decoder) readShortString() (string, error) {
	n, err := d.readU16()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) readLongString() (string, error) {
	n, err := d.readU32()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) reserveObject() int {
	idx := len(d.objects)
	d.objects = append(d.objects, false)
	return idx
}

func (d *Decoder) finishObject(idx int) {
	d.objects[idx] = true
}

func (d *Decoder) resolveObjectRef(idx int) error {
	if idx >= len(d.objects) {
		return errs.OutOfRangeReference(idx)
	}
	if !d.objects[idx] {
		return errs.CircularReference(idx)
	}
	return nil
}

// Decode reads one top-level AMF0 value.
func (d *Decoder) Decode() (Value, error) {
	marker, err := d.readMarker()
	if err != nil {
		return Value{}, err
	}
	return d.decodeByMarker(marker)
}

func (d *Decoder) decodeByMarker(marker byte) (Value, error) {
	switch marker {
	case markerNumber:
		n, err := d.readF64()
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil
	case markerBoolean:
		b, err := d.readBytes(1)
		if err != nil {
			return Value{}, err
		}
		return Bool(b[0] != 0), nil
	case markerString:
		s, err := d.readShortString()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: s}, nil
	case markerLongString:
		s, err := d.readLongString()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindLongString, Str: s}, nil
	case markerXMLDocument:
		s, err := d.readLongString()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindXMLDocument, Str: s}, nil
	case markerNull:
		return Null, nil
	case markerUndefined:
		return Undefined, nil
	case markerReference:
		idx, err := d.readU16()
		if err != nil {
			return Value{}, err
		}
		if err := d.resolveObjectRef(int(idx)); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindReference, RefIndex: int(idx)}, nil
	case markerDate:
		return d.decodeDate()
	case markerObject:
		return d.decodeObject()
	case markerECMAArray:
		return d.decodeECMAArray()
	case markerStrictArray:
		return d.decodeStrictArray()
	case markerTypedObject:
		return d.decodeTypedObject()
	case markerSwitchAMF3:
		// Each "switch to AMF3" marker starts a fresh AMF3 reference-table
		// scope: real encoders never share AMF3 tables
		// across command arguments, so a new sub-decoder is created here
		// rather than threading amf0's own tables through.
		sub := amf3.NewDecoder(d.buf[d.pos:])
		v, err := sub.Decode()
		if err != nil {
			return Value{}, err
		}
		d.pos += sub.Pos()
		return Value{Kind: KindAMF3, AMF3: v}, nil
	default:
		return Value{}, errs.WireFormat("amf0: unknown or reserved marker 0x%02x", marker)
	}
}

func (d *Decoder) decodeDate() (Value, error) {
	ms, err := d.readF64()
	if err != nil {
		return Value{}, err
	}
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return Value{}, errs.InvalidDate(ms)
	}
	tz, err := d.readU16()
	if err != nil {
		return Value{}, err
	}
	if int16(tz) != 0 {
		return Value{}, errs.UnexpectedTimeZone(int16(tz))
	}
	return Value{Kind: KindDate, Number: ms, DateTimeZone: int16(tz)}, nil
}

// readPairs reads ordered (key, value) pairs until the empty-string-key +
// object-end-marker terminator.
func (d *Decoder) readPairs() ([]Pair, error) {
	var pairs []Pair
	for {
		key, err := d.readShortString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			b, err := d.peekByte()
			if err != nil {
				return nil, err
			}
			if b == markerObjectEnd {
				d.pos++
				return pairs, nil
			}
		}
		val, err := d.Decode()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Key: key, Value: val})
	}
}

func (d *Decoder) decodeObject() (Value, error) {
	idx := d.reserveObject()
	pairs, err := d.readPairs()
	if err != nil {
		return Value{}, err
	}
	d.finishObject(idx)
	return Value{Kind: KindObject, Pairs: pairs}, nil
}

func (d *Decoder) decodeECMAArray() (Value, error) {
	idx := d.reserveObject()
	if _, err := d.readU32(); err != nil { // associative-count hint, not authoritative
		return Value{}, err
	}
	pairs, err := d.readPairs()
	if err != nil {
		return Value{}, err
	}
	d.finishObject(idx)
	return Value{Kind: KindECMAArray, Pairs: pairs}, nil
}

func (d *Decoder) decodeStrictArray() (Value, error) {
	idx := d.reserveObject()
	n, err := d.readU32()
	if err != nil {
		return Value{}, err
	}
	items := make([]Value, n)
	for i := range items {
		v, err := d.Decode()
		if err != nil {
			return Value{}, err
		}
		items[i] = v
	}
	d.finishObject(idx)
	return Value{Kind: KindStrictArray, Dense: items}, nil
}

func (d *Decoder) decodeTypedObject() (Value, error) {
	idx := d.reserveObject()
	className, err := d.readShortString()
	if err != nil {
		return Value{}, err
	}
	pairs, err := d.readPairs()
	if err != nil {
		return Value{}, err
	}
	d.finishObject(idx)
	return Value{Kind: KindTypedObject, Str: className, Pairs: pairs}, nil
}
