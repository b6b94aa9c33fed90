// Package amf0 implements the AMF0 (ActionScript Message Format 0) binary
// codec used for RTMP command messages (connect, createStream, publish,
// play, onStatus) and for the onMetaData data message.
//
// AMF0 objects and ECMA arrays are order-sensitive on the wire: a real
// encoder reproduces whatever property order the original held, so Value
// keeps Pairs as an ordered slice rather than a Go map. AMF0's own
// "complex object" reference marker (0x07) shares
// the same reserved-slot circular-detection technique used by amf3.
package amf0

// Kind discriminates an AMF0 Value.
type Kind int

const (
	KindNumber Kind = iota
	KindBoolean
	KindString
	KindObject
	KindNull
	KindUndefined
	KindReference
	KindECMAArray
	KindStrictArray
	KindDate
	KindLongString
	KindXMLDocument
	KindTypedObject
	KindAMF3
)

// Pair is an ordered (key, value) member of an Object, ECMAArray, or
// TypedObject.
type Pair struct {
	Key   string
	Value Value
}

// Value is a tagged union over every AMF0 marker.
type Value struct {
	Kind Kind

	Bool   bool
	Number float64 // KindNumber, KindDate (milliseconds since epoch)
	Str    string  // KindString, KindLongString, KindXMLDocument, KindTypedObject (class name)

	Pairs []Pair  // KindObject, KindECMAArray, KindTypedObject
	Dense []Value // KindStrictArray

	DateTimeZone int16 // KindDate, must be 0 on both read and write

	RefIndex int // KindReference: 0-based index into the decode's object table

	AMF3 interface{} // KindAMF3: holds an amf3.Value; Encode rejects any other dynamic type
}

// Null, Undefined are the AMF0 singleton values.
var (
	Null      = Value{Kind: KindNull}
	Undefined = Value{Kind: KindUndefined}
)

// Number builds a KindNumber value.
func Number(v float64) Value { return Value{Kind: KindNumber, Number: v} }

// Bool builds a KindBoolean value.
func Bool(v bool) Value { return Value{Kind: KindBoolean, Bool: v} }

// String builds a KindString value, using the long-string marker when the
// UTF-8 byte length exceeds the 16-bit short-string limit.
func String(v string) Value {
	if len(v) > 0xffff {
		return Value{Kind: KindLongString, Str: v}
	}
	return Value{Kind: KindString, Str: v}
}

// Object builds a KindObject value from ordered pairs.
func Object(pairs ...Pair) Value { return Value{Kind: KindObject, Pairs: pairs} }

// ECMAArray builds a KindECMAArray value from ordered pairs.
func ECMAArray(pairs ...Pair) Value { return Value{Kind: KindECMAArray, Pairs: pairs} }

// StrictArray builds a KindStrictArray value.
func StrictArray(items ...Value) Value { return Value{Kind: KindStrictArray, Dense: items} }

// Get returns the first pair's value with the given key and whether it was
// found, for reading command arguments (e.g. "app", "tcUrl" on connect).
func (v Value) Get(key string) (Value, bool) {
	for _, p := range v.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Value{}, false
}
