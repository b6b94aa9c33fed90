// Package amf3 implements the AMF3 (ActionScript Message Format 3) binary
// codec used inside RTMP AMF3-encoded command/data messages and as the
// payload of an AMF0 "switch to AMF3" marker.
//
// Every decodable complex value (Object, Array, ByteArray, Date, XML*,
// Vector, Dictionary) participates in the reference tables: objects and
// strings are appended
// to ordered tables in first-appearance order and may be cited by later
// values via a 0-based index instead of being re-serialized. Decode keeps
// object-table references unresolved (Kind == KindReference) rather than
// inlining the referenced value, so Encoder can re-emit the short form.
// String-table and trait-table references are resolved on decode and
// re-emitted inline by Encoder, so encode(decode(b)) reproduces b only when
// b uses no string or trait references.
package amf3

// Kind discriminates an AMF3 Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindInteger
	KindDouble
	KindString
	KindXMLDocument
	KindDate
	KindArray
	KindObject
	KindXML
	KindByteArray
	KindIntVector
	KindUIntVector
	KindDoubleVector
	KindObjectVector
	KindDictionary
	// KindReference denotes an as-yet-unresolved reference into one of the
	// decode operation's tables; TableKind says which one.
	KindReference
)

// TableKind says which referenceable table a KindReference points into.
type TableKind int

const (
	TableStrings TableKind = iota
	TableObjects
)

// Pair is an ordered (key, value) entry of a dynamic/associative AMF3
// structure. AMF3, like AMF0, is order-sensitive on the wire, so Pairs is a
// slice, never a Go map.
type Pair struct {
	Key   string
	Value Value
}

// Traits describes an AMF3 Object's class: its name, whether it is
// externalizable/dynamic, and its sealed (fixed) member names.
type Traits struct {
	ClassName      string
	Externalizable bool
	Dynamic        bool
	Sealed         []string
}

// Value is a tagged union over every AMF3 marker.
type Value struct {
	Kind Kind

	Bool   bool
	Int    int32   // KindInteger, sign-extended from the 29-bit wire value
	Double float64 // KindDouble, KindDate (milliseconds since epoch)
	Str    string  // KindString, KindXMLDocument, KindXML

	Bytes []byte // KindByteArray

	Traits Traits  // KindObject
	Sealed []Value // KindObject: values for Traits.Sealed, same order
	Pairs  []Pair  // KindObject (dynamic members), KindArray (associative), KindDictionary

	Dense []Value // KindArray (dense portion), KindObjectVector

	IntVec    []int32   // KindIntVector
	UIntVec   []uint32  // KindUIntVector
	DoubleVec []float64 // KindDoubleVector
	VecFixed  bool      // vector "fixed" flag
	VecClass  string    // KindObjectVector class name

	DictWeakKeys bool // KindDictionary

	RefTable TableKind // KindReference
	RefIndex int       // KindReference
	// RefOriginalKind records which marker the referenced value was
	// originally decoded with (Array, Object, ByteArray, Date, XML,
	// XMLDocument, one of the Vector kinds, or Dictionary), so Encoder can
	// re-emit the correct marker byte for a TableObjects reference.
	RefOriginalKind Kind
}

// Undefined, Null, True, False are the AMF3 singleton values.
var (
	Undefined = Value{Kind: KindUndefined}
	Null      = Value{Kind: KindNull}
	True      = Value{Kind: KindBoolean, Bool: true}
	False     = Value{Kind: KindBoolean, Bool: false}
)

// Integer builds a KindInteger value.
func Integer(v int32) Value { return Value{Kind: KindInteger, Int: v} }

// Double builds a KindDouble value.
func Double(v float64) Value { return Value{Kind: KindDouble, Double: v} }

// String builds a KindString value.
func String(v string) Value { return Value{Kind: KindString, Str: v} }
