package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: Tagged union of every runtime value
// ---------------------------------------------------------------------------

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
	KindTable
	KindArray
	KindClosure
	KindNative
	KindUserData
	KindClass
	KindInstance
	KindGenerator
	KindWeakRef
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBool:      "bool",
	KindInteger:   "integer",
	KindFloat:     "float",
	KindString:    "string",
	KindTable:     "table",
	KindArray:     "array",
	KindClosure:   "function",
	KindNative:    "native function",
	KindUserData:  "userdata",
	KindClass:     "class",
	KindInstance:  "instance",
	KindGenerator: "generator",
	KindWeakRef:   "weakref",
}

// String returns the script-visible type name, as reported by typeof.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsHeap reports whether values of this kind live in the heap.
func (k Kind) IsHeap() bool {
	return k >= KindTable
}

// Handle identifies a heap slot. The high 32 bits carry the slot's
// generation so that handles to reclaimed objects are detected.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32 { return uint32(h) }
func (h Handle) gen() uint32   { return uint32(h >> 32) }

// Value is a script value. Scalars and strings are stored inline; every
// other kind carries a Handle into the owning VM's heap. Values are
// comparable and copying one never copies the heap object.
type Value struct {
	kind Kind
	bits uint64
	str  string
}

// Well-known values.
var (
	Null  = Value{}
	True  = Value{kind: KindBool, bits: 1}
	False = Value{kind: KindBool}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Int returns an integer value.
func Int(i int64) Value {
	return Value{kind: KindInteger, bits: uint64(i)}
}

// Float returns a float value.
func Float(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func fromHandle(kind Kind, h Handle) Value {
	return Value{kind: kind, bits: uint64(h)}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// TypeName returns the script-visible type name.
func (v Value) TypeName() string { return v.kind.String() }

func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsBool() bool    { return v.kind == KindBool }
func (v Value) IsInteger() bool { return v.kind == KindInteger }
func (v Value) IsFloat() bool   { return v.kind == KindFloat }
func (v Value) IsString() bool  { return v.kind == KindString }
func (v Value) IsHeap() bool    { return v.kind.IsHeap() }

// IsNumber reports whether v is an integer or a float.
func (v Value) IsNumber() bool {
	return v.kind == KindInteger || v.kind == KindFloat
}

// AsBool returns the boolean payload; false for other kinds.
func (v Value) AsBool() bool {
	return v.kind == KindBool && v.bits != 0
}

// AsInt returns the integer payload, truncating floats.
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindInteger:
		return int64(v.bits)
	case KindFloat:
		return int64(math.Float64frombits(v.bits))
	}
	return 0
}

// AsFloat returns the numeric payload as a float.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.bits)
	case KindInteger:
		return float64(int64(v.bits))
	}
	return 0
}

// AsString returns the string payload; empty for other kinds.
func (v Value) AsString() string {
	return v.str
}

// Handle returns the heap handle of a heap value, or zero.
func (v Value) Handle() Handle {
	if !v.kind.IsHeap() {
		return 0
	}
	return Handle(v.bits)
}

// String formats scalars the way tostring does. Heap values format as
// their type and handle.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindInteger:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindFloat:
		return formatFloat(v.AsFloat())
	case KindString:
		return v.str
	}
	return fmt.Sprintf("(%s : 0x%08x)", v.kind, uint64(v.Handle().index()))
}

// formatFloat prints floats in the shortest form that reads back exactly.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
