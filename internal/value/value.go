// Package value implements the NaN-boxed 64-bit Value word shared by the
// lexer, compiler, HAMT, and VM: numbers, booleans, nil, short and heap
// strings, and opaque pointers into VM-owned object tables.
//
// Heap payloads are never raw Go pointers. A Go pointer hidden inside a
// plain uint64 is invisible to the garbage collector, so string and
// pointer tags instead carry a table index; the owning table (a
// value.Strings for strings, the VM's object slice for everything else)
// is what actually keeps the referent alive.
package value

import (
	"math"
	"math/bits"
)

// Value is a 64-bit tagged word: either an IEEE-754 double, or -- when its
// bit pattern falls inside the reserved quiet-NaN space -- a tagged
// non-numeric payload.
type Value uint64

// Kind enumerates the semantic type of a Value.
type Kind uint8

const (
	KindNumber Kind = iota
	KindNil
	KindBool
	KindString
	KindPointer
	KindNone
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindPointer:
		return "pointer"
	case KindNone:
		return "none"
	default:
		return "unknown"
	}
}

const (
	signBit = uint64(1) << 63
	// qnan is the canonical quiet-NaN bit pattern (sign clear, exponent all
	// ones, quiet bit set, remaining mantissa bits free for tag + payload).
	qnan = uint64(0x7ff8000000000000)

	tagMask   = uint64(0x7)
	tagNaN    = uint64(0) // the canonical double NaN itself, not a language value
	tagNil    = uint64(1)
	tagFalse  = uint64(2)
	tagTrue   = uint64(3)
	tagString = uint64(4)
	tagPtr    = uint64(5)
	tagNone   = uint64(6)

	// heapBit, set on a string-tagged Value, selects the heap-string
	// encoding (table index) over the inline short-string encoding.
	heapBit = uint64(1) << 3

	shortLenShift  = 4
	shortLenMask   = uint64(0x7)
	shortCharShift = 7 // first char starts at bit 7
	shortCharBits  = 7
	maxShortLen    = 6

	heapIndexShift = 8
	ptrIndexShift  = 3
	indexMask      = uint64(0xffffffff)
)

func tagged(tag uint64) Value { return Value(qnan | tag) }

// Number returns the Value for a float64, including real NaNs (which land
// on tag 0, "pure NaN", and are still reported as numbers).
func Number(f float64) Value {
	if f != f { // every NaN bit pattern collapses to the canonical tag-0 NaN
		return Value(qnan)
	}
	return Value(math.Float64bits(f))
}

// Nil, True, False, None, Epsilon are the fixed singleton Values.
func Nil() Value     { return tagged(tagNil) }
func True() Value    { return tagged(tagTrue) }
func False() Value   { return tagged(tagFalse) }
func None() Value    { return tagged(tagNone) }
func Epsilon() Value { return tagged(tagString) } // string tag, heapBit clear, length 0

// Bool returns True() or False() for b.
func Bool(b bool) Value {
	if b {
		return True()
	}
	return False()
}

// HAMTNodeBitmap encodes the internal HAMT bitmap-node marker: the sign
// bit is set (distinguishing it from every tag-based Value, none of which
// set the sign bit) and the low 32 bits carry the node's child bitmap.
func HAMTNodeBitmap(bitmap uint32) Value {
	return Value(qnan | signBit | uint64(bitmap))
}

// IsHAMTNodeBitmap reports whether v is the HAMT bitmap-node sentinel.
func (v Value) IsHAMTNodeBitmap() bool {
	return uint64(v)&(qnan|signBit) == (qnan | signBit)
}

// BitmapOf extracts the child bitmap from a HAMTNodeBitmap Value.
func (v Value) BitmapOf() uint32 { return uint32(uint64(v) & indexMask) }

func isNonDouble(v Value) bool { return uint64(v)&qnan == qnan }

func (v Value) tag() uint64 { return uint64(v) & tagMask }

// IsNumber reports whether v holds an IEEE-754 double (including NaN).
func (v Value) IsNumber() bool {
	if !isNonDouble(v) {
		return true
	}
	return !v.IsHAMTNodeBitmap() && v.tag() == tagNaN
}

func (v Value) IsNil() bool   { return isNonDouble(v) && !v.IsHAMTNodeBitmap() && v.tag() == tagNil }
func (v Value) IsTrue() bool  { return isNonDouble(v) && !v.IsHAMTNodeBitmap() && v.tag() == tagTrue }
func (v Value) IsFalse() bool { return isNonDouble(v) && !v.IsHAMTNodeBitmap() && v.tag() == tagFalse }
func (v Value) IsBool() bool  { return v.IsTrue() || v.IsFalse() }
func (v Value) IsNone() bool  { return isNonDouble(v) && !v.IsHAMTNodeBitmap() && v.tag() == tagNone }

func (v Value) IsString() bool {
	return isNonDouble(v) && !v.IsHAMTNodeBitmap() && v.tag() == tagString
}

func (v Value) IsShortString() bool { return v.IsString() && uint64(v)&heapBit == 0 }
func (v Value) IsHeapString() bool  { return v.IsString() && uint64(v)&heapBit != 0 }
func (v Value) IsEpsilon() bool     { return v == Epsilon() }

func (v Value) IsPointer() bool {
	return isNonDouble(v) && !v.IsHAMTNodeBitmap() && v.tag() == tagPtr
}

// Kind classifies v.
func (v Value) Kind() Kind {
	switch {
	case v.IsNumber():
		return KindNumber
	case v.IsNil():
		return KindNil
	case v.IsBool():
		return KindBool
	case v.IsString():
		return KindString
	case v.IsPointer():
		return KindPointer
	default:
		return KindNone
	}
}

// AsNumber returns v's double value; callers must check IsNumber first.
func (v Value) AsNumber() float64 { return math.Float64frombits(uint64(v)) }

// AsBool returns v's boolean value; callers must check IsBool first.
func (v Value) AsBool() bool { return v.IsTrue() }

// Pointer returns a Value tagged as a pointer into a VM-owned object table
// at the given index.
func Pointer(index uint32) Value {
	return Value(qnan | tagPtr | (uint64(index) << ptrIndexShift))
}

// PointerIndex extracts the object-table index from a pointer Value.
func (v Value) PointerIndex() uint32 {
	return uint32((uint64(v) >> ptrIndexShift) & indexMask)
}

// HeapString returns a Value tagged as an interned/heap string at the
// given table index.
func HeapString(index uint32) Value {
	return Value(qnan | tagString | heapBit | (uint64(index) << heapIndexShift))
}

// HeapStringIndex extracts the string-table index from a heap-string Value.
func (v Value) HeapStringIndex() uint32 {
	return uint32((uint64(v) >> heapIndexShift) & indexMask)
}

// ShortString packs b (at most 6 bytes, all with the high bit clear) into
// an inline Value. ok is false if b cannot be packed, in which case the
// caller must allocate a heap String instead.
func ShortString(b []byte) (Value, bool) {
	if len(b) > maxShortLen {
		return 0, false
	}
	bits := qnan | tagString | (uint64(len(b)) << shortLenShift)
	for i, c := range b {
		if c >= 0x80 {
			return 0, false
		}
		bits |= uint64(c) << (shortCharShift + shortCharBits*i)
	}
	return Value(bits), true
}

// ShortLen returns the byte length of a short string Value (0..6).
func (v Value) ShortLen() int {
	return int((uint64(v) >> shortLenShift) & shortLenMask)
}

// AppendShort appends the decoded bytes of a short-string Value to buf.
func (v Value) AppendShort(buf []byte) []byte {
	n := v.ShortLen()
	for i := 0; i < n; i++ {
		c := byte((uint64(v) >> (shortCharShift + shortCharBits*i)) & 0x7f)
		buf = append(buf, c)
	}
	return buf
}

// Equal is word equality; because long strings are interned and short
// strings are packed canonically, this is semantic equality for every Kind.
func Equal(a, b Value) bool { return a == b }

// FNV1a is the 32-bit FNV-1a hash used for string content and for hashing
// Values that are not long (interned) strings.
func FNV1a(b []byte) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for _, c := range b {
		h ^= uint32(c)
		h *= prime
	}
	return h
}

// FNV1aWord hashes the raw 8-byte word representation of v, used for every
// Value kind except long (interned) strings, which hash by cached content.
func FNV1aWord(v Value) uint32 {
	var buf [8]byte
	u := uint64(v)
	for i := range buf {
		buf[i] = byte(u >> (8 * i))
	}
	return FNV1a(buf[:])
}

// PopCount reports the number of set bits in bitmap. The HAMT applies it to
// the bits below a child's bit to compute that child's canonical position.
func PopCount(bitmap uint32) int { return bits.OnesCount32(bitmap) }

// Truthy implements the language's truthiness rule: false, nil, the empty
// string, and numeric zero are falsy; everything else is truthy.
func Truthy(v Value) bool {
	switch {
	case v.IsFalse(), v.IsNil(), v.IsEpsilon():
		return false
	case v.IsNumber():
		return v.AsNumber() != 0
	default:
		return true
	}
}
