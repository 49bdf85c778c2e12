package value

// String is a heap-allocated string object: its content plus a cached
// content hash. Two Strings are value-equal when their (length, hash,
// bytes) all agree; the VM's intern table guarantees at most one instance
// per distinct content.
type String struct {
	Chars []byte
	Hash  uint32
}

// NewString copies b into a new String, computing its FNV-1a hash.
func NewString(b []byte) *String {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &String{Chars: cp, Hash: FNV1a(cp)}
}

func (s *String) Len() int { return len(s.Chars) }

// SameContent reports whether s and o represent the same string content.
func (s *String) SameContent(o *String) bool {
	if s == o {
		return true
	}
	if s.Hash != o.Hash || len(s.Chars) != len(o.Chars) {
		return false
	}
	for i := range s.Chars {
		if s.Chars[i] != o.Chars[i] {
			return false
		}
	}
	return true
}

// Strings is the VM-owned table backing heap-string Values: a heap string
// Value's payload is an index into this table, never a raw Go pointer, so
// the garbage collector always reaches the String through the table.
type Strings struct {
	entries []*String
}

// Add appends s and returns the heap-string Value addressing it.
func (t *Strings) Add(s *String) Value {
	idx := uint32(len(t.entries))
	t.entries = append(t.entries, s)
	return HeapString(idx)
}

// Get resolves a heap-string Value to its String.
func (t *Strings) Get(v Value) *String {
	return t.entries[v.HeapStringIndex()]
}

// Resolver lets shared code (HAMT, VM) dereference heap-string Values
// without depending on the Strings table's concrete type.
type Resolver interface {
	String(v Value) *String
}

func (t *Strings) String(v Value) *String { return t.Get(v) }

// Bytes returns the raw byte content of any string Value (short, heap, or
// epsilon), decoding short strings into scratch.
func Bytes(r Resolver, v Value, scratch []byte) []byte {
	switch {
	case v.IsEpsilon():
		return nil
	case v.IsShortString():
		return v.AppendShort(scratch[:0])
	default:
		return r.String(v).Chars
	}
}

// Hash implements the spec's polymorphic Value hash: String.Hash for long
// (interned) strings, FNV-1a over the raw word for everything else
// (including short strings, which therefore hash by their packed form).
func Hash(r Resolver, v Value) uint32 {
	if v.IsHeapString() {
		return r.String(v).Hash
	}
	return FNV1aWord(v)
}

// Stringify renders v the way `print` and prefix `'` do: numbers via
// shortest %g (with infinities spelled "∞"/"-∞"), booleans and nil by their
// literal spelling, strings verbatim.
func Stringify(r Resolver, v Value) string {
	switch {
	case v.IsNumber():
		return FormatNumber(v.AsNumber())
	case v.IsNil():
		return "nil"
	case v.IsTrue():
		return "true"
	case v.IsFalse():
		return "false"
	case v.IsString():
		return string(Bytes(r, v, make([]byte, 0, maxShortLen)))
	default:
		return ""
	}
}

// Concatenate implements polymorphic `*` on two strings: identity on
// epsilon, inline bit-packing when both operands are short and the result
// still fits, otherwise a freshly allocated String that the caller MUST
// intern before exposing it as a Value.
func Concatenate(r Resolver, x, y Value) (packed Value, pending *String) {
	if x.IsEpsilon() {
		return y, nil
	}
	if y.IsEpsilon() {
		return x, nil
	}
	xb := Bytes(r, x, make([]byte, 0, maxShortLen))
	yb := Bytes(r, y, make([]byte, 0, maxShortLen))
	combined := make([]byte, 0, len(xb)+len(yb))
	combined = append(combined, xb...)
	combined = append(combined, yb...)
	if v, ok := ShortString(combined); ok {
		return v, nil
	}
	return 0, NewString(combined)
}

// StringExponent implements `**`: base repeated n times (n rounded toward
// zero, clamped to non-negative). ε or n==0 yields ε; n==1 returns base
// unchanged (already a valid, possibly-interned Value, so no interning is
// required by the caller in that case).
func StringExponent(r Resolver, base Value, n float64) (packed Value, pending *String) {
	count := int64(n) // truncate toward zero
	if count < 0 {
		count = 0
	}
	if base.IsEpsilon() || count == 0 {
		return Epsilon(), nil
	}
	if count == 1 {
		return base, nil
	}
	b := Bytes(r, base, make([]byte, 0, maxShortLen))
	combined := make([]byte, 0, len(b)*int(count))
	for i := int64(0); i < count; i++ {
		combined = append(combined, b...)
	}
	if v, ok := ShortString(combined); ok {
		return v, nil
	}
	return 0, NewString(combined)
}
