// Package bytecode defines the instruction set and the Chunk container the
// compiler emits into and the VM executes: a byte sequence, its constant
// pool, and a run-length-encoded line-number table.
package bytecode

import (
	"errors"

	"github.com/wisplang/wisp/internal/hamt"
	"github.com/wisplang/wisp/internal/value"
)

// ErrTooManyConstants is returned once a chunk's constant pool would exceed
// the 256 entries addressable by a one-byte index (spec.md §9's chosen
// resolution of that open question: enforce the limit as a compile error).
var ErrTooManyConstants = errors.New("bytecode: too many constants in one chunk")

type lineRun struct {
	line  int
	count int
}

// Chunk is a contiguous bytecode unit: bytes, its constant pool, and the
// source line each byte was emitted for.
type Chunk struct {
	Code      []byte
	Constants []value.Value

	lines     []lineRun
	constIdx  *hamt.HAMT // compile-only: constant value -> its pool index
}

// NewChunk returns an empty Chunk ready for emission.
func NewChunk() *Chunk {
	return &Chunk{constIdx: hamt.New()}
}

// AddByte appends one bytecode byte, recording line for it in the
// run-length line table.
func (c *Chunk) AddByte(b byte, line int) {
	c.Code = append(c.Code, b)
	if n := len(c.lines); n > 0 && c.lines[n-1].line == line {
		c.lines[n-1].count++
		return
	}
	c.lines = append(c.lines, lineRun{line: line, count: 1})
}

// AddConstant interns value v into the constant pool (deduplicating via an
// internal compile-time HAMT) and returns its one-byte index.
func (c *Chunk) AddConstant(r value.Resolver, v value.Value) (byte, error) {
	if existing := c.constIdx.Get(r, v); !existing.IsNone() {
		return byte(existing.AsNumber()), nil
	}
	if len(c.Constants) >= 256 {
		return 0, ErrTooManyConstants
	}
	idx := len(c.Constants)
	c.Constants = append(c.Constants, v)
	if err := c.constIdx.Set(r, v, value.Number(float64(idx))); err != nil {
		return 0, err
	}
	return byte(idx), nil
}

// LineAt returns the source line the byte at offset was emitted for.
func (c *Chunk) LineAt(offset int) int {
	i := 0
	for _, run := range c.lines {
		if offset < i+run.count {
			return run.line
		}
		i += run.count
	}
	if n := len(c.lines); n > 0 {
		return c.lines[n-1].line
	}
	return 0
}

// PatchJump backpatches a two-byte big-endian signed relative jump operand
// at offset so that it branches to the current end of the chunk (measured
// from the byte immediately after the two operand bytes).
func (c *Chunk) PatchJump(offset int) {
	target := len(c.Code) - (offset + 2)
	c.Code[offset] = byte(uint16(target) >> 8)
	c.Code[offset+1] = byte(uint16(target))
}

// ReadJump decodes the two-byte signed relative offset at ip.
func ReadJump(code []byte, ip int) int16 {
	return int16(uint16(code[ip])<<8 | uint16(code[ip+1]))
}
