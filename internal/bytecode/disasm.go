package bytecode

import (
	"fmt"
	"io"

	"github.com/wisplang/wisp/internal/value"
)

// Disassemble writes a human-readable listing of c to out, one instruction
// per line, annotated with source lines the way the teacher's vmDumper
// annotates memory regions. This is debug tracing only: spec.md §6 leaves
// its exact form unspecified.
func Disassemble(out io.Writer, name string, c *Chunk, r value.Resolver) {
	fmt.Fprintf(out, "== %s ==\n", name)
	lastLine := -1
	for offset := 0; offset < len(c.Code); {
		offset = disassembleInstruction(out, c, offset, &lastLine, r)
	}
}

func disassembleInstruction(out io.Writer, c *Chunk, offset int, lastLine *int, r value.Resolver) int {
	fmt.Fprintf(out, "%04d ", offset)
	line := c.LineAt(offset)
	if line == *lastLine {
		fmt.Fprint(out, "   | ")
	} else {
		fmt.Fprintf(out, "%4d ", line)
		*lastLine = line
	}

	op := Op(c.Code[offset])
	switch op.OperandWidth() {
	case 0:
		fmt.Fprintf(out, "%s\n", op)
		return offset + 1
	case 1:
		arg := c.Code[offset+1]
		if op == OpConstant && int(arg) < len(c.Constants) {
			fmt.Fprintf(out, "%-14s %4d '%s'\n", op, arg, value.Stringify(r, c.Constants[arg]))
		} else {
			fmt.Fprintf(out, "%-14s %4d\n", op, arg)
		}
		return offset + 2
	default:
		rel := ReadJump(c.Code, offset+1)
		fmt.Fprintf(out, "%-14s %4d -> %d\n", op, rel, offset+3+int(rel))
		return offset + 3
	}
}
