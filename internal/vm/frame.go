package vm

import "github.com/wisplang/wisp/internal/bytecode"

// frame is one call's activation record: the function it is executing, its
// instruction pointer into that function's chunk, and the base stack index
// its locals (slot 0 is the callee value itself) are offset from.
type frame struct {
	fn    *bytecode.Function
	ip    int
	slots int
}
