package bytecode

import "github.com/wisplang/wisp/internal/value"

// Function is a compiled callable: either a script function owning a Chunk,
// or a foreign function wrapping a host callable. Both variants share this
// type so a Value's pointer payload can address either uniformly; the VM's
// call dispatches on Native.
type Function struct {
	Arity int
	Name  string
	Chunk *Chunk // nil for foreign functions

	// Native, when non-nil, makes this a foreign function: it receives the
	// operand stack slice holding exactly its arguments (argv[0] is arg 1)
	// and returns the call's result.
	Native func(argv []value.Value) value.Value
}

func (f *Function) String() string {
	if f.Name == "" {
		return "<script>"
	}
	return f.Name
}
