package vm

import (
	"syscall"

	"github.com/wisplang/wisp/internal/bytecode"
	"github.com/wisplang/wisp/internal/runtime"
	"github.com/wisplang/wisp/internal/value"
)

// RegisterNative binds a foreign function into rt's global namespace as an
// immutable let, the way spec's call protocol requires: a reserved global
// slot, the callable stored in Globals, and the name pre-bound so a
// Compiler sees it already declared rather than implicitly creating a
// fresh mutable global.
func RegisterNative(rt *runtime.Runtime, name string, arity int, native func(argv []value.Value) value.Value) {
	fn := &bytecode.Function{Arity: arity, Name: name, Native: native}
	fnVal := rt.AddObject(fn)

	nameVal := rt.CopyString([]byte(name))
	slot, _ := rt.DeclareGlobal(nameVal, false)
	rt.Globals[slot] = fnVal
}

// RegisterBuiltins installs the language's standard foreign functions.
func RegisterBuiltins(rt *runtime.Runtime) {
	RegisterNative(rt, "clock", 0, nativeClock)
}

// nativeClock returns elapsed process-CPU seconds, per spec's host
// collaborator contract, sourced from the process's own rusage rather than
// wall-clock time so it is unaffected by an idle or sleeping process.
func nativeClock(_ []value.Value) value.Value {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return value.Number(0)
	}
	user := float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6
	sys := float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6
	return value.Number(user + sys)
}
