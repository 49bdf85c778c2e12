package vm_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisplang/wisp/internal/compiler"
	"github.com/wisplang/wisp/internal/runtime"
	"github.com/wisplang/wisp/internal/vm"
)

func runSource(t *testing.T, src string) string {
	t.Helper()
	rt := runtime.New()
	vm.RegisterBuiltins(rt)

	fn, err := compiler.Compile(rt, []byte(src))
	require.NoError(t, err)

	var out bytes.Buffer
	machine := vm.New(rt, vm.WithOutput(&out))
	require.NoError(t, machine.Run(context.Background(), fn))
	return out.String()
}

func TestEndToEndArithmeticPrecedence(t *testing.T) {
	assert.Equal(t, "7\n", runSource(t, "print 1 + 2 * 3;"))
}

func TestEndToEndStringConcatAndExponent(t *testing.T) {
	assert.Equal(t, "hi!!!\n", runSource(t, `var a = "hi"; var b = "!"; print a * b ** 3;`))
}

func TestEndToEndWhileLoop(t *testing.T) {
	assert.Equal(t, "0\n1\n2\n", runSource(t, "var n = 0; while n < 3 { print n; n = n + 1; }"))
}

func TestEndToEndRecursiveFunction(t *testing.T) {
	src := "fun fib(n) { if n < 2 { return n; } return fib(n-1) + fib(n-2); } print fib(10);"
	assert.Equal(t, "55\n", runSource(t, src))
}

func TestEndToEndStringInterpolation(t *testing.T) {
	assert.Equal(t, "x is 6!\n", runSource(t, `var x = 3; print "x is ${x * 2}!";`))
}

func TestEndToEndSwitchFallthrough(t *testing.T) {
	src := `switch 2 {
		case 1: print "a";
		case 2: print "b"; fallthrough;
		case 3: print "c";
		default: print "d";
	}`
	assert.Equal(t, "b\nc\n", runSource(t, src))
}

func TestCallOfNonFunctionIsRuntimeError(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("var x = 1; x();"))
	require.NoError(t, err)

	machine := vm.New(rt, vm.WithOutput(bytes.NewBuffer(nil)))
	err = machine.Run(context.Background(), fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call")
}

func TestArityMismatchIsRuntimeError(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("fun f(a, b) { return a + b; } print f(1);"))
	require.NoError(t, err)

	machine := vm.New(rt, vm.WithOutput(bytes.NewBuffer(nil)))
	err = machine.Run(context.Background(), fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arguments")
}

func TestArithmeticOnNonNumberIsRuntimeError(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte(`print "a" - 1;`))
	require.NoError(t, err)

	machine := vm.New(rt, vm.WithOutput(bytes.NewBuffer(nil)))
	err = machine.Run(context.Background(), fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "numbers")
}

func TestUndefinedGlobalReadIsRuntimeError(t *testing.T) {
	// resolveVariable implicitly declares a never-seen name as a global on
	// first mention, so this compiles; no define_global ever runs for it,
	// so its slot still holds NONE and the read fails at run time.
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("print undeclared;"))
	require.NoError(t, err)

	machine := vm.New(rt, vm.WithOutput(bytes.NewBuffer(nil)))
	err = machine.Run(context.Background(), fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined variable")
}

func TestClockNativeReturnsNumber(t *testing.T) {
	out := runSource(t, "print clock() >= 0;")
	assert.Equal(t, "true\n", out)
}

func TestNativeArityMismatchIsRuntimeError(t *testing.T) {
	rt := runtime.New()
	vm.RegisterBuiltins(rt)
	fn, err := compiler.Compile(rt, []byte("print clock(1, 2, 3);"))
	require.NoError(t, err)

	machine := vm.New(rt, vm.WithOutput(bytes.NewBuffer(nil)))
	err = machine.Run(context.Background(), fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arguments")
}

func TestDeepRecursionOverflowsCallStack(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("fun f(n) { return f(n+1); } print f(0);"))
	require.NoError(t, err)

	machine := vm.New(rt, vm.WithOutput(bytes.NewBuffer(nil)))
	err = machine.Run(context.Background(), fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stack overflow")
}
