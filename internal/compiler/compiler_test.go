package compiler_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisplang/wisp/internal/bytecode"
	"github.com/wisplang/wisp/internal/compiler"
	"github.com/wisplang/wisp/internal/runtime"
	"github.com/wisplang/wisp/internal/vm"
)

func disasm(t *testing.T, fn *bytecode.Function, rt *runtime.Runtime) string {
	t.Helper()
	var buf bytes.Buffer
	bytecode.Disassemble(&buf, fn.Name, fn.Chunk, rt)
	return buf.String()
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("print 1 + 2 * 3;"))
	require.NoError(t, err)

	out := disasm(t, fn, rt)
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "constant")
	assert.Contains(t, out, "multiply")
	assert.Contains(t, out, "add")
	assert.Contains(t, out, "print")
}

func TestCompileLeftAssociativeSubtraction(t *testing.T) {
	// (1 - 2) - 3 must emit subtract, subtract -- not the other grouping.
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("print 1 - 2 - 3;"))
	require.NoError(t, err)

	var subtracts []int
	for offset := 0; offset < len(fn.Chunk.Code); offset++ {
		if bytecode.Op(fn.Chunk.Code[offset]) == bytecode.OpSubtract {
			subtracts = append(subtracts, offset)
		}
	}
	assert.Len(t, subtracts, 2)

	var stdout bytes.Buffer
	machine := vm.New(rt, vm.WithOutput(&stdout))
	require.NoError(t, machine.Run(context.Background(), fn))
	assert.Equal(t, "-4\n", stdout.String())
}

func TestCompileRightAssociativeExponent(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("print 2 ** 3 ** 2;"))
	require.NoError(t, err)
	out := disasm(t, fn, rt)
	assert.Contains(t, out, "exponent")

	// 2 ** (3 ** 2) = 512; the left grouping would give 64.
	var stdout bytes.Buffer
	machine := vm.New(rt, vm.WithOutput(&stdout))
	require.NoError(t, machine.Run(context.Background(), fn))
	assert.Equal(t, "512\n", stdout.String())
}

func TestCompileGlobalDeclarationAndAssignment(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("var x = 1; x = 2; print x;"))
	require.NoError(t, err)
	out := disasm(t, fn, rt)
	assert.Contains(t, out, "define_global")
	assert.Contains(t, out, "set_global")
	assert.Contains(t, out, "get_global")
}

func TestCompileLetReassignmentIsError(t *testing.T) {
	rt := runtime.New()
	_, err := compiler.Compile(rt, []byte("let x = 1; x = 2;"))
	require.Error(t, err)
	var ce *compiler.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "immutable")
}

func TestCompileRedeclarationInSameLocalScopeIsError(t *testing.T) {
	rt := runtime.New()
	_, err := compiler.Compile(rt, []byte("fun f() { var a = 1; var a = 2; }"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCompileFunctionDeclaration(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("fun add(a, b) { return a + b; } print add(1, 2);"))
	require.NoError(t, err)
	out := disasm(t, fn, rt)
	assert.Contains(t, out, "call")
}

func TestCompileIfElseEmitsJumps(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("if (true) { print 1; } else { print 2; }"))
	require.NoError(t, err)
	out := disasm(t, fn, rt)
	assert.Contains(t, out, "jump_false")
	assert.Contains(t, out, "jump ")
}

func TestCompileWhileLoopsBack(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("var i = 0; while (i) { i = 0; }"))
	require.NoError(t, err)
	out := disasm(t, fn, rt)
	assert.Contains(t, out, "jump_false")
	// the closing jump goes back to the condition, which starts at offset 3
	assert.Contains(t, out, "-> 3\n")
}

func TestCompileSwitchFallthrough(t *testing.T) {
	rt := runtime.New()
	src := `
	var x = 1;
	switch x {
	case 1:
		print 1;
		fallthrough;
	case 2:
		print 2;
	default:
		print 3;
	}`
	fn, err := compiler.Compile(rt, []byte(src))
	require.NoError(t, err)
	out := disasm(t, fn, rt)
	assert.Contains(t, out, "dup")
	assert.Contains(t, out, "eq")

	var stdout bytes.Buffer
	machine := vm.New(rt, vm.WithOutput(&stdout))
	require.NoError(t, machine.Run(context.Background(), fn))
	assert.Equal(t, "1\n2\n", stdout.String())
}

// TestCompileSwitchSkipsEarlierFailedCases compiles and runs spec.md §8
// scenario 6 verbatim: a non-first, non-fallthrough case must still match
// after an earlier case's equality test fails.
func TestCompileSwitchSkipsEarlierFailedCases(t *testing.T) {
	rt := runtime.New()
	src := `
	switch 2 {
	case 1:
		print "a";
	case 2:
		print "b";
		fallthrough;
	case 3:
		print "c";
	default:
		print "d";
	}`
	fn, err := compiler.Compile(rt, []byte(src))
	require.NoError(t, err)

	var stdout bytes.Buffer
	machine := vm.New(rt, vm.WithOutput(&stdout))
	require.NoError(t, machine.Run(context.Background(), fn))
	assert.Equal(t, "b\nc\n", stdout.String())
}

func TestCompileSwitchWithNoCasesOnlyPopsSubject(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("switch 1 { default: print 1; }"))
	require.NoError(t, err)
	out := disasm(t, fn, rt)
	assert.Contains(t, out, "pop")
	assert.NotContains(t, out, "dup")
}

func TestCompileStringInterpolation(t *testing.T) {
	rt := runtime.New()
	fn, err := compiler.Compile(rt, []byte("var name = \"world\"; print \"hello ${name}!\";"))
	require.NoError(t, err)
	out := disasm(t, fn, rt)
	assert.Contains(t, out, "quote")
	assert.Contains(t, out, "multiply")
}

func TestCompileUndeclaredNameImplicitlyDeclaresGlobal(t *testing.T) {
	rt := runtime.New()
	_, err := compiler.Compile(rt, []byte("print undeclared;"))
	require.NoError(t, err)
}

func TestCompileReturnOutsideFunctionIsError(t *testing.T) {
	rt := runtime.New()
	_, err := compiler.Compile(rt, []byte("return 1;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside a function")
}

func TestCompileInvalidAssignmentTargetIsError(t *testing.T) {
	rt := runtime.New()
	_, err := compiler.Compile(rt, []byte("1 + 1 = 2;"))
	require.Error(t, err)
}
