// Package vm executes bytecode.Chunk programs: a fixed-size operand stack,
// a fixed-size call-frame stack, and the opcode dispatch loop described by
// the compiler's companion instruction set. The VM shares its runtime.Runtime
// (intern table, global namespace, object list) with whatever Compiler
// produced the program it runs.
package vm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wisplang/wisp/internal/bytecode"
	"github.com/wisplang/wisp/internal/flushio"
	"github.com/wisplang/wisp/internal/panicerr"
	"github.com/wisplang/wisp/internal/runtime"
	"github.com/wisplang/wisp/internal/value"
)

const (
	// StackSize bounds the operand stack; exceeding it is a runtime error.
	StackSize = 256
	// FramesMax bounds call nesting; exceeding it is a runtime error.
	FramesMax = 64

	// traceEvery throttles how often the run loop checks ctx for
	// cancellation, since a cooperative VM has no other suspension point.
	traceEvery = 4096
)

// VM is a single program's execution state.
type VM struct {
	rt *runtime.Runtime

	stack [StackSize]value.Value
	sp    int

	frames     [FramesMax]frame
	frameCount int

	out     flushio.WriteFlusher
	logfn   func(mess string, args ...interface{})
	trace   bool
	closers []closer
}

type closer interface{ Close() error }

// New returns a VM sharing rt with whatever Compiler produced the programs
// it will run, configured by opts.
func New(rt *runtime.Runtime, opts ...Option) *VM {
	vm := &VM{rt: rt}
	defaultOptions.apply(vm)
	Options(opts...).apply(vm)
	return vm
}

// Run executes fn (ordinarily the top-level script Function a Compiler
// returns) to completion, recovering any internal panic into a returned
// error the way the VM's own halt path does.
func (vm *VM) Run(ctx context.Context, fn *bytecode.Function) error {
	err := panicerr.Recover("VM", func() error {
		return vm.run(ctx, fn)
	})
	var he haltError
	if errors.As(err, &he) {
		return he.error
	}
	return err
}

func (vm *VM) run(ctx context.Context, fn *bytecode.Function) (err error) {
	defer func() {
		if vm.out != nil {
			vm.out.Flush()
		}
	}()

	vm.sp = 0
	vm.push(value.Nil()) // slot 0: the script's own "callee" placeholder
	vm.frames[0] = frame{fn: fn, ip: 0, slots: 0}
	vm.frameCount = 1

	vm.loop(ctx)
	return nil
}

func (vm *VM) push(v value.Value) {
	if vm.sp >= StackSize {
		vm.halt(0, "stack overflow")
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) value.Value { return vm.stack[vm.sp-1-distance] }

func (vm *VM) halt(line int, format string, args ...interface{}) {
	panic(haltError{&RuntimeError{Line: line, Message: fmt.Sprintf(format, args...)}})
}

// loop is the fetch-decode-execute cycle. It returns (via halt panic, caught
// by Run) on any runtime error, and returns normally when the top-level
// frame returns.
func (vm *VM) loop(ctx context.Context) {
	f := &vm.frames[vm.frameCount-1]
	instr := 0

	for {
		instr++
		if instr%traceEvery == 0 {
			select {
			case <-ctx.Done():
				vm.halt(f.fn.Chunk.LineAt(f.ip), "%v", ctx.Err())
			default:
			}
		}

		offset := f.ip
		op := bytecode.Op(f.fn.Chunk.Code[f.ip])
		f.ip++
		line := f.fn.Chunk.LineAt(offset)

		if vm.trace && vm.logfn != nil {
			vm.logfn("%04d %s", offset, op)
		}

		switch op {
		case bytecode.OpNil:
			vm.push(value.Nil())
		case bytecode.OpZero:
			vm.push(value.Number(0))
		case bytecode.OpOne:
			vm.push(value.Number(1))
		case bytecode.OpTrue:
			vm.push(value.True())
		case bytecode.OpFalse:
			vm.push(value.False())
		case bytecode.OpInfinity:
			vm.push(value.Number(math.Inf(1)))
		case bytecode.OpEpsilon:
			vm.push(value.Epsilon())
		case bytecode.OpConstant:
			idx := vm.readByte(f)
			vm.push(f.fn.Chunk.Constants[idx])

		case bytecode.OpNegate:
			v := vm.pop()
			if !v.IsNumber() {
				vm.halt(line, "operand must be a number")
			}
			vm.push(value.Number(-v.AsNumber()))
		case bytecode.OpNot:
			vm.push(value.Bool(!value.Truthy(vm.pop())))

		case bytecode.OpAdd:
			vm.numericBinary(line, func(a, b float64) float64 { return a + b })
		case bytecode.OpSubtract:
			vm.numericBinary(line, func(a, b float64) float64 { return a - b })
		case bytecode.OpDivide:
			vm.numericBinary(line, func(a, b float64) float64 { return a / b })
		case bytecode.OpMultiply:
			vm.multiply(line)
		case bytecode.OpExponent:
			vm.exponent(line)
		case bytecode.OpBars:
			vm.bars(line)
		case bytecode.OpQuote:
			v := vm.pop()
			vm.push(vm.rt.CopyString([]byte(value.Stringify(vm.rt, v))))

		case bytecode.OpEq:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case bytecode.OpNe:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(!value.Equal(a, b)))
		case bytecode.OpGt:
			vm.compare(line, func(a, b float64) bool { return a > b })
		case bytecode.OpGe:
			vm.compare(line, func(a, b float64) bool { return a >= b })
		case bytecode.OpLt:
			vm.compare(line, func(a, b float64) bool { return a < b })
		case bytecode.OpLe:
			vm.compare(line, func(a, b float64) bool { return a <= b })

		case bytecode.OpPrint:
			fmt.Fprintln(vm.out, value.Stringify(vm.rt, vm.pop()))
		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpDup:
			vm.push(vm.peek(0))

		case bytecode.OpDefineGlobal:
			idx := vm.readByte(f)
			vm.rt.Globals[idx] = vm.pop()
		case bytecode.OpGetGlobal:
			idx := vm.readByte(f)
			v := vm.rt.Globals[idx]
			if v.IsNone() {
				vm.halt(line, "undefined variable '%s'", vm.globalName(idx))
			}
			vm.push(v)
		case bytecode.OpSetGlobal:
			idx := vm.readByte(f)
			if vm.rt.Globals[idx].IsNone() {
				vm.halt(line, "undefined variable '%s'", vm.globalName(idx))
			}
			vm.rt.Globals[idx] = vm.peek(0)

		case bytecode.OpGetLocal:
			idx := vm.readByte(f)
			vm.push(vm.stack[f.slots+int(idx)])
		case bytecode.OpSetLocal:
			idx := vm.readByte(f)
			vm.stack[f.slots+int(idx)] = vm.peek(0)

		case bytecode.OpJump:
			vm.jump(f)
		case bytecode.OpJumpFalse:
			rel := vm.readJump(f)
			if !value.Truthy(vm.peek(0)) {
				f.ip += int(rel)
			}
		case bytecode.OpJumpTrue:
			rel := vm.readJump(f)
			if value.Truthy(vm.peek(0)) {
				f.ip += int(rel)
			}

		case bytecode.OpCall:
			argc := int(vm.readByte(f))
			vm.call(line, argc)
			f = &vm.frames[vm.frameCount-1]

		case bytecode.OpReturn:
			result := vm.pop()
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the top-level placeholder
				return
			}
			vm.sp = f.slots
			vm.push(result)
			f = &vm.frames[vm.frameCount-1]

		case bytecode.OpNop:

		default:
			vm.halt(line, "unknown opcode %d", op)
		}
	}
}

func (vm *VM) readByte(f *frame) byte {
	b := f.fn.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) jump(f *frame) {
	rel := vm.readJump(f)
	f.ip += int(rel)
}

func (vm *VM) readJump(f *frame) int16 {
	rel := bytecode.ReadJump(f.fn.Chunk.Code, f.ip)
	f.ip += 2
	return rel
}

func (vm *VM) globalName(idx byte) string {
	if name, ok := vm.rt.GlobalName(idx); ok {
		return name
	}
	return "?"
}

func (vm *VM) numericBinary(line int, op func(a, b float64) float64) {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		vm.halt(line, "operands must be numbers")
	}
	vm.push(value.Number(op(a.AsNumber(), b.AsNumber())))
}

func (vm *VM) compare(line int, op func(a, b float64) bool) {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		vm.halt(line, "operands must be numbers")
	}
	vm.push(value.Bool(op(a.AsNumber(), b.AsNumber())))
}

func (vm *VM) multiply(line int) {
	b, a := vm.pop(), vm.pop()
	if a.IsString() && b.IsString() {
		vm.push(vm.concat(a, b))
		return
	}
	if !a.IsNumber() || !b.IsNumber() {
		vm.halt(line, "operands must both be numbers or both be strings")
	}
	vm.push(value.Number(a.AsNumber() * b.AsNumber()))
}

func (vm *VM) concat(a, b value.Value) value.Value {
	packed, pending := value.Concatenate(vm.rt, a, b)
	if pending != nil {
		return vm.rt.InternString(pending)
	}
	return packed
}

func (vm *VM) exponent(line int) {
	b, a := vm.pop(), vm.pop()
	if a.IsString() {
		if !b.IsNumber() {
			vm.halt(line, "string repeat count must be a number")
		}
		packed, pending := value.StringExponent(vm.rt, a, b.AsNumber())
		if pending != nil {
			vm.push(vm.rt.InternString(pending))
		} else {
			vm.push(packed)
		}
		return
	}
	if !a.IsNumber() || !b.IsNumber() {
		vm.halt(line, "operands must be numbers or a string base")
	}
	vm.push(value.Number(math.Pow(a.AsNumber(), b.AsNumber())))
}

func (vm *VM) bars(line int) {
	v := vm.pop()
	switch {
	case v.IsString():
		vm.push(value.Number(float64(len(value.Bytes(vm.rt, v, make([]byte, 0, 8))))))
	case v.IsNumber():
		n := v.AsNumber()
		if n < 0 {
			n = -n
		}
		vm.push(value.Number(n))
	default:
		vm.halt(line, "operand to '|...|' must be a string or number")
	}
}

// call implements the call protocol: callee and its n arguments sit on the
// operand stack as […, callee, a1, …, aN].
func (vm *VM) call(line, argc int) {
	calleeVal := vm.peek(argc)
	if !calleeVal.IsPointer() {
		vm.halt(line, "can only call functions")
	}
	fn, ok := vm.rt.Object(calleeVal).(*bytecode.Function)
	if !ok {
		vm.halt(line, "can only call functions")
	}

	if argc != fn.Arity {
		vm.halt(line, "expected %d arguments but got %d", fn.Arity, argc)
	}

	if fn.Native != nil {
		argv := vm.stack[vm.sp-argc : vm.sp]
		result := fn.Native(argv)
		vm.sp -= argc + 1
		vm.push(result)
		return
	}

	if vm.frameCount == FramesMax {
		vm.halt(line, "stack overflow")
	}
	vm.frames[vm.frameCount] = frame{fn: fn, ip: 0, slots: vm.sp - argc - 1}
	vm.frameCount++
}

// Close flushes print output and closes the closers opts registered (an
// io.Closer given to WithOutput). The shared Runtime is left open.
func (vm *VM) Close() error {
	var err error
	if vm.out != nil {
		if ferr := vm.out.Flush(); err == nil {
			err = ferr
		}
	}
	for _, cl := range vm.closers {
		if cerr := cl.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
