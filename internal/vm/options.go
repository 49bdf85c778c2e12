package vm

import (
	"io"
	"io/ioutil"

	"github.com/wisplang/wisp/internal/flushio"
)

// Option configures a VM at construction, following the same combinable
// functional-options shape as the rest of this codebase's configurable
// types.
type Option interface{ apply(vm *VM) }

var defaultOptions = Options(
	withOutput(ioutil.Discard),
)

// Options flattens and normalizes opts, the same way nested VMOptions calls
// do elsewhere in this codebase.
func Options(opts ...Option) Option {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(*VM) {}

type options []Option

func (opts options) apply(vm *VM) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
}

// WithOutput directs `print` output to w.
func WithOutput(w io.Writer) Option { return withOutput(w) }

// WithTrace enables a per-instruction disassembly trace, written through
// the logf given to WithLogf (or discarded if none was given).
func WithTrace(enabled bool) Option { return withTrace(enabled) }

// WithLogf supplies the trace sink; without it WithTrace has no effect.
func WithLogf(logfn func(mess string, args ...interface{})) Option { return withLogfn(logfn) }

type outputOption struct{ io.Writer }
type traceOption bool
type withLogfn func(mess string, args ...interface{})

func withOutput(w io.Writer) outputOption { return outputOption{w} }
func withTrace(b bool) traceOption        { return traceOption(b) }

func (o outputOption) apply(vm *VM) {
	vm.out = flushio.NewWriteFlusher(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

func (t traceOption) apply(vm *VM) { vm.trace = bool(t) }

func (logfn withLogfn) apply(vm *VM) { vm.logfn = logfn }
