// Command wisp compiles and runs a single wisp source file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wisplang/wisp/internal/bytecode"
	"github.com/wisplang/wisp/internal/compiler"
	"github.com/wisplang/wisp/internal/fileinput"
	"github.com/wisplang/wisp/internal/logio"
	"github.com/wisplang/wisp/internal/runtime"
	"github.com/wisplang/wisp/internal/vm"
)

func main() {
	var (
		trace   bool
		dump    bool
		timeout time.Duration
	)
	flag.BoolVar(&trace, "trace", false, "enable per-instruction trace logging")
	flag.BoolVar(&dump, "dump", false, "print a bytecode disassembly before running")
	flag.DurationVar(&timeout, "timeout", 0, "specify a time limit")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer func() { os.Exit(log.ExitCode()) }()

	src, name, err := fileinput.Read(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.Errorf("reading %s", name)
		return
	}

	rt := runtime.New()
	defer rt.Close()
	vm.RegisterBuiltins(rt)

	fn, err := compiler.Compile(rt, src)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.Errorf("compile failed")
		return
	}

	if dump {
		bytecode.Disassemble(os.Stderr, name, fn.Chunk, rt)
	}

	opts := []vm.Option{vm.WithOutput(os.Stdout)}
	if trace {
		opts = append(opts, vm.WithTrace(true), vm.WithLogf(log.Leveledf("TRACE")))
	}
	machine := vm.New(rt, opts...)
	defer machine.Close()

	ctx := context.Background()
	if timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := machine.Run(ctx, fn); err != nil && err != io.EOF {
		fmt.Fprintln(os.Stderr, err)
		log.Errorf("run failed")
	}
}
