// Package fileinput resolves the CLI's single source argument -- a path, or
// "-" / no argument for standard input -- into the complete byte slice the
// single-pass compiler consumes.
package fileinput

import (
	"io"
	"io/ioutil"
	"os"
)

// Read loads the program source named by arg: a file path, "-" for
// standard input, or "" (no positional argument given) also meaning
// standard input. It returns the source bytes and a name suitable for
// disassembly headers and diagnostics.
func Read(arg string) (src []byte, name string, err error) {
	if arg == "" || arg == "-" {
		b, err := ioutil.ReadAll(os.Stdin)
		return b, "<stdin>", err
	}

	f, err := os.Open(arg)
	if err != nil {
		return nil, arg, err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	return b, arg, err
}
