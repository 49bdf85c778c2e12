package compiler

import "fmt"

// CompileError is the result of any compile-time failure: a lex error, a
// syntax error, or a semantic error such as assigning to a let-bound name.
// Compilation stops at the first one.
type CompileError struct {
	Line    int
	Lexeme  string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("!!! Compiler error, line %d (near `%s`): %s", e.Line, e.Lexeme, e.Message)
}
