// Package compiler implements the single-pass Pratt compiler: it consumes
// a Lexer's token stream and emits bytecode directly into a bytecode.Chunk,
// with no intermediate AST. Compiler shares the Runtime's intern table and
// global namespace with the VM, per the narrow interface runtime.Runtime
// exposes for that purpose.
package compiler

import (
	"github.com/wisplang/wisp/internal/bytecode"
	"github.com/wisplang/wisp/internal/hamt"
	"github.com/wisplang/wisp/internal/lexer"
	"github.com/wisplang/wisp/internal/runtime"
	"github.com/wisplang/wisp/internal/value"
)

// maxLocalSlots bounds a function's locals to 254 (slot 0 is always
// reserved for the callee/script value itself, per the call protocol).
const maxLocalSlots = 255

// Compiler compiles one function body (or, for the root instance, the
// top-level script) into its own Chunk. Nested `fun` declarations spawn a
// child Compiler that shares the parent's Lexer so the single token stream
// continues unbroken across the nested compile.
type Compiler struct {
	rt  *runtime.Runtime
	lex *lexer.Lexer

	chunk *bytecode.Chunk

	cur, prev lexer.Token

	scopes     []*hamt.HAMT
	localMarks []int
	localCount int

	funcDepth int

	breakJumps   []int
	pendingFall  int
	prevCaseFail int
}

// Compile compiles src as a complete program and returns its top-level
// Function (a script, called like any other, per the call protocol: its
// Frame.slots starts at a synthetic slot 0 reserved the same as any call).
func Compile(rt *runtime.Runtime, src []byte) (fn *bytecode.Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*CompileError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	c := &Compiler{
		rt:           rt,
		lex:          lexer.New(src),
		chunk:        bytecode.NewChunk(),
		localCount:   1,
		pendingFall:  -1,
		prevCaseFail: -1,
	}
	c.scopes = []*hamt.HAMT{rt.GlobalScope}

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}
	c.emitByte(bytecode.OpNil)
	c.emitByte(bytecode.OpReturn)

	return &bytecode.Function{Arity: 0, Name: "<script>", Chunk: c.chunk}, nil
}

func newFunctionCompiler(enclosing *Compiler) *Compiler {
	c := &Compiler{
		rt:           enclosing.rt,
		lex:          enclosing.lex,
		chunk:        bytecode.NewChunk(),
		localCount:   1,
		funcDepth:    enclosing.funcDepth + 1,
		pendingFall:  -1,
		prevCaseFail: -1,
		cur:          enclosing.cur,
		prev:         enclosing.prev,
	}
	c.scopes = []*hamt.HAMT{enclosing.rt.NewScope(nil)}
	return c
}

// --- token stream helpers ---

func (c *Compiler) advance() {
	c.prev = c.cur
	c.cur = c.lex.Next()
	if c.cur.Kind == lexer.TokenError {
		panic(c.errorAtCurrent(c.cur.Lexeme))
	}
}

func (c *Compiler) check(k lexer.Kind) bool { return c.cur.Kind == k }

func (c *Compiler) match(k lexer.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) expect(k lexer.Kind, msg string) {
	if !c.check(k) {
		panic(c.errorAtCurrent(msg))
	}
	c.advance()
}

func (c *Compiler) errorAt(tok lexer.Token, msg string) *CompileError {
	return &CompileError{Line: tok.Line, Lexeme: tok.Lexeme, Message: msg}
}

func (c *Compiler) errorAtCurrent(msg string) *CompileError { return c.errorAt(c.cur, msg) }
func (c *Compiler) errorAtPrev(msg string) *CompileError    { return c.errorAt(c.prev, msg) }

// --- emission helpers ---

func (c *Compiler) emitByte(op bytecode.Op) { c.chunk.AddByte(byte(op), c.prev.Line) }
func (c *Compiler) emitRaw(b byte)          { c.chunk.AddByte(b, c.prev.Line) }
func (c *Compiler) emitBytes(op bytecode.Op, operand byte) {
	c.emitByte(op)
	c.emitRaw(operand)
}

func (c *Compiler) emitConstant(v value.Value) {
	idx, err := c.chunk.AddConstant(c.rt, v)
	if err != nil {
		panic(c.errorAtPrev(err.Error()))
	}
	c.emitBytes(bytecode.OpConstant, idx)
}

func (c *Compiler) emitSegment(s string) {
	if s == "" {
		c.emitByte(bytecode.OpEpsilon)
		return
	}
	c.emitConstant(c.rt.CopyString([]byte(s)))
}

// emitJump reserves a two-byte placeholder operand for op and returns its
// offset, to be resolved later by chunk.PatchJump.
func (c *Compiler) emitJump(op bytecode.Op) int {
	c.emitByte(op)
	c.emitRaw(0xff)
	c.emitRaw(0xff)
	return len(c.chunk.Code) - 2
}

// emitLoop emits an unconditional jump back to start, an already-known
// target, so unlike emitJump its operand is written immediately.
func (c *Compiler) emitLoop(start int) {
	c.emitByte(bytecode.OpJump)
	offset := start - (len(c.chunk.Code) + 2)
	c.emitRaw(byte(uint16(int16(offset)) >> 8))
	c.emitRaw(byte(uint16(int16(offset))))
}

// --- scope management ---

func (c *Compiler) currentScope() *hamt.HAMT { return c.scopes[len(c.scopes)-1] }

func (c *Compiler) isGlobalScope() bool { return c.funcDepth == 0 && len(c.scopes) == 1 }

func (c *Compiler) beginScope() {
	// A block opened directly at top level starts empty: globals are only
	// ever reached through the runtime, never through a local scope.
	var parent *hamt.HAMT
	if !c.isGlobalScope() {
		parent = c.currentScope()
	}
	c.scopes = append(c.scopes, c.rt.NewScope(parent))
	c.localMarks = append(c.localMarks, c.localCount)
}

func (c *Compiler) endScope() {
	mark := c.localMarks[len(c.localMarks)-1]
	c.localMarks = c.localMarks[:len(c.localMarks)-1]
	for n := c.localCount - mark; n > 0; n-- {
		c.emitByte(bytecode.OpPop)
	}
	c.localCount = mark

	top := c.scopes[len(c.scopes)-1]
	c.scopes = c.scopes[:len(c.scopes)-1]
	hamt.Free(top)
}

// declareVariable binds nameTok's text in the current scope (the shared
// global namespace when at global scope, else this function's innermost
// local block) and returns whether it landed as a local, plus its slot.
func (c *Compiler) declareVariable(nameTok lexer.Token, mutable bool) (isLocal bool, slot byte) {
	name := c.rt.CopyString([]byte(nameTok.Lexeme))

	if c.isGlobalScope() {
		s, _ := c.rt.DeclareGlobal(name, mutable)
		return false, s
	}

	scope := c.currentScope()
	if existing := scope.Get(c.rt, name); !existing.IsNone() {
		panic(c.errorAt(nameTok, "a variable with this name already exists in this scope"))
	}
	if c.localCount >= maxLocalSlots {
		panic(c.errorAt(nameTok, "too many local variables in one function"))
	}
	s := byte(c.localCount)
	c.localCount++
	varPtr, _ := c.rt.NewVar(s, mutable, false)
	if err := scope.Set(c.rt, name, varPtr); err != nil {
		panic(c.errorAt(nameTok, err.Error()))
	}
	return true, s
}

// resolveVariable finds an already-declared name, searching this
// function's local scopes innermost-first and falling back to the shared
// global namespace, implicitly declaring a fresh (mutable) global the
// first time a never-seen name is referenced.
func (c *Compiler) resolveVariable(nameTok lexer.Token) (isLocal bool, slot byte, mutable bool) {
	name := c.rt.CopyString([]byte(nameTok.Lexeme))

	limit := 0
	if c.funcDepth == 0 {
		limit = 1 // scopes[0] at top level IS the shared global map; skip it here
	}
	for i := len(c.scopes) - 1; i >= limit; i-- {
		if v := c.scopes[i].Get(c.rt, name); !v.IsNone() {
			vr := c.rt.VarAt(v)
			return true, vr.SlotIndex, vr.Mutable
		}
	}
	if vr, ok := c.rt.ResolveGlobal(name); ok {
		return false, vr.SlotIndex, vr.Mutable
	}
	s, _ := c.rt.DeclareGlobal(name, true)
	return false, s, true
}

// --- statement dispatch ---

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenVar):
		c.varDeclaration(true)
	case c.match(lexer.TokenLet):
		c.varDeclaration(false)
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	default:
		c.statement()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenSwitch):
		c.switchStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenPrint):
		c.printStatement()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.expect(lexer.TokenRightBrace, "expect '}' after block")
}

func (c *Compiler) varDeclaration(mutable bool) {
	c.expect(lexer.TokenIdentifier, "expect variable name")
	nameTok := c.prev

	if c.match(lexer.TokenEqual) {
		c.expression(precNone)
	} else {
		c.emitByte(bytecode.OpNil)
	}
	c.expect(lexer.TokenSemicolon, "expect ';' after variable declaration")

	isLocal, slot := c.declareVariable(nameTok, mutable)
	if !isLocal {
		c.emitBytes(bytecode.OpDefineGlobal, slot)
	}
	// A local's initializer value is already sitting in its slot on the
	// operand stack; nothing further to emit.
}

func (c *Compiler) funDeclaration() {
	c.expect(lexer.TokenIdentifier, "expect function name")
	nameTok := c.prev

	// Declared before the body compiles so the function can call itself.
	isLocal, slot := c.declareVariable(nameTok, false)

	child := newFunctionCompiler(c)
	child.expect(lexer.TokenLeftParen, "expect '(' after function name")
	arity := 0
	if !child.check(lexer.TokenRightParen) {
		for {
			child.expect(lexer.TokenIdentifier, "expect parameter name")
			arity++
			child.declareVariable(child.prev, true)
			if !child.match(lexer.TokenComma) {
				break
			}
		}
	}
	child.expect(lexer.TokenRightParen, "expect ')' after parameters")
	child.expect(lexer.TokenLeftBrace, "expect '{' before function body")
	child.beginScope()
	child.block()
	child.endScope()
	child.emitImplicitReturn()

	// The child consumed tokens from the shared lexer; resume from there.
	c.cur, c.prev = child.cur, child.prev

	fn := &bytecode.Function{Arity: arity, Name: nameTok.Lexeme, Chunk: child.chunk}
	c.emitConstant(c.rt.AddObject(fn))
	if !isLocal {
		c.emitBytes(bytecode.OpDefineGlobal, slot)
	}
}

func (c *Compiler) emitImplicitReturn() {
	n := len(c.chunk.Code)
	if n == 0 || bytecode.Op(c.chunk.Code[n-1]) != bytecode.OpReturn {
		c.emitByte(bytecode.OpNil)
		c.emitByte(bytecode.OpReturn)
	}
}

func (c *Compiler) returnStatement() {
	if c.funcDepth == 0 {
		panic(c.errorAtPrev("cannot return outside a function body"))
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitByte(bytecode.OpNil)
	} else {
		c.expression(precNone)
		c.expect(lexer.TokenSemicolon, "expect ';' after return value")
	}
	c.emitByte(bytecode.OpReturn)
}

func (c *Compiler) printStatement() {
	c.expression(precNone)
	c.expect(lexer.TokenSemicolon, "expect ';' after value")
	c.emitByte(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression(precNone)
	c.expect(lexer.TokenSemicolon, "expect ';' after expression")
	c.emitByte(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.expression(precNone)
	thenJump := c.emitJump(bytecode.OpJumpFalse)
	c.emitByte(bytecode.OpPop)
	c.statement()

	if c.match(lexer.TokenElse) {
		elseJump := c.emitJump(bytecode.OpJump)
		c.chunk.PatchJump(thenJump)
		c.emitByte(bytecode.OpPop)
		c.statement()
		c.chunk.PatchJump(elseJump)
	} else {
		c.chunk.PatchJump(thenJump)
		c.emitByte(bytecode.OpPop)
	}
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk.Code)
	c.expression(precNone)
	exitJump := c.emitJump(bytecode.OpJumpFalse)
	c.emitByte(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)
	c.chunk.PatchJump(exitJump)
	c.emitByte(bytecode.OpPop)
}

// forStatement emits the conventional C-like shape (initialise, test,
// body, update, test) rather than mirroring any particular source layout.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.expect(lexer.TokenLeftParen, "expect '(' after 'for'")

	switch {
	case c.match(lexer.TokenSemicolon):
	case c.match(lexer.TokenVar):
		c.varDeclaration(true)
	case c.match(lexer.TokenLet):
		c.varDeclaration(false)
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk.Code)
	exitJump := -1
	if !c.check(lexer.TokenSemicolon) {
		c.expression(precNone)
		exitJump = c.emitJump(bytecode.OpJumpFalse)
		c.emitByte(bytecode.OpPop)
	}
	c.expect(lexer.TokenSemicolon, "expect ';' after loop condition")

	if !c.check(lexer.TokenRightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrStart := len(c.chunk.Code)
		c.expression(precNone)
		c.emitByte(bytecode.OpPop)
		c.expect(lexer.TokenRightParen, "expect ')' after for clauses")
		c.emitLoop(loopStart)
		loopStart = incrStart
		c.chunk.PatchJump(bodyJump)
	} else {
		c.expect(lexer.TokenRightParen, "expect ')' after for clauses")
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.chunk.PatchJump(exitJump)
		c.emitByte(bytecode.OpPop)
	}
	c.endScope()
}

// switchStatement compiles `switch E { case C: S ... [default: S] }`. Each
// case tests a duplicated subject for equality; a matched case falls
// through to the next case's body only when its last statement is an
// explicit `fallthrough;`, otherwise it jumps past the whole construct.
func (c *Compiler) switchStatement() {
	c.expression(precNone)
	c.expect(lexer.TokenLeftBrace, "expect '{' after switch subject")

	savedBreaks, savedFall, savedFail := c.breakJumps, c.pendingFall, c.prevCaseFail
	c.breakJumps, c.pendingFall, c.prevCaseFail = nil, -1, -1
	defer func() {
		c.breakJumps, c.pendingFall, c.prevCaseFail = savedBreaks, savedFall, savedFail
	}()

	caseCount := 0
	for c.match(lexer.TokenCase) {
		if c.prevCaseFail != -1 {
			c.chunk.PatchJump(c.prevCaseFail)
			c.prevCaseFail = -1
			c.emitByte(bytecode.OpPop) // eq result left by the failed previous case
		}
		caseCount++

		c.emitByte(bytecode.OpDup)
		c.expression(precNone)
		c.expect(lexer.TokenColon, "expect ':' after case value")
		c.emitByte(bytecode.OpEq)
		c.prevCaseFail = c.emitJump(bytecode.OpJumpFalse)
		c.emitByte(bytecode.OpPop) // the eq result (true)
		c.emitByte(bytecode.OpPop) // the duplicated subject

		if c.pendingFall != -1 {
			c.chunk.PatchJump(c.pendingFall)
			c.pendingFall = -1
		}

		for !c.check(lexer.TokenCase) && !c.check(lexer.TokenDefault) &&
			!c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenFallthrough) {
			c.declaration()
		}

		if c.match(lexer.TokenFallthrough) {
			c.expect(lexer.TokenSemicolon, "expect ';' after 'fallthrough'")
			c.pendingFall = c.emitJump(bytecode.OpJump)
		} else {
			c.breakJumps = append(c.breakJumps, c.emitJump(bytecode.OpJump))
		}
	}

	if c.match(lexer.TokenDefault) {
		c.expect(lexer.TokenColon, "expect ':' after 'default'")
		if caseCount > 0 {
			c.chunk.PatchJump(c.prevCaseFail)
			c.prevCaseFail = -1
			c.emitByte(bytecode.OpPop)
			c.emitByte(bytecode.OpPop)
		} else {
			c.emitByte(bytecode.OpPop) // subject alone, never tested
		}
		if c.pendingFall != -1 {
			c.chunk.PatchJump(c.pendingFall)
			c.pendingFall = -1
		}
		for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
			c.declaration()
		}
	} else {
		if caseCount > 0 {
			c.chunk.PatchJump(c.prevCaseFail)
			c.prevCaseFail = -1
			c.emitByte(bytecode.OpPop)
			c.emitByte(bytecode.OpPop)
		} else {
			c.emitByte(bytecode.OpPop)
		}
		if c.pendingFall != -1 {
			c.chunk.PatchJump(c.pendingFall)
			c.pendingFall = -1
		}
	}

	c.expect(lexer.TokenRightBrace, "expect '}' after switch body")
	for _, b := range c.breakJumps {
		c.chunk.PatchJump(b)
	}
}
