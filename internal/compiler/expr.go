package compiler

import (
	"strconv"

	"github.com/wisplang/wisp/internal/bytecode"
	"github.com/wisplang/wisp/internal/lexer"
	"github.com/wisplang/wisp/internal/value"
)

// precedence is a Pratt parser's binding power, lowest to highest exactly
// as ordered: eof < none < interpolation < or < and < equality <
// inequality < addition < multiplication < exponentiation < call < unary.
type precedence int

const (
	precEOF precedence = iota
	precNone
	precInterpolation
	precOr
	precAnd
	precEquality
	precInequality
	precAddition
	precMultiplication
	precExponentiation
	precCall
	precUnary
)

type parseRule struct {
	nud  func(c *Compiler, canAssign bool)
	led  func(c *Compiler)
	prec precedence
}

var rules map[lexer.Kind]parseRule

func init() {
	rules = map[lexer.Kind]parseRule{
		lexer.TokenLeftParen:    {nud: groupingNud, led: callLed, prec: precCall},
		lexer.TokenMinus:        {nud: negateNud, led: binaryLed, prec: precAddition},
		lexer.TokenPlus:         {led: binaryLed, prec: precAddition},
		lexer.TokenStar:         {led: binaryLed, prec: precMultiplication},
		lexer.TokenSlash:        {led: binaryLed, prec: precMultiplication},
		lexer.TokenStarStar:     {led: binaryLed, prec: precExponentiation},
		lexer.TokenBang:         {nud: notNud},
		lexer.TokenQuote:        {nud: quoteNud},
		lexer.TokenBar:          {nud: barsNud},
		lexer.TokenEqualEqual:   {led: binaryLed, prec: precEquality},
		lexer.TokenBangEqual:    {led: binaryLed, prec: precEquality},
		lexer.TokenGreater:      {led: binaryLed, prec: precInequality},
		lexer.TokenGreaterEqual: {led: binaryLed, prec: precInequality},
		lexer.TokenLess:         {led: binaryLed, prec: precInequality},
		lexer.TokenLessEqual:    {led: binaryLed, prec: precInequality},
		lexer.TokenAnd:          {led: andLed, prec: precAnd},
		lexer.TokenOr:           {led: orLed, prec: precOr},
		lexer.TokenNumber:       {nud: numberNud},
		lexer.TokenString:       {nud: stringNud},
		lexer.TokenStringPrefix: {nud: stringPrefixNud},
		lexer.TokenInfinity:     {nud: infinityNud},
		lexer.TokenTrue:         {nud: trueNud},
		lexer.TokenFalse:        {nud: falseNud},
		lexer.TokenNil:          {nud: nilNud},
		lexer.TokenIdentifier:   {nud: identifierNud},
	}
}

// expression parses at prec, the caller's binding power.
func (c *Compiler) expression(prec precedence) { c.parsePrecedence(prec) }

// parsePrecedence implements the Pratt loop: consume the current token's
// nud, then while the next token's precedence strictly exceeds prec,
// consume its led.
func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	rule, ok := rules[c.prev.Kind]
	if !ok || rule.nud == nil {
		panic(c.errorAtPrev("expect expression"))
	}
	canAssign := prec <= precNone
	rule.nud(c, canAssign)

	for {
		next, ok := rules[c.cur.Kind]
		if !ok || next.led == nil || next.prec <= prec {
			break
		}
		c.advance()
		next.led(c)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		panic(c.errorAtPrev("invalid assignment target"))
	}
}

func groupingNud(c *Compiler, _ bool) {
	c.expression(precNone)
	c.expect(lexer.TokenRightParen, "expect ')' after expression")
}

func negateNud(c *Compiler, _ bool) {
	c.expression(precUnary)
	c.emitByte(bytecode.OpNegate)
}

func notNud(c *Compiler, _ bool) {
	c.expression(precUnary)
	c.emitByte(bytecode.OpNot)
}

func quoteNud(c *Compiler, _ bool) {
	c.expression(precUnary)
	c.emitByte(bytecode.OpQuote)
}

func barsNud(c *Compiler, _ bool) {
	c.expression(precNone)
	c.expect(lexer.TokenBar, "expect closing '|'")
	c.emitByte(bytecode.OpBars)
}

func numberNud(c *Compiler, _ bool) {
	f, err := strconv.ParseFloat(c.prev.Lexeme, 64)
	if err != nil {
		panic(c.errorAtPrev("invalid number literal"))
	}
	switch f {
	case 0:
		c.emitByte(bytecode.OpZero)
	case 1:
		c.emitByte(bytecode.OpOne)
	default:
		c.emitConstant(value.Number(f))
	}
}

func trueNud(c *Compiler, _ bool)     { c.emitByte(bytecode.OpTrue) }
func falseNud(c *Compiler, _ bool)    { c.emitByte(bytecode.OpFalse) }
func nilNud(c *Compiler, _ bool)      { c.emitByte(bytecode.OpNil) }
func infinityNud(c *Compiler, _ bool) { c.emitByte(bytecode.OpInfinity) }

func stringNud(c *Compiler, _ bool) { c.emitSegment(c.prev.Lexeme) }

// stringPrefixNud compiles a (possibly nested) interpolated string: the
// opening segment, then for each splice the embedded expression stringified
// (op_quote) and concatenated (op_multiply) with the running result, ending
// at a string_suffix.
func stringPrefixNud(c *Compiler, _ bool) {
	c.emitSegment(c.prev.Lexeme)
	for {
		c.expression(precInterpolation)
		c.emitByte(bytecode.OpQuote)
		c.emitByte(bytecode.OpMultiply)

		if c.match(lexer.TokenStringInfix) {
			c.emitSegment(c.prev.Lexeme)
			c.emitByte(bytecode.OpMultiply)
			continue
		}
		c.expect(lexer.TokenStringSuffix, "expect closing string segment")
		c.emitSegment(c.prev.Lexeme)
		c.emitByte(bytecode.OpMultiply)
		return
	}
}

func identifierNud(c *Compiler, canAssign bool) {
	nameTok := c.prev
	isLocal, slot, mutable := c.resolveVariable(nameTok)

	if canAssign && c.match(lexer.TokenEqual) {
		if !mutable {
			panic(c.errorAt(nameTok, "cannot assign to an immutable variable"))
		}
		c.expression(precNone)
		if isLocal {
			c.emitBytes(bytecode.OpSetLocal, slot)
		} else {
			c.emitBytes(bytecode.OpSetGlobal, slot)
		}
		return
	}

	if isLocal {
		c.emitBytes(bytecode.OpGetLocal, slot)
	} else {
		c.emitBytes(bytecode.OpGetGlobal, slot)
	}
}

var binaryOps = map[lexer.Kind]bytecode.Op{
	lexer.TokenPlus:         bytecode.OpAdd,
	lexer.TokenMinus:        bytecode.OpSubtract,
	lexer.TokenStar:         bytecode.OpMultiply,
	lexer.TokenSlash:        bytecode.OpDivide,
	lexer.TokenStarStar:     bytecode.OpExponent,
	lexer.TokenEqualEqual:   bytecode.OpEq,
	lexer.TokenBangEqual:    bytecode.OpNe,
	lexer.TokenGreater:      bytecode.OpGt,
	lexer.TokenGreaterEqual: bytecode.OpGe,
	lexer.TokenLess:         bytecode.OpLt,
	lexer.TokenLessEqual:    bytecode.OpLe,
}

// binaryLed compiles a binary operator's RHS and emits its opcode. `**` is
// right-associative, so its RHS is parsed one precedence level lower,
// letting a following `**` recurse into the same led call instead of
// stopping at it.
func binaryLed(c *Compiler) {
	opTok := c.prev
	rule := rules[opTok.Kind]
	rhsPrec := rule.prec
	if opTok.Kind == lexer.TokenStarStar {
		rhsPrec--
	}
	c.expression(rhsPrec)
	c.emitByte(binaryOps[opTok.Kind])
}

func andLed(c *Compiler) {
	endJump := c.emitJump(bytecode.OpJumpFalse)
	c.emitByte(bytecode.OpPop)
	c.expression(precAnd)
	c.chunk.PatchJump(endJump)
}

func orLed(c *Compiler) {
	endJump := c.emitJump(bytecode.OpJumpTrue)
	c.emitByte(bytecode.OpPop)
	c.expression(precOr)
	c.chunk.PatchJump(endJump)
}

func callLed(c *Compiler) {
	argc := 0
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression(precNone)
			argc++
			if argc > 255 {
				panic(c.errorAtPrev("too many arguments"))
			}
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.expect(lexer.TokenRightParen, "expect ')' after arguments")
	c.emitBytes(bytecode.OpCall, byte(argc))
}
