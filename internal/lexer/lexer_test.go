package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisplang/wisp/internal/lexer"
)

func tokenKinds(t *testing.T, src string) ([]lexer.Kind, []string) {
	t.Helper()
	l := lexer.New([]byte(src))
	var kinds []lexer.Kind
	var lexemes []string
	for {
		tok := l.Next()
		kinds = append(kinds, tok.Kind)
		lexemes = append(lexemes, tok.Lexeme)
		if tok.Kind == lexer.TokenEOF || tok.Kind == lexer.TokenError {
			break
		}
	}
	return kinds, lexemes
}

func TestSimpleTokens(t *testing.T) {
	kinds, _ := tokenKinds(t, "var x = 1 + 2;")
	require.Equal(t, []lexer.Kind{
		lexer.TokenVar, lexer.TokenIdentifier, lexer.TokenEqual,
		lexer.TokenNumber, lexer.TokenPlus, lexer.TokenNumber,
		lexer.TokenSemicolon, lexer.TokenEOF,
	}, kinds)
}

func TestOperators(t *testing.T) {
	kinds, _ := tokenKinds(t, "** <= == != >= ! = < >")
	require.Equal(t, []lexer.Kind{
		lexer.TokenStarStar, lexer.TokenLessEqual, lexer.TokenEqualEqual,
		lexer.TokenBangEqual, lexer.TokenGreaterEqual, lexer.TokenBang,
		lexer.TokenEqual, lexer.TokenLess, lexer.TokenGreater, lexer.TokenEOF,
	}, kinds)
}

func TestComment(t *testing.T) {
	kinds, _ := tokenKinds(t, "1 // a comment\n2")
	require.Equal(t, []lexer.Kind{lexer.TokenNumber, lexer.TokenNumber, lexer.TokenEOF}, kinds)
}

func TestInfinityLiteral(t *testing.T) {
	kinds, lexemes := tokenKinds(t, "∞")
	require.Equal(t, []lexer.Kind{lexer.TokenInfinity, lexer.TokenEOF}, kinds)
	assert.Equal(t, "∞", lexemes[0])
}

func TestUnknownByteIsError(t *testing.T) {
	kinds, _ := tokenKinds(t, string([]byte{0xff}))
	require.Equal(t, lexer.TokenError, kinds[0])
}

func TestPlainString(t *testing.T) {
	kinds, lexemes := tokenKinds(t, `"hello"`)
	require.Equal(t, []lexer.Kind{lexer.TokenString, lexer.TokenEOF}, kinds)
	assert.Equal(t, "hello", lexemes[0])
}

func TestUnterminatedString(t *testing.T) {
	kinds, _ := tokenKinds(t, `"hello`)
	require.Equal(t, lexer.TokenError, kinds[0])
}

func TestSimpleInterpolation(t *testing.T) {
	kinds, lexemes := tokenKinds(t, `"x is ${x}!"`)
	require.Equal(t, []lexer.Kind{
		lexer.TokenStringPrefix, lexer.TokenIdentifier, lexer.TokenStringSuffix, lexer.TokenEOF,
	}, kinds)
	assert.Equal(t, "x is ", lexemes[0])
	assert.Equal(t, "x", lexemes[1])
	assert.Equal(t, "!", lexemes[2])
}

func TestMultipleSplices(t *testing.T) {
	kinds, lexemes := tokenKinds(t, `"a${1}b${2}c"`)
	require.Equal(t, []lexer.Kind{
		lexer.TokenStringPrefix, lexer.TokenNumber, lexer.TokenStringInfix,
		lexer.TokenNumber, lexer.TokenStringSuffix, lexer.TokenEOF,
	}, kinds)
	assert.Equal(t, "a", lexemes[0])
	assert.Equal(t, "b", lexemes[2])
	assert.Equal(t, "c", lexemes[4])
}

func TestNestedInterpolatedString(t *testing.T) {
	kinds, _ := tokenKinds(t, `"outer${"inner${y}"}"`)
	require.Equal(t, []lexer.Kind{
		lexer.TokenStringPrefix,  // "outer"
		lexer.TokenStringPrefix,  // "inner"
		lexer.TokenIdentifier,    // y
		lexer.TokenStringSuffix,  // "" closing inner
		lexer.TokenStringSuffix,  // "" closing outer
		lexer.TokenEOF,
	}, kinds)
}

func TestRightBraceOutsideSpliceIsToken(t *testing.T) {
	// with no `${` splice open (nesting==0), `}` is an ordinary
	// right-brace token rather than a return to string lexing.
	kinds, _ := tokenKinds(t, "{ 1 }")
	require.Equal(t, []lexer.Kind{
		lexer.TokenLeftBrace, lexer.TokenNumber, lexer.TokenRightBrace, lexer.TokenEOF,
	}, kinds)
}
