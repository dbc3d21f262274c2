package ksexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

func evalStr(t *testing.T, src string, ctx *kscontext.Context) ksvalue.Value {
	t.Helper()
	e, err := Parse(src)
	require.NoError(t, err)
	v, err := Eval(e, ctx)
	require.NoError(t, err)
	return v
}

func emptyCtx() *kscontext.Context {
	root := ksvalue.NewObj("root", nil, nil)
	return kscontext.New(nil, root, nil)
}

func TestArithmeticPrecedence(t *testing.T) {
	v := evalStr(t, "1 + 2 * 3", emptyCtx())
	assert.Equal(t, ksvalue.NewInt(7), v)
}

func TestTernary(t *testing.T) {
	v := evalStr(t, "1 == 1 ? 10 : 20", emptyCtx())
	assert.Equal(t, ksvalue.NewInt(10), v)
}

func TestFlooredModulo(t *testing.T) {
	v := evalStr(t, "-7 % 3", emptyCtx())
	assert.Equal(t, ksvalue.NewInt(2), v)
}

func TestDivisionExactVsInexact(t *testing.T) {
	exact := evalStr(t, "10 / 2", emptyCtx())
	assert.Equal(t, ksvalue.NewInt(5), exact)

	inexact := evalStr(t, "10 / 3", emptyCtx())
	fv, ok := inexact.(ksvalue.Float)
	require.True(t, ok)
	assert.InDelta(t, 10.0/3.0, fv.V, 1e-9)
}

func TestStringConcatenationCoercesNonString(t *testing.T) {
	v := evalStr(t, `"count=" + 5`, emptyCtx())
	assert.Equal(t, ksvalue.NewText("count=5"), v)
}

func TestLogicalShortCircuitAnd(t *testing.T) {
	v := evalStr(t, "false and (1/0 == 1)", emptyCtx())
	assert.Equal(t, ksvalue.NewBool(false), v)
}

func TestLogicalShortCircuitOr(t *testing.T) {
	v := evalStr(t, "true or (1/0 == 1)", emptyCtx())
	assert.Equal(t, ksvalue.NewBool(true), v)
}

func TestBitwiseOps(t *testing.T) {
	assert.Equal(t, ksvalue.NewInt(0xF0), evalStr(t, "0xF0 | 0x00", emptyCtx()))
	assert.Equal(t, ksvalue.NewInt(4), evalStr(t, "1 << 2", emptyCtx()))
	assert.Equal(t, ksvalue.NewInt(1), evalStr(t, "5 & 1", emptyCtx()))
}

func TestMemberAccessOnCurrentObject(t *testing.T) {
	root := ksvalue.NewObj("root", nil, nil)
	root.SetField("a", ksvalue.NewInt(2))
	root.SetField("b", ksvalue.NewInt(3))
	ctx := kscontext.New(nil, root, nil)
	v := evalStr(t, "(a+b)*2", ctx)
	assert.Equal(t, ksvalue.NewInt(10), v)
}

func TestUndefinedIdentifierIsParseError(t *testing.T) {
	_, err := Parse("nope")
	require.NoError(t, err)
	e, _ := Parse("nope")
	_, err = Eval(e, emptyCtx())
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestEnumScopeAccess(t *testing.T) {
	root := ksvalue.NewObj("root", nil, nil)
	ctx := kscontext.New(nil, root, kscontext.EnumTable{
		"ft": {1: "text", 2: "binary"},
	})
	v := evalStr(t, "ft::text", ctx)
	assert.Equal(t, ksvalue.NewInt(1), v)
}

func TestIndexOutOfRangeYieldsNull(t *testing.T) {
	root := ksvalue.NewObj("root", nil, nil)
	root.SetField("vs", ksvalue.NewSeq([]ksvalue.Value{ksvalue.NewInt(1), ksvalue.NewInt(2)}))
	ctx := kscontext.New(nil, root, nil)
	v := evalStr(t, "vs[10]", ctx)
	assert.Equal(t, ksvalue.KindNull, v.Kind())
}

func TestLengthMethodCall(t *testing.T) {
	root := ksvalue.NewObj("root", nil, nil)
	root.SetField("vs", ksvalue.NewSeq([]ksvalue.Value{ksvalue.NewInt(1), ksvalue.NewInt(2), ksvalue.NewInt(3)}))
	ctx := kscontext.New(nil, root, nil)
	v := evalStr(t, "vs.length", ctx)
	assert.Equal(t, ksvalue.NewInt(3), v)
}

func TestTrailingTokenIsParseError(t *testing.T) {
	_, err := Parse("1 + 2 3")
	require.Error(t, err)
}

func TestLexerRejectsUnknownCharacter(t *testing.T) {
	_, err := Parse("1 @ 2")
	require.Error(t, err)
}

func TestUnderscoreInUntilExpr(t *testing.T) {
	ctx := emptyCtx().WithLast(ksvalue.NewInt(0))
	v := evalStr(t, "_ == 0", ctx)
	assert.Equal(t, ksvalue.NewBool(true), v)
}
