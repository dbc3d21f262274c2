package ksinterp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaitai-rt/kstruct/pkg/kstream"
	"github.com/kaitai-rt/kstruct/pkg/ksschema"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

func parse(t *testing.T, s *ksschema.Schema, data []byte) *ksvalue.Obj {
	t.Helper()
	obj, err := New(nil).Parse(context.Background(), s, data)
	require.NoError(t, err)
	return obj
}

func field(t *testing.T, o *ksvalue.Obj, name string) ksvalue.Value {
	t.Helper()
	v, ok := o.Field(name)
	require.True(t, ok, "field %q not set", name)
	return v
}

func TestMagicAndFixedFields(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "basic", Endian: "le"},
		Seq: []ksschema.Field{
			{ID: "magic", Contents: []byte{0x4D, 0x5A}},
			{ID: "version", Type: "u2"},
			{ID: "count", Type: "u4"},
		},
	}
	data := []byte{0x4D, 0x5A, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00}
	obj := parse(t, s, data)
	assert.Equal(t, ksvalue.NewInt(1), field(t, obj, "version"))
	assert.Equal(t, ksvalue.NewInt(2), field(t, obj, "count"))
}

func TestContentsMismatchIsValidationError(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "basic"},
		Seq:  []ksschema.Field{{ID: "magic", Contents: []byte{0x4D, 0x5A}}},
	}
	_, err := New(nil).Parse(context.Background(), s, []byte{0x00, 0x5A})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int64(0), verr.Pos)
}

func TestConditionalFieldSkippedWhenFalse(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "cond"},
		Seq: []ksschema.Field{
			{ID: "flag", Type: "u1"},
			{ID: "maybe", Type: "u1", IfExpr: "flag == 1"},
		},
	}
	obj := parse(t, s, []byte{0x00})
	assert.False(t, obj.Has("maybe"))

	obj2 := parse(t, s, []byte{0x01, 0x2A})
	assert.Equal(t, ksvalue.NewInt(0x2A), field(t, obj2, "maybe"))
}

func TestRepeatExprUsesComputedCount(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "repcount"},
		Seq: []ksschema.Field{
			{ID: "count", Type: "u1"},
			{ID: "items", Type: "u1", Repeat: "expr", RepeatExpr: "count"},
		},
	}
	obj := parse(t, s, []byte{3, 10, 20, 30})
	seq, ok := field(t, obj, "items").(ksvalue.Seq)
	require.True(t, ok)
	require.Len(t, seq.V, 3)
	assert.Equal(t, ksvalue.NewInt(10), seq.V[0])
	assert.Equal(t, ksvalue.NewInt(30), seq.V[2])
}

func TestRepeatUntilBindsUnderscore(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "repuntil"},
		Seq: []ksschema.Field{
			{ID: "items", Type: "u1", Repeat: "until", RepeatUntil: "_ == 0"},
		},
	}
	obj := parse(t, s, []byte{5, 3, 0, 9})
	seq := field(t, obj, "items").(ksvalue.Seq)
	require.Len(t, seq.V, 3)
	assert.Equal(t, ksvalue.NewInt(0), seq.V[2])
}

func TestRepeatEOSOnEmptyStreamYieldsEmptySeq(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "repeos"},
		Seq:  []ksschema.Field{{ID: "items", Type: "u1", Repeat: "eos"}},
	}
	obj := parse(t, s, []byte{})
	seq := field(t, obj, "items").(ksvalue.Seq)
	assert.Empty(t, seq.V)
}

func TestSwitchTypeFallsBackToDefaultCase(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "sw", Endian: "le"},
		Seq: []ksschema.Field{
			{ID: "tc", Type: "u1"},
			{ID: "body", Type: &ksschema.Switch{
				SwitchOn: "tc",
				Cases:    map[string]any{"1": "u1", "_": "u2"},
			}},
		},
	}
	narrow := parse(t, s, []byte{1, 0x42})
	assert.Equal(t, ksvalue.NewInt(0x42), field(t, narrow, "body"))

	wide := parse(t, s, []byte{9, 0x34, 0x12})
	assert.Equal(t, ksvalue.NewInt(0x1234), field(t, wide, "body"))
}

func TestLazyPosInstanceReadsAtPosAndMemoizes(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "lazy"},
		Seq: []ksschema.Field{
			{ID: "a", Type: "u1"},
			{ID: "b", Type: "u1"},
		},
		Instances: map[string]ksschema.Instance{
			"first_byte": {Field: ksschema.Field{Pos: "0", Type: "u1"}},
		},
	}
	obj := parse(t, s, []byte{0xAA, 0xBB})
	assert.Equal(t, ksvalue.NewInt(0xAA), field(t, obj, "a"))
	assert.Equal(t, ksvalue.NewInt(0xBB), field(t, obj, "b"))

	v, _, err := obj.Get("first_byte")
	require.NoError(t, err)
	assert.Equal(t, ksvalue.NewInt(0xAA), v)

	// a second realization must return the same memoized value.
	v2, _, err := obj.Get("first_byte")
	require.NoError(t, err)
	assert.Equal(t, v, v2)
}

func TestEnumMemberUsableInComparison(t *testing.T) {
	s := &ksschema.Schema{
		Meta:  ksschema.Meta{ID: "en"},
		Enums: map[string]ksschema.Enum{"color": {0: "red", 1: "green"}},
		Seq: []ksschema.Field{
			{ID: "color", Type: "u1", Enum: "color"},
			{ID: "extra", Type: "u1", IfExpr: "color == color::red"},
		},
	}
	obj := parse(t, s, []byte{0x00, 0x07})
	assert.Equal(t, ksvalue.NewInt(7), field(t, obj, "extra"))
}

func TestEndOfStreamDoesNotSilentlySucceed(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "short"},
		Seq:  []ksschema.Field{{ID: "a", Type: "u4"}},
	}
	_, err := New(nil).Parse(context.Background(), s, []byte{0x01, 0x02})
	require.Error(t, err)
	var eof *kstream.EndOfStreamError
	require.ErrorAs(t, err, &eof)
}

func TestBitReadAndByteReadAgreeOnFullByte(t *testing.T) {
	bitSchema := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "bits"},
		Seq:  []ksschema.Field{{ID: "v", Type: "b8"}},
	}
	byteSchema := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "bytes"},
		Seq:  []ksschema.Field{{ID: "v", Type: "u1"}},
	}
	data := []byte{0xAB}
	bitObj := parse(t, bitSchema, data)
	byteObj := parse(t, byteSchema, data)
	assert.Equal(t, field(t, byteObj, "v"), field(t, bitObj, "v"))
}

func TestNestedTypeInheritsEnclosingEndian(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "outer", Endian: "be"},
		Types: map[string]*ksschema.Type{
			"inner": {Seq: []ksschema.Field{{ID: "v", Type: "u2"}}},
		},
		Seq: []ksschema.Field{{ID: "child", Type: "inner"}},
	}
	obj := parse(t, s, []byte{0x00, 0x01})
	child := field(t, obj, "child").(*ksvalue.Obj)
	assert.Equal(t, ksvalue.NewInt(1), field(t, child, "v"))
}

func TestParametricTypeBindsTypeArgs(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "param"},
		Types: map[string]*ksschema.Type{
			"point": {
				Params: []ksschema.Param{{ID: "scale", Type: "u1"}},
				Seq:    []ksschema.Field{{ID: "x", Type: "u1"}},
			},
		},
		Seq: []ksschema.Field{
			{ID: "factor", Type: "u1"},
			{ID: "p", Type: "point(factor)"},
		},
	}
	obj := parse(t, s, []byte{5, 10})
	p := field(t, obj, "p").(*ksvalue.Obj)
	assert.Equal(t, ksvalue.NewInt(5), field(t, p, "scale"))
	assert.Equal(t, ksvalue.NewInt(10), field(t, p, "x"))
}

func TestValidAssertionRejectsOutOfRangeValue(t *testing.T) {
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "valid"},
		Seq: []ksschema.Field{
			{ID: "v", Type: "u1", Valid: &ksschema.Valid{Max: 10}},
		},
	}
	_, err := New(nil).Parse(context.Background(), s, []byte{200})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStrTypeWithTerminator(t *testing.T) {
	term := 0
	s := &ksschema.Schema{
		Meta: ksschema.Meta{ID: "strz", Encoding: "UTF-8"},
		Seq: []ksschema.Field{
			{ID: "name", Type: "strz", Terminator: &term},
			{ID: "rest", Type: "u1"},
		},
	}
	obj := parse(t, s, []byte("hi\x00\x2A"))
	assert.Equal(t, ksvalue.NewText("hi"), field(t, obj, "name"))
	assert.Equal(t, ksvalue.NewInt(0x2A), field(t, obj, "rest"))
}
