package ksinterp

import (
	"fmt"

	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/ksschema"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

// readContents reads len(want) bytes and compares them byte for byte,
// failing with the position of the first mismatch.
func (r *run) readContents(ctx *kscontext.Context, field ksschema.Field) (ksvalue.Value, error) {
	want, err := contentsBytes(field.Contents)
	if err != nil {
		return nil, &ParseError{Path: field.ID, Msg: err.Error()}
	}
	start := ctx.IO.Pos()
	got, err := ctx.IO.ReadBytes(len(want))
	if err != nil {
		return nil, wrapEOF(err)
	}
	for i := range want {
		if got[i] != want[i] {
			return nil, &ValidationError{
				Path: field.ID,
				Pos:  start + int64(i),
				Msg:  fmt.Sprintf("contents mismatch: expected %#x, got %#x", want[i], got[i]),
			}
		}
	}
	return ksvalue.NewBytes(copyBytes(got)), nil
}

func contentsBytes(c any) ([]byte, error) {
	switch v := c.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case []any:
		out := make([]byte, len(v))
		for i, item := range v {
			switch x := item.(type) {
			case int:
				out[i] = byte(x)
			case int64:
				out[i] = byte(x)
			case string:
				if len(x) != 1 {
					return nil, fmt.Errorf("contents element %d: single-character string expected, got %q", i, x)
				}
				out[i] = x[0]
			default:
				return nil, fmt.Errorf("contents element %d: unsupported value %T", i, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("contents must be a byte sequence or a string, got %T", c)
	}
}

// checkValid enforces a field's `valid:` assertion against its decoded
// value: an exact match, a range bound, set membership, or enum
// membership.
func (r *run) checkValid(sc *scope, field ksschema.Field, v ksvalue.Value) error {
	val := field.Valid
	if val == nil {
		return nil
	}
	if val.Eq != nil {
		want := ksvalue.FromAny(val.Eq)
		if !ksvalue.Equal(v, want) {
			return &ValidationError{Path: field.ID, Msg: fmt.Sprintf("expected %v, got %v", want, v)}
		}
	}
	if val.Min != nil {
		min := ksvalue.FromAny(val.Min)
		if c, ok := compareNumeric(v, min); ok && c < 0 {
			return &ValidationError{Path: field.ID, Msg: fmt.Sprintf("value %v is below minimum %v", v, min)}
		}
	}
	if val.Max != nil {
		max := ksvalue.FromAny(val.Max)
		if c, ok := compareNumeric(v, max); ok && c > 0 {
			return &ValidationError{Path: field.ID, Msg: fmt.Sprintf("value %v exceeds maximum %v", v, max)}
		}
	}
	if len(val.AnyOf) > 0 {
		match := false
		for _, a := range val.AnyOf {
			if ksvalue.Equal(v, ksvalue.FromAny(a)) {
				match = true
				break
			}
		}
		if !match {
			return &ValidationError{Path: field.ID, Msg: fmt.Sprintf("value %v is not one of the allowed set", v)}
		}
	}
	if val.InEnum && field.Enum != "" {
		table := sc.effectiveEnums()
		e, ok := table[field.Enum]
		if ok {
			n, numeric := ksvalue.ToBig(v)
			if numeric {
				if _, known := e[n.Int64()]; !known {
					return &ValidationError{Path: field.ID, Msg: fmt.Sprintf("value %v has no symbol in enum %q", v, field.Enum)}
				}
			}
		}
	}
	return nil
}

func compareNumeric(a, b ksvalue.Value) (int, bool) {
	if ab, aok := ksvalue.ToBig(a); aok {
		if bb, bok := ksvalue.ToBig(b); bok {
			return ab.Cmp(bb), true
		}
	}
	af, aok := ksvalue.ToFloat(a)
	bf, bok := ksvalue.ToFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}
