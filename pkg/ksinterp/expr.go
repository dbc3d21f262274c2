package ksinterp

import (
	"fmt"
	"strconv"

	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/ksexpr"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

func (r *run) evalValue(src string, ctx *kscontext.Context) (ksvalue.Value, error) {
	e, err := ksexpr.Parse(src)
	if err != nil {
		return nil, convertExprErr(err)
	}
	v, err := ksexpr.Eval(e, ctx)
	if err != nil {
		return nil, convertExprErr(err)
	}
	return v, nil
}

func (r *run) evalBool(src string, ctx *kscontext.Context) (bool, error) {
	v, err := r.evalValue(src, ctx)
	if err != nil {
		return false, err
	}
	return ksvalue.IsTrue(v), nil
}

func (r *run) evalInt(src string, ctx *kscontext.Context) (int64, error) {
	v, err := r.evalValue(src, ctx)
	if err != nil {
		return 0, err
	}
	b, ok := ksvalue.ToBig(v)
	if !ok {
		return 0, &ParseError{Msg: fmt.Sprintf("expression %q did not evaluate to an integer", src)}
	}
	return b.Int64(), nil
}

// evalSize resolves a `size:`/`repeat-expr:` attribute, which the YAML
// loader hands over either as a decoded scalar literal or as an
// expression string.
func (r *run) evalSize(size any, ctx *kscontext.Context) (int64, error) {
	switch v := size.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		return r.evalInt(v, ctx)
	default:
		return 0, &ParseError{Msg: fmt.Sprintf("unsupported size specification %T", size)}
	}
}

func convertExprErr(err error) error {
	if pe, ok := err.(*ksexpr.ParseError); ok {
		return &ParseError{Pos: int64(pe.Pos), Msg: pe.Msg}
	}
	return &BaseError{Msg: err.Error()}
}

// stringifyForSwitch renders a discriminant value the way a switch
// `cases:` key compares against it: numbers print decimal, text prints
// raw, booleans print their literal spelling.
func stringifyForSwitch(v ksvalue.Value) string {
	switch x := v.(type) {
	case ksvalue.Int:
		return strconv.FormatInt(x.V, 10)
	case ksvalue.BigInt:
		return x.V.String()
	case ksvalue.Text:
		return x.V
	case ksvalue.Bool:
		if x.V {
			return "true"
		}
		return "false"
	default:
		return v.String()
	}
}
