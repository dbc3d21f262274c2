package ksinterp

import (
	"fmt"
	"strings"

	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/kstream"
	"github.com/kaitai-rt/kstruct/pkg/ksprocess"
	"github.com/kaitai-rt/kstruct/pkg/ksschema"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

// readValue implements single-value read dispatch: size, then size-eos,
// then (bounded or unbounded) type dispatch.
func (r *run) readValue(ctx *kscontext.Context, sc *scope, field ksschema.Field) (ksvalue.Value, error) {
	if tn, ok := field.Type.(string); ok && (tn == "str" || tn == "strz") {
		return r.readStringField(ctx, sc, field, tn)
	}
	switch {
	case field.Size != nil:
		n, err := r.evalSize(field.Size, ctx)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, &ParseError{Msg: fmt.Sprintf("negative size %d", n)}
		}
		return r.readSized(ctx, sc, field, n)
	case field.SizeEOS:
		data, err := ctx.IO.ReadBytesFull()
		if err != nil {
			return nil, wrapEOF(err)
		}
		return r.finishSizeEOS(ctx, sc, field, data)
	default:
		return r.readTypedValue(ctx, sc, field)
	}
}

func (r *run) readSized(ctx *kscontext.Context, sc *scope, field ksschema.Field, n int64) (ksvalue.Value, error) {
	if field.Type == nil {
		raw, err := ctx.IO.ReadBytes(int(n))
		if err != nil {
			return nil, wrapEOF(err)
		}
		raw = applyPadRight(raw, field.PadRight)
		if field.Process != "" {
			raw, err = ksprocess.Apply(field.Process, raw, ctx)
			if err != nil {
				return nil, err
			}
		}
		return ksvalue.NewBytes(copyBytes(raw)), nil
	}
	sub, err := r.carveSubstream(ctx, field, n)
	if err != nil {
		return nil, err
	}
	return r.readTypedValue(ctx.WithIO(sub), sc, field)
}

func (r *run) finishSizeEOS(ctx *kscontext.Context, sc *scope, field ksschema.Field, data []byte) (ksvalue.Value, error) {
	if field.Process != "" {
		var err error
		data, err = ksprocess.Apply(field.Process, data, ctx)
		if err != nil {
			return nil, err
		}
	}
	if field.Type == nil {
		return ksvalue.NewBytes(copyBytes(applyPadRight(data, field.PadRight))), nil
	}
	return r.readTypedValue(ctx.WithIO(kstream.New(data)), sc, field)
}

// carveSubstream bounds the next n bytes of ctx.IO into their own Stream,
// running them through the field's process transform first when set
// (a plain Substream would otherwise alias raw, untransformed bytes).
func (r *run) carveSubstream(ctx *kscontext.Context, field ksschema.Field, n int64) (*kstream.Stream, error) {
	if field.Process == "" {
		sub, err := ctx.IO.Substream(n)
		if err != nil {
			return nil, wrapEOF(err)
		}
		return sub, nil
	}
	raw, err := ctx.IO.ReadBytes(int(n))
	if err != nil {
		return nil, wrapEOF(err)
	}
	transformed, err := ksprocess.Apply(field.Process, raw, ctx)
	if err != nil {
		return nil, err
	}
	return kstream.New(transformed), nil
}

// readTypedValue dispatches a field with a resolved, bounded-or-not
// target type: switch, builtin, or user type.
func (r *run) readTypedValue(ctx *kscontext.Context, sc *scope, field ksschema.Field) (ksvalue.Value, error) {
	switch t := field.Type.(type) {
	case nil:
		return nil, &ParseError{Msg: "field has no type, size, or size-eos to read"}
	case *ksschema.Switch:
		return r.readSwitch(ctx, sc, field, t)
	case string:
		if isBuiltinTypeName(t) {
			return r.readBuiltin(ctx, sc, t)
		}
		return r.readUserType(ctx, sc, t, field)
	default:
		return nil, &ParseError{Msg: fmt.Sprintf("unsupported type specification %T", field.Type)}
	}
}

// readSwitch evaluates the discriminant, stringifies it, and looks it up
// in the case map; a "_" key is the default when nothing else matches.
func (r *run) readSwitch(ctx *kscontext.Context, sc *scope, field ksschema.Field, sw *ksschema.Switch) (ksvalue.Value, error) {
	discVal, err := r.evalValue(sw.SwitchOn, ctx)
	if err != nil {
		return nil, err
	}
	key := stringifyForSwitch(discVal)
	target, ok := sw.Cases[key]
	if !ok {
		target, ok = sw.Cases["_"]
		if ok {
			r.interp.logger.DebugContext(r.gctx, "switch case fell through to default", "switch-on", sw.SwitchOn, "key", key)
		}
	}
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("switch on %q: no case for %q and no default", sw.SwitchOn, key)}
	}
	targetName, ok := target.(string)
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("switch case %q does not name a type", key)}
	}
	synthetic := field
	synthetic.Type = targetName
	return r.readTypedValue(ctx, sc, synthetic)
}

// readStringField handles the str/strz builtins: fixed-length (size),
// to-end (size-eos), or terminator-delimited reads, each followed by
// text decoding under the field's (or scope's) encoding.
func (r *run) readStringField(ctx *kscontext.Context, sc *scope, field ksschema.Field, typeName string) (ksvalue.Value, error) {
	enc := field.Encoding
	if enc == "" {
		enc = sc.encoding()
	}
	switch {
	case field.Size != nil:
		n, err := r.evalSize(field.Size, ctx)
		if err != nil {
			return nil, err
		}
		data, err := ctx.IO.ReadBytes(int(n))
		if err != nil {
			return nil, wrapEOF(err)
		}
		data = applyPadRight(data, field.PadRight)
		if field.Process != "" {
			data, err = ksprocess.Apply(field.Process, data, ctx)
			if err != nil {
				return nil, err
			}
		}
		txt, err := ksvalue.DecodeText(data, enc)
		if err != nil {
			return nil, &BaseError{Msg: err.Error()}
		}
		return ksvalue.NewText(txt), nil
	case field.SizeEOS:
		data, err := ctx.IO.ReadBytesFull()
		if err != nil {
			return nil, wrapEOF(err)
		}
		data = applyPadRight(data, field.PadRight)
		txt, err := ksvalue.DecodeText(data, enc)
		if err != nil {
			return nil, &BaseError{Msg: err.Error()}
		}
		return ksvalue.NewText(txt), nil
	case field.Terminator != nil || typeName == "strz":
		term := byte(0)
		if field.Terminator != nil {
			term = byte(*field.Terminator)
		}
		consume := true
		if field.Consume != nil {
			consume = *field.Consume
		}
		eosErr := false
		if field.EOSError != nil {
			eosErr = *field.EOSError
		}
		data, err := ctx.IO.ReadBytesTerm(kstream.TermParams{Term: term, Include: field.Include, Consume: consume, EOSError: eosErr})
		if err != nil {
			return nil, wrapEOF(err)
		}
		txt, err := ksvalue.DecodeText(data, enc)
		if err != nil {
			return nil, &BaseError{Msg: err.Error()}
		}
		return ksvalue.NewText(txt), nil
	default:
		return nil, &ParseError{Msg: "str/strz requires size, size-eos, or terminator"}
	}
}

// readUserType resolves a named user type by walking the lexical scope
// chain outward, optionally binding type-args evaluated against the
// calling (outer) context.
func (r *run) readUserType(ctx *kscontext.Context, sc *scope, rawName string, field ksschema.Field) (ksvalue.Value, error) {
	name, argExprs := splitTypeCall(rawName)
	t, declScope, ok := sc.resolveType(name)
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("unknown type %q", name)}
	}
	child := childScope(name, t, declScope)
	r.interp.logger.DebugContext(r.gctx, "entering user type", "type", name, "pos", ctx.IO.Pos())

	obj := ksvalue.NewObj(name, ctx.Current, ctx.Root)
	childCtx := ctx.PushChild(obj)
	childCtx.Enums = buildEnumTable(child.effectiveEnums())

	if len(argExprs) > 0 {
		if len(argExprs) != len(t.Params) {
			return nil, &ParseError{Msg: fmt.Sprintf("type %q expects %d argument(s), got %d", name, len(t.Params), len(argExprs))}
		}
		for i, pdef := range t.Params {
			v, err := r.evalValue(argExprs[i], ctx)
			if err != nil {
				return nil, err
			}
			obj.SetField(pdef.ID, v)
		}
	}

	if err := r.parseSeqAndInstances(childCtx, child, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// splitTypeCall separates a `type: name(arg, arg)` string into the base
// type name and its raw argument expression sources; a name with no
// parens returns no arguments.
func splitTypeCall(s string) (string, []string) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return s, nil
	}
	name := strings.TrimSpace(s[:open])
	inner := s[open+1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil
	}
	return name, splitTypeArgs(inner)
}

func splitTypeArgs(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

func applyPadRight(data []byte, pad *int) []byte {
	if pad == nil {
		return data
	}
	p := byte(*pad)
	end := len(data)
	for end > 0 && data[end-1] == p {
		end--
	}
	return data[:end]
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
