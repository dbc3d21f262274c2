// Package ksinterp walks a schema against a byte stream and produces the
// decoded value tree: field dispatch, repetition, lazy instances and
// parametric type instantiation.
package ksinterp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/kstream"
	"github.com/kaitai-rt/kstruct/pkg/ksschema"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

// Interpreter walks a Schema against a byte buffer. It carries no
// per-parse state itself; each call to Parse gets its own run.
type Interpreter struct {
	logger *slog.Logger
}

// New builds an Interpreter, defaulting to slog.Default when logger is nil.
func New(logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{logger: logger}
}

// run carries the per-parse state a plain Interpreter method doesn't need:
// the caller's context.Context, kept separate from kscontext.Context (the
// expression-resolution environment) so logging calls can carry deadlines
// and span info without threading a second parameter through every
// interpreter method.
type run struct {
	interp *Interpreter
	gctx   context.Context
}

// Parse decodes data against s, returning the root object of the value
// tree.
func (p *Interpreter) Parse(gctx context.Context, s *ksschema.Schema, data []byte) (*ksvalue.Obj, error) {
	r := &run{interp: p, gctx: gctx}
	root := ksvalue.NewObj(s.Meta.ID, nil, nil)
	sc := rootScope(s)
	ctx := kscontext.New(kstream.New(data), root, buildEnumTable(sc.effectiveEnums()))
	r.interp.logger.DebugContext(gctx, "parsing root type", "type", s.Meta.ID, "bytes", len(data))
	if err := r.parseSeqAndInstances(ctx, sc, root); err != nil {
		return nil, err
	}
	return root, nil
}

// ParseType decodes data directly against a named type in s's type table,
// the entry point for instantiating a parametric type without a wrapping
// root sequence.
func (p *Interpreter) ParseType(gctx context.Context, s *ksschema.Schema, typeName string, data []byte, args []string) (*ksvalue.Obj, error) {
	r := &run{interp: p, gctx: gctx}
	root := rootScope(s)
	t, ok := root.types[typeName]
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("unknown type %q", typeName)}
	}
	child := childScope(typeName, t, root)

	obj := ksvalue.NewObj(typeName, nil, nil)
	ctx := kscontext.New(kstream.New(data), obj, buildEnumTable(child.effectiveEnums()))

	if len(args) > 0 {
		if len(args) != len(t.Params) {
			return nil, &ParseError{Msg: fmt.Sprintf("type %q expects %d argument(s), got %d", typeName, len(t.Params), len(args))}
		}
		for i, pdef := range t.Params {
			v, err := r.evalValue(args[i], ctx)
			if err != nil {
				return nil, err
			}
			obj.SetField(pdef.ID, v)
		}
	}

	if err := r.parseSeqAndInstances(ctx, child, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// parseSeqAndInstances parses sc's sequence fields into obj in order, then
// installs every instance as a lazy accessor. Instances are installed in
// Go map iteration order, so their order on obj (and in rendered output)
// does not follow the schema's declaration order and can differ between
// parses.
func (r *run) parseSeqAndInstances(ctx *kscontext.Context, sc *scope, obj *ksvalue.Obj) error {
	for _, f := range sc.seq {
		v, stored, err := r.parseField(ctx, sc, f)
		if err != nil {
			return annotatePath(err, f.ID)
		}
		if !stored || f.ID == "" {
			continue
		}
		if f.Valid != nil {
			if verr := r.checkValid(sc, f, v); verr != nil {
				return verr
			}
		}
		obj.SetField(f.ID, v)
	}
	for name, inst := range sc.instances {
		r.installInstance(ctx, sc, obj, name, inst)
	}
	return nil
}

// installInstance wires a lazy accessor for a schema `instance`: a
// computed value expression, or a position-anchored read that saves and
// restores the stream position around both outcomes.
func (r *run) installInstance(ctx *kscontext.Context, sc *scope, obj *ksvalue.Obj, name string, inst ksschema.Instance) {
	obj.SetInstance(name, ksvalue.NewLazyInstance(func() (ksvalue.Value, error) {
		if inst.Value != "" {
			return r.evalValue(inst.Value, ctx)
		}
		saved := ctx.IO.Pos()
		defer func() { _ = ctx.IO.Seek(saved) }()

		v, stored, err := r.parseField(ctx, sc, inst.Field)
		if err != nil {
			return nil, annotatePath(err, name)
		}
		if !stored {
			return ksvalue.TheNull, nil
		}
		if inst.Valid != nil {
			if verr := r.checkValid(sc, inst.Field, v); verr != nil {
				return nil, verr
			}
		}
		return v, nil
	}))
}

// parseField implements dispatch steps 1 (if-gate), 2 (pos redirect), 3
// (io redirect) and 4 (repetition); a repeated field's pos redirect, if
// any, runs once before the loop, and each element is then read starting
// wherever the previous one left off. Steps 5 and 6 are delegated to
// parseFieldOnce, run once directly or once per repetition element.
func (r *run) parseField(ctx *kscontext.Context, sc *scope, field ksschema.Field) (ksvalue.Value, bool, error) {
	if field.IfExpr != "" {
		ok, err := r.evalBool(field.IfExpr, ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
	}
	if field.Pos != "" {
		pos, err := r.evalInt(field.Pos, ctx)
		if err != nil {
			return nil, false, err
		}
		if err := ctx.IO.Seek(pos); err != nil {
			return nil, false, wrapEOF(err)
		}
	}
	if field.IO != "" {
		return nil, false, &NotImplementedError{Feature: "io redirect (`io:` attribute)"}
	}
	if field.Repeat != "" {
		v, err := r.parseRepeated(ctx, sc, field)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}
	v, err := r.parseFieldOnce(ctx, sc, field)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// parseFieldOnce implements dispatch steps 5 (contents check) and 6
// (value parse) for a single element.
func (r *run) parseFieldOnce(ctx *kscontext.Context, sc *scope, field ksschema.Field) (ksvalue.Value, error) {
	if field.Contents != nil {
		return r.readContents(ctx, field)
	}
	return r.readValue(ctx, sc, field)
}

// parseRepeated runs the three repetition modes, each iteration against a
// repetition-cleared copy of field and an index-bound (and, for
// repeat-until, last-value-bound) context.
func (r *run) parseRepeated(ctx *kscontext.Context, sc *scope, field ksschema.Field) (ksvalue.Value, error) {
	single := field
	single.Repeat, single.RepeatExpr, single.RepeatUntil = "", "", ""

	switch field.Repeat {
	case "expr":
		n, err := r.evalInt(field.RepeatExpr, ctx)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, &ParseError{Msg: fmt.Sprintf("negative repeat count %d", n)}
		}
		out := make([]ksvalue.Value, 0, n)
		for i := int64(0); i < n; i++ {
			v, err := r.parseFieldOnce(ctx.WithIndex(i), sc, single)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return ksvalue.NewSeq(out), nil

	case "eos":
		out := []ksvalue.Value{}
		for i := int64(0); !ctx.IO.EOF(); i++ {
			v, err := r.parseFieldOnce(ctx.WithIndex(i), sc, single)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return ksvalue.NewSeq(out), nil

	case "until":
		out := []ksvalue.Value{}
		for i := int64(0); ; i++ {
			ictx := ctx.WithIndex(i)
			v, err := r.parseFieldOnce(ictx, sc, single)
			if err != nil {
				var eof *kstream.EndOfStreamError
				if errors.As(err, &eof) {
					break
				}
				return nil, err
			}
			out = append(out, v)
			done, err := r.evalBool(field.RepeatUntil, ictx.WithLast(v))
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}
		return ksvalue.NewSeq(out), nil
	}
	return nil, &ParseError{Msg: fmt.Sprintf("unknown repeat mode %q", field.Repeat)}
}

func annotatePath(err error, id string) error {
	if id == "" {
		return err
	}
	switch e := err.(type) {
	case *ParseError:
		if e.Path == "" {
			e.Path = id
		}
	case *ValidationError:
		if e.Path == "" {
			e.Path = id
		}
	}
	return err
}
