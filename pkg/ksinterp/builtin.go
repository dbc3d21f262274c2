package ksinterp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/kstream"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

// bitTypeRegex recognizes the supplemented b1..b64 bit-width builtin names,
// each with an optional explicit bit-order suffix.
var bitTypeRegex = regexp.MustCompile(`^b([1-9][0-9]*)(le|be)?$`)

func isBuiltinTypeName(name string) bool {
	switch name {
	case "u1", "s1",
		"u2", "u2le", "u2be", "s2", "s2le", "s2be",
		"u4", "u4le", "u4be", "s4", "s4le", "s4be",
		"u8", "u8le", "u8be", "s8", "s8le", "s8be",
		"f4", "f4le", "f4be", "f8", "f8le", "f8be":
		return true
	}
	return bitTypeRegex.MatchString(name)
}

func (r *run) readBuiltin(ctx *kscontext.Context, sc *scope, name string) (ksvalue.Value, error) {
	if m := bitTypeRegex.FindStringSubmatch(name); m != nil {
		return r.readBitType(ctx, sc, m)
	}
	switch name {
	case "u1":
		v, err := ctx.IO.ReadU1()
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewInt(int64(v)), nil
	case "s1":
		v, err := ctx.IO.ReadS1()
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewInt(int64(v)), nil
	default:
		return r.readMultiByte(ctx, sc, name)
	}
}

// readMultiByte handles every numeric builtin wider than one byte,
// resolving an unsuffixed name's byte order against the active scope.
func (r *run) readMultiByte(ctx *kscontext.Context, sc *scope, name string) (ksvalue.Value, error) {
	base := name
	endian := ""
	switch {
	case strings.HasSuffix(name, "le"):
		endian, base = "le", strings.TrimSuffix(name, "le")
	case strings.HasSuffix(name, "be"):
		endian, base = "be", strings.TrimSuffix(name, "be")
	}
	if endian == "" {
		e, err := r.resolveEndian(ctx, sc)
		if err != nil {
			return nil, err
		}
		endian = e
	}

	switch base {
	case "u2":
		v, err := readEither(ctx.IO.ReadU2le, ctx.IO.ReadU2be, endian)
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewInt(int64(v)), nil
	case "s2":
		v, err := readEither(ctx.IO.ReadS2le, ctx.IO.ReadS2be, endian)
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewInt(int64(v)), nil
	case "u4":
		v, err := readEither(ctx.IO.ReadU4le, ctx.IO.ReadU4be, endian)
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewInt(int64(v)), nil
	case "s4":
		v, err := readEither(ctx.IO.ReadS4le, ctx.IO.ReadS4be, endian)
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewInt(int64(v)), nil
	case "u8":
		var v uint64
		var err error
		if endian == "le" {
			v, err = ctx.IO.ReadU8le()
		} else {
			v, err = ctx.IO.ReadU8be()
		}
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewBigIntFromU64(v), nil
	case "s8":
		var v int64
		var err error
		if endian == "le" {
			v, err = ctx.IO.ReadS8le()
		} else {
			v, err = ctx.IO.ReadS8be()
		}
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewBigIntFromI64(v), nil
	case "f4":
		v, err := readEither(ctx.IO.ReadF4le, ctx.IO.ReadF4be, endian)
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewFloat(float64(v)), nil
	case "f8":
		v, err := readEither(ctx.IO.ReadF8le, ctx.IO.ReadF8be, endian)
		if err != nil {
			return nil, wrapEOF(err)
		}
		return ksvalue.NewFloat(v), nil
	}
	return nil, &ParseError{Msg: fmt.Sprintf("unknown built-in type %q", name)}
}

func readEither[T any](le, be func() (T, error), endian string) (T, error) {
	if endian == "le" {
		return le()
	}
	return be()
}

func (r *run) readBitType(ctx *kscontext.Context, sc *scope, m []string) (ksvalue.Value, error) {
	width, _ := strconv.Atoi(m[1])
	if width < 1 || width > 64 {
		return nil, &ParseError{Msg: fmt.Sprintf("bit width %d out of range (1..64)", width)}
	}
	order := m[2]
	if order == "" {
		order = sc.bitEndianRaw()
	}
	var v uint64
	var err error
	if order == "le" {
		v, err = ctx.IO.ReadBitsIntLe(width)
	} else {
		v, err = ctx.IO.ReadBitsIntBe(width)
	}
	if err != nil {
		return nil, wrapEOF(err)
	}
	if width == 64 {
		return ksvalue.NewBigIntFromU64(v), nil
	}
	return ksvalue.NewInt(int64(v)), nil
}

// resolveEndian walks outward for the nearest byte-order declaration,
// evaluating a switch-on expression (anything other than the literal
// "le"/"be") against ctx.
func (r *run) resolveEndian(ctx *kscontext.Context, sc *scope) (string, error) {
	raw := sc.endianRaw()
	switch raw {
	case "":
		return "le", nil
	case "le", "be":
		return raw, nil
	default:
		v, err := r.evalValue(raw, ctx)
		if err != nil {
			return "", err
		}
		t, ok := v.(ksvalue.Text)
		if !ok || (t.V != "le" && t.V != "be") {
			return "", &ParseError{Msg: fmt.Sprintf("endian expression %q must yield \"le\" or \"be\", got %v", raw, v)}
		}
		return t.V, nil
	}
}

func wrapEOF(err error) error {
	if _, ok := err.(*kstream.EndOfStreamError); ok {
		return err
	}
	return &BaseError{Msg: err.Error()}
}
