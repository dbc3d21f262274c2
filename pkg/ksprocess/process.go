// Package ksprocess implements the `process` directive extension point:
// transforms raw bytes between the stream read and type interpretation.
// It is backed by a small, purpose-built CEL environment; the expression
// language used elsewhere stays hand-rolled (pkg/ksexpr) — CEL's role is
// confined to this one extension point.
package ksprocess

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/ksexpr"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

// NotImplementedError is raised for a `process` spec this package doesn't
// recognize.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("ksprocess: not implemented: %s", e.Feature)
}

var (
	poolOnce sync.Once
	poolEnv  *cel.Env
	poolErr  error
	poolMu   sync.RWMutex
	programs = map[string]cel.Program{}
)

func env() (*cel.Env, error) {
	poolOnce.Do(func() {
		poolEnv, poolErr = cel.NewEnv(
			cel.Variable("data", cel.BytesType),
			cel.Variable("key", cel.DynType),
			cel.Variable("amount", cel.DynType),
			processFunctions(),
		)
	})
	return poolEnv, poolErr
}

func getProgram(expr string) (cel.Program, error) {
	poolMu.RLock()
	if p, ok := programs[expr]; ok {
		poolMu.RUnlock()
		return p, nil
	}
	poolMu.RUnlock()

	e, err := env()
	if err != nil {
		return nil, err
	}
	ast, iss := e.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("ksprocess: compile %q: %w", expr, iss.Err())
	}
	prg, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("ksprocess: program %q: %w", expr, err)
	}
	poolMu.Lock()
	programs[expr] = prg
	poolMu.Unlock()
	return prg, nil
}

// processFunctions declares the CEL functions the three built-in
// transforms use.
func processFunctions() cel.EnvOption {
	return cel.Lib(&processLib{})
}

type processLib struct{}

func (*processLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("processXor",
			cel.Overload("processxor_bytes_int", []*cel.Type{cel.BytesType, cel.IntType}, cel.BytesType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					data, ok1 := lhs.(types.Bytes)
					keyInt, ok2 := rhs.(types.Int)
					if !ok1 || !ok2 {
						return types.NewErr("invalid arguments to processXor")
					}
					key := byte(keyInt)
					result := make([]byte, len(data))
					for i := range data {
						result[i] = data[i] ^ key
					}
					return types.Bytes(result)
				}),
			),
			cel.Overload("processxor_bytes_bytes", []*cel.Type{cel.BytesType, cel.BytesType}, cel.BytesType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					data, ok1 := lhs.(types.Bytes)
					keyBytes, ok2 := rhs.(types.Bytes)
					if !ok1 || !ok2 {
						return types.NewErr("invalid arguments to processXor")
					}
					if len(keyBytes) == 0 {
						return types.NewErr("key bytes cannot be empty")
					}
					result := make([]byte, len(data))
					for i := range data {
						result[i] = data[i] ^ keyBytes[i%len(keyBytes)]
					}
					return types.Bytes(result)
				}),
			),
		),
		cel.Function("processRotate",
			cel.Overload("processrotate_bytes_int", []*cel.Type{cel.BytesType, cel.IntType}, cel.BytesType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					data, ok1 := lhs.(types.Bytes)
					amount, ok2 := rhs.(types.Int)
					if !ok1 || !ok2 {
						return types.NewErr("invalid arguments to processRotate")
					}
					if len(data) == 0 {
						return lhs
					}
					rotatePos := int(amount) % len(data)
					if rotatePos < 0 {
						rotatePos += len(data)
					}
					result := make([]byte, len(data))
					copy(result, data[rotatePos:])
					copy(result[len(data)-rotatePos:], data[:rotatePos])
					return types.Bytes(result)
				}),
			),
		),
		cel.Function("processZlib",
			cel.Overload("processzlib_bytes", []*cel.Type{cel.BytesType}, cel.BytesType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					data, ok := val.(types.Bytes)
					if !ok {
						return types.NewErr("invalid argument to processZlib")
					}
					r, err := zlib.NewReader(bytes.NewReader(data))
					if err != nil {
						return types.NewErr("zlib: %v", err)
					}
					defer r.Close()
					out, err := io.ReadAll(r)
					if err != nil {
						return types.NewErr("zlib: %v", err)
					}
					return types.Bytes(out)
				}),
			),
		),
	}
}

func (*processLib) ProgramOptions() []cel.ProgramOption { return nil }

// Apply runs the named process transform (`name` or `name(args...)`)
// against data. Argument expressions are parsed and
// evaluated with the hand-rolled Kaitai expression engine against ctx, so
// `process: xor(key)` can reference a sibling field; they are then handed
// to the CEL program as `key`/`amount` bindings.
func Apply(spec string, data []byte, ctx *kscontext.Context) ([]byte, error) {
	name, argExprs, err := splitSpec(spec)
	if err != nil {
		return nil, err
	}

	var celExpr string
	vars := map[string]any{"data": data}

	switch name {
	case "xor":
		if len(argExprs) != 1 {
			return nil, fmt.Errorf("ksprocess: xor takes exactly one argument")
		}
		v, err := evalArg(argExprs[0], ctx)
		if err != nil {
			return nil, err
		}
		vars["key"], err = toCELKey(v)
		if err != nil {
			return nil, err
		}
		celExpr = "processXor(data, key)"
	case "rotate":
		if len(argExprs) == 0 {
			return nil, fmt.Errorf("ksprocess: rotate takes an amount argument")
		}
		v, err := evalArg(argExprs[0], ctx)
		if err != nil {
			return nil, err
		}
		n, ok := toCELInt(v)
		if !ok {
			return nil, fmt.Errorf("ksprocess: rotate: amount must be integer")
		}
		vars["amount"] = n
		celExpr = "processRotate(data, amount)"
	case "zlib":
		celExpr = "processZlib(data)"
	default:
		return nil, &NotImplementedError{Feature: fmt.Sprintf("process: %s", name)}
	}

	prg, err := getProgram(celExpr)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("ksprocess: eval %q: %w", celExpr, err)
	}
	b, ok := out.Value().([]byte)
	if !ok {
		return nil, fmt.Errorf("ksprocess: %q did not produce bytes", celExpr)
	}
	return b, nil
}

func evalArg(src string, ctx *kscontext.Context) (any, error) {
	e, err := ksexpr.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("ksprocess: parse argument %q: %w", src, err)
	}
	v, err := ksexpr.Eval(e, ctx)
	if err != nil {
		return nil, fmt.Errorf("ksprocess: evaluate argument %q: %w", src, err)
	}
	return v, nil
}

func toCELKey(v any) (any, error) {
	if i, ok := asInt64(v); ok {
		return i, nil
	}
	if b, ok := asBytes(v); ok {
		return b, nil
	}
	return nil, fmt.Errorf("ksprocess: xor key must be an integer or byte sequence")
}

func toCELInt(v any) (int64, bool) { return asInt64(v) }

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case ksvalue.Int:
		return x.V, true
	case ksvalue.BigInt:
		if x.V.IsInt64() {
			return x.V.Int64(), true
		}
	}
	return 0, false
}

func asBytes(v any) ([]byte, bool) {
	if b, ok := v.(ksvalue.Bytes); ok {
		return b.V, true
	}
	return nil, false
}

// splitSpec parses `name` or `name(a, b, c)` into a function name and raw
// argument source strings (each still a Kaitai expression to be parsed).
func splitSpec(spec string) (string, []string, error) {
	spec = strings.TrimSpace(spec)
	open := strings.IndexByte(spec, '(')
	if open < 0 {
		return spec, nil, nil
	}
	if !strings.HasSuffix(spec, ")") {
		return "", nil, fmt.Errorf("ksprocess: malformed process spec %q", spec)
	}
	name := strings.TrimSpace(spec[:open])
	inner := spec[open+1 : len(spec)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil, nil
	}
	parts := splitArgs(inner)
	return name, parts, nil
}

// splitArgs splits a comma-separated argument list, respecting nested
// parentheses (so an argument that is itself a call expression isn't cut
// in half).
func splitArgs(s string) []string {
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
