package ksexpr

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

// Eval walks expr against ctx and produces a value by tree-walking
// evaluation. Every failure is a *ParseError.
func Eval(expr Expr, ctx *kscontext.Context) (ksvalue.Value, error) {
	switch e := expr.(type) {
	case *IntLit:
		return ksvalue.NewInt(e.Value), nil
	case *FloatLit:
		return ksvalue.NewFloat(e.Value), nil
	case *StringLit:
		return ksvalue.NewText(e.Value), nil
	case *BoolLit:
		return ksvalue.NewBool(e.Value), nil
	case *Ident:
		v, ok, err := ctx.Resolve(e.Name)
		if err != nil {
			return nil, &ParseError{Pos: e.pos, Msg: err.Error()}
		}
		if !ok {
			return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("undefined identifier %q", e.Name)}
		}
		return v, nil
	case *UnOp:
		return evalUnary(e, ctx)
	case *BinOp:
		return evalBinary(e, ctx)
	case *Ternary:
		cond, err := Eval(e.Cond, ctx)
		if err != nil {
			return nil, err
		}
		if ksvalue.IsTrue(cond) {
			return Eval(e.Then, ctx)
		}
		return Eval(e.Else, ctx)
	case *Member:
		return evalMember(e, ctx)
	case *Index:
		return evalIndex(e, ctx)
	case *Call:
		return evalCall(e, ctx)
	case *EnumAccess:
		return evalEnumAccess(e, ctx)
	default:
		return nil, &ParseError{Pos: expr.Pos(), Msg: fmt.Sprintf("unhandled expression node %T", expr)}
	}
}

func evalUnary(e *UnOp, ctx *kscontext.Context) (ksvalue.Value, error) {
	v, err := Eval(e.Expr, ctx)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "-":
		switch x := v.(type) {
		case ksvalue.Int:
			return ksvalue.NewInt(-x.V), nil
		case ksvalue.BigInt:
			return ksvalue.NewBigInt(new(big.Int).Neg(x.V)), nil
		case ksvalue.Float:
			return ksvalue.NewFloat(-x.V), nil
		default:
			return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("cannot negate %T", v)}
		}
	case "not":
		return ksvalue.NewBool(!ksvalue.IsTrue(v)), nil
	}
	return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("unknown unary operator %q", e.Op)}
}

func evalBinary(e *BinOp, ctx *kscontext.Context) (ksvalue.Value, error) {
	// Logical operators short-circuit: the right operand is evaluated
	// only when necessary.
	if e.Op == "and" {
		l, err := Eval(e.Left, ctx)
		if err != nil {
			return nil, err
		}
		if !ksvalue.IsTrue(l) {
			return ksvalue.NewBool(false), nil
		}
		r, err := Eval(e.Right, ctx)
		if err != nil {
			return nil, err
		}
		return ksvalue.NewBool(ksvalue.IsTrue(r)), nil
	}
	if e.Op == "or" {
		l, err := Eval(e.Left, ctx)
		if err != nil {
			return nil, err
		}
		if ksvalue.IsTrue(l) {
			return ksvalue.NewBool(true), nil
		}
		r, err := Eval(e.Right, ctx)
		if err != nil {
			return nil, err
		}
		return ksvalue.NewBool(ksvalue.IsTrue(r)), nil
	}

	l, err := Eval(e.Left, ctx)
	if err != nil {
		return nil, err
	}
	r, err := Eval(e.Right, ctx)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "+":
		if _, ok := l.(ksvalue.Text); ok {
			return ksvalue.NewText(toDisplayString(l) + toDisplayString(r)), nil
		}
		if _, ok := r.(ksvalue.Text); ok {
			return ksvalue.NewText(toDisplayString(l) + toDisplayString(r)), nil
		}
		return arith(e.pos, "+", l, r)
	case "-", "*":
		return arith(e.pos, e.Op, l, r)
	case "/":
		return divide(e.pos, l, r)
	case "%":
		return flooredMod(e.pos, l, r)
	case "==":
		return ksvalue.NewBool(ksvalue.Equal(l, r)), nil
	case "!=":
		return ksvalue.NewBool(!ksvalue.Equal(l, r)), nil
	case "<", "<=", ">", ">=":
		return compare(e.pos, e.Op, l, r)
	case "&", "|", "^", "<<", ">>":
		return bitwise(e.pos, e.Op, l, r)
	}
	return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("unknown binary operator %q", e.Op)}
}

func toDisplayString(v ksvalue.Value) string {
	if t, ok := v.(ksvalue.Text); ok {
		return t.V
	}
	return v.String()
}

func arith(pos int, op string, l, r ksvalue.Value) (ksvalue.Value, error) {
	if lb, lok := ksvalue.ToBig(l); lok {
		if rb, rok := ksvalue.ToBig(r); rok {
			var res big.Int
			switch op {
			case "+":
				res.Add(lb, rb)
			case "-":
				res.Sub(lb, rb)
			case "*":
				res.Mul(lb, rb)
			}
			return normalizeBig(&res), nil
		}
	}
	lf, lok := ksvalue.ToFloat(l)
	rf, rok := ksvalue.ToFloat(r)
	if !lok || !rok {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("non-numeric operand to %q", op)}
	}
	switch op {
	case "+":
		return ksvalue.NewFloat(lf + rf), nil
	case "-":
		return ksvalue.NewFloat(lf - rf), nil
	case "*":
		return ksvalue.NewFloat(lf * rf), nil
	}
	return nil, &ParseError{Pos: pos, Msg: "unreachable"}
}

// normalizeBig returns Int when the result fits int64 (the comfortable
// native range), else BigInt.
func normalizeBig(v *big.Int) ksvalue.Value {
	if v.IsInt64() {
		return ksvalue.NewInt(v.Int64())
	}
	return ksvalue.NewBigInt(v)
}

// divide implements the chosen division semantics: integer operands that
// divide exactly yield an integer; anything else yields a floating-point
// quotient.
func divide(pos int, l, r ksvalue.Value) (ksvalue.Value, error) {
	if lb, lok := ksvalue.ToBig(l); lok {
		if rb, rok := ksvalue.ToBig(r); rok {
			if rb.Sign() == 0 {
				return nil, &ParseError{Pos: pos, Msg: "division by zero"}
			}
			var q, rem big.Int
			q.QuoRem(lb, rb, &rem)
			if rem.Sign() == 0 {
				return normalizeBig(&q), nil
			}
			lf := new(big.Float).SetInt(lb)
			rf := new(big.Float).SetInt(rb)
			f, _ := new(big.Float).Quo(lf, rf).Float64()
			return ksvalue.NewFloat(f), nil
		}
	}
	lf, lok := ksvalue.ToFloat(l)
	rf, rok := ksvalue.ToFloat(r)
	if !lok || !rok {
		return nil, &ParseError{Pos: pos, Msg: "non-numeric operand to \"/\""}
	}
	if rf == 0 {
		return nil, &ParseError{Pos: pos, Msg: "division by zero"}
	}
	return ksvalue.NewFloat(lf / rf), nil
}

// flooredMod implements the mathematical (floored) modulo, not Go's
// truncated %.
func flooredMod(pos int, l, r ksvalue.Value) (ksvalue.Value, error) {
	lb, lok := ksvalue.ToBig(l)
	rb, rok := ksvalue.ToBig(r)
	if lok && rok {
		if rb.Sign() == 0 {
			return nil, &ParseError{Pos: pos, Msg: "division by zero"}
		}
		var m big.Int
		m.Mod(lb, rb) // big.Int.Mod is already Euclidean (floored for positive modulus)
		if m.Sign() != 0 && (m.Sign() < 0) != (rb.Sign() < 0) {
			m.Add(&m, rb)
		}
		return normalizeBig(&m), nil
	}
	lf, lfok := ksvalue.ToFloat(l)
	rf, rfok := ksvalue.ToFloat(r)
	if !lfok || !rfok {
		return nil, &ParseError{Pos: pos, Msg: "non-numeric operand to \"%\""}
	}
	if rf == 0 {
		return nil, &ParseError{Pos: pos, Msg: "division by zero"}
	}
	m := math.Mod(lf, rf)
	if m != 0 && (m < 0) != (rf < 0) {
		m += rf
	}
	return ksvalue.NewFloat(m), nil
}

func compare(pos int, op string, l, r ksvalue.Value) (ksvalue.Value, error) {
	if lt, lok := l.(ksvalue.Text); lok {
		if rt, rok := r.(ksvalue.Text); rok {
			return ksvalue.NewBool(applyCmp(op, strings.Compare(lt.V, rt.V))), nil
		}
		return nil, &ParseError{Pos: pos, Msg: "cannot compare string with non-string"}
	}
	lf, lok := ksvalue.ToFloat(l)
	rf, rok := ksvalue.ToFloat(r)
	if !lok || !rok {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("cannot compare %T with %T", l, r)}
	}
	c := 0
	if lf < rf {
		c = -1
	} else if lf > rf {
		c = 1
	}
	return ksvalue.NewBool(applyCmp(op, c)), nil
}

func applyCmp(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

func bitwise(pos int, op string, l, r ksvalue.Value) (ksvalue.Value, error) {
	lb, lok := toIntegral(l)
	rb, rok := toIntegral(r)
	if !lok || !rok {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("non-integer operand to %q", op)}
	}
	var res big.Int
	switch op {
	case "&":
		res.And(lb, rb)
	case "|":
		res.Or(lb, rb)
	case "^":
		res.Xor(lb, rb)
	case "<<":
		if !rb.IsInt64() || rb.Int64() < 0 {
			return nil, &ParseError{Pos: pos, Msg: "shift amount out of range"}
		}
		res.Lsh(lb, uint(rb.Int64()))
	case ">>":
		if !rb.IsInt64() || rb.Int64() < 0 {
			return nil, &ParseError{Pos: pos, Msg: "shift amount out of range"}
		}
		res.Rsh(lb, uint(rb.Int64()))
	}
	return normalizeBig(&res), nil
}

// toIntegral coerces a numeric value to an integer via floor.
func toIntegral(v ksvalue.Value) (*big.Int, bool) {
	if b, ok := ksvalue.ToBig(v); ok {
		return b, true
	}
	if f, ok := ksvalue.ToFloat(v); ok {
		bi, _ := big.NewFloat(math.Floor(f)).Int(nil)
		return bi, true
	}
	return nil, false
}

// isSentinelMethod reports whether name is one of the reserved zero-arg
// method-call sentinels, callable either bare
// (`a.length`) or with empty parens (`a.length()`).
func isSentinelMethod(name string) bool {
	switch name {
	case "length", "size", "to_i", "to_s":
		return true
	}
	return false
}

func evalMember(e *Member, ctx *kscontext.Context) (ksvalue.Value, error) {
	recv, err := Eval(e.Recv, ctx)
	if err != nil {
		return nil, err
	}
	if isSentinelMethod(e.Name) {
		return applyMethod(e.pos, e.Name, recv)
	}
	if recv == nil || recv.Kind() == ksvalue.KindNull {
		return nil, &ParseError{Pos: e.pos, Msg: "cannot access member of undefined"}
	}
	g, ok := recv.(ksvalue.Getter)
	if !ok {
		return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("cannot access member %q of %T", e.Name, recv)}
	}
	v, found, err := g.Get(e.Name)
	if err != nil {
		return nil, &ParseError{Pos: e.pos, Msg: err.Error()}
	}
	if !found {
		return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("no member %q", e.Name)}
	}
	return v, nil
}

func evalIndex(e *Index, ctx *kscontext.Context) (ksvalue.Value, error) {
	recv, err := Eval(e.Recv, ctx)
	if err != nil {
		return nil, err
	}
	idxVal, err := Eval(e.Index, ctx)
	if err != nil {
		return nil, err
	}
	idx, ok := ksvalue.ToBig(idxVal)
	if !ok {
		return nil, &ParseError{Pos: e.pos, Msg: "index must be integer"}
	}
	v, err := ksvalue.Index(recv, idx.Int64())
	if err != nil {
		return nil, &ParseError{Pos: e.pos, Msg: err.Error()}
	}
	return v, nil
}

func evalCall(e *Call, ctx *kscontext.Context) (ksvalue.Value, error) {
	recv, err := Eval(e.Recv, ctx)
	if err != nil {
		return nil, err
	}
	if !isSentinelMethod(e.Name) {
		return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("unknown method %q", e.Name)}
	}
	return applyMethod(e.pos, e.Name, recv)
}

// applyMethod implements the reserved zero-arg method-call surface:
// length/size, to_i, to_s.
func applyMethod(pos int, name string, recv ksvalue.Value) (ksvalue.Value, error) {
	switch name {
	case "length", "size":
		n, err := ksvalue.Length(recv)
		if err != nil {
			return nil, &ParseError{Pos: pos, Msg: err.Error()}
		}
		return ksvalue.NewInt(n), nil
	case "to_i":
		switch x := recv.(type) {
		case ksvalue.Int:
			return x, nil
		case ksvalue.BigInt:
			return x, nil
		case ksvalue.Float:
			return ksvalue.NewInt(int64(math.Floor(x.V))), nil
		case ksvalue.Text:
			n, err := strconv.ParseInt(strings.TrimSpace(x.V), 10, 64)
			if err != nil {
				return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("to_i: cannot parse %q", x.V)}
			}
			return ksvalue.NewInt(n), nil
		default:
			return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("to_i: unsupported operand %T", recv)}
		}
	case "to_s":
		return ksvalue.NewText(toDisplayString(recv)), nil
	default:
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("unknown method %q", name)}
	}
}

func evalEnumAccess(e *EnumAccess, ctx *kscontext.Context) (ksvalue.Value, error) {
	mapping, ok := ctx.Enums[e.Enum]
	if !ok {
		return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("unknown enum %q", e.Enum)}
	}
	for k, name := range mapping {
		if name == e.Member {
			return ksvalue.NewInt(k), nil
		}
	}
	return nil, &ParseError{Pos: e.pos, Msg: fmt.Sprintf("enum %q has no member %q", e.Enum, e.Member)}
}
