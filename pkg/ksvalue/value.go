// Package ksvalue implements the dynamically-typed result tree produced by
// the interpreter: a tagged union over integers, floats, booleans, byte
// sequences, text, ordered sequences and nested objects, plus the lazy
// instance-accessor machinery attached to objects.
package ksvalue

import (
	"fmt"
	"math/big"
)

// Kind tags the concrete shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindBigInt
	KindFloat
	KindBool
	KindBytes
	KindText
	KindSeq
	KindObj
)

// Value is the base interface every node of the result tree satisfies.
type Value interface {
	Kind() Kind
	String() string
}

// Null is the language's absent/undefined value: the result of a skipped
// `if` field, an out-of-range index, or a lookup that found nothing.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) String() string { return "null" }

var TheNull = Null{}

// Int wraps every integer width that is not a 64-bit read (u1/s1/u2/s2/u4/s4
// all fit comfortably without precision loss).
type Int struct {
	V int64
}

func NewInt(v int64) Int { return Int{V: v} }
func (i Int) Kind() Kind { return KindInt }
func (i Int) String() string { return fmt.Sprintf("%d", i.V) }

// BigInt wraps u8/s8 reads, which the caller-visible tree must surface
// without precision loss.
type BigInt struct {
	V *big.Int
}

func NewBigInt(v *big.Int) BigInt { return BigInt{V: v} }
func NewBigIntFromU64(v uint64) BigInt {
	return BigInt{V: new(big.Int).SetUint64(v)}
}
func NewBigIntFromI64(v int64) BigInt {
	return BigInt{V: big.NewInt(v)}
}
func (b BigInt) Kind() Kind { return KindBigInt }
func (b BigInt) String() string { return b.V.String() }

type Float struct {
	V float64
}

func NewFloat(v float64) Float { return Float{V: v} }
func (f Float) Kind() Kind { return KindFloat }
func (f Float) String() string { return fmt.Sprintf("%g", f.V) }

type Bool struct {
	V bool
}

func NewBool(v bool) Bool { return Bool{V: v} }
func (b Bool) Kind() Kind { return KindBool }
func (b Bool) String() string {
	if b.V {
		return "true"
	}
	return "false"
}

type Bytes struct {
	V []byte
}

func NewBytes(v []byte) Bytes { return Bytes{V: v} }
func (b Bytes) Kind() Kind { return KindBytes }
func (b Bytes) String() string {
	return fmt.Sprintf("%x", b.V)
}

type Text struct {
	V string
}

func NewText(v string) Text { return Text{V: v} }
func (t Text) Kind() Kind { return KindText }
func (t Text) String() string { return t.V }

// Seq is an ordered sequence of values produced by repetition.
type Seq struct {
	V []Value
}

func NewSeq(v []Value) Seq { return Seq{V: v} }
func (s Seq) Kind() Kind { return KindSeq }
func (s Seq) String() string {
	return fmt.Sprintf("<seq len=%d>", len(s.V))
}

// IsTrue implements the language's truthiness coercion: false, numeric 0,
// empty string, empty byte sequence, and nullish are false, everything else
// is true.
func IsTrue(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case Null:
		return false
	case Bool:
		return x.V
	case Int:
		return x.V != 0
	case BigInt:
		return x.V.Sign() != 0
	case Float:
		return x.V != 0
	case Text:
		return x.V != ""
	case Bytes:
		return len(x.V) != 0
	default:
		return true
	}
}

// Equal implements value equality, comparing integers against other
// numeric kinds under arbitrary-precision semantics.
func Equal(a, b Value) bool {
	an, aok := asBig(a)
	bn, bok := asBig(b)
	if aok && bok {
		return an.Cmp(bn) == 0
	}
	switch av := a.(type) {
	case Bool:
		if bv, ok := b.(Bool); ok {
			return av.V == bv.V
		}
		return false
	case Text:
		if bv, ok := b.(Text); ok {
			return av.V == bv.V
		}
		return false
	case Bytes:
		if bv, ok := b.(Bytes); ok {
			if len(av.V) != len(bv.V) {
				return false
			}
			for i := range av.V {
				if av.V[i] != bv.V[i] {
					return false
				}
			}
			return true
		}
		return false
	case Float:
		if bf, ok := asFloat(b); ok {
			return av.V == bf
		}
		return false
	case Null:
		_, ok := b.(Null)
		return ok
	}
	return false
}

func asBig(v Value) (*big.Int, bool) {
	switch x := v.(type) {
	case Int:
		return big.NewInt(x.V), true
	case BigInt:
		return x.V, true
	case Bool:
		if x.V {
			return big.NewInt(1), true
		}
		return big.NewInt(0), true
	}
	return nil, false
}

func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case Int:
		return float64(x.V), true
	case BigInt:
		f := new(big.Float).SetInt(x.V)
		r, _ := f.Float64()
		return r, true
	case Float:
		return x.V, true
	}
	return 0, false
}

// ToFloat coerces a numeric value to float64; the ok return is false for
// non-numeric values.
func ToFloat(v Value) (float64, bool) { return asFloat(v) }

// ToBig coerces an integer-like value (Int/BigInt/Bool) to *big.Int.
func ToBig(v Value) (*big.Int, bool) { return asBig(v) }

// Length returns the element/byte/character count of a sequence, byte
// array, or string (the `length`/`size` method-call surface).
func Length(v Value) (int64, error) {
	switch x := v.(type) {
	case Seq:
		return int64(len(x.V)), nil
	case Bytes:
		return int64(len(x.V)), nil
	case Text:
		return int64(len([]rune(x.V))), nil
	default:
		return 0, fmt.Errorf("length/size: unsupported operand %T", v)
	}
}

// Index implements integer indexing into a sequence or byte array;
// out-of-range yields Null rather than an error.
func Index(v Value, idx int64) (Value, error) {
	switch x := v.(type) {
	case Seq:
		if idx < 0 || idx >= int64(len(x.V)) {
			return TheNull, nil
		}
		return x.V[idx], nil
	case Bytes:
		if idx < 0 || idx >= int64(len(x.V)) {
			return TheNull, nil
		}
		return NewInt(int64(x.V[idx])), nil
	default:
		return nil, fmt.Errorf("cannot index into %T", v)
	}
}

// FromAny converts a YAML-decoded scalar (as found in a `valid:` clause)
// into the matching Value kind.
func FromAny(x any) Value {
	switch v := x.(type) {
	case int:
		return NewInt(int64(v))
	case int64:
		return NewInt(v)
	case float64:
		if float64(int64(v)) == v {
			return NewInt(int64(v))
		}
		return NewFloat(v)
	case string:
		return NewText(v)
	case bool:
		return NewBool(v)
	case []byte:
		return NewBytes(v)
	default:
		return TheNull
	}
}
