package ksvalue

import (
	"bytes"
	"fmt"
	"strconv"
)

// EncodeJSON renders v as JSON: big integers as decimal-string
// JSON values (to avoid silent precision loss in consumers that parse JSON
// numbers as float64), byte sequences as arrays of 0-255 integers, and
// objects in field-declaration order followed by realized instances in
// installation order (see Obj.InstanceNames).
// Realizing an instance is attempted and, on failure, the instance is
// omitted rather than aborting the whole encode.
func EncodeJSON(v Value, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := &jsonEncoder{buf: &buf, pretty: pretty}
	if err := enc.encode(v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type jsonEncoder struct {
	buf    *bytes.Buffer
	pretty bool
}

func (e *jsonEncoder) indent(depth int) {
	if !e.pretty {
		return
	}
	e.buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		e.buf.WriteString("  ")
	}
}

func (e *jsonEncoder) encode(v Value, depth int) error {
	switch x := v.(type) {
	case nil, Null:
		e.buf.WriteString("null")
	case Bool:
		if x.V {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case Int:
		e.buf.WriteString(strconv.FormatInt(x.V, 10))
	case BigInt:
		// decimal-string, not a bare JSON number: full 64-bit range must
		// survive JSON consumers that decode numbers as float64.
		e.buf.WriteByte('"')
		e.buf.WriteString(x.V.String())
		e.buf.WriteByte('"')
	case Float:
		e.buf.WriteString(strconv.FormatFloat(x.V, 'g', -1, 64))
	case Text:
		e.encodeString(x.V)
	case Bytes:
		e.buf.WriteByte('[')
		for i, b := range x.V {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.buf.WriteString(strconv.Itoa(int(b)))
		}
		e.buf.WriteByte(']')
	case Seq:
		if len(x.V) == 0 {
			e.buf.WriteString("[]")
			return nil
		}
		e.buf.WriteByte('[')
		for i, item := range x.V {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.indent(depth + 1)
			if err := e.encode(item, depth+1); err != nil {
				return err
			}
		}
		e.indent(depth)
		e.buf.WriteByte(']')
	case *Obj:
		return e.encodeObj(x, depth)
	default:
		return fmt.Errorf("ksvalue: EncodeJSON: unsupported value type %T", v)
	}
	return nil
}

func (e *jsonEncoder) encodeObj(o *Obj, depth int) error {
	type kv struct {
		key string
		val Value
	}
	entries := make([]kv, 0, len(o.fieldOrder)+len(o.instanceOrder))
	for _, name := range o.fieldOrder {
		v, _ := o.Field(name)
		entries = append(entries, kv{name, v})
	}
	for _, name := range o.instanceOrder {
		v, _, err := o.Get(name)
		if err != nil {
			continue
		}
		entries = append(entries, kv{name, v})
	}
	e.buf.WriteByte('{')
	for i, ent := range entries {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.indent(depth + 1)
		e.encodeString(ent.key)
		e.buf.WriteByte(':')
		if e.pretty {
			e.buf.WriteByte(' ')
		}
		if err := e.encode(ent.val, depth+1); err != nil {
			return err
		}
	}
	e.indent(depth)
	e.buf.WriteByte('}')
	return nil
}

func (e *jsonEncoder) encodeString(s string) {
	e.buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			e.buf.WriteString(`\"`)
		case '\\':
			e.buf.WriteString(`\\`)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\t':
			e.buf.WriteString(`\t`)
		case '\r':
			e.buf.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(e.buf, `\u%04x`, r)
			} else {
				e.buf.WriteRune(r)
			}
		}
	}
	e.buf.WriteByte('"')
}
