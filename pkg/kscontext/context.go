// Package kscontext implements the per-parse evaluation context: the
// object under construction, the parent chain, the root, the active
// stream, the enum table, and the `_index`/`_` loop variables that
// expressions resolve against.
package kscontext

import (
	"github.com/kaitai-rt/kstruct/pkg/kstream"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

// EnumTable maps an enum name to its {numeric -> symbol} mapping, visible
// to `Name::member` expression lookups.
type EnumTable map[string]map[int64]string

// Context is the resolution environment threaded through a single parse.
// It is cheap to derive a child context when entering a nested type or a
// repetition element: clone copies the struct value, then the caller
// mutates only what changes (Current, parent push, Index, Last).
type Context struct {
	IO      *kstream.Stream
	Root    *ksvalue.Obj
	Current *ksvalue.Obj
	parents []*ksvalue.Obj
	Enums   EnumTable

	hasIndex bool
	index    int64

	hasLast bool
	last    ksvalue.Value
}

// New creates a root context over io, with current == root (the object
// being populated at the top of the parse).
func New(io *kstream.Stream, root *ksvalue.Obj, enums EnumTable) *Context {
	return &Context{IO: io, Root: root, Current: root, Enums: enums}
}

// PushChild returns a derived context for entering a nested type: current
// becomes child, and the old current is pushed onto the parent stack.
func (c *Context) PushChild(child *ksvalue.Obj) *Context {
	nc := c.clone()
	nc.parents = append(append([]*ksvalue.Obj{}, c.parents...), c.Current)
	nc.Current = child
	nc.hasIndex = false
	nc.hasLast = false
	return nc
}

// Parent returns the immediate enclosing object, or nil at the root.
func (c *Context) Parent() *ksvalue.Obj {
	if len(c.parents) == 0 {
		return nil
	}
	return c.parents[len(c.parents)-1]
}

// WithIndex returns a derived context with `_index` bound, for one
// iteration of a repetition.
func (c *Context) WithIndex(i int64) *Context {
	nc := c.clone()
	nc.hasIndex = true
	nc.index = i
	return nc
}

// WithLast returns a derived context with `_` bound to v, for the
// until-expression of a repeat-until iteration.
func (c *Context) WithLast(v ksvalue.Value) *Context {
	nc := c.clone()
	nc.hasLast = true
	nc.last = v
	return nc
}

// WithIO returns a derived context reading from io instead of the parent
// stream, for a field whose bytes were carved into a sub-stream (or a
// process-transformed buffer) before being handed to the type interpreter.
func (c *Context) WithIO(io *kstream.Stream) *Context {
	nc := c.clone()
	nc.IO = io
	return nc
}

func (c *Context) clone() *Context {
	nc := *c
	return &nc
}

// Resolve implements the identifier lookup order: special names first,
// then fields of Current, then "not found".
func (c *Context) Resolve(name string) (ksvalue.Value, bool, error) {
	switch name {
	case "_io":
		return ioSentinel{c.IO}, true, nil
	case "_root":
		return c.Root, true, nil
	case "_parent":
		if p := c.Parent(); p != nil {
			return p, true, nil
		}
		return ksvalue.TheNull, true, nil
	case "_index":
		if c.hasIndex {
			return ksvalue.NewInt(c.index), true, nil
		}
		return nil, false, nil
	case "_":
		if c.hasLast {
			return c.last, true, nil
		}
		return nil, false, nil
	}
	if c.Current != nil {
		if v, ok, err := c.Current.Get(name); ok {
			return v, true, err
		}
	}
	return nil, false, nil
}

// ioSentinel exposes the active stream's pos/size to `_io.pos`/`_io.size`
// member access without pulling kstream into ksvalue's Value union.
type ioSentinel struct{ s *kstream.Stream }

func (ioSentinel) Kind() ksvalue.Kind { return ksvalue.KindObj }
func (i ioSentinel) String() string { return "<io>" }

// Get resolves `.pos`/`.size`/`.eof` on `_io` (a minimal surface; the
// expression language's only sanctioned use of `_io` beyond passing it to
// `type`/`process` directives is this introspection), matching the
// Getter shape *ksvalue.Obj implements so the evaluator's member-access
// dispatch needs no special case for `_io`.
func (i ioSentinel) Get(name string) (ksvalue.Value, bool, error) {
	if i.s == nil {
		return nil, false, nil
	}
	switch name {
	case "pos":
		return ksvalue.NewInt(i.s.Pos()), true, nil
	case "size":
		return ksvalue.NewInt(i.s.Size()), true, nil
	case "eof":
		return ksvalue.NewBool(i.s.EOF()), true, nil
	}
	return nil, false, nil
}
