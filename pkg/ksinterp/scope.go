package ksinterp

import "github.com/kaitai-rt/kstruct/pkg/ksschema"

// scope is the lexical view the interpreter walks against: a root schema or
// a nested type, plus a link to its enclosing scope for outward name
// resolution and meta/enum inheritance.
type scope struct {
	name      string
	meta      *ksschema.Meta
	seq       []ksschema.Field
	types     map[string]*ksschema.Type
	instances map[string]ksschema.Instance
	enums     map[string]ksschema.Enum
	params    []ksschema.Param
	parent    *scope
}

func rootScope(s *ksschema.Schema) *scope {
	return &scope{
		name:      s.Meta.ID,
		meta:      &s.Meta,
		seq:       s.Seq,
		types:     s.Types,
		instances: s.Instances,
		enums:     s.Enums,
		params:    s.Params,
	}
}

func childScope(name string, t *ksschema.Type, parent *scope) *scope {
	return &scope{
		name:      name,
		meta:      t.Meta,
		seq:       t.Seq,
		types:     t.Types,
		instances: t.Instances,
		enums:     t.Enums,
		params:    t.Params,
		parent:    parent,
	}
}

// endianRaw walks outward for the nearest meta.Endian, mirroring a field
// looking outward through enclosing types until one sets an explicit byte
// order.
func (sc *scope) endianRaw() string {
	for s := sc; s != nil; s = s.parent {
		if s.meta != nil && s.meta.Endian != "" {
			return s.meta.Endian
		}
	}
	return ""
}

func (sc *scope) bitEndianRaw() string {
	for s := sc; s != nil; s = s.parent {
		if s.meta != nil && s.meta.BitEndian != "" {
			return s.meta.BitEndian
		}
	}
	return "be"
}

// encoding walks outward for the nearest meta.Encoding.
func (sc *scope) encoding() string {
	for s := sc; s != nil; s = s.parent {
		if s.meta != nil && s.meta.Encoding != "" {
			return s.meta.Encoding
		}
	}
	return ""
}

// effectiveEnums walks outward until it finds a scope that declares its
// own enum table — a nested type lacking one inherits the enclosing
// table as a whole unit, not merged field by field.
func (sc *scope) effectiveEnums() map[string]ksschema.Enum {
	for s := sc; s != nil; s = s.parent {
		if len(s.enums) > 0 {
			return s.enums
		}
	}
	return nil
}

// resolveType walks the scope chain outward (current -> parent -> ... ->
// root) looking for a user type named name.
func (sc *scope) resolveType(name string) (*ksschema.Type, *scope, bool) {
	for s := sc; s != nil; s = s.parent {
		if t, ok := s.types[name]; ok {
			return t, s, true
		}
	}
	return nil, nil, false
}
