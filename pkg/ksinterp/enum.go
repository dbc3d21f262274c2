package ksinterp

import (
	"github.com/kaitai-rt/kstruct/pkg/kscontext"
	"github.com/kaitai-rt/kstruct/pkg/ksschema"
)

// buildEnumTable flattens a scope's enum definitions into the form the
// expression evaluator's `Enum::member` lookup wants.
func buildEnumTable(enums map[string]ksschema.Enum) kscontext.EnumTable {
	et := make(kscontext.EnumTable, len(enums))
	for name, e := range enums {
		m := make(map[int64]string, len(e))
		for k, v := range e {
			m[k] = v
		}
		et[name] = m
	}
	return et
}
