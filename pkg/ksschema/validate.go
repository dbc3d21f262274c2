package ksschema

import (
	"fmt"
	"unicode"
)

// Severity distinguishes a validator Error from a Warning.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Finding is one validator complaint, with enough context for the CLI to
// report it meaningfully.
type Finding struct {
	Severity Severity
	Path     string
	Message  string
}

func (f Finding) String() string {
	sev := "error"
	if f.Severity == SeverityWarning {
		sev = "warning"
	}
	return fmt.Sprintf("%s: %s: %s", sev, f.Path, f.Message)
}

// Result is the validator's output: `{valid, errors[], warnings[]}`.
type Result struct {
	Valid    bool
	Errors   []Finding
	Warnings []Finding
}

// Validate checks Schema against its structural invariants. In strict
// mode, warnings are escalated into errors before Valid is computed.
func Validate(s *Schema, strict bool) Result {
	var findings []Finding
	findings = append(findings, checkMeta(s)...)
	findings = append(findings, checkSeq("seq", s.Seq, s.Enums)...)
	findings = append(findings, checkInstances("instances", s.Instances, s.Enums)...)
	findings = append(findings, checkTypes("types", s.Types, s.Enums)...)

	var res Result
	res.Valid = true
	for _, f := range findings {
		if f.Severity == SeverityError || (strict && f.Severity == SeverityWarning) {
			res.Errors = append(res.Errors, f)
			res.Valid = false
		} else {
			res.Warnings = append(res.Warnings, f)
		}
	}
	return res
}

func checkMeta(s *Schema) []Finding {
	var out []Finding
	if s.Meta.ID == "" {
		out = append(out, Finding{SeverityError, "meta.id", "root schema requires a meta identifier"})
	} else if !isCanonicalID(s.Meta.ID) {
		out = append(out, Finding{SeverityWarning, "meta.id", "identifier is not snake_case"})
	}
	if s.Meta.Endian != "" && s.Meta.Endian != "le" && s.Meta.Endian != "be" {
		// A switch-on expression for endianness is legal; only a bare
		// non-le/be string that isn't clearly an expression is suspect.
		if !looksLikeExpr(s.Meta.Endian) {
			out = append(out, Finding{SeverityError, "meta.endian", fmt.Sprintf("bad endianness %q", s.Meta.Endian)})
		}
	}
	return out
}

func looksLikeExpr(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return true
		}
	}
	return false
}

func isCanonicalID(id string) bool {
	for _, r := range id {
		if unicode.IsUpper(r) {
			return false
		}
		if r != '_' && !unicode.IsLower(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return len(id) > 0
}

func checkSeq(path string, seq []Field, enums map[string]Enum) []Finding {
	var out []Finding
	for i, f := range seq {
		out = append(out, checkField(fmt.Sprintf("%s[%d]", path, i), f, enums)...)
	}
	return out
}

func checkField(path string, f Field, enums map[string]Enum) []Finding {
	var out []Finding

	if f.Repeat == "expr" && f.RepeatExpr == "" {
		out = append(out, Finding{SeverityError, path, "repeat=expr requires repeat-expr"})
	}
	if f.Repeat == "until" && f.RepeatUntil == "" {
		out = append(out, Finding{SeverityError, path, "repeat=until requires repeat-until"})
	}
	if f.Repeat != "" && f.Repeat != "expr" && f.Repeat != "eos" && f.Repeat != "until" {
		out = append(out, Finding{SeverityError, path, fmt.Sprintf("malformed repeat specification %q", f.Repeat)})
	}
	hasSize := f.Size != nil
	if hasSize && f.SizeEOS {
		out = append(out, Finding{SeverityError, path, "size and size-eos are mutually exclusive"})
	}

	if f.Contents != nil {
		switch f.Contents.(type) {
		case string, []any, []byte:
		default:
			out = append(out, Finding{SeverityError, path, "contents must be a byte sequence or a string"})
		}
	}

	if f.Enum != "" {
		if _, ok := enums[f.Enum]; !ok {
			out = append(out, Finding{SeverityError, path, fmt.Sprintf("unknown enum %q", f.Enum)})
		}
	}

	if f.ID != "" && !isCanonicalID(f.ID) {
		out = append(out, Finding{SeverityWarning, path, fmt.Sprintf("identifier %q is not snake_case", f.ID)})
	}

	if sw, ok := f.Type.(*Switch); ok {
		if sw.SwitchOn == "" {
			out = append(out, Finding{SeverityError, path + ".type", "switch type requires switch-on"})
		}
	}

	return out
}

func checkInstances(path string, instances map[string]Instance, enums map[string]Enum) []Finding {
	var out []Finding
	for name, inst := range instances {
		p := fmt.Sprintf("%s.%s", path, name)
		if inst.Value == "" && inst.Pos == "" && inst.Type == nil && inst.Size == nil && !inst.SizeEOS {
			out = append(out, Finding{SeverityWarning, p, "instance has neither a value expression nor a read spec"})
		}
		out = append(out, checkField(p, inst.Field, enums)...)
	}
	return out
}

func checkTypes(path string, types map[string]*Type, parentEnums map[string]Enum) []Finding {
	var out []Finding
	for name, t := range types {
		p := fmt.Sprintf("%s.%s", path, name)
		enums := parentEnums
		if len(t.Enums) > 0 {
			enums = t.Enums
		}
		out = append(out, checkSeq(p+".seq", t.Seq, enums)...)
		out = append(out, checkInstances(p+".instances", t.Instances, enums)...)
		out = append(out, checkTypes(p+".types", t.Types, enums)...)
	}
	return out
}
