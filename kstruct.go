// Package kstruct is the library entry point: parse a byte buffer against a
// textual schema and get back a value tree, with schema validation and
// structured logging wired in by default.
//
// Basic usage:
//
//	tree, err := kstruct.Parse(schemaYAML, data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := kstruct.ToJSON(tree, true)
package kstruct

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaitai-rt/kstruct/pkg/ksinterp"
	"github.com/kaitai-rt/kstruct/pkg/ksschema"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

// options holds configuration assembled from a chain of Option values.
type options struct {
	logger   *slog.Logger
	validate bool
	strict   bool
}

// Option configures a Parse call.
type Option func(*options)

// WithLogger sets the logger threaded into schema validation and the
// interpreter. Defaults to slog.Default when unset.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithValidate toggles §4.2 structural validation before parsing. Enabled
// by default; disabling it means structural schema problems surface later,
// as ordinary interpreter errors at read time.
func WithValidate(enabled bool) Option {
	return func(o *options) { o.validate = enabled }
}

// WithStrict escalates validator warnings to errors.
func WithStrict(enabled bool) Option {
	return func(o *options) { o.strict = enabled }
}

func defaultOptions() options {
	return options{logger: slog.Default(), validate: true, strict: false}
}

// SchemaError reports a schema that failed structural validation; Result
// carries every finding, not just the first.
type SchemaError struct {
	Result ksschema.Result
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed with %d error(s)", len(e.Result.Errors))
}

// Parse loads a schema from its textual form, validates it (unless disabled),
// and interprets data against it, returning the root of the decoded value
// tree.
func Parse(schemaSource []byte, data []byte, opts ...Option) (*ksvalue.Obj, error) {
	return ParseContext(context.Background(), schemaSource, data, opts...)
}

// ParseContext is Parse with an explicit context, threaded into the
// interpreter's logging calls.
func ParseContext(ctx context.Context, schemaSource []byte, data []byte, opts ...Option) (*ksvalue.Obj, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	schema, err := ksschema.LoadYAML(schemaSource)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	if o.validate {
		result := ksschema.Validate(schema, o.strict)
		if !result.Valid {
			return nil, &SchemaError{Result: result}
		}
		for _, w := range result.Warnings {
			o.logger.WarnContext(ctx, "schema validator warning", "finding", w.String())
		}
	}

	interp := ksinterp.New(o.logger)
	return interp.Parse(ctx, schema, data)
}

// ParseSchema interprets data against an already-loaded and validated
// Schema, for callers that parse many buffers against one schema and want
// to pay the YAML/validation cost once.
func ParseSchema(ctx context.Context, schema *ksschema.Schema, data []byte, opts ...Option) (*ksvalue.Obj, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	interp := ksinterp.New(o.logger)
	return interp.Parse(ctx, schema, data)
}

// ValidateSchema loads and structurally validates schema text without
// parsing any data.
func ValidateSchema(schemaSource []byte, strict bool) (ksschema.Result, error) {
	schema, err := ksschema.LoadYAML(schemaSource)
	if err != nil {
		return ksschema.Result{}, fmt.Errorf("loading schema: %w", err)
	}
	return ksschema.Validate(schema, strict), nil
}

// ToJSON renders a value tree as JSON per §6.3's big-integer and
// byte-array framing rules.
func ToJSON(v ksvalue.Value, pretty bool) ([]byte, error) {
	return ksvalue.EncodeJSON(v, pretty)
}

// ToYAML renders a value tree as YAML.
func ToYAML(v ksvalue.Value) ([]byte, error) {
	return ksvalue.EncodeYAML(v)
}

// ExtractField walks a dot-separated path (`header.flags`) through a value
// tree's objects, for the CLI's --field flag. Each segment must resolve
// through a field or instance of an object; a path that runs into a
// non-object value before it's exhausted, or a missing segment, is an error.
func ExtractField(root ksvalue.Value, path string) (ksvalue.Value, error) {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		getter, ok := cur.(ksvalue.Getter)
		if !ok {
			return nil, fmt.Errorf("field path: %q is not an object, cannot resolve %q", cur, seg)
		}
		v, found, err := getter.Get(seg)
		if err != nil {
			return nil, fmt.Errorf("field path: resolving %q: %w", seg, err)
		}
		if !found {
			return nil, fmt.Errorf("field path: no such field or instance %q", seg)
		}
		cur = v
	}
	return cur, nil
}
