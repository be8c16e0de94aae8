// Package schema declares tool parameter schemas and validates raw JSON
// arguments against them. The same declaration renders the JSON Schema
// document advertised by tools/list, so discovery and validation cannot drift.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Type is a JSON value type understood by the validator.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
	// TypeAny accepts any JSON value unchanged.
	TypeAny Type = ""
)

// Field declares one named argument. Fields are values; the builder methods
// return modified copies so declarations read top to bottom.
type Field struct {
	name        string
	typ         Type
	description string
	required    bool
	nullable    bool
	hasDefault  bool
	def         any
	min         *float64
	max         *float64
	length      int
	enum        []string
	items       *Field
	fields      []Field
}

func String(name string) Field  { return Field{name: name, typ: TypeString} }
func Integer(name string) Field { return Field{name: name, typ: TypeInteger} }
func Number(name string) Field  { return Field{name: name, typ: TypeNumber} }
func Boolean(name string) Field { return Field{name: name, typ: TypeBoolean} }
func Any(name string) Field     { return Field{name: name, typ: TypeAny} }

// Array declares an array whose elements satisfy items. The items name is
// ignored; element paths are reported as name[i].
func Array(name string, items Field) Field {
	items.name = ""
	return Field{name: name, typ: TypeArray, items: &items}
}

// Object declares a nested object with its own fields.
func Object(name string, fields ...Field) Field {
	return Field{name: name, typ: TypeObject, fields: fields}
}

func (f Field) Required() Field {
	f.required = true
	return f
}

// Nullable allows an explicit JSON null. A nullable field may still be
// optional; absent and null are reported differently by Args.
func (f Field) Nullable() Field {
	f.nullable = true
	return f
}

func (f Field) Default(v any) Field {
	f.hasDefault = true
	f.def = v
	return f
}

func (f Field) Min(v float64) Field {
	f.min = &v
	return f
}

func (f Field) Max(v float64) Field {
	f.max = &v
	return f
}

// Length requires an array to hold exactly n elements.
func (f Field) Length(n int) Field {
	f.length = n
	return f
}

func (f Field) Enum(values ...string) Field {
	f.enum = append([]string(nil), values...)
	return f
}

func (f Field) Describe(text string) Field {
	f.description = text
	return f
}

func (f Field) Name() string { return f.name }

// Schema is the parameter schema of one tool: an object with a fixed set of
// fields and no additional properties.
type Schema struct {
	fields []Field
}

func New(fields ...Field) Schema {
	return Schema{fields: append([]Field(nil), fields...)}
}

func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Issue is one offending field.
type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "invalid arguments"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Field == "" {
			parts = append(parts, issue.Reason)
			continue
		}
		parts = append(parts, issue.Field+": "+issue.Reason)
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}

// Fields returns the names of the offending fields in report order.
func (e *ValidationError) Fields() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		out = append(out, issue.Field)
	}
	return out
}

// Invalid builds a single-issue ValidationError for checks that span more
// than one field and so cannot be declared in a Schema.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Issues: []Issue{{Field: field, Reason: reason}}}
}

// Validate checks raw against the schema. On success the returned Args hold
// normalized values with defaults applied; on failure nothing is returned
// and every issue is reported.
func (s Schema) Validate(raw map[string]any) (Args, error) {
	var issues []Issue
	out := validateFields(s.fields, raw, "", &issues)
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return out, nil
}

func validateFields(fields []Field, raw map[string]any, prefix string, issues *[]Issue) Args {
	out := make(Args, len(fields))
	known := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		known[field.name] = struct{}{}
		path := joinPath(prefix, field.name)

		value, present := raw[field.name]
		if !present {
			if field.required {
				*issues = append(*issues, Issue{Field: path, Reason: "is required"})
				continue
			}
			if field.hasDefault {
				out[field.name] = cloneDefault(field.def)
			}
			continue
		}
		if value == nil {
			if !field.nullable {
				*issues = append(*issues, Issue{Field: path, Reason: "must not be null"})
				continue
			}
			out[field.name] = nil
			continue
		}

		normalized, ok := validateValue(field, value, path, issues)
		if ok {
			out[field.name] = normalized
		}
	}

	var unknown []string
	for key := range raw {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		*issues = append(*issues, Issue{Field: joinPath(prefix, key), Reason: "is not a recognized argument"})
	}
	return out
}

// maxIntFloat is 2^63, exactly representable as a float64.
const maxIntFloat = float64(1 << 63)

func validateValue(field Field, value any, path string, issues *[]Issue) (any, bool) {
	fail := func(reason string) (any, bool) {
		*issues = append(*issues, Issue{Field: path, Reason: reason})
		return nil, false
	}

	switch field.typ {
	case TypeAny:
		return value, true

	case TypeString:
		s, ok := value.(string)
		if !ok {
			return fail("must be a string")
		}
		if len(field.enum) > 0 && !contains(field.enum, s) {
			return fail("must be one of: " + strings.Join(field.enum, ", "))
		}
		return s, true

	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return fail("must be a boolean")
		}
		return b, true

	case TypeInteger:
		n, ok := toFloat(value)
		if !ok || math.Trunc(n) != n {
			return fail("must be an integer")
		}
		// float64(math.MaxInt64) rounds up to 2^63, so compare against 2^63.
		if n < -maxIntFloat || n >= maxIntFloat {
			return fail("is out of range")
		}
		if reason := checkBounds(field, n); reason != "" {
			return fail(reason)
		}
		return int(n), true

	case TypeNumber:
		n, ok := toFloat(value)
		if !ok {
			return fail("must be a number")
		}
		if reason := checkBounds(field, n); reason != "" {
			return fail(reason)
		}
		return n, true

	case TypeArray:
		items, ok := toSlice(value)
		if !ok {
			return fail("must be an array")
		}
		if field.length > 0 && len(items) != field.length {
			return fail(fmt.Sprintf("must contain exactly %d items, got %d", field.length, len(items)))
		}
		return validateItems(field, items, path, issues)

	case TypeObject:
		m, ok := value.(map[string]any)
		if !ok {
			return fail("must be an object")
		}
		before := len(*issues)
		nested := validateFields(field.fields, m, path, issues)
		if len(*issues) > before {
			return nil, false
		}
		return nested, true
	}
	return fail("has an unsupported schema type")
}

func validateItems(field Field, items []any, path string, issues *[]Issue) (any, bool) {
	elem := Any("")
	if field.items != nil {
		elem = *field.items
	}
	before := len(*issues)

	normalized := make([]any, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		if item == nil {
			if !elem.nullable {
				*issues = append(*issues, Issue{Field: itemPath, Reason: "must not be null"})
			}
			continue
		}
		if v, ok := validateValue(elem, item, itemPath, issues); ok {
			normalized[i] = v
		}
	}
	if len(*issues) > before {
		return nil, false
	}

	switch elem.typ {
	case TypeInteger:
		out := make([]int, len(normalized))
		for i, v := range normalized {
			out[i], _ = v.(int)
		}
		return out, true
	case TypeNumber:
		out := make([]float64, len(normalized))
		for i, v := range normalized {
			out[i], _ = v.(float64)
		}
		return out, true
	case TypeString:
		out := make([]string, len(normalized))
		for i, v := range normalized {
			out[i], _ = v.(string)
		}
		return out, true
	default:
		return normalized, true
	}
}

func checkBounds(field Field, n float64) string {
	if field.min != nil && n < *field.min {
		return "must be >= " + formatBound(*field.min)
	}
	if field.max != nil && n > *field.max {
		return "must be <= " + formatBound(*field.max)
	}
	return ""
}

func formatBound(v float64) string {
	if math.Trunc(v) == v {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []float64:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case []int:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case []string:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneDefault(v any) any {
	switch d := v.(type) {
	case []int:
		return append([]int(nil), d...)
	case []float64:
		return append([]float64(nil), d...)
	case []string:
		return append([]string(nil), d...)
	default:
		return v
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
