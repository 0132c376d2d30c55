// Package schema implements the structural row validator described in
// spec.md §4.9 (C9). It compiles the declared record.Schema into a
// JSON-Schema document and validates with gojsonschema, the same
// library and calling convention the pack's bundoc.Collection uses
// (SetSchema compiles with gojsonschema.NewSchema, validates with
// gojsonschema.NewGoLoader). Per spec.md, only type/properties/required
// are enforced normatively; the remaining recognized fields (enum,
// format, minLength, maxLength, minimum, maximum, pattern,
// additionalProperties) are advisory, so the compiled "strict" schema
// used to reject rows contains only the normative fields, while the
// full schema (built with every field) is used for a second,
// non-blocking advisory pass whose violations are merely reported.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/record"
)

// Validator compiles and applies one record.Schema.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Result carries the outcome of validating one row: Err is non-nil
// (VALIDATION_ERROR) when a normative rule was violated; Advisories
// lists human-readable messages for violations of advisory-only fields
// that did not block the write.
type Result struct {
	Err        error
	Advisories []string
}

// Validate checks row against s. A nil schema always passes.
func (v *Validator) Validate(s *record.Schema, row record.Record) Result {
	if s == nil {
		return Result{}
	}

	data := row.ToMap()

	strictDoc := toJSONSchema(s, true)
	strictSchema, err := compile(strictDoc)
	if err != nil {
		return Result{Err: errs.New(errs.ValidationError, "schema.Validate", fmt.Errorf("invalid schema: %w", err))}
	}
	res, err := strictSchema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return Result{Err: errs.New(errs.ValidationError, "schema.Validate", err)}
	}
	if !res.Valid() {
		first := res.Errors()[0]
		return Result{Err: errs.ValidationErr("schema.Validate", fmt.Errorf("field %q: %s", first.Field(), first.Description()))}
	}

	advisories := v.advisoryCheck(s, data)
	return Result{Advisories: advisories}
}

// advisoryCheck re-validates with the full schema (including
// enum/format/minLength/etc.) and, for every extra violation beyond what
// the strict pass already caught, returns a human-readable note instead
// of failing the write.
func (v *Validator) advisoryCheck(s *record.Schema, data map[string]interface{}) []string {
	fullDoc := toJSONSchema(s, false)
	fullSchema, err := compile(fullDoc)
	if err != nil {
		return nil
	}
	res, err := fullSchema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil || res.Valid() {
		return nil
	}
	out := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		out = append(out, fmt.Sprintf("field %q: %s (advisory)", e.Field(), e.Description()))
	}
	return out
}

func compile(doc map[string]interface{}) (*gojsonschema.Schema, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	loader := gojsonschema.NewBytesLoader(b)
	return gojsonschema.NewSchema(loader)
}

// toJSONSchema renders a record.Schema into the map shape
// gojsonschema.NewBytesLoader expects. When strictOnly is true, only
// type/properties(recursively strict)/required are emitted; every other
// recognized field is dropped so it cannot cause a hard failure.
func toJSONSchema(s *record.Schema, strictOnly bool) map[string]interface{} {
	doc := map[string]interface{}{}
	if s.Type != "" {
		// spec.md §4.9: a declared "array" type accepts an object, a
		// compatibility concession the strict JSON Schema "type" keyword
		// does not express on its own, so array types are loosened to
		// accept either shape.
		if s.Type == "array" {
			doc["type"] = []string{"array", "object"}
		} else {
			doc["type"] = s.Type
		}
	}
	if len(s.Properties) > 0 {
		props := map[string]interface{}{}
		for name, sub := range s.Properties {
			props[name] = toJSONSchema(sub, strictOnly)
		}
		doc["properties"] = props
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	if s.Items != nil {
		doc["items"] = toJSONSchema(s.Items, strictOnly)
	}

	if strictOnly {
		return doc
	}

	if len(s.Enum) > 0 {
		doc["enum"] = s.Enum
	}
	if s.Format != "" {
		doc["format"] = s.Format
	}
	if s.MinLength != nil {
		doc["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		doc["maxLength"] = *s.MaxLength
	}
	if s.Minimum != nil {
		doc["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		doc["maximum"] = *s.Maximum
	}
	if s.Pattern != "" {
		doc["pattern"] = s.Pattern
	}
	if s.AdditionalProperties != nil {
		doc["additionalProperties"] = *s.AdditionalProperties
	}
	return doc
}
