package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/record"
)

func TestValidateNilSchemaAlwaysPasses(t *testing.T) {
	v := NewValidator()
	res := v.Validate(nil, record.Record{}.Set("anything", "goes"))
	assert.NoError(t, res.Err)
}

func TestValidateRequiredFieldMissingFails(t *testing.T) {
	v := NewValidator()
	s := &record.Schema{
		Type:     "object",
		Required: []string{"email"},
		Properties: map[string]*record.Schema{
			"email": {Type: "string"},
		},
	}
	res := v.Validate(s, record.Record{}.Set("name", "ada"))
	require.Error(t, res.Err)
	assert.Equal(t, errs.ValidationError, errs.CodeOf(res.Err))
}

func TestValidateWrongTypeFails(t *testing.T) {
	v := NewValidator()
	s := &record.Schema{
		Type: "object",
		Properties: map[string]*record.Schema{
			"age": {Type: "integer"},
		},
	}
	res := v.Validate(s, record.Record{}.Set("age", "not a number"))
	require.Error(t, res.Err)
}

func TestValidatePassesWithAllRequiredFieldsPresent(t *testing.T) {
	v := NewValidator()
	s := &record.Schema{
		Type:     "object",
		Required: []string{"email"},
		Properties: map[string]*record.Schema{
			"email": {Type: "string"},
		},
	}
	res := v.Validate(s, record.Record{}.Set("email", "a@example.com"))
	assert.NoError(t, res.Err)
}

func TestAdvisoryFieldViolationDoesNotBlockWrite(t *testing.T) {
	v := NewValidator()
	s := &record.Schema{
		Type: "object",
		Properties: map[string]*record.Schema{
			"age": {Type: "integer", Minimum: floatPtr(0), Maximum: floatPtr(120)},
		},
	}
	res := v.Validate(s, record.Record{}.Set("age", 999))
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.Advisories)
}

func TestArrayTypeAcceptsObjectShape(t *testing.T) {
	v := NewValidator()
	s := &record.Schema{Type: "object", Properties: map[string]*record.Schema{
		"tags": {Type: "array"},
	}}
	res := v.Validate(s, record.Record{}.Set("tags", map[string]interface{}{"0": "a"}))
	assert.NoError(t, res.Err)
}

func floatPtr(f float64) *float64 { return &f }
