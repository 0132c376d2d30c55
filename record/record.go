// Package record defines the document shape persisted by the engine: an
// ordered mapping from field name to JSON-typed value, plus the schema
// description used to validate it. Order is preserved (unlike a plain
// Go map) because the data model in spec.md describes records as an
// "ordered mapping", the same shape the teacher repo models with its
// per-field Field struct.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one name/value pair of a Record, named after the teacher's
// engine.Field.
type Field struct {
	Key   string
	Value interface{}
}

// Record is an ordered list of fields. The zero value is an empty
// record. IDField is the well-known identifier column name.
type Record []Field

const IDField = "id"

// Get returns the value stored under key and whether it was present.
func (r Record) Get(key string) (interface{}, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value for key if present, or appends a new field
// preserving insertion order otherwise.
func (r Record) Set(key string, value interface{}) Record {
	for i := range r {
		if r[i].Key == key {
			r[i].Value = value
			return r
		}
	}
	return append(r, Field{Key: key, Value: value})
}

// Delete removes key if present.
func (r Record) Delete(key string) Record {
	for i := range r {
		if r[i].Key == key {
			return append(r[:i], r[i+1:]...)
		}
	}
	return r
}

// ID is a convenience accessor for the well-known "id" field.
func (r Record) ID() (string, bool) {
	v, ok := r.Get(IDField)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns an independent copy of the record (shallow on field
// values, deep on the field slice itself).
func (r Record) Clone() Record {
	out := make(Record, len(r))
	copy(out, r)
	return out
}

// ToMap converts the record to a plain map, losing field order. Used by
// the schema validator, which only needs keyed lookup.
func (r Record) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, len(r))
	for _, f := range r {
		m[f.Key] = f.Value
	}
	return m
}

// FromMap builds a Record from a plain map. Since maps have no stable
// order, the resulting field order is the (sorted, for determinism)
// iteration order of m's keys.
func FromMap(m map[string]interface{}) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	out := make(Record, 0, len(m))
	for _, k := range keys {
		out = append(out, Field{Key: k, Value: m[k]})
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// MarshalJSON renders the record as a JSON object whose member order
// matches field order, which encoding/json does not guarantee for a
// plain map.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving the member order found
// in the input via json.Decoder's token stream.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("record: expected JSON object")
	}

	out := Record{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("record: expected string key")
		}
		var val interface{}
		if err := dec.Decode(&val); err != nil {
			return err
		}
		out = append(out, Field{Key: key, Value: normalizeNumber(val)})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return err
	}
	*r = out
	return nil
}

// normalizeNumber converts json.Number leaves (the decoder runs with
// UseNumber, so nested maps and arrays carry them too) into int64 when
// the number is an integer and float64 otherwise. Unlike plain
// encoding/json decoding, which yields float64 for every number,
// integers therefore come back as int64.
func normalizeNumber(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		for k, vv := range t {
			t[k] = normalizeNumber(vv)
		}
		return t
	case []interface{}:
		for i, vv := range t {
			t[i] = normalizeNumber(vv)
		}
		return t
	default:
		return v
	}
}
