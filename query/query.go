// Package query implements the filter/sort/paginate/join evaluator from
// spec.md §4.8 (C8). It generalizes the teacher's WhereClause/WhereGroup
// tree (engine/filter_parser.go, engine/query_engine.go) from a
// string-tokenized SQL-like grammar into a structured Filter/Condition
// tree matching the JSON grammar spec.md declares, and adds
// index-assisted resolution on top of the plain table-scan evaluator
// the teacher uses.
package query

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/Syras206/slimcryptdb/index"
	"github.com/Syras206/slimcryptdb/record"
)

// Logic joins a Filter's child conditions.
type Logic string

const (
	And Logic = "and"
	Or  Logic = "or"
)

// CmpOp enumerates the comparison operators a Condition may use.
type CmpOp string

const (
	Eq       CmpOp = "=="
	Neq      CmpOp = "!="
	Gt       CmpOp = ">"
	Gte      CmpOp = ">="
	Lt       CmpOp = "<"
	Lte      CmpOp = "<="
	In       CmpOp = "in"
	Like     CmpOp = "like"
	Contains CmpOp = "contains"
)

// Condition is one leaf test: column OP value.
type Condition struct {
	Column   string
	Operator CmpOp
	Value    interface{}
}

// Filter is either a leaf Condition or an and/or group of child Filters,
// mirroring spec.md §4.8's grammar:
//
//	Filter    := { operator: ("and"|"or"), conditions: [Filter|Condition] }
//	Condition := { column, operator, value }
type Filter struct {
	Logic      Logic
	Conditions []*Filter // non-nil for a group node
	Leaf       *Condition // non-nil for a leaf node
}

// Cond builds a leaf Filter.
func Cond(column string, op CmpOp, value interface{}) *Filter {
	return &Filter{Leaf: &Condition{Column: column, Operator: op, Value: value}}
}

// Group builds an and/or group of child filters.
func Group(logic Logic, children ...*Filter) *Filter {
	return &Filter{Logic: logic, Conditions: children}
}

// Matches evaluates f against row. Missing columns make any condition
// referencing them false, per spec.md §4.8 ("three-valued logic not
// modeled").
func (f *Filter) Matches(row record.Record) (bool, error) {
	if f == nil {
		return true, nil
	}
	if f.Leaf != nil {
		return evalCondition(f.Leaf, row)
	}
	switch f.Logic {
	case Or:
		for _, child := range f.Conditions {
			ok, err := child.Matches(row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default: // And, and the zero value
		for _, child := range f.Conditions {
			ok, err := child.Matches(row)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

func evalCondition(c *Condition, row record.Record) (bool, error) {
	v, ok := row.Get(c.Column)
	if !ok {
		return false, nil
	}
	switch c.Operator {
	case Eq:
		return compareEqual(v, c.Value), nil
	case Neq:
		return !compareEqual(v, c.Value), nil
	case Gt, Gte, Lt, Lte:
		return compareOrdered(c.Operator, v, c.Value)
	case In:
		items, ok := c.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("query: %q operator requires an array value", In)
		}
		for _, item := range items {
			if compareEqual(v, item) {
				return true, nil
			}
		}
		return false, nil
	case Like:
		return matchRegex(v, c.Value, true)
	case Contains:
		return matchRegex(v, c.Value, false)
	default:
		return false, fmt.Errorf("query: unknown operator %q", c.Operator)
	}
}

func matchRegex(v, pattern interface{}, caseInsensitive bool) (bool, error) {
	s, ok := v.(string)
	if !ok {
		return false, nil
	}
	p, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("query: like/contains requires a string value")
	}
	if caseInsensitive {
		p = "(?i)" + p
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false, fmt.Errorf("query: invalid pattern %q: %w", p, err)
	}
	return re.MatchString(s), nil
}

func compareEqual(a, b interface{}) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareOrdered(op CmpOp, a, b interface{}) (bool, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch op {
		case Gt:
			return af > bf, nil
		case Gte:
			return af >= bf, nil
		case Lt:
			return af < bf, nil
		case Lte:
			return af <= bf, nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case Gt:
			return as > bs, nil
		case Gte:
			return as >= bs, nil
		case Lt:
			return as < bs, nil
		case Lte:
			return as <= bs, nil
		}
	}
	return false, fmt.Errorf("query: cannot compare %T with %T using %q", a, b, op)
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// SortSpec names the single column and direction a result set is
// ordered by, per spec.md §4.8 ("sort: single column with direction").
type SortSpec struct {
	Column     string
	Descending bool
}

// Sort orders rows by spec, stable with respect to insertion order for
// equal keys.
func Sort(rows []record.Record, spec SortSpec) []record.Record {
	if spec.Column == "" {
		return rows
	}
	out := append([]record.Record{}, rows...)
	sort.SliceStable(out, func(i, j int) bool {
		vi, _ := out[i].Get(spec.Column)
		vj, _ := out[j].Get(spec.Column)
		less := lessValue(vi, vj)
		if spec.Descending {
			return lessValue(vj, vi)
		}
		return less
	})
	return out
}

func lessValue(a, b interface{}) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

// Paginate applies offset then limit, in that order, after sort, per
// spec.md §4.8. A non-positive limit means "no limit".
func Paginate(rows []record.Record, offset, limit int) []record.Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []record.Record{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// Join merges, for each row, the fields of the row in joinRows whose
// joinForeignKey equals row[joinKey]; join-table fields overwrite on
// conflict, per spec.md §4.8. A row with no match is left unmodified.
func Join(rows []record.Record, joinKey string, joinRows []record.Record, joinForeignKey string) []record.Record {
	byForeignKey := make(map[string]record.Record, len(joinRows))
	for _, jr := range joinRows {
		if v, ok := jr.Get(joinForeignKey); ok {
			byForeignKey[fmt.Sprintf("%v", v)] = jr
		}
	}

	out := make([]record.Record, len(rows))
	for i, row := range rows {
		v, ok := row.Get(joinKey)
		if !ok {
			out[i] = row
			continue
		}
		jr, ok := byForeignKey[fmt.Sprintf("%v", v)]
		if !ok {
			out[i] = row
			continue
		}
		merged := row.Clone()
		for _, f := range jr {
			merged = merged.Set(f.Key, f.Value)
		}
		out[i] = merged
	}
	return out
}

// Project keeps only the named columns of each row, in the order given.
// A nil or empty columns list leaves rows unmodified.
func Project(rows []record.Record, columns []string) []record.Record {
	if len(columns) == 0 {
		return rows
	}
	out := make([]record.Record, len(rows))
	for i, row := range rows {
		projected := record.Record{}
		for _, col := range columns {
			if v, ok := row.Get(col); ok {
				projected = projected.Set(col, v)
			}
		}
		out[i] = projected
	}
	return out
}

// equalityColumn reports, for a leaf-level "==" condition, the column
// and value it tests; used by ResolveViaIndex's single-predicate search.
func equalityColumn(f *Filter) (string, interface{}, bool) {
	if f == nil || f.Leaf == nil || f.Leaf.Operator != Eq {
		return "", nil, false
	}
	return f.Leaf.Column, f.Leaf.Value, true
}

// ResolveViaIndex inspects filter for an equality predicate whose column
// is the sole column of an index on table (compound indexes are not
// used for this lookup), picking the first applicable index in insertion
// order, per spec.md §4.5's tie-break rule) and, if found, returns the
// subset of rows it identifies, for the caller to re-filter with the
// full predicate. The second return value reports whether an index was
// usable at all; false means the caller must fall back to a table scan.
func ResolveViaIndex(filter *Filter, indexes []*index.Index, allRows []record.Record) ([]record.Record, bool) {
	if filter == nil {
		return nil, false
	}

	leaves := flattenAndLeaves(filter)
	for _, idx := range indexes {
		if len(idx.Definition.Columns) != 1 {
			continue
		}
		col := idx.Definition.Columns[0]
		for _, leaf := range leaves {
			lc, lv, ok := equalityColumn(leaf)
			if !ok || lc != col {
				continue
			}
			key := index.BuildKey(recordOf(col, lv), []string{col})
			ids := idx.Lookup(key)
			return rowsByID(allRows, ids), true
		}
	}
	return nil, false
}

// flattenAndLeaves collects every leaf condition directly reachable
// through a top-level chain of "and" groups; it does not descend into
// "or" groups, since an equality match under an "or" does not narrow the
// overall result set.
func flattenAndLeaves(f *Filter) []*Filter {
	if f == nil {
		return nil
	}
	if f.Leaf != nil {
		return []*Filter{f}
	}
	if f.Logic == Or {
		return nil
	}
	var out []*Filter
	for _, child := range f.Conditions {
		out = append(out, flattenAndLeaves(child)...)
	}
	return out
}

func recordOf(column string, value interface{}) record.Record {
	return record.Record{{Key: column, Value: value}}
}

func rowsByID(rows []record.Record, ids []string) []record.Record {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]record.Record, 0, len(ids))
	for _, r := range rows {
		if id, ok := r.ID(); ok && want[id] {
			out = append(out, r)
		}
	}
	return out
}

// Execute runs the full filter→index-or-scan→sort→paginate pipeline
// described in spec.md §4.8 over one table's rows.
func Execute(allRows []record.Record, indexes []*index.Index, filter *Filter, sortSpec SortSpec, offset, limit int) ([]record.Record, error) {
	candidates, usedIndex := ResolveViaIndex(filter, indexes, allRows)
	if !usedIndex {
		candidates = allRows
	}

	matched := make([]record.Record, 0, len(candidates))
	for _, row := range candidates {
		ok, err := filter.Matches(row)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	matched = Sort(matched, sortSpec)
	return Paginate(matched, offset, limit), nil
}
