package slimcryptdb

import (
	"github.com/Syras206/slimcryptdb/query"
	"github.com/Syras206/slimcryptdb/record"
)

// Query runs the filter/index-or-scan/sort/paginate pipeline from
// spec.md §4.8 against one table's current rows. Reads are not locked:
// the whole-file read-then-decode in tablestore.Load already gives a
// consistent pre- or post-commit snapshot, per spec.md §5.
func (e *Engine) Query(table string, filter *query.Filter, sortSpec query.SortSpec, offset, limit int) ([]record.Record, error) {
	if err := e.requireReady("slimcryptdb.Query"); err != nil {
		return nil, err
	}
	t, err := e.tables.Load(table)
	if err != nil {
		return nil, err
	}
	return query.Execute(t.Rows, e.indexes.ForTable(table), filter, sortSpec, offset, limit)
}

// QueryJoin runs Query against table, then joins each result row with
// the row in joinTable whose joinForeignKey equals row[joinKey], per
// spec.md §4.8's join operator.
func (e *Engine) QueryJoin(
	table string, filter *query.Filter, sortSpec query.SortSpec, offset, limit int,
	joinKey, joinTable, joinForeignKey string,
) ([]record.Record, error) {
	rows, err := e.Query(table, filter, sortSpec, offset, limit)
	if err != nil {
		return nil, err
	}
	jt, err := e.tables.Load(joinTable)
	if err != nil {
		return nil, err
	}
	return query.Join(rows, joinKey, jt.Rows, joinForeignKey), nil
}
