package slimcryptdb

import (
	"fmt"

	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/record"
	"github.com/Syras206/slimcryptdb/txn"
)

// withTxn runs fn inside txnID if one was supplied, or opens, runs, and
// commits a fresh implicit transaction otherwise — the "implicit
// transactions" rule from spec.md §4.7. On any error from fn, an
// implicit transaction is rolled back before the error is returned; an
// explicit transaction is left for the caller to roll back or retry.
func (e *Engine) withTxn(txnID string, fn func(id string) (record.Record, error)) (record.Record, error) {
	if txnID != "" {
		return fn(txnID)
	}

	t, err := e.txns.Begin(txn.ReadCommitted)
	if err != nil {
		return nil, err
	}

	row, err := fn(t.ID)
	if err != nil {
		_ = e.txns.Rollback(t.ID)
		return nil, err
	}
	if err := e.txns.Commit(t.ID); err != nil {
		return nil, err
	}
	return row, nil
}

// schemaFor returns table's currently declared schema, or nil if the
// table carries none.
func (e *Engine) schemaFor(table string) (*record.Schema, error) {
	t, err := e.tables.Load(table)
	if err != nil {
		return nil, err
	}
	return t.Schema, nil
}

// AddData inserts row into table, assigning a fresh id if row has none.
// txnID may be empty to use an implicit transaction, per spec.md §4.7.
func (e *Engine) AddData(table string, row record.Record, txnID string) (record.Record, error) {
	if err := e.requireReady("slimcryptdb.AddData"); err != nil {
		return nil, err
	}
	s, err := e.schemaFor(table)
	if err != nil {
		return nil, err
	}
	return e.withTxn(txnID, func(id string) (record.Record, error) {
		return e.txns.Add(id, table, row, s)
	})
}

// UpdateData merges newFields onto the row identified by id in table.
func (e *Engine) UpdateData(table, id string, newFields record.Record, txnID string) (record.Record, error) {
	if err := e.requireReady("slimcryptdb.UpdateData"); err != nil {
		return nil, err
	}
	s, err := e.schemaFor(table)
	if err != nil {
		return nil, err
	}
	oldRow, err := e.findRow(table, id)
	if err != nil {
		return nil, err
	}
	return e.withTxn(txnID, func(tid string) (record.Record, error) {
		return e.txns.Update(tid, table, id, oldRow, newFields, s)
	})
}

// DeleteData removes the row identified by id from table.
func (e *Engine) DeleteData(table, id string, txnID string) error {
	if err := e.requireReady("slimcryptdb.DeleteData"); err != nil {
		return err
	}
	oldRow, err := e.findRow(table, id)
	if err != nil {
		return err
	}
	_, err = e.withTxn(txnID, func(tid string) (record.Record, error) {
		return nil, e.txns.Delete(tid, table, id, oldRow)
	})
	return err
}

func (e *Engine) findRow(table, id string) (record.Record, error) {
	t, err := e.tables.Load(table)
	if err != nil {
		return nil, err
	}
	for _, r := range t.Rows {
		if rowID, ok := r.ID(); ok && rowID == id {
			return r, nil
		}
	}
	return nil, errs.NotFoundErr("slimcryptdb.findRow", fmt.Errorf("row %q not found in table %q", id, table))
}

// CreateTable creates a new table with the given schema (nil for
// schemaless).
func (e *Engine) CreateTable(name string, s *record.Schema, txnID string) error {
	if err := e.requireReady("slimcryptdb.CreateTable"); err != nil {
		return err
	}
	_, err := e.withTxn(txnID, func(tid string) (record.Record, error) {
		return nil, e.txns.CreateTable(tid, name, s)
	})
	return err
}

// DeleteTable destroys a table and every index defined on it.
func (e *Engine) DeleteTable(name string, txnID string) error {
	if err := e.requireReady("slimcryptdb.DeleteTable"); err != nil {
		return err
	}
	_, err := e.withTxn(txnID, func(tid string) (record.Record, error) {
		return nil, e.txns.DeleteTable(tid, name)
	})
	return err
}

// ListTables returns the names of every table currently on disk.
func (e *Engine) ListTables() ([]string, error) {
	if err := e.requireReady("slimcryptdb.ListTables"); err != nil {
		return nil, err
	}
	return e.tables.List()
}
