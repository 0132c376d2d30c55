package txn

import (
	"fmt"

	"github.com/Syras206/slimcryptdb/crypto"
	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/record"
)

// Add buffers an insert of row into table, acquiring table's lock first.
// If row has no "id" field, a fresh 32-hex-character id is assigned
// before buffering, per spec.md §3. The row is validated against
// table's current schema (read once, outside the lock, since schema
// shape doesn't change concurrently with row content) before it is
// buffered, so a VALIDATION_ERROR surfaces without ever touching the
// lock or the WAL.
func (m *Manager) Add(txnID, table string, row record.Record, s *record.Schema) (record.Record, error) {
	t, err := m.get(txnID)
	if err != nil {
		return nil, err
	}

	if _, ok := row.ID(); !ok {
		id, err := crypto.GenerateID()
		if err != nil {
			return nil, err
		}
		row = row.Clone().Set(record.IDField, id)
	}

	if res := m.validator.Validate(s, row); res.Err != nil {
		return nil, res.Err
	}

	if err := m.requireLock(t, table); err != nil {
		return nil, err
	}

	t.Buffer = append(t.Buffer, Op{Kind: OpAdd, Table: table, Row: row})
	return row, nil
}

// Update buffers a modification of the row identified by id, merging
// newFields on top of the existing row. oldRow must be the row's
// current (pre-update) content: newFields are merged onto a copy of it,
// and it is kept in the buffered Op's OldRow. Commit's index
// maintenance works from the rows it reads from the table file, not
// from OldRow.
func (m *Manager) Update(txnID, table, id string, oldRow record.Record, newFields record.Record, s *record.Schema) (record.Record, error) {
	t, err := m.get(txnID)
	if err != nil {
		return nil, err
	}

	newRow := oldRow.Clone()
	for _, f := range newFields {
		newRow = newRow.Set(f.Key, f.Value)
	}
	newRow = newRow.Set(record.IDField, id)

	if res := m.validator.Validate(s, newRow); res.Err != nil {
		return nil, res.Err
	}

	if err := m.requireLock(t, table); err != nil {
		return nil, err
	}

	t.Buffer = append(t.Buffer, Op{Kind: OpUpdate, Table: table, ID: id, NewRow: newRow, OldRow: oldRow})
	return newRow, nil
}

// Delete buffers removal of the row identified by id. oldRow is the
// row's content at buffer time and is kept in the buffered Op's OldRow;
// Commit's index maintenance works from the rows it reads from the
// table file.
func (m *Manager) Delete(txnID, table, id string, oldRow record.Record) error {
	t, err := m.get(txnID)
	if err != nil {
		return err
	}
	if err := m.requireLock(t, table); err != nil {
		return err
	}
	t.Buffer = append(t.Buffer, Op{Kind: OpDelete, Table: table, ID: id, OldRow: oldRow})
	return nil
}

// CreateTable buffers creation of a new table with the given schema.
func (m *Manager) CreateTable(txnID, table string, s *record.Schema) error {
	t, err := m.get(txnID)
	if err != nil {
		return err
	}
	if m.tables.Exists(table) {
		return errs.New(errs.StateError, "txn.CreateTable", fmt.Errorf("table %q already exists", table))
	}
	if err := m.requireLock(t, table); err != nil {
		return err
	}
	t.Buffer = append(t.Buffer, Op{Kind: OpCreateTable, Table: table, Schema: s})
	return nil
}

// DeleteTable buffers destruction of table.
func (m *Manager) DeleteTable(txnID, table string) error {
	t, err := m.get(txnID)
	if err != nil {
		return err
	}
	if err := m.requireLock(t, table); err != nil {
		return err
	}
	t.Buffer = append(t.Buffer, Op{Kind: OpDeleteTable, Table: table})
	return nil
}

// WriteBulk buffers a wholesale replacement of table's row sequence, the
// transaction-level analogue of the WAL's "write" operation.
func (m *Manager) WriteBulk(txnID, table string, rows []record.Record) error {
	t, err := m.get(txnID)
	if err != nil {
		return err
	}
	if err := m.requireLock(t, table); err != nil {
		return err
	}
	t.Buffer = append(t.Buffer, Op{Kind: OpWriteBulk, Table: table, Rows: rows})
	return nil
}
