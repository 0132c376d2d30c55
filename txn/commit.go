package txn

import (
	"fmt"

	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/events"
	"github.com/Syras206/slimcryptdb/record"
	"github.com/Syras206/slimcryptdb/wal"
)

// Commit applies every buffered operation in buffer order: for each one,
// it reads the table's current rows, applies the operation in memory,
// appends a WAL intent, rewrites the table file, updates indexes, and
// emits the corresponding event — then releases every lock the
// transaction held. If any operation fails, Commit stops there, releases
// the locks, emits a rollback event and returns the error; operations
// applied before the failing one stay applied.
func (m *Manager) Commit(txnID string) error {
	t, err := m.get(txnID)
	if err != nil {
		return err
	}

	for _, op := range t.Buffer {
		if err := m.applyOne(op); err != nil {
			m.finish(t)
			m.emitter.Emit(events.RollbackTransaction, map[string]interface{}{"transactionId": txnID, "error": err.Error()})
			return err
		}
	}

	m.finish(t)
	m.wal.MaybeAsyncCheckpoint()
	m.emitter.Emit(events.CommitTransaction, map[string]interface{}{"transactionId": txnID, "operations": len(t.Buffer)})
	return nil
}

// Rollback discards the buffer and releases locks without applying
// anything. Because effects are only applied on commit, this is a pure
// in-memory drop, per spec.md §4.7.
func (m *Manager) Rollback(txnID string) error {
	t, err := m.get(txnID)
	if err != nil {
		return err
	}
	m.finish(t)
	m.emitter.Emit(events.RollbackTransaction, map[string]interface{}{"transactionId": txnID})
	return nil
}

// finish releases every lock the transaction acquired and marks it
// terminal; transactions cannot be resumed after this point, per
// spec.md §3's lifecycle.
func (m *Manager) finish(t *Transaction) {
	m.locks.ReleaseAll(t.ID, t.LockedTables())
	m.mu.Lock()
	t.terminal = true
	delete(m.live, t.ID)
	m.mu.Unlock()
}

func (m *Manager) applyOne(op Op) error {
	switch op.Kind {
	case OpCreateTable:
		return m.applyCreateTable(op)
	case OpDeleteTable:
		return m.applyDeleteTable(op)
	case OpAdd:
		return m.applyMutation(op.Table, func(rows []record.Record) ([]record.Record, error) {
			return append(rows, op.Row), nil
		}, events.Add, map[string]interface{}{"table": op.Table, "row": op.Row})
	case OpUpdate:
		return m.applyMutation(op.Table, func(rows []record.Record) ([]record.Record, error) {
			for i, r := range rows {
				if id, ok := r.ID(); ok && id == op.ID {
					rows[i] = op.NewRow
					return rows, nil
				}
			}
			return nil, errs.NotFoundErr("txn.applyOne", fmt.Errorf("row %q not found in table %q", op.ID, op.Table))
		}, events.Update, map[string]interface{}{"table": op.Table, "id": op.ID, "row": op.NewRow})
	case OpDelete:
		return m.applyMutation(op.Table, func(rows []record.Record) ([]record.Record, error) {
			for i, r := range rows {
				if id, ok := r.ID(); ok && id == op.ID {
					return append(rows[:i], rows[i+1:]...), nil
				}
			}
			return nil, errs.NotFoundErr("txn.applyOne", fmt.Errorf("row %q not found in table %q", op.ID, op.Table))
		}, events.Delete, map[string]interface{}{"table": op.Table, "id": op.ID})
	case OpWriteBulk:
		return m.applyMutation(op.Table, func(_ []record.Record) ([]record.Record, error) {
			return op.Rows, nil
		}, events.Update, map[string]interface{}{"table": op.Table, "bulk": true})
	default:
		return errs.New(errs.StateError, "txn.applyOne", fmt.Errorf("unknown operation kind %q", op.Kind))
	}
}

func (m *Manager) applyCreateTable(op Op) error {
	if _, err := m.tables.Create(op.Table, op.Schema); err != nil {
		return err
	}
	if _, err := m.wal.Append(wal.Operation{Kind: wal.OpCreateTable, Table: op.Table}); err != nil {
		return err
	}
	m.emitter.Emit(events.CreateTable, map[string]interface{}{"table": op.Table})
	return nil
}

func (m *Manager) applyDeleteTable(op Op) error {
	if _, err := m.wal.Append(wal.Operation{Kind: wal.OpDeleteTable, Table: op.Table}); err != nil {
		return err
	}
	if err := m.indexes.DropAllForTable(op.Table); err != nil {
		return err
	}
	if err := m.tables.Delete(op.Table); err != nil {
		return err
	}
	m.emitter.Emit(events.DeleteTable, map[string]interface{}{"table": op.Table})
	return nil
}

// applyMutation implements the common read-apply-validate-WAL-write-
// index-emit sequence from spec.md §2's control-flow diagram, shared by
// add, update, delete, and bulk write.
func (m *Manager) applyMutation(
	table string,
	mutate func([]record.Record) ([]record.Record, error),
	event events.Name,
	payload map[string]interface{},
) error {
	t, err := m.tables.Load(table)
	if err != nil {
		return err
	}

	oldRows := t.Rows
	newRows, err := mutate(append([]record.Record{}, oldRows...))
	if err != nil {
		return err
	}

	// Validate unique-index constraints before anything is durably
	// written: a rejected mutation must leave the table file and WAL
	// untouched rather than being persisted and only refused at the
	// index-maintenance step.
	if err := m.indexes.ValidateMutation(table, newRows); err != nil {
		return err
	}

	rawRows, err := marshalRows(newRows)
	if err != nil {
		return err
	}
	if _, err := m.wal.Append(wal.Operation{Kind: wal.OpWrite, Table: table, Rows: rawRows}); err != nil {
		return err
	}

	t.Rows = newRows
	if err := m.tables.Save(t); err != nil {
		return err
	}

	if err := m.updateIndexes(table, oldRows, newRows); err != nil {
		return err
	}

	m.emitter.Emit(event, payload)
	return nil
}

// updateIndexes diffs oldRows and newRows by id and drives the index
// manager's insert/update/delete maintenance accordingly. This keeps
// bulk writes (which replace the whole row set at once) consistent with
// the same index bookkeeping single-row add/update/delete uses.
func (m *Manager) updateIndexes(table string, oldRows, newRows []record.Record) error {
	oldByID := make(map[string]record.Record, len(oldRows))
	for _, r := range oldRows {
		if id, ok := r.ID(); ok {
			oldByID[id] = r
		}
	}
	newByID := make(map[string]record.Record, len(newRows))
	for _, r := range newRows {
		if id, ok := r.ID(); ok {
			newByID[id] = r
		}
	}

	for id, newRow := range newByID {
		if oldRow, existed := oldByID[id]; existed {
			if err := m.indexes.OnUpdate(table, oldRow, newRow); err != nil {
				return err
			}
		} else {
			if err := m.indexes.OnInsert(table, newRow); err != nil {
				return err
			}
		}
	}
	for id, oldRow := range oldByID {
		if _, stillPresent := newByID[id]; !stillPresent {
			if err := m.indexes.OnDelete(table, oldRow); err != nil {
				return err
			}
		}
	}
	return nil
}
