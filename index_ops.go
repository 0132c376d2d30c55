package slimcryptdb

import (
	"github.com/Syras206/slimcryptdb/events"
	"github.com/Syras206/slimcryptdb/index"
)

// CreateIndex builds a new equality index over table's columns from its
// current rows, holding table's lock for the duration of the scan so a
// concurrent writer cannot observe a half-built index, per spec.md
// §4.5's "atomic with the table write" requirement.
func (e *Engine) CreateIndex(name, table string, columns []string, variant index.Variant, unique bool) (*index.Index, error) {
	if err := e.requireReady("slimcryptdb.CreateIndex"); err != nil {
		return nil, err
	}

	const lockOwner = "index-build:"
	if err := e.locks.Acquire(table, lockOwner+name, e.cfg.LockTimeout); err != nil {
		return nil, err
	}
	defer e.locks.Release(table, lockOwner+name)

	t, err := e.tables.Load(table)
	if err != nil {
		return nil, err
	}

	idx, err := e.indexes.Create(index.Definition{
		Name:    name,
		Table:   table,
		Columns: columns,
		Variant: variant,
		Unique:  unique,
	}, t.Rows)
	if err != nil {
		return nil, err
	}

	e.emitter.Emit(events.CreateIndex, map[string]interface{}{"name": name, "table": table})
	return idx, nil
}

// DropIndex removes an index definitively.
func (e *Engine) DropIndex(name string) error {
	if err := e.requireReady("slimcryptdb.DropIndex"); err != nil {
		return err
	}
	return e.indexes.Drop(name)
}

// ListIndexes returns the names of every index currently loaded.
func (e *Engine) ListIndexes() ([]string, error) {
	if err := e.requireReady("slimcryptdb.ListIndexes"); err != nil {
		return nil, err
	}
	return e.indexes.List(), nil
}
