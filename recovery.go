package slimcryptdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/record"
	"github.com/Syras206/slimcryptdb/wal"
)

// applyRecovered replays one WAL operation against the table store
// during Open, before the engine becomes ready, per spec.md §4.3.
// Indexes are not rebuilt here — they are reloaded from their own last
// persisted state in loadIndexes, which is the documented per-table (not
// cross-file) atomicity boundary from spec.md §9.
func (e *Engine) applyRecovered(op wal.Operation) error {
	switch op.Kind {
	case wal.OpCreateTable:
		if e.tables.Exists(op.Table) {
			return nil
		}
		_, err := e.tables.Create(op.Table, nil)
		return err
	case wal.OpDeleteTable:
		if err := e.tables.Delete(op.Table); err != nil && errs.CodeOf(err) != errs.NotFound {
			return err
		}
		return nil
	case wal.OpWrite:
		rows, err := decodeRows(op.Rows)
		if err != nil {
			return err
		}
		t, err := e.tables.Load(op.Table)
		if err != nil {
			if errs.CodeOf(err) == errs.NotFound {
				t, err = e.tables.Create(op.Table, nil)
				if err != nil {
					return err
				}
			} else {
				return err
			}
		}
		t.Rows = rows
		return e.tables.Save(t)
	default:
		return fmt.Errorf("slimcryptdb.applyRecovered: unknown WAL operation kind %q", op.Kind)
	}
}

func decodeRows(raw []json.RawMessage) ([]record.Record, error) {
	out := make([]record.Record, len(raw))
	for i, b := range raw {
		var r record.Record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, errs.New(errs.FormatError, "slimcryptdb.decodeRows", err)
		}
		out[i] = r
	}
	return out, nil
}

// loadIndexes discovers every *.idx file left under the engine's index
// directory from a prior run and registers it with the index manager,
// mirroring the teacher's glob-based rediscovery of on-disk hash index
// files (hash_index.HashService.ListHashIndexes).
func (e *Engine) loadIndexes() error {
	const op = "slimcryptdb.loadIndexes"
	dir := filepath.Join(e.dir, "indexes")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.IOErr(op, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".idx")
		if _, err := e.indexes.Load(name); err != nil {
			return err
		}
	}
	return nil
}
