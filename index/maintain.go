package index

import (
	"fmt"
	"os"

	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/record"
)

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.IOErr("index.removeFile", err)
	}
	return nil
}

// Lookup returns the record ids sharing key, or nil if the key is
// absent.
func (idx *Index) Lookup(key string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.buckets[key]
	if ids == nil {
		return nil
	}
	return append([]string{}, ids...)
}

// Keys returns every key currently present, sorted for "btree" variants
// to honor spec.md's "sort order of scans is defined only for btree".
func (idx *Index) Keys() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	keys := make([]string, 0, len(idx.buckets))
	for k := range idx.buckets {
		keys = append(keys, k)
	}
	if idx.Definition.Variant == BTree {
		sortStrings(keys)
	}
	return keys
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// insertLocked adds id under key, enforcing uniqueness if the index
// requires it. Caller must hold idx.mu (write).
func (idx *Index) insertLocked(key, id string) error {
	const op = "index.insert"
	existing := idx.buckets[key]
	if idx.Definition.Unique && len(existing) >= 1 {
		return errs.UniqueViolationErr(op, fmt.Errorf("key %q already present in unique index %q", key, idx.Definition.Name))
	}
	idx.buckets[key] = append(existing, id)
	return nil
}

// removeLocked deletes id from key's bucket. Caller must hold idx.mu
// (write).
func (idx *Index) removeLocked(key, id string) {
	ids := idx.buckets[key]
	for i, existing := range ids {
		if existing == id {
			idx.buckets[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(idx.buckets[key]) == 0 {
		delete(idx.buckets, key)
	}
}

// ValidateMutation checks, without mutating any index, whether replacing
// table's oldRows with newRows would violate a unique index — either
// because two rows in newRows now share a key, or because newRows claims
// a key still held by a different, unrelated row. Callers must run this
// before durably persisting newRows (WAL append, table rewrite), so a
// rejected mutation leaves the table and WAL untouched instead of
// surfacing UNIQUE_VIOLATION only after the data is already on disk.
func (m *Manager) ValidateMutation(table string, newRows []record.Record) error {
	const op = "index.ValidateMutation"

	for _, idx := range m.ForTable(table) {
		if !idx.Definition.Unique {
			continue
		}

		seen := make(map[string]string, len(newRows))
		for _, row := range newRows {
			id, _ := row.ID()
			key := BuildKey(row, idx.Definition.Columns)

			if owner, ok := seen[key]; ok && owner != id {
				return errs.UniqueViolationErr(op, fmt.Errorf("key %q already present in unique index %q", key, idx.Definition.Name))
			}
			seen[key] = id

			for _, existingID := range idx.Lookup(key) {
				if existingID != id {
					return errs.UniqueViolationErr(op, fmt.Errorf("key %q already present in unique index %q", key, idx.Definition.Name))
				}
			}
		}
	}
	return nil
}

// OnInsert maintains the index for a newly inserted row. Returns
// UNIQUE_VIOLATION if the row's key would violate a uniqueness
// constraint.
func (m *Manager) OnInsert(table string, row record.Record) error {
	for _, idx := range m.ForTable(table) {
		key := BuildKey(row, idx.Definition.Columns)
		id, _ := row.ID()

		idx.mu.Lock()
		err := idx.insertLocked(key, id)
		idx.mu.Unlock()
		if err != nil {
			return err
		}
		if err := m.persist(idx); err != nil {
			return err
		}
	}
	return nil
}

// OnDelete maintains the index when row is removed from table.
func (m *Manager) OnDelete(table string, row record.Record) error {
	for _, idx := range m.ForTable(table) {
		key := BuildKey(row, idx.Definition.Columns)
		id, _ := row.ID()

		idx.mu.Lock()
		idx.removeLocked(key, id)
		idx.mu.Unlock()
		if err := m.persist(idx); err != nil {
			return err
		}
	}
	return nil
}

// OnUpdate maintains the index when a row's fields change from oldRow to
// newRow. Per spec.md §4.5: updates that do not change any indexed
// column leave the index untouched; updates that do change indexed
// columns perform remove-from-old-bucket, insert-into-new-bucket.
func (m *Manager) OnUpdate(table string, oldRow, newRow record.Record) error {
	for _, idx := range m.ForTable(table) {
		oldKey := BuildKey(oldRow, idx.Definition.Columns)
		newKey := BuildKey(newRow, idx.Definition.Columns)
		if oldKey == newKey {
			continue
		}
		id, _ := newRow.ID()

		idx.mu.Lock()
		idx.removeLocked(oldKey, id)
		err := idx.insertLocked(newKey, id)
		idx.mu.Unlock()
		if err != nil {
			return err
		}
		if err := m.persist(idx); err != nil {
			return err
		}
	}
	return nil
}
