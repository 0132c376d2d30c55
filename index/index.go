// Package index implements the in-memory equality/compound index
// manager described in spec.md §4.5 (C5). It is a deliberately simpler
// cousin of the teacher's on-disk B+Tree/hash index engines
// (btree_index/, hash_index/): spec.md only calls for equality lookups
// and ordered scans for the "btree" variant, so the index itself lives
// entirely in memory and is persisted as a single encoded file beside
// the table it indexes, the way the teacher persists its hash index
// pages (hash_index.HashService.CreateHashIndex) but without the
// separate on-disk page format.
package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Syras206/slimcryptdb/codec"
	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/record"
)

// Variant distinguishes sort-order-bearing "btree" indexes from
// order-agnostic "hash" indexes. They are behaviorally identical for
// equality lookups; only btree promises a defined scan order.
type Variant string

const (
	BTree Variant = "btree"
	Hash  Variant = "hash"
)

const keySeparator = "::"

// Definition describes one index's identity and shape, persisted
// alongside its key->ids map.
type Definition struct {
	Name      string   `json:"name"`
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	Variant   Variant  `json:"variant"`
	Unique    bool     `json:"unique"`
	CreatedAt time.Time `json:"createdAt"`
}

// file is the on-disk shape of one index: definition plus its buckets.
type file struct {
	Definition Definition          `json:"definition"`
	Buckets    map[string][]string `json:"buckets"` // key -> ordered record ids
}

// Index is one live, in-memory equality index.
type Index struct {
	Definition Definition

	mu      sync.RWMutex
	buckets map[string][]string // key -> ordered record ids sharing that key
}

// Manager owns every index for every table in one engine directory, and
// persists them via the shared codec.
type Manager struct {
	dir    string
	codec  *codec.Codec
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	indexes map[string]*Index   // index name -> Index
	byTable map[string][]string // table name -> ordered index names (insertion order, for tie-break)
}

func NewManager(dir string, c *codec.Codec, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		dir:     dir,
		codec:   c,
		logger:  logger,
		indexes: make(map[string]*Index),
		byTable: make(map[string][]string),
	}
}

func (m *Manager) pathFor(name string) string {
	return m.dir + "/" + name + ".idx"
}

// BuildKey joins, for each indexed column, the string form of row's
// value at that column with "::", per spec.md §3.
func BuildKey(row record.Record, columns []string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		v, ok := row.Get(col)
		if !ok {
			parts[i] = ""
			continue
		}
		parts[i] = stringify(v)
	}
	return strings.Join(parts, keySeparator)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Create builds a new index over table's columns from the supplied rows
// (a full scan performed by the caller, typically the transaction
// manager holding the table's lock), refusing construction if existing
// data already violates a requested uniqueness constraint.
func (m *Manager) Create(def Definition, rows []record.Record) (*Index, error) {
	const op = "index.Create"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.indexes[def.Name]; exists {
		return nil, errs.New(errs.StateError, op, fmt.Errorf("index %q already exists", def.Name))
	}
	if def.Variant == "" {
		def.Variant = BTree
	}
	def.CreatedAt = time.Now().UTC()

	idx := &Index{Definition: def, buckets: make(map[string][]string)}
	for _, row := range rows {
		id, ok := row.ID()
		if !ok {
			continue
		}
		key := BuildKey(row, def.Columns)
		if def.Unique && len(idx.buckets[key]) >= 1 {
			return nil, errs.UniqueViolationErr(op, fmt.Errorf("existing rows violate uniqueness on %v for key %q", def.Columns, key))
		}
		idx.buckets[key] = append(idx.buckets[key], id)
	}

	if err := m.persist(idx); err != nil {
		return nil, err
	}

	m.indexes[def.Name] = idx
	m.byTable[def.Table] = append(m.byTable[def.Table], def.Name)
	return idx, nil
}

// Drop removes an index definitively, including its file on disk.
func (m *Manager) Drop(name string) error {
	const op = "index.Drop"
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.indexes[name]
	if !ok {
		return errs.NotFoundErr(op, fmt.Errorf("index %q not found", name))
	}
	delete(m.indexes, name)
	names := m.byTable[idx.Definition.Table]
	for i, n := range names {
		if n == name {
			m.byTable[idx.Definition.Table] = append(names[:i], names[i+1:]...)
			break
		}
	}
	if err := removeFile(m.pathFor(name)); err != nil {
		return err
	}
	return nil
}

// DropAllForTable removes every index owned by table, called when the
// table itself is deleted (spec.md §3, index lifecycle).
func (m *Manager) DropAllForTable(table string) error {
	m.mu.Lock()
	names := append([]string{}, m.byTable[table]...)
	m.mu.Unlock()

	for _, name := range names {
		if err := m.Drop(name); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the named index, if loaded.
func (m *Manager) Get(name string) (*Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indexes[name]
	return idx, ok
}

// ForTable returns every index defined on table, in creation order.
func (m *Manager) ForTable(table string) []*Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := m.byTable[table]
	out := make([]*Index, 0, len(names))
	for _, n := range names {
		if idx, ok := m.indexes[n]; ok {
			out = append(out, idx)
		}
	}
	return out
}

// List returns the names of every index currently loaded, mirroring the
// teacher's HashService.ListHashIndexes.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.indexes))
	for n := range m.indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) persist(idx *Index) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	f := file{Definition: idx.Definition, Buckets: idx.buckets}
	return m.codec.WriteFile(m.pathFor(idx.Definition.Name), &f)
}

// Load reads an index file back into memory and registers it with the
// manager.
func (m *Manager) Load(name string) (*Index, error) {
	var f file
	if err := m.codec.ReadFile(m.pathFor(name), &f); err != nil {
		return nil, err
	}
	idx := &Index{Definition: f.Definition, buckets: f.Buckets}
	if idx.buckets == nil {
		idx.buckets = make(map[string][]string)
	}

	m.mu.Lock()
	m.indexes[name] = idx
	m.byTable[f.Definition.Table] = append(m.byTable[f.Definition.Table], name)
	m.mu.Unlock()
	return idx, nil
}
