package txn

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syras206/slimcryptdb/codec"
	"github.com/Syras206/slimcryptdb/crypto"
	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/events"
	"github.com/Syras206/slimcryptdb/index"
	"github.com/Syras206/slimcryptdb/lock"
	"github.com/Syras206/slimcryptdb/record"
	"github.com/Syras206/slimcryptdb/schema"
	"github.com/Syras206/slimcryptdb/tablestore"
	"github.com/Syras206/slimcryptdb/wal"
)

type fixture struct {
	mgr     *Manager
	tables  *tablestore.Store
	indexes *index.Manager
	wal     *wal.WAL
	emitter *events.Emitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c := codec.New(key, true, false, nil)

	tables, err := tablestore.NewStore(filepath.Join(dir, "tables"), c, nil)
	require.NoError(t, err)
	indexes := index.NewManager(filepath.Join(dir, "indexes"), c, nil)
	locks := lock.NewManager()
	w, err := wal.Open(filepath.Join(dir, "wal"), key, wal.Config{Enabled: true, Encrypt: true}, nil)
	require.NoError(t, err)
	emitter := events.New(nil)
	validator := schema.NewValidator()

	mgr := NewManager(tables, indexes, locks, w, emitter, validator, time.Second, nil)
	return &fixture{mgr: mgr, tables: tables, indexes: indexes, wal: w, emitter: emitter}
}

func TestCreateTableThenAddCommits(t *testing.T) {
	f := newFixture(t)

	txnID, err := f.mgr.Begin(Serializable)
	require.NoError(t, err)

	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	row, err := f.mgr.Add(txnID.ID, "widgets", record.Record{}.Set("name", "sprocket"), nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Commit(txnID.ID))

	tbl, err := f.tables.Load("widgets")
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	id, _ := row.ID()
	gotID, _ := tbl.Rows[0].ID()
	assert.Equal(t, id, gotID)
}

func TestAddAssignsIDWhenMissing(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))

	row, err := f.mgr.Add(txnID.ID, "widgets", record.Record{}.Set("name", "x"), nil)
	require.NoError(t, err)
	id, ok := row.ID()
	require.True(t, ok)
	assert.Len(t, id, 32)
}

func TestUpdateMergesFieldsOntoExistingRow(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	oldRow, err := f.mgr.Add(txnID.ID, "widgets", record.Record{}.Set("name", "x").Set("qty", 1), nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Commit(txnID.ID))

	id, _ := oldRow.ID()
	txnID2, err := f.mgr.Begin("")
	require.NoError(t, err)
	newRow, err := f.mgr.Update(txnID2.ID, "widgets", id, oldRow, record.Record{}.Set("qty", 2), nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Commit(txnID2.ID))

	qty, _ := newRow.Get("qty")
	assert.Equal(t, 2, qty)
	name, _ := newRow.Get("name")
	assert.Equal(t, "x", name)
}

func TestDeleteRemovesRowOnCommit(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	row, err := f.mgr.Add(txnID.ID, "widgets", record.Record{}.Set("name", "x"), nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Commit(txnID.ID))

	id, _ := row.ID()
	txnID2, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.Delete(txnID2.ID, "widgets", id, row))
	require.NoError(t, f.mgr.Commit(txnID2.ID))

	tbl, err := f.tables.Load("widgets")
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
}

func TestRollbackDiscardsBufferWithoutApplying(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	_, err = f.mgr.Add(txnID.ID, "widgets", record.Record{}.Set("name", "x"), nil)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Rollback(txnID.ID))

	assert.False(t, f.tables.Exists("widgets"))
}

func TestCommitOnUnknownTransactionFails(t *testing.T) {
	f := newFixture(t)
	err := f.mgr.Commit("does-not-exist")
	require.Error(t, err)
	assert.Equal(t, errs.TxnNotFound, errs.CodeOf(err))
}

func TestOperationsAfterCommitFailWithTxnNotFound(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	require.NoError(t, f.mgr.Commit(txnID.ID))

	_, err = f.mgr.Add(txnID.ID, "widgets", record.Record{}.Set("name", "x"), nil)
	require.Error(t, err)
	assert.Equal(t, errs.TxnNotFound, errs.CodeOf(err))
}

func TestLockIsReleasedAfterCommit(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	require.NoError(t, f.mgr.Commit(txnID.ID))

	txnID2, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.DeleteTable(txnID2.ID, "widgets"))
	require.NoError(t, f.mgr.Commit(txnID2.ID))
}

func TestDeleteTableDropsIndexesToo(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	require.NoError(t, f.mgr.Commit(txnID.ID))

	_, err = f.indexes.Create(index.Definition{Name: "by_name", Table: "widgets", Columns: []string{"name"}}, nil)
	require.NoError(t, err)

	txnID2, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.DeleteTable(txnID2.ID, "widgets"))
	require.NoError(t, f.mgr.Commit(txnID2.ID))

	_, ok := f.indexes.Get("by_name")
	assert.False(t, ok)
}

func TestAddMaintainsIndexOnCommit(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	require.NoError(t, f.mgr.Commit(txnID.ID))

	idx, err := f.indexes.Create(index.Definition{Name: "by_name", Table: "widgets", Columns: []string{"name"}}, nil)
	require.NoError(t, err)

	txnID2, err := f.mgr.Begin("")
	require.NoError(t, err)
	row, err := f.mgr.Add(txnID2.ID, "widgets", record.Record{}.Set("name", "sprocket"), nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Commit(txnID2.ID))

	id, _ := row.ID()
	assert.Equal(t, []string{id}, idx.Lookup("sprocket"))
}

func TestCommitFailureOnMissingRowRollsBackAndReleasesLock(t *testing.T) {
	f := newFixture(t)
	txnID, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CreateTable(txnID.ID, "widgets", nil))
	require.NoError(t, f.mgr.Commit(txnID.ID))

	txnID2, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.Delete(txnID2.ID, "widgets", "nonexistent-id", record.Record{}.Set("id", "nonexistent-id")))
	err = f.mgr.Commit(txnID2.ID)
	require.Error(t, err)

	// The lock must have been released, so another transaction can
	// immediately acquire it.
	txnID3, err := f.mgr.Begin("")
	require.NoError(t, err)
	require.NoError(t, f.mgr.DeleteTable(txnID3.ID, "widgets"))
	require.NoError(t, f.mgr.Commit(txnID3.ID))
}
