package index

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syras206/slimcryptdb/codec"
	"github.com/Syras206/slimcryptdb/crypto"
	"github.com/Syras206/slimcryptdb/record"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c := codec.New(key, true, false, nil)
	return NewManager(t.TempDir(), c, nil)
}

func rowsFixture() []record.Record {
	return []record.Record{
		record.Record{}.Set("id", "1").Set("email", "a@example.com"),
		record.Record{}.Set("id", "2").Set("email", "b@example.com"),
	}
}

func TestBuildKeyJoinsColumnsWithSeparator(t *testing.T) {
	row := record.Record{}.Set("a", "x").Set("b", "y")
	assert.Equal(t, "x::y", BuildKey(row, []string{"a", "b"}))
}

func TestBuildKeyMissingColumnIsEmptyField(t *testing.T) {
	row := record.Record{}.Set("a", "x")
	assert.Equal(t, "x::", BuildKey(row, []string{"a", "b"}))
}

func TestCreateBuildsBucketsFromExistingRows(t *testing.T) {
	m := newTestManager(t)
	idx, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}}, rowsFixture())
	require.NoError(t, err)

	ids := idx.Lookup("a@example.com")
	assert.Equal(t, []string{"1"}, ids)
}

func TestCreateRejectsUniqueViolationInExistingRows(t *testing.T) {
	m := newTestManager(t)
	rows := []record.Record{
		record.Record{}.Set("id", "1").Set("email", "dup@example.com"),
		record.Record{}.Set("id", "2").Set("email", "dup@example.com"),
	}
	_, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}, Unique: true}, rows)
	require.Error(t, err)
}

func TestOnInsertEnforcesUniqueness(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}, Unique: true}, rowsFixture())
	require.NoError(t, err)

	dup := record.Record{}.Set("id", "3").Set("email", "a@example.com")
	err = m.OnInsert("users", dup)
	require.Error(t, err)
}

func TestOnDeleteRemovesFromBucket(t *testing.T) {
	m := newTestManager(t)
	idx, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}}, rowsFixture())
	require.NoError(t, err)

	require.NoError(t, m.OnDelete("users", rowsFixture()[0]))
	assert.Nil(t, idx.Lookup("a@example.com"))
}

func TestOnUpdateMovesKeyWhenIndexedColumnChanges(t *testing.T) {
	m := newTestManager(t)
	idx, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}}, rowsFixture())
	require.NoError(t, err)

	oldRow := rowsFixture()[0]
	newRow := oldRow.Clone().Set("email", "changed@example.com")
	require.NoError(t, m.OnUpdate("users", oldRow, newRow))

	assert.Nil(t, idx.Lookup("a@example.com"))
	assert.Equal(t, []string{"1"}, idx.Lookup("changed@example.com"))
}

func TestOnUpdateIsNoopWhenIndexedColumnUnchanged(t *testing.T) {
	m := newTestManager(t)
	idx, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}}, rowsFixture())
	require.NoError(t, err)

	oldRow := rowsFixture()[0]
	newRow := oldRow.Clone().Set("other", "value")
	require.NoError(t, m.OnUpdate("users", oldRow, newRow))

	assert.Equal(t, []string{"1"}, idx.Lookup("a@example.com"))
}

func TestDropRemovesIndexAndFile(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}}, rowsFixture())
	require.NoError(t, err)

	require.NoError(t, m.Drop("by_email"))
	_, ok := m.Get("by_email")
	assert.False(t, ok)
	assert.Empty(t, m.ForTable("users"))
	_, statErr := os.Stat(m.pathFor("by_email"))
	assert.True(t, os.IsNotExist(statErr), "index file must be removed")
}

func TestKeysSortedForBTreeVariant(t *testing.T) {
	m := newTestManager(t)
	rows := []record.Record{
		record.Record{}.Set("id", "1").Set("email", "z@example.com"),
		record.Record{}.Set("id", "2").Set("email", "a@example.com"),
	}
	idx, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}, Variant: BTree}, rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "z@example.com"}, idx.Keys())
}

func TestValidateMutationDetectsCollisionWithExistingRow(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}, Unique: true}, rowsFixture())
	require.NoError(t, err)

	dup := []record.Record{record.Record{}.Set("id", "3").Set("email", "a@example.com")}
	err = m.ValidateMutation("users", dup)
	require.Error(t, err)
	assert.Equal(t, []string{"1"}, m.indexes["by_email"].Lookup("a@example.com")) // untouched
}

func TestValidateMutationDetectsCollisionWithinNewRows(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}, Unique: true}, nil)
	require.NoError(t, err)

	dup := []record.Record{
		record.Record{}.Set("id", "1").Set("email", "same@example.com"),
		record.Record{}.Set("id", "2").Set("email", "same@example.com"),
	}
	err = m.ValidateMutation("users", dup)
	require.Error(t, err)
}

func TestValidateMutationAllowsRowKeepingItsOwnKey(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}, Unique: true}, rowsFixture())
	require.NoError(t, err)

	unchanged := []record.Record{record.Record{}.Set("id", "1").Set("email", "a@example.com")}
	assert.NoError(t, m.ValidateMutation("users", unchanged))
}

func TestValidateMutationIgnoresNonUniqueIndexes(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}}, rowsFixture())
	require.NoError(t, err)

	dup := []record.Record{record.Record{}.Set("id", "3").Set("email", "a@example.com")}
	assert.NoError(t, m.ValidateMutation("users", dup))
}

func TestPersistThenLoadRoundTrip(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(Definition{Name: "by_email", Table: "users", Columns: []string{"email"}}, rowsFixture())
	require.NoError(t, err)

	m2 := NewManager(m.dir, m.codec, nil)
	loaded, err := m2.Load("by_email")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, loaded.Lookup("a@example.com"))
}
