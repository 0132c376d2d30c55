package tablestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syras206/slimcryptdb/codec"
	"github.com/Syras206/slimcryptdb/crypto"
	"github.com/Syras206/slimcryptdb/record"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c := codec.New(key, true, false, nil)
	s, err := NewStore(t.TempDir(), c, nil)
	require.NoError(t, err)
	return s
}

func TestCreateThenLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	tbl, err := s.Create("widgets", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tbl.Version)

	loaded, err := s.Load("widgets")
	require.NoError(t, err)
	assert.Equal(t, "widgets", loaded.Name)
	assert.Empty(t, loaded.Rows)
}

func TestCreateFailsIfTableAlreadyExists(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("widgets", nil)
	require.NoError(t, err)

	_, err = s.Create("widgets", nil)
	require.Error(t, err)
}

func TestSaveRewritesRowsAndBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	tbl, err := s.Create("widgets", nil)
	require.NoError(t, err)

	tbl.Rows = []record.Record{record.Record{}.Set("id", "1")}
	require.NoError(t, s.Save(tbl))
	assert.Equal(t, uint64(2), tbl.Version)

	loaded, err := s.Load("widgets")
	require.NoError(t, err)
	require.Len(t, loaded.Rows, 1)
	id, _ := loaded.Rows[0].ID()
	assert.Equal(t, "1", id)
}

func TestDeleteRemovesTable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("widgets", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete("widgets"))
	assert.False(t, s.Exists("widgets"))

	_, err = s.Load("widgets")
	require.Error(t, err)
}

func TestListReturnsAllTableNames(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("widgets", nil)
	require.NoError(t, err)
	_, err = s.Create("gadgets", nil)
	require.NoError(t, err)

	names, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"widgets", "gadgets"}, names)
}
