package record

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	r := Record{}.Set("name", "ada").Set("age", 30)
	v, ok := r.Get("name")
	require.True(t, ok)
	assert.Equal(t, "ada", v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestSetOverwritesInPlaceWithoutReordering(t *testing.T) {
	r := Record{}.Set("a", 1).Set("b", 2).Set("a", 99)
	assert.Equal(t, "a", r[0].Key)
	assert.Equal(t, 99, r[0].Value)
	assert.Equal(t, "b", r[1].Key)
}

func TestDeleteRemovesField(t *testing.T) {
	r := Record{}.Set("a", 1).Set("b", 2)
	r = r.Delete("a")
	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.Len(t, r, 1)
}

func TestIDAccessor(t *testing.T) {
	r := Record{}.Set("id", "abc123")
	id, ok := r.ID()
	require.True(t, ok)
	assert.Equal(t, "abc123", id)

	r2 := Record{}.Set("id", 5)
	_, ok = r2.ID()
	assert.False(t, ok)
}

func TestMarshalJSONPreservesFieldOrder(t *testing.T) {
	r := Record{}.Set("z", 1).Set("a", 2).Set("m", 3)
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":2,"m":3}`, string(data))
}

func TestUnmarshalJSONPreservesMemberOrder(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"z":1,"a":2,"m":3}`), &r)
	require.NoError(t, err)
	require.Len(t, r, 3)
	assert.Equal(t, "z", r[0].Key)
	assert.Equal(t, "a", r[1].Key)
	assert.Equal(t, "m", r[2].Key)
}

func TestUnmarshalJSONNormalizesIntegerNumbers(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"count":42,"ratio":0.5}`), &r)
	require.NoError(t, err)

	count, ok := r.Get("count")
	require.True(t, ok)
	assert.Equal(t, int64(42), count)

	ratio, ok := r.Get("ratio")
	require.True(t, ok)
	assert.Equal(t, 0.5, ratio)
}

func TestRecordJSONRoundTrip(t *testing.T) {
	r := Record{}.Set("id", "1").Set("name", "widget").Set("qty", int64(5))
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var out Record
	require.NoError(t, json.Unmarshal(data, &out))
	if diff := cmp.Diff(r, out); diff != "" {
		t.Errorf("round trip changed the record (-want +got):\n%s", diff)
	}
}

func TestFromMapAndToMap(t *testing.T) {
	m := map[string]interface{}{"b": 2, "a": 1}
	r := FromMap(m)
	assert.Equal(t, "a", r[0].Key) // sorted for determinism
	assert.Equal(t, "b", r[1].Key)
	assert.Equal(t, m, r.ToMap())
}

func TestCloneIsIndependent(t *testing.T) {
	r := Record{}.Set("a", 1)
	clone := r.Clone()
	clone = clone.Set("a", 2)
	v, _ := r.Get("a")
	assert.Equal(t, 1, v)
}
