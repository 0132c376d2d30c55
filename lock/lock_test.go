package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syras206/slimcryptdb/errs"
)

func TestAcquireUncontendedSucceedsImmediately(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire("widgets", "txn1", time.Second))
	assert.True(t, m.Held("widgets", "txn1"))
}

func TestAcquireIsIdempotentForSameHolder(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire("widgets", "txn1", time.Second))
	require.NoError(t, m.Acquire("widgets", "txn1", time.Second))
	assert.True(t, m.Held("widgets", "txn1"))
}

func TestAcquireTimesOutWhenHeldByAnother(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire("widgets", "txn1", time.Second))

	err := m.Acquire("widgets", "txn2", 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, errs.LockTimeout, errs.CodeOf(err))
}

func TestReleaseWakesNextWaiter(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire("widgets", "txn1", time.Second))

	done := make(chan struct{})
	go func() {
		require.NoError(t, m.Acquire("widgets", "txn2", time.Second))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let txn2 enqueue
	m.Release("widgets", "txn1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("txn2 never acquired the lock after release")
	}
	assert.True(t, m.Held("widgets", "txn2"))
}

func TestWaitersServedInFIFOOrder(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire("widgets", "holder", time.Second))

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			require.NoError(t, m.Acquire("widgets", id, 2*time.Second))
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			m.Release("widgets", id)
		}(id)
		time.Sleep(10 * time.Millisecond) // preserve enqueue order
	}

	m.Release("widgets", "holder")
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestReleaseByNonHolderIsNoop(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire("widgets", "txn1", time.Second))
	m.Release("widgets", "someone-else")
	assert.True(t, m.Held("widgets", "txn1"))
}

func TestReleaseAllReleasesEveryTable(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire("widgets", "txn1", time.Second))
	require.NoError(t, m.Acquire("gadgets", "txn1", time.Second))

	m.ReleaseAll("txn1", []string{"widgets", "gadgets"})
	assert.False(t, m.Held("widgets", "txn1"))
	assert.False(t, m.Held("gadgets", "txn1"))
}
