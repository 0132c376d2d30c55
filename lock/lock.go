// Package lock implements the per-table exclusive lock manager from
// spec.md §4.6 (C6): a FIFO waiter queue per table, per-waiter timeout
// deadlines, and no upgrade/downgrade. It plays the role the teacher's
// buffermgr.BufferPool plays for pages (buffermgr/buffer_manager.go),
// but at table granularity and with explicit FIFO fairness instead of a
// clock-sweep eviction policy, since spec.md's concurrency model is
// single-writer-per-table rather than a shared buffer cache.
package lock

import (
	"container/list"
	"sync"
	"time"

	"github.com/Syras206/slimcryptdb/errs"
)

// Manager owns one exclusive lock per table name.
type Manager struct {
	mu     sync.Mutex
	tables map[string]*tableLock
}

type tableLock struct {
	mu      sync.Mutex
	holder  string // transaction id, "" if free
	waiters *list.List // of *waiter, FIFO
}

type waiter struct {
	txnID   string
	deadline time.Time
	ready   chan struct{}
	timedOut bool
}

func NewManager() *Manager {
	return &Manager{tables: make(map[string]*tableLock)}
}

func (m *Manager) tableFor(name string) *tableLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.tables[name]
	if !ok {
		tl = &tableLock{waiters: list.New()}
		m.tables[name] = tl
	}
	return tl
}

// Acquire blocks until txnID holds table's exclusive lock or timeout
// elapses, whichever comes first. Re-acquisition by the same
// transaction that already holds the lock is a no-op, per spec.md
// §4.6. On timeout it returns a LOCK_TIMEOUT error.
func (m *Manager) Acquire(table, txnID string, timeout time.Duration) error {
	const op = "lock.Acquire"
	tl := m.tableFor(table)

	tl.mu.Lock()
	if tl.holder == txnID {
		tl.mu.Unlock()
		return nil
	}
	if tl.holder == "" && tl.waiters.Len() == 0 {
		tl.holder = txnID
		tl.mu.Unlock()
		return nil
	}

	w := &waiter{txnID: txnID, deadline: time.Now().Add(timeout), ready: make(chan struct{})}
	elem := tl.waiters.PushBack(w)
	tl.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return nil
	case <-timer.C:
		tl.mu.Lock()
		if !w.timedOut {
			w.timedOut = true
			tl.waiters.Remove(elem)
		}
		tl.mu.Unlock()
		// A wakeup may have raced the timer: if Release granted us the
		// lock just before we removed ourselves, it has already recorded
		// us as holder, so keep the lock and report success.
		select {
		case <-w.ready:
			return nil
		default:
		}
		return errs.LockTimeoutErr(op, nil)
	}
}

// Release gives up txnID's hold on table's lock (a no-op if txnID does
// not hold it) and wakes the next non-expired waiter, if any.
func (m *Manager) Release(table, txnID string) {
	tl := m.tableFor(table)

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.holder != txnID {
		return
	}
	tl.holder = ""

	for {
		front := tl.waiters.Front()
		if front == nil {
			return
		}
		tl.waiters.Remove(front)
		w := front.Value.(*waiter)
		if w.timedOut || time.Now().After(w.deadline) {
			w.timedOut = true
			continue
		}
		tl.holder = w.txnID
		close(w.ready)
		return
	}
}

// Held reports whether txnID currently holds table's lock.
func (m *Manager) Held(table, txnID string) bool {
	tl := m.tableFor(table)
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.holder == txnID
}

// ReleaseAll releases txnID's lock on each of the given tables (a no-op
// for any it does not hold), called by the transaction manager on
// commit/rollback.
func (m *Manager) ReleaseAll(txnID string, tables []string) {
	for _, t := range tables {
		m.Release(t, txnID)
	}
}
