package slimcryptdb

import (
	"github.com/Syras206/slimcryptdb/events"
	"github.com/Syras206/slimcryptdb/txn"
)

// BeginTransaction starts a new explicit transaction and returns its
// id, for callers that want to buffer several operations before
// committing, per spec.md §4.7.
func (e *Engine) BeginTransaction(isolation txn.IsolationLevel) (string, error) {
	if err := e.requireReady("slimcryptdb.BeginTransaction"); err != nil {
		return "", err
	}
	t, err := e.txns.Begin(isolation)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// CommitTransaction applies every operation buffered under txnID and
// releases its locks.
func (e *Engine) CommitTransaction(txnID string) error {
	if err := e.requireReady("slimcryptdb.CommitTransaction"); err != nil {
		return err
	}
	return e.txns.Commit(txnID)
}

// RollbackTransaction discards txnID's buffer and releases its locks.
func (e *Engine) RollbackTransaction(txnID string) error {
	if err := e.requireReady("slimcryptdb.RollbackTransaction"); err != nil {
		return err
	}
	return e.txns.Rollback(txnID)
}

// On registers handler for name; see events.Emitter.On. Listener failure
// cannot affect engine correctness, per spec.md §4.10.
func (e *Engine) On(name events.Name, handler events.Handler) {
	e.emitter.On(name, handler)
}
