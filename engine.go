// Package slimcryptdb implements the engine facade described in
// spec.md §4.10 (C10): lifecycle (initializing/ready/closing/closed),
// checkpoint scheduling, event emission, and the CRUD/transaction/query
// entry points wired on top of the crypto, codec, wal, tablestore,
// index, lock, txn, query, and schema packages. It plays the role the
// teacher repo's Database/DatabaseService pair plays
// (engine/database_model.go, engine/database_service.go), but owns its
// own master key and subsystem set per instance instead of the
// teacher's process-global settings.Arguments.
package slimcryptdb

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Syras206/slimcryptdb/codec"
	"github.com/Syras206/slimcryptdb/crypto"
	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/events"
	"github.com/Syras206/slimcryptdb/index"
	"github.com/Syras206/slimcryptdb/lock"
	"github.com/Syras206/slimcryptdb/schema"
	"github.com/Syras206/slimcryptdb/tablestore"
	"github.com/Syras206/slimcryptdb/txn"
	"github.com/Syras206/slimcryptdb/wal"
)

// State is one of the engine's lifecycle phases, per spec.md §4.10.
type State int32

const (
	StateInitializing State = iota
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine is one open database directory. It is safe for concurrent use;
// individual tables are additionally serialized by the lock manager.
type Engine struct {
	dir       string
	masterKey []byte
	cfg       Config
	logger    *zap.SugaredLogger

	codec     *codec.Codec
	tables    *tablestore.Store
	indexes   *index.Manager
	locks     *lock.Manager
	wal       *wal.WAL
	txns      *txn.Manager
	validator *schema.Validator
	emitter   *events.Emitter

	state          int32
	ready          chan struct{}
	stopCheckpoint chan struct{}
	closeOnce      sync.Once
	closeErr       error
}

// Open opens (creating if absent) the engine directory at dir, deriving
// every subsystem key from masterKey, applying opts over the defaults,
// replaying the write-ahead log, and loading existing indexes before
// returning a ready Engine. masterKey must be crypto.KeySize (32) bytes;
// the engine keeps its own copy so the caller's buffer can be zeroized
// independently, per spec.md §5.
func Open(dir string, masterKey []byte, opts ...Option) (*Engine, error) {
	const op = "slimcryptdb.Open"

	if len(masterKey) != crypto.KeySize {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("master key must be %d bytes, got %d", crypto.KeySize, len(masterKey)))
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, errs.IOErr(op, err)
		}
		logger = l.Sugar()
	}
	if cfg.Debug {
		logger.Debugf("opening engine at %s", dir)
	}

	e := &Engine{
		dir:            dir,
		masterKey:      append([]byte{}, masterKey...),
		cfg:            cfg,
		logger:         logger,
		ready:          make(chan struct{}),
		stopCheckpoint: make(chan struct{}),
	}
	atomic.StoreInt32(&e.state, int32(StateInitializing))

	e.codec = codec.New(e.masterKey, cfg.Encrypt, cfg.Compression, logger)

	var err error
	if e.tables, err = tablestore.NewStore(dir, e.codec, logger); err != nil {
		return nil, err
	}
	e.indexes = index.NewManager(filepath.Join(dir, "indexes"), e.codec, logger)
	e.locks = lock.NewManager()

	walCfg := wal.Config{
		Enabled:            cfg.WALEnabled,
		Encrypt:            cfg.Encrypt,
		SyncWrites:         cfg.SyncWrites,
		PaddingBlockSize:   cfg.WALPaddingSize,
		MaxWALSize:         cfg.MaxWALSize,
		CheckpointInterval: cfg.CheckpointInterval,
	}
	if e.wal, err = wal.Open(filepath.Join(dir, "wal"), e.masterKey, walCfg, logger); err != nil {
		return nil, err
	}

	e.validator = schema.NewValidator()
	e.emitter = events.New(logger)
	e.txns = txn.NewManager(e.tables, e.indexes, e.locks, e.wal, e.emitter, e.validator, cfg.LockTimeout, logger)

	if err := e.wal.Recover(e.applyRecovered); err != nil {
		return nil, err
	}
	if summary := e.wal.RecoverySummary(); len(summary) > 0 {
		logger.Warnf("wal recovery: %d entries failed to replay", len(summary))
	}

	if err := e.loadIndexes(); err != nil {
		return nil, err
	}

	atomic.StoreInt32(&e.state, int32(StateReady))
	close(e.ready)

	e.wal.StartScheduler(e.stopCheckpoint)

	return e, nil
}

// Ready blocks until initialization completes. Operations issued before
// Open returns cannot happen (callers have no *Engine reference yet),
// but Ready exists so long-lived callers can park a goroutine on it, and
// every CRUD entry point calls it internally per spec.md §4.10.
func (e *Engine) Ready() {
	<-e.ready
}

// State reports the engine's current lifecycle phase.
func (e *Engine) State() State {
	return State(atomic.LoadInt32(&e.state))
}

func (e *Engine) requireReady(op string) error {
	e.Ready()
	if s := e.State(); s != StateReady {
		return errs.StateErr(op, fmt.Errorf("engine is %s", s))
	}
	return nil
}

// Close cancels the checkpoint scheduler, flushes the WAL, runs a final
// checkpoint, closes the active WAL segment, and zeroizes the master key
// and derived WAL key. It does not clear the in-memory subsystems
// (indexes, transaction registry) or drop the references to them; once
// closed, every entry point that checks readiness fails with
// STATE_ERROR. It is idempotent: a second call observes the first
// call's result without repeating the cleanup sequence.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		atomic.StoreInt32(&e.state, int32(StateClosing))
		close(e.stopCheckpoint)

		var errOut error
		if e.wal != nil {
			if err := e.wal.Flush(); err != nil {
				errOut = multierr.Append(errOut, err)
			}
			if err := e.wal.Checkpoint(); err != nil {
				errOut = multierr.Append(errOut, err)
			}
			if err := e.wal.Close(); err != nil {
				errOut = multierr.Append(errOut, err)
			}
			e.wal.ZeroizeKey()
		}

		crypto.Zeroize(e.masterKey)

		atomic.StoreInt32(&e.state, int32(StateClosed))
		e.closeErr = errOut
	})
	return e.closeErr
}
