// Package wal implements the write-ahead log described in spec.md §4.3
// (C3): an append-only, encrypted, padded log of intended mutations with
// crash recovery. It follows the teacher repo's Journal in spirit
// (engine/journal.go: one append-only file, rotated and garbage
// collected by age) but encrypts each entry, pads it to defeat
// size-channel attacks, and checksums the payload, none of which the
// teacher's plaintext journal does.
package wal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Syras206/slimcryptdb/crypto"
	"github.com/Syras206/slimcryptdb/errs"
)

// OpKind enumerates the WAL operation variants from spec.md §3.
type OpKind string

const (
	OpCreateTable OpKind = "create_table"
	OpDeleteTable OpKind = "delete_table"
	OpWrite       OpKind = "write"
)

// Operation is the payload of one WAL entry's intent.
type Operation struct {
	Kind  OpKind            `json:"kind"`
	Table string            `json:"table"`
	Rows  []json.RawMessage `json:"rows,omitempty"`
}

// Entry is one logged intent, serialized as described in spec.md §3/§6.
type Entry struct {
	Sequence    uint64    `json:"sequence"`
	TimestampMS int64     `json:"timestamp_ms"`
	Operation   Operation `json:"operation"`
	Checksum    string    `json:"checksum"`
}

// RecoveryFailure is one entry (or whole file) that failed to replay.
type RecoveryFailure struct {
	File         string `json:"file"`
	EntryPreview string `json:"entry_preview"`
	Error        string `json:"error"`
}

// ApplyFunc is invoked once per successfully decoded, checksum-verified
// entry during recovery, in file and in-file order.
type ApplyFunc func(op Operation) error

const (
	entryLinePrefix = "WAL:"
	segmentGlob     = "wal-*.log"
	saltFileName    = ".salt"
)

// Config bundles the WAL's tunable knobs from spec.md §6.
type Config struct {
	Enabled            bool
	Encrypt            bool // mirrors codec.Codec.Encrypt; false stores padded plaintext, hex-encoded
	SyncWrites         bool
	PaddingBlockSize   int // default 1024
	MaxWALSize         int64
	CheckpointInterval time.Duration
	RetentionWindow    time.Duration // default 24h
}

func (c Config) withDefaults() Config {
	if c.PaddingBlockSize <= 0 {
		c.PaddingBlockSize = 1024
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 30 * time.Second
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = 24 * time.Hour
	}
	return c
}

// WAL is the append-only encrypted log. One WAL belongs to one engine
// directory's "wal" subdirectory.
type WAL struct {
	dir    string
	cfg    Config
	key    []byte
	logger *zap.SugaredLogger

	mu       sync.Mutex
	seq      uint64
	curFile  *os.File
	curPath  string
	pending  int // entries written since last checkpoint, for size trigger

	checkpointRunning int32 // guarded via atomic CAS, see checkpoint.go

	recoverySummary []RecoveryFailure
}

// Open opens (creating if absent) the WAL directory under dir and
// returns a WAL ready to Append. When cfg.Encrypt is true, it also
// derives the WAL key from masterKey and the on-disk (or freshly
// generated) salt; when false, the salt file is never created and
// entries are stored as padded plaintext, mirroring codec.Codec's
// compatibility fallback. It does not run recovery; call Recover
// separately so the facade can apply entries before marking the engine
// ready.
func Open(dir string, masterKey []byte, cfg Config, logger *zap.SugaredLogger) (*WAL, error) {
	const op = "wal.Open"
	cfg = cfg.withDefaults()

	if !cfg.Enabled {
		return &WAL{dir: dir, cfg: cfg, logger: logger}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.IOErr(op, err)
	}

	if !cfg.Encrypt {
		return &WAL{dir: dir, cfg: cfg, logger: logger}, nil
	}

	salt, err := loadOrCreateSalt(dir)
	if err != nil {
		return nil, err
	}

	key, err := crypto.DeriveWALKey(masterKey, salt)
	if err != nil {
		return nil, err
	}

	w := &WAL{dir: dir, cfg: cfg, key: key, logger: logger}
	return w, nil
}

func loadOrCreateSalt(dir string) ([]byte, error) {
	const op = "wal.loadOrCreateSalt"
	saltPath := filepath.Join(dir, saltFileName)

	if data, err := os.ReadFile(saltPath); err == nil {
		if len(data) != crypto.KeySize {
			return nil, errs.New(errs.FormatError, op, fmt.Errorf("salt file has %d bytes, want %d", len(data), crypto.KeySize))
		}
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, errs.IOErr(op, err)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(saltPath, salt, 0o600); err != nil {
		return nil, errs.IOErr(op, err)
	}
	return salt, nil
}

// Enabled reports whether this WAL actually persists entries.
func (w *WAL) Enabled() bool { return w.cfg.Enabled }

// NextSequence returns the next strictly-increasing sequence number
// without consuming it; Append assigns the real one under lock.
func (w *WAL) NextSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq + 1
}

// Append logs op durably (subject to cfg.SyncWrites) and returns the
// sequence number assigned to it.
func (w *WAL) Append(op Operation) (uint64, error) {
	const errOp = "wal.Append"
	if !w.cfg.Enabled {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureSegmentOpen(); err != nil {
		return 0, err
	}

	w.seq++
	entry := Entry{
		Sequence:    w.seq,
		TimestampMS: nowMillis(),
		Operation:   op,
	}
	opBytes, err := json.Marshal(entry.Operation)
	if err != nil {
		return 0, errs.New(errs.FormatError, errOp, err)
	}
	entry.Checksum = crypto.Checksum(opBytes)

	plaintext, err := json.Marshal(entry)
	if err != nil {
		return 0, errs.New(errs.FormatError, errOp, err)
	}

	padded, err := pad(plaintext, w.cfg.PaddingBlockSize)
	if err != nil {
		return 0, err
	}

	var encoded string
	if w.cfg.Encrypt {
		encoded, err = crypto.Encrypt(w.key, padded)
		if err != nil {
			return 0, err
		}
	} else {
		encoded = hex.EncodeToString(padded)
	}

	line := entryLinePrefix + encoded + "\n"
	if _, err := w.curFile.WriteString(line); err != nil {
		return 0, errs.IOErr(errOp, err)
	}
	if w.cfg.SyncWrites {
		if err := w.curFile.Sync(); err != nil {
			return 0, errs.IOErr(errOp, err)
		}
	}

	w.pending++
	return entry.Sequence, nil
}

// PendingSize reports the buffered-entry count used for the size-based
// checkpoint trigger in spec.md §4.3 ("buffered entry count × 1000
// exceeds maxWalSize").
func (w *WAL) PendingSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.pending) * 1000
}

func (w *WAL) ensureSegmentOpen() error {
	const op = "wal.ensureSegmentOpen"
	if w.curFile != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errs.IOErr(op, err)
	}
	// The timestamp alone can collide when two segments open within the
	// same millisecond (fast consecutive Open/Close in tests); a short
	// uuid suffix keeps file names unique without disturbing the
	// lexicographic-equals-chronological ordering listSegments relies on.
	name := fmt.Sprintf("wal-%d-%s.log", nowMillis(), uuid.NewString()[:8])
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errs.IOErr(op, err)
	}
	w.curFile = f
	w.curPath = path
	return nil
}

// Flush fsyncs the currently open segment, if any.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.curFile == nil {
		return nil
	}
	if err := w.curFile.Sync(); err != nil {
		return errs.IOErr("wal.Flush", err)
	}
	w.pending = 0
	return nil
}

// Close flushes and closes the active segment. Idempotent.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.curFile == nil {
		return nil
	}
	err := w.curFile.Close()
	w.curFile = nil
	w.curPath = ""
	if err != nil {
		return errs.IOErr("wal.Close", err)
	}
	return nil
}

// RecoverySummary returns the diagnostic record of entries that failed
// to replay during the last Recover call.
func (w *WAL) RecoverySummary() []RecoveryFailure {
	return append([]RecoveryFailure{}, w.recoverySummary...)
}

// ZeroizeKey overwrites the derived WAL key in place, called by the
// facade on Close alongside zeroizing the master key, per spec.md §4.10.
func (w *WAL) ZeroizeKey() {
	w.mu.Lock()
	defer w.mu.Unlock()
	crypto.Zeroize(w.key)
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func listSegments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, segmentGlob))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches) // lexicographic == timestamp order, since ms timestamps are fixed width for a long time
	return matches, nil
}

