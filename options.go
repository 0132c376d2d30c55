package slimcryptdb

import (
	"time"

	"go.uber.org/zap"
)

// Config holds the per-instance tunables from spec.md §6. Unlike the
// teacher's process-global settings.Arguments, each Engine owns its own
// Config so multiple instances never share mutable state, per spec.md
// §5 ("each engine instance holds its own copy").
type Config struct {
	Encrypt            bool
	Compression        bool
	WALEnabled         bool
	SyncWrites         bool
	MaxWALSize         int64
	CheckpointInterval time.Duration
	LockTimeout        time.Duration
	WALPaddingSize     int

	Logger *zap.SugaredLogger
	Debug  bool
}

func defaultConfig() Config {
	return Config{
		Encrypt:            true,
		Compression:        false,
		WALEnabled:         true,
		SyncWrites:         true,
		MaxWALSize:         0,
		CheckpointInterval: 30 * time.Second,
		LockTimeout:        10 * time.Second,
		WALPaddingSize:     1024,
	}
}

// Option mutates a Config during Open.
type Option func(*Config)

// WithEncrypt toggles at-rest encryption. Disabling it is a
// compatibility fallback only: the codec then stores cleartext JSON, per
// spec.md §6.
func WithEncrypt(enabled bool) Option { return func(c *Config) { c.Encrypt = enabled } }

// WithCompression gzips ciphertext bytes at the codec boundary.
func WithCompression(enabled bool) Option { return func(c *Config) { c.Compression = enabled } }

// WithWAL toggles the write-ahead log. Disabling it weakens durability
// and makes recovery a no-op, per spec.md §6.
func WithWAL(enabled bool) Option { return func(c *Config) { c.WALEnabled = enabled } }

// WithSyncWrites controls whether each WAL append flushes before the
// caller observes success.
func WithSyncWrites(enabled bool) Option { return func(c *Config) { c.SyncWrites = enabled } }

// WithMaxWALSize sets the bytes-equivalent threshold that triggers an
// asynchronous checkpoint, checked after each committed transaction.
// Zero disables the size-based trigger.
func WithMaxWALSize(bytes int64) Option { return func(c *Config) { c.MaxWALSize = bytes } }

// WithCheckpointInterval sets the background checkpoint task's cadence.
func WithCheckpointInterval(d time.Duration) Option {
	return func(c *Config) { c.CheckpointInterval = d }
}

// WithLockTimeout sets how long a transaction waits on a table lock
// before failing with LOCK_TIMEOUT.
func WithLockTimeout(d time.Duration) Option { return func(c *Config) { c.LockTimeout = d } }

// WithWALPaddingSize sets the WAL plaintext padding's base block size.
func WithWALPaddingSize(bytes int) Option { return func(c *Config) { c.WALPaddingSize = bytes } }

// WithLogger overrides the default zap.NewProduction sugared logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(c *Config) { c.Logger = l } }

// WithDebug gates extra debug-level logging, mirroring the teacher's
// settings.Arguments.Verbose/Debug flags.
func WithDebug(enabled bool) Option { return func(c *Config) { c.Debug = enabled } }
