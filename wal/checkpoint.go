package wal

import (
	"os"
	"sync/atomic"
	"time"
)

// Checkpoint flushes any pending buffer, then deletes WAL segments
// whose mtime is older than the retention window (default 24h). Only
// one checkpoint runs at a time; a concurrent call is a no-op, per
// spec.md §4.3.
func (w *WAL) Checkpoint() error {
	if !atomic.CompareAndSwapInt32(&w.checkpointRunning, 0, 1) {
		if w.logger != nil {
			w.logger.Debugf("checkpoint already running, skipping re-entry")
		}
		return nil
	}
	defer atomic.StoreInt32(&w.checkpointRunning, 0)

	if err := w.Flush(); err != nil {
		return err
	}

	segments, err := listSegments(w.dir)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-w.cfg.RetentionWindow)
	for _, path := range segments {
		if path == w.curPath {
			continue // never delete the segment we're actively writing to
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && w.logger != nil {
				w.logger.Warnf("checkpoint: failed to remove stale WAL segment %s: %v", path, err)
			}
		}
	}
	return nil
}

// MaybeAsyncCheckpoint triggers a checkpoint on a separate goroutine
// when the buffered entry count's size-equivalent exceeds cfg.MaxWALSize,
// per spec.md §4.3's size-based trigger. It does not block the caller.
func (w *WAL) MaybeAsyncCheckpoint() {
	if w.cfg.MaxWALSize <= 0 {
		return
	}
	if w.PendingSize() <= w.cfg.MaxWALSize {
		return
	}
	go func() {
		if err := w.Checkpoint(); err != nil && w.logger != nil {
			w.logger.Warnf("async checkpoint failed: %v", err)
		}
	}()
}

// StartScheduler runs Checkpoint every cfg.CheckpointInterval until
// stop is closed. The facade owns the goroutine's lifetime via stop.
func (w *WAL) StartScheduler(stop <-chan struct{}) {
	if !w.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(w.cfg.CheckpointInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := w.Checkpoint(); err != nil && w.logger != nil {
					w.logger.Warnf("scheduled checkpoint failed: %v", err)
				}
			}
		}
	}()
}
