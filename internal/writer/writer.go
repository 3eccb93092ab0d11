// Package writer implements the serialized appender: at most one Writer
// mutates an engine's active segment, stale-byte counter, and active
// generation at a time, enforced by an exclusive mutex rather than by
// relying on callers to coordinate themselves.
package writer

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"kvforge/internal/config"
	"kvforge/internal/core"
	"kvforge/internal/kverrors"
	"kvforge/internal/kvindex"
	"kvforge/internal/kvrecord"
)

// Writer owns the active segment's append handle and the authoritative
// stale_bytes counter. It is not safe to share a *Writer's mutation methods
// across callers without the internal mutex — which is exactly what this
// type provides, so callers never need their own locking.
type Writer struct {
	core *core.Core
	cfg  config.Config
	log  *zap.SugaredLogger

	mu         sync.Mutex
	activeGen  uint64
	file       *os.File
	offset     int64
	staleBytes int64

	poisoned atomic.Bool
	poisonErr error
}

// Open builds a Writer for c, replaying on-disk state first. activeGen is
// the generation the writer should append to next: either the highest
// existing generation, or 1 if the directory was empty.
func Open(c *core.Core, cfg config.Config, log *zap.SugaredLogger) (*Writer, error) {
	w := &Writer{core: c, cfg: cfg, log: log}

	gens, uncompacted, activeGen, err := replay(c, log)
	if err != nil {
		return nil, err
	}
	_ = gens
	w.staleBytes = uncompacted
	w.activeGen = activeGen

	if err := c.Layout.Claim(); err != nil {
		return nil, err
	}

	f, offset, err := openAppend(c, activeGen)
	if err != nil {
		return nil, err
	}
	w.file = f
	w.offset = offset

	c.Floor.Advance(lowestOf(gens))

	return w, nil
}

func lowestOf(gens []uint64) uint64 {
	if len(gens) == 0 {
		return 1
	}
	min := gens[0]
	for _, g := range gens {
		if g < min {
			min = g
		}
	}
	return min
}

func openAppend(c *core.Core, gen uint64) (*os.File, int64, error) {
	path := c.Layout.SegmentPath(gen)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, 0, kverrors.Wrap(kverrors.Io, "open active segment", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, kverrors.Wrap(kverrors.Io, "stat active segment", err)
	}
	return f, info.Size(), nil
}

// poison marks the writer as failed after a fatal append/flush error: every
// subsequent write fails fast with the same Io error; reads are unaffected
// because they never touch the Writer.
func (w *Writer) poison(err error) error {
	wrapped := kverrors.Wrap(kverrors.Io, "writer poisoned", err)
	w.poisonErr = wrapped
	w.poisoned.Store(true)
	w.log.Errorw("writer poisoned", "error", wrapped)
	return wrapped
}

func (w *Writer) checkPoisoned() error {
	if w.poisoned.Load() {
		return w.poisonErr
	}
	return nil
}

// Set implements the write path: append the record, update the index,
// maybe compact.
func (w *Writer) Set(key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkPoisoned(); err != nil {
		return err
	}

	rec := kvrecord.Set(key, value)
	encoded, err := kvrecord.Encode(rec)
	if err != nil {
		return err
	}

	offset := w.offset
	if err := w.append(encoded); err != nil {
		return w.poison(err)
	}

	pos := kvindex.Position{Generation: w.activeGen, Offset: offset, Length: int64(len(encoded))}
	old, hadOld := w.core.Index.Insert(key, pos)
	if hadOld {
		w.staleBytes += old.Length
	}

	return w.maybeCompact()
}

// Remove implements the delete path: it fails with KeyNotFound *before*
// writing anything when the key is absent, so a miss never grows the log.
func (w *Writer) Remove(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkPoisoned(); err != nil {
		return err
	}

	old, hadOld := w.core.Index.Get(key)
	if !hadOld {
		return kverrors.New(kverrors.KeyNotFound, key)
	}

	rec := kvrecord.Remove(key)
	encoded, err := kvrecord.Encode(rec)
	if err != nil {
		return err
	}

	if err := w.append(encoded); err != nil {
		return w.poison(err)
	}

	removed, _ := w.core.Index.Remove(key)
	w.staleBytes += old.Length + int64(len(encoded))
	_ = removed

	return w.maybeCompact()
}

func (w *Writer) append(data []byte) error {
	n, err := w.file.WriteAt(data, w.offset)
	if err != nil {
		return err
	}
	w.offset += int64(n)
	if w.cfg.SyncMode == config.SyncEveryWrite {
		if err := w.file.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) maybeCompact() error {
	if w.staleBytes < w.cfg.CompactionThreshold {
		return nil
	}
	return w.compact()
}

// Close flushes and closes the active segment. It does not touch any other
// generation's files; those are owned by the reader pool.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return kverrors.Wrap(kverrors.Io, "sync active segment on close", err)
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return kverrors.Wrap(kverrors.Io, "close active segment", err)
	}
	return nil
}

// StaleBytes reports the writer's current stale_bytes accounting. Exposed
// for tests and diagnostics only.
func (w *Writer) StaleBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.staleBytes
}

// ActiveGeneration reports the generation the writer is currently appending
// to. Exposed for tests and diagnostics only.
func (w *Writer) ActiveGeneration() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeGen
}
