// compactor.go rewrites the live keys into a fresh generation and retires
// the old ones. It lives in this package, as a method on *Writer, rather
// than behind its own package boundary: compaction mutates the writer's
// exclusively-owned fields (append handle, active generation, stale bytes)
// directly and always runs synchronously inside a Set or Remove once the
// stale-byte threshold is crossed, so giving it a separate package would
// only add an interface back into writer for no isolation benefit.
package writer

import (
	"context"
	"os"

	"kvforge/internal/core"
	"kvforge/internal/kverrors"
	"kvforge/internal/kvindex"
)

// compact runs while w.mu is already held by the caller (Set/Remove).
func (w *Writer) compact() error {
	ctx := context.Background()

	cur := w.activeGen
	compactGen := cur + 1
	newActive := cur + 2

	oldGens, err := w.core.Layout.Generations(ctx)
	if err != nil {
		return kverrors.Wrap(kverrors.Io, "list generations before compaction", err)
	}

	compactPath := w.core.Layout.SegmentPath(compactGen)
	compactFile, err := os.OpenFile(compactPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return kverrors.Wrap(kverrors.Io, "create compaction segment", err)
	}

	sourceHandles := make(map[uint64]*os.File)
	closeSources := func() {
		for _, f := range sourceHandles {
			f.Close()
		}
	}

	var compactOffset int64
	snapshot := w.core.Index.Snapshot()
	for key, oldPos := range snapshot {
		raw, err := readRawVerbatim(w.core, sourceHandles, oldPos)
		if err != nil {
			compactFile.Close()
			closeSources()
			return err
		}

		newOffset := compactOffset
		if _, err := compactFile.WriteAt(raw, newOffset); err != nil {
			compactFile.Close()
			closeSources()
			return kverrors.Wrap(kverrors.Io, "write compaction segment", err)
		}
		compactOffset += int64(len(raw))

		newPos := kvindex.Position{Generation: compactGen, Offset: newOffset, Length: oldPos.Length}
		// If a concurrent writer already moved this key, our copy becomes
		// dead weight in the new generation; the index keeps pointing
		// wherever that writer left it.
		w.core.Index.CompareAndSwap(key, oldPos, newPos)
	}
	closeSources()

	if err := compactFile.Sync(); err != nil {
		compactFile.Close()
		return kverrors.Wrap(kverrors.Io, "sync compaction segment", err)
	}
	if err := compactFile.Close(); err != nil {
		return kverrors.Wrap(kverrors.Io, "close compaction segment", err)
	}

	newFile, _, err := openAppend(w.core, newActive)
	if err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		newFile.Close()
		return kverrors.Wrap(kverrors.Io, "sync previous active segment before swap", err)
	}
	w.file.Close()
	w.file = newFile
	w.offset = 0
	w.activeGen = newActive

	w.core.Floor.Advance(compactGen)

	for _, gen := range oldGens {
		if gen < compactGen {
			if err := w.core.Layout.DeleteGeneration(ctx, gen); err != nil {
				w.log.Errorw("failed to delete superseded segment", "generation", gen, "error", err)
			}
		}
	}

	w.staleBytes = 0
	return nil
}

func readRawVerbatim(c *core.Core, handles map[uint64]*os.File, pos kvindex.Position) ([]byte, error) {
	f, ok := handles[pos.Generation]
	if !ok {
		var err error
		f, err = os.Open(c.Layout.SegmentPath(pos.Generation))
		if err != nil {
			return nil, kverrors.Wrap(kverrors.Io, "open source segment for compaction", err)
		}
		handles[pos.Generation] = f
	}
	buf := make([]byte, pos.Length)
	if _, err := f.ReadAt(buf, pos.Offset); err != nil {
		return nil, kverrors.Wrap(kverrors.Io, "read source record for compaction", err)
	}
	return buf, nil
}
