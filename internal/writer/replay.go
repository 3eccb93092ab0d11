// replay.go rebuilds the index and the uncompacted (stale) byte count by
// scanning every on-disk segment in ascending generation order at open
// time. A partial trailing record on the active segment is tolerated and
// truncates the effective end of the log there; the same on a frozen,
// already-superseded segment is fatal corruption.
package writer

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	"kvforge/internal/core"
	"kvforge/internal/kverrors"
	"kvforge/internal/kvindex"
	"kvforge/internal/kvrecord"
)

func replay(c *core.Core, log *zap.SugaredLogger) (gens []uint64, uncompacted int64, activeGen uint64, err error) {
	ctx := context.Background()

	gens, err = c.Layout.Generations(ctx)
	if err != nil {
		return nil, 0, 0, err
	}

	if len(gens) == 0 {
		return gens, 0, 1, nil
	}
	activeGen = gens[len(gens)-1]

	for _, gen := range gens {
		n, err := replaySegment(c, gen, gen == activeGen, log)
		if err != nil {
			return nil, 0, 0, err
		}
		uncompacted += n
	}

	return gens, uncompacted, activeGen, nil
}

func replaySegment(c *core.Core, gen uint64, isActive bool, log *zap.SugaredLogger) (int64, error) {
	path := c.Layout.SegmentPath(gen)
	f, err := os.Open(path)
	if err != nil {
		return 0, kverrors.Wrap(kverrors.Io, "open segment for replay", err)
	}
	defer f.Close()

	var uncompacted int64
	var runningOffset int64
	dec := kvrecord.NewDecoder(f)

	for {
		rec, n, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isActive {
				log.Warnw("truncating partial trailing record during replay",
					"generation", gen, "offset", runningOffset, "error", err)
				if terr := os.Truncate(path, runningOffset); terr != nil {
					return 0, kverrors.Wrap(kverrors.Io, "truncate partial trailing record", terr)
				}
				break
			}
			return 0, kverrors.Wrap(kverrors.Corrupt, "non-active segment corrupted", err)
		}

		pos := kvindex.Position{Generation: gen, Offset: runningOffset, Length: n}
		switch rec.Op {
		case kvrecord.OpSet:
			old, had := c.Index.Insert(rec.Key, pos)
			if had {
				uncompacted += old.Length
			}
		case kvrecord.OpRemove:
			old, had := c.Index.Remove(rec.Key)
			if had {
				uncompacted += old.Length + n
			} else {
				// A Remove for an absent key during replay implies a prior
				// segment is missing. Treated as a non-fatal no-op.
				log.Warnw("remove of absent key during replay, treating as no-op",
					"key", rec.Key, "generation", gen)
			}
		}
		runningOffset += n
	}

	return uncompacted, nil
}
