// Package reader implements the reader pool: per-caller cached read handles
// over live generations, amortizing the cost of open() across repeated
// point reads without ever sharing one *os.File between callers.
//
// Go has no stable, queryable thread identity to key a thread-local cache
// by, so this package instead hands out a sync.Pool of handle caches, each
// tagged with the generation-floor epoch it was last validated against.
// Borrowing a cache evicts any handles for generations the floor has since
// retired.
package reader

import (
	"os"
	"sync"

	"kvforge/internal/core"
	"kvforge/internal/kverrors"
	"kvforge/internal/kvindex"
	"kvforge/internal/kvrecord"
)

const maxOpenRetries = 3

type handleCache struct {
	floorEpoch uint64
	handles    map[uint64]*os.File
}

func newHandleCache() *handleCache {
	return &handleCache{handles: make(map[uint64]*os.File)}
}

func (hc *handleCache) evictBelow(floorVal uint64) {
	if floorVal <= hc.floorEpoch {
		return
	}
	for gen, f := range hc.handles {
		if gen < floorVal {
			f.Close()
			delete(hc.handles, gen)
		}
	}
	hc.floorEpoch = floorVal
}

func (hc *handleCache) closeAll() {
	for gen, f := range hc.handles {
		f.Close()
		delete(hc.handles, gen)
	}
}

// Pool hands out handle caches to callers. It is safe for concurrent use by
// any number of goroutines; no single *os.File is ever used by two
// goroutines at once because each borrow is exclusive for its duration.
type Pool struct {
	core *core.Core

	syncPool sync.Pool

	mu     sync.Mutex
	caches []*handleCache // every cache ever created, for Close
}

// NewPool builds a reader pool over c, pre-creating prewarm handle caches.
// They start empty: a cache opens a segment file on its first read of that
// generation.
func NewPool(c *core.Core, prewarm int) *Pool {
	p := &Pool{core: c}
	p.syncPool.New = func() any {
		hc := newHandleCache()
		p.mu.Lock()
		p.caches = append(p.caches, hc)
		p.mu.Unlock()
		return hc
	}
	for i := 0; i < prewarm; i++ {
		p.syncPool.Put(p.syncPool.New().(*handleCache))
	}
	return p
}

// Get performs the point-read path: consult the index, open or reuse a
// handle for the position's generation, seek+read exactly Position.Length
// bytes, and decode. found is false when the key is simply absent (not an
// error); err is non-nil only for I/O or corruption failures.
func (p *Pool) Get(key string) (value string, found bool, err error) {
	hc := p.syncPool.Get().(*handleCache)
	defer p.syncPool.Put(hc)

	hc.evictBelow(p.core.Floor.Load())

	pos, ok := p.core.Index.Get(key)
	if !ok {
		return "", false, nil
	}

	for attempt := 0; attempt < maxOpenRetries; attempt++ {
		value, err = p.readAt(hc, pos)
		if err == nil {
			return value, true, nil
		}
		if !os.IsNotExist(unwrapPathErr(err)) {
			return "", false, err
		}
		// The generation was retired by a concurrent compaction between our
		// index lookup and the open() call; the index has since been
		// updated to point somewhere live, so refresh and retry.
		pos, ok = p.core.Index.Get(key)
		if !ok {
			return "", false, nil
		}
	}
	return "", false, err
}

func (p *Pool) readAt(hc *handleCache, pos kvindex.Position) (string, error) {
	f, ok := hc.handles[pos.Generation]
	if !ok {
		var err error
		f, err = os.Open(p.core.Layout.SegmentPath(pos.Generation))
		if err != nil {
			return "", kverrors.Wrap(kverrors.Io, "open segment", err)
		}
		hc.handles[pos.Generation] = f
	}

	buf := make([]byte, pos.Length)
	if _, err := f.ReadAt(buf, pos.Offset); err != nil {
		return "", kverrors.Wrap(kverrors.Io, "read segment", err)
	}

	rec, err := kvrecord.DecodeExact(buf)
	if err != nil {
		return "", err
	}
	if !rec.IsSet() {
		return "", kverrors.New(kverrors.UnexpectedCommand, "position did not decode to a Set record")
	}
	return rec.Value, nil
}

// unwrapPathErr lets os.IsNotExist see through the kverrors.Error wrapper.
func unwrapPathErr(err error) error {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if os.IsNotExist(err) {
			return err
		}
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
	return err
}

// Close releases every file handle this pool has ever opened. Safe to call
// once, after the engine guarantees no reads are in flight.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, hc := range p.caches {
		hc.closeAll()
	}
}
