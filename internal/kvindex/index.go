// Package kvindex implements the in-memory key -> Position index: the
// authoritative record of which on-disk record is live for each key.
//
// The map is sharded across a fixed number of sync.RWMutex-guarded buckets
// rather than held behind one lock — concurrent readers and exclusive-only
// mutation is all the contract requires, and a single writer already
// guarantees the latter. Shard selection uses github.com/minio/highwayhash
// for a fast, well distributed hash instead of reaching for hash/fnv.
package kvindex

import (
	"sync"

	"github.com/minio/highwayhash"
)

// Position locates one record's encoded bytes inside one segment: the
// triple (generation, offset, length).
type Position struct {
	Generation uint64
	Offset     int64
	Length     int64
}

const shardCount = 32

// shardKey is a fixed 32-byte highwayhash key. It only needs to be stable
// within a process, not secret or random, since it is used purely to spread
// keys across shards evenly.
var shardKey = [highwayhash.Size]byte{
	0x6b, 0x76, 0x66, 0x6f, 0x72, 0x67, 0x65, 0x2d,
	0x73, 0x68, 0x61, 0x72, 0x64, 0x2d, 0x6b, 0x65,
	0x79, 0x2d, 0x76, 0x31, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

type shard struct {
	mu sync.RWMutex
	m  map[string]Position
}

// Index is a concurrent mapping from key to Position.
type Index struct {
	shards [shardCount]*shard
}

// New creates an empty Index.
func New() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i] = &shard{m: make(map[string]Position)}
	}
	return idx
}

func (idx *Index) shardFor(key string) *shard {
	h := highwayhash.Sum64([]byte(key), shardKey[:])
	return idx.shards[h%uint64(shardCount)]
}

// Insert records pos for key, returning the previously held Position (if
// any) so the caller can account for stale bytes.
func (idx *Index) Insert(key string, pos Position) (old Position, hadOld bool) {
	s := idx.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, hadOld = s.m[key]
	s.m[key] = pos
	return old, hadOld
}

// Remove deletes key from the index, returning the Position it held (if
// any).
func (idx *Index) Remove(key string) (old Position, hadOld bool) {
	s := idx.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, hadOld = s.m[key]
	delete(s.m, key)
	return old, hadOld
}

// Get looks up key without mutating the index.
func (idx *Index) Get(key string) (Position, bool) {
	s := idx.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.m[key]
	return pos, ok
}

// CompareAndSwap replaces index[key] with newPos only if it currently equals
// oldPos, per compaction step 3c: a concurrent writer updating the key
// between the compactor's read and its index swap must win. Returns whether
// the swap happened.
func (idx *Index) CompareAndSwap(key string, oldPos, newPos Position) bool {
	s := idx.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[key]
	if !ok || cur != oldPos {
		return false
	}
	s.m[key] = newPos
	return true
}

// Snapshot returns a copy of every (key, Position) pair currently in the
// index. Used by the compactor, which needs a stable list to iterate while
// concurrent writers may still be mutating individual shards.
func (idx *Index) Snapshot() map[string]Position {
	out := make(map[string]Position)
	for _, s := range idx.shards {
		s.mu.RLock()
		for k, v := range s.m {
			out[k] = v
		}
		s.mu.RUnlock()
	}
	return out
}

// Len returns the number of live keys.
func (idx *Index) Len() int {
	n := 0
	for _, s := range idx.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
