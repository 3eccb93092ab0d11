// Package engine implements the storage engine facade: Open, Set, Get,
// Remove, plus a reference-counted Clone/Close pair so shutdown only tears
// down shared state once every handle is released.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"kvforge/internal/backend"
	"kvforge/internal/config"
	"kvforge/internal/core"
	"kvforge/internal/kverrors"
	"kvforge/internal/layout"
	"kvforge/internal/logging"
	"kvforge/internal/reader"
	"kvforge/internal/writer"
)

// Engine satisfies the backend.Engine interface.
var _ backend.Engine = Engine{}

// EngineVersion is logged on every Open.
const EngineVersion = "kvforge/1"

// shared is the state every cheap Engine handle points at; Engine itself is
// just a *shared, so cloning an Engine is a pointer copy.
type shared struct {
	cfg    config.Config
	core   *core.Core
	writer *writer.Writer
	pool   *reader.Pool
	log    *zap.SugaredLogger

	refCount atomic.Int64
	closeMu  sync.Mutex
	closed   atomic.Bool
}

// Engine is a cheaply duplicable handle onto one open directory's state.
// Multiple Engine values returned by Open or Clone share the same
// underlying shared core; any of them may issue operations concurrently.
type Engine struct {
	s *shared
}

// Open opens (or creates) an engine rooted at cfg.DataDir, replaying
// on-disk segments to rebuild the index.
func Open(cfg config.Config) (Engine, error) {
	cfg.Normalize()

	log, _, err := logging.New(cfg.Debug)
	if err != nil {
		return Engine{}, err
	}
	log.Infow("opening kvforge engine", "version", EngineVersion, "dataDir", cfg.DataDir)

	l, err := layout.Open(context.Background(), cfg.DataDir)
	if err != nil {
		return Engine{}, err
	}

	c := core.New(l)

	w, err := writer.Open(c, cfg, log)
	if err != nil {
		return Engine{}, err
	}

	pool := reader.NewPool(c, cfg.ReaderShardCount)

	s := &shared{cfg: cfg, core: c, writer: w, pool: pool, log: log}
	s.refCount.Store(1)

	return Engine{s: s}, nil
}

// Clone returns a new Engine handle sharing this one's underlying state,
// incrementing the reference count. The returned handle must be Closed
// independently.
func (e Engine) Clone() Engine {
	e.s.refCount.Add(1)
	return Engine{s: e.s}
}

func (e Engine) checkOpen() error {
	if e.s.closed.Load() {
		return kverrors.New(kverrors.Io, "engine is closed")
	}
	return nil
}

// Set writes key to value: append the record, update the index, maybe
// compact.
func (e Engine) Set(key, value string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.s.writer.Set(key, value)
}

// Lookup reads key, reporting a miss as found=false rather than as an
// error.
func (e Engine) Lookup(key string) (string, bool, error) {
	if err := e.checkOpen(); err != nil {
		return "", false, err
	}
	return e.s.pool.Get(key)
}

// Get satisfies internal/backend.Engine's uniform error-based contract: it
// is Lookup with a KeyNotFound error in place of found=false, for callers
// (internal/server) that want one shape for both Get and Remove misses.
func (e Engine) Get(key string) (string, error) {
	value, found, err := e.Lookup(key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", kverrors.New(kverrors.KeyNotFound, key)
	}
	return value, nil
}

// Remove implements remove(key) -> (), failing with KeyNotFound when key is
// absent.
func (e Engine) Remove(key string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.s.writer.Remove(key)
}

// Close decrements the reference count; the underlying writer and reader
// pool are only closed once the last handle is released.
func (e Engine) Close() error {
	e.s.closeMu.Lock()
	defer e.s.closeMu.Unlock()

	if e.s.refCount.Add(-1) > 0 {
		return nil
	}
	if e.s.closed.Swap(true) {
		return nil
	}

	e.s.pool.Close()
	return e.s.writer.Close()
}

// StaleBytes and ActiveGeneration are diagnostic accessors over the writer's
// state; nothing in this repository calls them through the Engine.
func (e Engine) StaleBytes() int64        { return e.s.writer.StaleBytes() }
func (e Engine) ActiveGeneration() uint64 { return e.s.writer.ActiveGeneration() }
