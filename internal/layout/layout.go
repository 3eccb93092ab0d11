// Package layout owns the on-disk directory: enumerating, creating, and
// retiring segment files, and enforcing the backend-ownership marker that
// keeps this engine from sharing a directory with a different backend.
// Directory-level operations (list, delete, exists) go through
// github.com/viant/afs; byte-precise segment content I/O is left to the
// writer and reader packages, since afs's whole-object transfer model has
// no positioned append/seek primitive.
package layout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"

	"kvforge/internal/kverrors"
)

// OwnerMarker is the ownership-claim file name and its sole valid content.
// A directory that already contains this file with different content
// belongs to a different kvforge-incompatible build; a directory with no
// marker but a "sled" subdirectory belongs to a foreign embedded backend.
const (
	OwnerMarkerName    = "OWNER"
	OwnerMarkerContent = "kvforge/log-segment/v1"
	foreignBackendDir  = "sled"
)

var segmentPattern = regexp.MustCompile(`^(\d+)\.log$`)

// Layout wraps one data directory.
type Layout struct {
	dir string
	fs  afs.Service
}

// Open ensures dir exists, checks backend ownership, and returns a Layout
// for it. It does not itself enumerate or replay segments; callers do that
// separately via Generations.
func Open(ctx context.Context, dir string) (*Layout, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kverrors.Wrap(kverrors.Io, "create data directory", err)
	}
	l := &Layout{dir: dir, fs: afs.New()}
	if err := l.checkOwnership(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the directory path this Layout manages.
func (l *Layout) Dir() string { return l.dir }

func (l *Layout) markerPath() string {
	return filepath.Join(l.dir, OwnerMarkerName)
}

func (l *Layout) checkOwnership(ctx context.Context) error {
	markerExists, err := l.fs.Exists(ctx, l.markerPath())
	if err != nil {
		return kverrors.Wrap(kverrors.Io, "check owner marker", err)
	}
	if markerExists {
		content, err := os.ReadFile(l.markerPath())
		if err != nil {
			return kverrors.Wrap(kverrors.Io, "read owner marker", err)
		}
		if string(content) != OwnerMarkerContent {
			return kverrors.New(kverrors.WrongEngine, "directory is owned by a different backend")
		}
		return nil
	}

	foreignExists, err := l.fs.Exists(ctx, filepath.Join(l.dir, foreignBackendDir))
	if err != nil {
		return kverrors.Wrap(kverrors.Io, "check foreign backend marker", err)
	}
	if foreignExists {
		return kverrors.New(kverrors.WrongEngine, "directory is owned by a different backend")
	}
	return nil
}

// Claim writes the ownership marker if it is not already present. Called
// the first time a segment is created in a fresh directory: the first
// backend to write to a directory claims it.
func (l *Layout) Claim() error {
	path := l.markerPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(OwnerMarkerContent), 0o644); err != nil {
		return kverrors.Wrap(kverrors.Io, "write owner marker", err)
	}
	return nil
}

// SegmentPath returns the absolute path of generation gen's segment file.
func (l *Layout) SegmentPath(gen uint64) string {
	return filepath.Join(l.dir, fmt.Sprintf("%d.log", gen))
}

// Generations returns every generation number present on disk, ascending.
func (l *Layout) Generations(ctx context.Context) ([]uint64, error) {
	var entries []storage.Object
	entries, err := l.fs.List(ctx, l.dir)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.Io, "list data directory", err)
	}
	var gens []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		gen, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		gens = append(gens, gen)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// DeleteGeneration removes generation gen's segment file. Used by the
// compactor to retire superseded generations; deleted generations must
// never be reopened afterward.
func (l *Layout) DeleteGeneration(ctx context.Context, gen uint64) error {
	path := l.SegmentPath(gen)
	exists, err := l.fs.Exists(ctx, path)
	if err != nil {
		return kverrors.Wrap(kverrors.Io, "check segment before delete", err)
	}
	if !exists {
		return nil
	}
	if err := l.fs.Delete(ctx, path); err != nil {
		return kverrors.Wrap(kverrors.Io, fmt.Sprintf("delete segment %d", gen), err)
	}
	return nil
}
