// Package core holds the state shared between the writer and the reader
// pool: the directory layout, the index, and the safe generation floor.
// Bundling them into one immutable-by-convention struct, referenced by both
// sides, avoids a cyclic writer<->readers ownership: the writer additionally
// holds its own exclusive-mutable fields (append handle, active generation,
// stale bytes), but never needs to reach back through a reader, and vice
// versa.
package core

import (
	"kvforge/internal/floor"
	"kvforge/internal/kvindex"
	"kvforge/internal/layout"
)

// Core is the state every component needs shared, read-mostly access to.
type Core struct {
	Layout *layout.Layout
	Index  *kvindex.Index
	Floor  *floor.Tracker
}

// New builds a Core over an already-opened Layout.
func New(l *layout.Layout) *Core {
	return &Core{
		Layout: l,
		Index:  kvindex.New(),
		Floor:  floor.New(),
	}
}
