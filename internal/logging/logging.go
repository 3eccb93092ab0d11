// Package logging builds the structured logger used throughout the engine,
// grounded on other_examples/iamBelugaa-kvix__model.go's use of
// *zap.SugaredLogger inside a segment-handle cache. In kvforge the logger
// warns on recoverable replay skew, reports writer and compaction errors,
// and logs connection errors at debug level; the reader pool's handle cache
// does not log.
package logging

import "go.uber.org/zap"

// New builds a development-style logger when debug is true, otherwise a
// production one. Callers should defer the returned Sync.
func New(debug bool) (*zap.SugaredLogger, func(), error) {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, func() {}, err
	}
	return logger.Sugar(), func() { _ = logger.Sync() }, nil
}

// Nop returns a logger that discards everything, for tests and callers that
// don't want engine diagnostics.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
