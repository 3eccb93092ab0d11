// Package server implements the TCP accept loop: it listens, accepts
// connections, and dispatches each connection's request loop onto a
// workerpool.Pool, reading and writing the line protocol defined in
// internal/wire.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"kvforge/internal/backend"
	"kvforge/internal/kverrors"
	"kvforge/internal/wire"
	"kvforge/internal/workerpool"
)

// Server binds a listener and dispatches requests to a backend.Engine.
type Server struct {
	engine backend.Engine
	pool   *workerpool.Pool
	log    *zap.SugaredLogger

	listener net.Listener
}

// New builds a Server. engine and pool are not owned by the Server: callers
// close them independently (they likely outlive this particular listener).
func New(engine backend.Engine, pool *workerpool.Pool, log *zap.SugaredLogger) *Server {
	return &Server{engine: engine, pool: pool, log: log}
}

// ListenAndServe binds addr and serves connections until Close is called.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return kverrors.Wrap(kverrors.Io, "listen", err)
	}
	s.log.Infow("kvforge server listening", "addr", addr)
	return s.ServeOn(l)
}

// ServeOn runs the accept loop against an already-bound listener, letting
// callers (tests, or a supervisor that wants the bound port before serving)
// control the bind step themselves.
func (s *Server) ServeOn(l net.Listener) error {
	s.listener = l
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return kverrors.Wrap(kverrors.Io, "accept", err)
		}
		s.pool.Submit(func() { s.handle(conn) })
	}
}

// Close stops accepting new connections. It does not close the worker pool
// or the engine.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		req, err := wire.ReadRequest(r)
		if err != nil {
			if err != io.EOF {
				s.log.Debugw("connection read error", "error", err)
			}
			return
		}

		resp := s.dispatch(req)
		if err := wire.WriteResponse(w, resp); err != nil {
			s.log.Debugw("connection write error", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req wire.Request) wire.Response {
	switch req.Verb {
	case wire.VerbSet:
		if err := s.engine.Set(req.Key, req.Value); err != nil {
			return wire.ErrResponse(err.Error())
		}
		return wire.OKResponse()

	case wire.VerbGet:
		value, err := s.engine.Get(req.Key)
		if err != nil {
			if kind, ok := kverrors.KindOf(err); ok && kind == kverrors.KeyNotFound {
				return wire.NotFoundResponse()
			}
			return wire.ErrResponse(err.Error())
		}
		return wire.ValueResponse(value)

	case wire.VerbRemove:
		if err := s.engine.Remove(req.Key); err != nil {
			if kind, ok := kverrors.KindOf(err); ok && kind == kverrors.KeyNotFound {
				return wire.NotFoundResponse()
			}
			return wire.ErrResponse(err.Error())
		}
		return wire.OKResponse()

	default:
		return wire.ErrResponse("unknown verb")
	}
}
