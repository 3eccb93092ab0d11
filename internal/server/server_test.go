package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"kvforge/internal/config"
	"kvforge/internal/engine"
	"kvforge/internal/logging"
	"kvforge/internal/wire"
	"kvforge/internal/workerpool"
)

func TestServerSetGetRemoveOverTCP(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	eng, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	defer eng.Close()

	pool := workerpool.New(4)
	defer pool.Close()

	srv := New(eng, pool, logging.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			pool.Submit(func() { srv.handle(conn) })
		}
	}()
	defer ln.Close()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	send := func(line string) wire.Response {
		if _, err := w.WriteString(line); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		resp, err := wire.ReadResponse(r)
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		return resp
	}

	if resp := send("SET key hello\n"); !resp.IsOK() {
		t.Fatalf("SET failed: %+v", resp)
	}

	resp := send("GET key\n")
	if !resp.Found() || resp.Value() != "hello" {
		t.Fatalf("GET = %+v, want value %q", resp, "hello")
	}

	if resp := send("RM key\n"); !resp.IsOK() {
		t.Fatalf("RM failed: %+v", resp)
	}

	resp = send("GET key\n")
	if !resp.IsNotFound() {
		t.Fatalf("GET after RM = %+v, want NOTFOUND", resp)
	}

	resp = send("RM key\n")
	if !resp.IsNotFound() {
		t.Fatalf("RM on absent key = %+v, want NOTFOUND", resp)
	}
}

func TestDispatchUnknownVerb(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	eng, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	defer eng.Close()

	pool := workerpool.New(1)
	defer pool.Close()

	srv := New(eng, pool, logging.Nop())
	resp := srv.dispatch(wire.Request{Verb: "BOGUS"})
	if resp.IsOK() {
		t.Fatal("expected an error response for an unknown verb")
	}
}
