// Command kvforge-server runs the TCP server collaborator in front of a
// kvforge engine, the Go analogue of original_source/src/bin/kvs-server.rs.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kvforge/internal/config"
	"kvforge/internal/engine"
	"kvforge/internal/logging"
	"kvforge/internal/server"
	"kvforge/internal/workerpool"
)

func main() {
	cfg := config.Default()

	addr := flag.String("addr", cfg.ListenAddr, "TCP address to listen on")
	dataDir := flag.String("data-dir", cfg.DataDir, "directory to persist segments in")
	workers := flag.Int("workers", cfg.WorkerPoolSize, "number of worker goroutines")
	compactionThreshold := flag.Int64("compaction-threshold", cfg.CompactionThreshold, "stale bytes before compaction runs")
	readerShards := flag.Int("reader-shards", cfg.ReaderShardCount, "prewarmed reader handle caches")
	syncEveryWrite := flag.Bool("sync-every-write", false, "fsync after every append")
	debug := flag.Bool("debug", false, "enable development logging")
	flag.Parse()

	cfg.ListenAddr = *addr
	cfg.DataDir = *dataDir
	cfg.WorkerPoolSize = *workers
	cfg.CompactionThreshold = *compactionThreshold
	cfg.ReaderShardCount = *readerShards
	cfg.Debug = *debug
	if *syncEveryWrite {
		cfg.SyncMode = config.SyncEveryWrite
	}
	cfg.Normalize()

	log, flush, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvforge-server:", err)
		os.Exit(1)
	}
	defer flush()

	eng, err := engine.Open(cfg)
	if err != nil {
		log.Errorw("failed to open engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	pool := workerpool.New(cfg.WorkerPoolSize)
	defer pool.Close()

	srv := server.New(eng, pool, log)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Infow("shutting down kvforge server")
		srv.Close()
	}()

	if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
		log.Errorw("server exited with error", "error", err)
		os.Exit(1)
	}
}
