package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/vncbridge/rfbcache/cachequery"
	"github.com/vncbridge/rfbcache/coordinator"
	"github.com/vncbridge/rfbcache/coordproto"
	"github.com/vncbridge/rfbcache/internal/obslog"
)

// ServeCmd starts a coordinator for a cache directory in the foreground,
// blocking until interrupted. If it wins the master election it also
// services slave write requests by appending their payloads to a single
// append-only shard file under the cache directory. Either role keeps a
// best-effort snapshot of the persistent index on disk, purely so a
// restart has less to relearn via replay — never load-bearing for
// correctness.
func ServeCmd() *Command {
	return &Command{
		Usage: "serve <dir>",
		Short: "Start (or join) the coordinator for a cache directory",
		Exec: func(ctx context.Context, o *IO, cfg Config, _ []string) error {
			logger := obslog.Default()

			store, err := newShardStore(cfg.CacheDir + "/cache.shard")
			if err != nil {
				return fmt.Errorf("opening shard store: %w", err)
			}
			defer store.Close()

			index := cachequery.NewPersistentIndex()
			snapshotPath := cfg.CacheDir + "/index.snapshot"

			if err := index.LoadSnapshot(snapshotPath); err != nil {
				logger.Error("failed to load index snapshot, starting empty", err, map[string]any{"path": snapshotPath})
			}

			opts := coordinator.Options{
				Logger: logger,
				WriteRequestCallback: func(entry coordproto.WireIndexEntry, payload []byte) (coordproto.WireIndexEntry, bool) {
					written, ok := store.write(entry, payload)
					if ok {
						index.Seed(written)
					}

					return written, ok
				},
				IndexUpdateCallback: func(entries []coordproto.WireIndexEntry) {
					index.Learn(entries)
					logger.Info("index update received", map[string]any{"count": len(entries)})
				},
			}

			coord, err := coordinator.Create(cfg.CacheDir, opts)
			if err != nil {
				return fmt.Errorf("creating coordinator: %w", err)
			}
			defer coord.Stop()

			if err := coord.Start(); err != nil {
				return fmt.Errorf("starting coordinator: %w", err)
			}

			o.Printf("cachectl: role=%s dir=%s\n", coord.Role(), cfg.CacheDir)

			<-ctx.Done()

			o.Println("cachectl: shutting down")

			if err := index.SaveSnapshot(snapshotPath); err != nil {
				logger.Error("failed to save index snapshot", err, map[string]any{"path": snapshotPath})
			}

			return nil
		},
	}
}

// shardStore is the simplest possible persistent backing for
// coordinator.WriteRequestCallback: one append-only file, entries located
// by byte offset. It exists to give cachectl serve something real to do,
// not as a production storage engine.
type shardStore struct {
	mu   sync.Mutex
	file *os.File
	size uint64
}

func newShardStore(path string) (*shardStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, err
	}

	return &shardStore{file: f, size: uint64(info.Size())}, nil
}

func (s *shardStore) write(entry coordproto.WireIndexEntry, payload []byte) (coordproto.WireIndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.file.WriteAt(payload, int64(s.size))
	if err != nil || n != len(payload) {
		return coordproto.WireIndexEntry{}, false
	}

	entry.ShardID = 0
	entry.Offset = s.size
	entry.Length = uint32(len(payload))

	s.size += uint64(len(payload))

	return entry, true
}

func (s *shardStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.file.Close()
}
