package cachequery

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/vncbridge/rfbcache/coordproto"
	"github.com/vncbridge/rfbcache/pixel"
	"github.com/vncbridge/rfbcache/tiling"
)

// PersistentIndex is the persistent cache index shared across every
// connection in this process, and — when the cache coordinator (§4.G) is
// running — kept in sync with the other viewer processes via WELCOME and
// INDEX_UPDATE replay. This is the concrete structure spec.md leaves as
// prose ("the shared index maintained via G"): a coordinator in the master
// role feeds it through [PersistentIndex.Seed] as writes complete locally,
// and a slave coordinator's IndexUpdateCallback feeds it through
// [PersistentIndex.Learn].
type PersistentIndex struct {
	entries sync.Map // map[pixel.CacheID]coordproto.WireIndexEntry
}

// NewPersistentIndex returns an empty PersistentIndex.
func NewPersistentIndex() *PersistentIndex {
	return &PersistentIndex{}
}

// Seed registers a single entry, typically one this process just finished
// writing (as a master) or persisted on the master's behalf (via
// RequestWrite). A no-op if an entry for the same CacheID already exists.
func (idx *PersistentIndex) Seed(entry coordproto.WireIndexEntry) {
	idx.entries.LoadOrStore(pixel.CacheID(entry.CacheID), entry)
}

// Learn registers a batch of entries, as delivered by a WELCOME snapshot
// or an INDEX_UPDATE broadcast.
func (idx *PersistentIndex) Learn(entries []coordproto.WireIndexEntry) {
	for _, entry := range entries {
		idx.entries.LoadOrStore(pixel.CacheID(entry.CacheID), entry)
	}
}

// Has reports whether an entry for id is known to this index.
func (idx *PersistentIndex) Has(id pixel.CacheID) bool {
	_, ok := idx.entries.Load(id)

	return ok
}

// Get returns the entry for id, if any.
func (idx *PersistentIndex) Get(id pixel.CacheID) (coordproto.WireIndexEntry, bool) {
	v, ok := idx.entries.Load(id)
	if !ok {
		return coordproto.WireIndexEntry{}, false
	}

	return v.(coordproto.WireIndexEntry), true
}

// snapshot returns every entry currently known, in no particular order.
func (idx *PersistentIndex) snapshot() []coordproto.WireIndexEntry {
	var entries []coordproto.WireIndexEntry

	idx.entries.Range(func(_, v any) bool {
		entries = append(entries, v.(coordproto.WireIndexEntry))

		return true
	})

	return entries
}

// SaveSnapshot persists every known entry to path as a flat sequence of
// encoded [coordproto.WireIndexEntry] records, written atomically (temp
// file + rename) via [atomic.WriteFile]. This is a purely optional
// convenience: the index is always fully reconstructible from WELCOME/
// INDEX_UPDATE replay, so a failed or stale snapshot never affects
// correctness, only how much replay a fresh process needs.
func (idx *PersistentIndex) SaveSnapshot(path string) error {
	entries := idx.snapshot()

	var zero coordproto.WireIndexEntry

	buf := make([]byte, 0, len(entries)*zero.Size())
	for _, e := range entries {
		buf = e.Encode(buf)
	}

	return atomic.WriteFile(path, bytes.NewReader(buf))
}

// LoadSnapshot seeds idx from a file previously written by
// [PersistentIndex.SaveSnapshot]. A missing file is not an error: a fresh
// index has nothing to seed from and will catch up via replay instead.
// Existing entries always win over the snapshot, matching Seed/Learn's
// load-or-store semantics.
func (idx *PersistentIndex) LoadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var zero coordproto.WireIndexEntry

	for entrySize := zero.Size(); len(data) >= entrySize; {
		entry, n, err := coordproto.DecodeWireIndexEntry(data)
		if err != nil {
			return err
		}

		idx.Seed(entry)
		data = data[n:]
	}

	return nil
}

// PersistentQuery classifies tiles against the shared [PersistentIndex],
// gated by a connection-local "has-been-told" predicate exactly like
// [SessionQuery]'s.
type PersistentQuery struct {
	hasher  pixel.Hasher
	minArea int64
	index   *PersistentIndex

	mu    sync.Mutex
	known map[pixel.CacheID]struct{}
}

var _ tiling.Query = (*PersistentQuery)(nil)

// NewPersistentQuery returns a PersistentQuery backed by index, rejecting
// any rect with area below minArea before hashing.
func NewPersistentQuery(hasher pixel.Hasher, minArea int64, index *PersistentIndex) *PersistentQuery {
	return &PersistentQuery{
		hasher:  hasher,
		minArea: minArea,
		index:   index,
		known:   make(map[pixel.CacheID]struct{}),
	}
}

// ClassifyTile implements [tiling.Query]. The index lookup itself never
// changes the result — InitCandidate covers both "entry exists server-side
// but untold" and "no entry yet, one could be seeded" per spec §3's
// TileCacheState definition — but a cache-init emitter can consult
// [PersistentQuery.Index] to decide whether it needs to write new content
// or can simply replay an existing entry's geometry.
func (q *PersistentQuery) ClassifyTile(rect pixel.Rect, pb pixel.Buffer) tiling.State {
	id, ok := classify(q.hasher, rect, pb, q.minArea)
	if !ok {
		return tiling.NotCacheable
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, told := q.known[id]; told {
		return tiling.Hit
	}

	return tiling.InitCandidate
}

// MarkSent records that id has now been sent to this connection.
func (q *PersistentQuery) MarkSent(id pixel.CacheID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.known[id] = struct{}{}
}

// Knows reports whether this connection has already been told about id.
func (q *PersistentQuery) Knows(id pixel.CacheID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.known[id]

	return ok
}

// Index returns the shared index backing q, so a caller emitting a cache
// init can check for an existing entry before doing the work of encoding
// one from scratch.
func (q *PersistentQuery) Index() *PersistentIndex {
	return q.index
}
