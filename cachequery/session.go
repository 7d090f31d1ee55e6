// Package cachequery implements the two concrete [tiling.Query] adapters
// spec.md calls the Cache Query Adapters: one for a connection's
// session-only cache state, one for the persistent index shared across
// connections and, when coordinated, across viewer processes.
//
// Both adapters share the same classification rule: a rectangle below the
// configured minimum area, or whose content hash is degenerate, is
// NotCacheable; otherwise a connection that has already been told about
// the resulting cache id sees Hit, and every other connection sees
// InitCandidate.
package cachequery

import (
	"sync"

	"github.com/vncbridge/rfbcache/pixel"
	"github.com/vncbridge/rfbcache/tiling"
)

// SessionQuery classifies tiles against cache state scoped to a single
// connection: the index of ids this session has ever produced, and the
// subset of those the connection has actually been told about.
type SessionQuery struct {
	hasher  pixel.Hasher
	minArea int64

	mu    sync.Mutex
	seen  map[pixel.CacheID]struct{}
	known map[pixel.CacheID]struct{}
}

var _ tiling.Query = (*SessionQuery)(nil)

// NewSessionQuery returns a SessionQuery that rejects any rect with area
// below minArea before hashing, using hasher to compute content hashes.
func NewSessionQuery(hasher pixel.Hasher, minArea int64) *SessionQuery {
	return &SessionQuery{
		hasher:  hasher,
		minArea: minArea,
		seen:    make(map[pixel.CacheID]struct{}),
		known:   make(map[pixel.CacheID]struct{}),
	}
}

// ClassifyTile implements [tiling.Query].
func (q *SessionQuery) ClassifyTile(rect pixel.Rect, pb pixel.Buffer) tiling.State {
	id, ok := classify(q.hasher, rect, pb, q.minArea)
	if !ok {
		return tiling.NotCacheable
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, told := q.known[id]; told {
		return tiling.Hit
	}

	q.seen[id] = struct{}{}

	return tiling.InitCandidate
}

// MarkSent records that id has now been sent to this connection (as a
// cache init), so future ClassifyTile calls for the same content
// classify as Hit. Callers invoke this once the init message for id has
// actually been written to the wire, never speculatively.
func (q *SessionQuery) MarkSent(id pixel.CacheID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.known[id] = struct{}{}
}

// Knows reports whether this connection has already been told about id.
func (q *SessionQuery) Knows(id pixel.CacheID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.known[id]

	return ok
}

// classify applies the shared minimum-area and degenerate-hash rejection
// rule and returns the rectangle's cache id, or false if the rect is
// NotCacheable outright.
func classify(hasher pixel.Hasher, rect pixel.Rect, pb pixel.Buffer, minArea int64) (pixel.CacheID, bool) {
	if rect.Empty() || rect.Area() < minArea {
		return 0, false
	}

	hash := hasher.Hash(rect, pb)
	if hash.IsZero() {
		return 0, false
	}

	return hash.CacheID(), true
}
