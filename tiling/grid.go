// Package tiling classifies a bounding rectangle into a grid of cache-aware
// tiles and finds the largest axis-aligned rectangle of cache-hit tiles
// within that grid.
//
// This is the pre-encoding analysis (§4.B, §4.C): it decides which parts of
// a proposed framebuffer update can be served from cache before any
// encoding happens.
package tiling

import (
	"os"
	"strconv"

	"github.com/vncbridge/rfbcache/pixel"
)

// State classifies one tile's relationship to the cache, from the current
// connection's point of view.
type State int

const (
	// NotCacheable covers empty rects, sub-threshold rects, and any
	// degenerate state (zero dimensions, zero hash).
	NotCacheable State = iota
	// Hit means this connection has already been told about the cache
	// entry covering the tile.
	Hit
	// InitCandidate means an entry exists (or could be seeded) server-side
	// but has not yet been sent to this connection.
	InitCandidate
)

// String renders the state for logging and test failure messages.
func (s State) String() string {
	switch s {
	case NotCacheable:
		return "NotCacheable"
	case Hit:
		return "Hit"
	case InitCandidate:
		return "InitCandidate"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Info is one tile: its pixel-space rectangle and its cache state.
type Info struct {
	Rect  pixel.Rect
	State State
}

// Query classifies a single tile against whatever cache index (session or
// persistent) the caller is consulting. It is the single-method capability
// §4.B/§9 describe: a tagged variant (session vs. persistent) is enough,
// no class hierarchy is required. See package cachequery for the two
// concrete implementations.
type Query interface {
	ClassifyTile(rect pixel.Rect, pb pixel.Buffer) State
}

// DefaultTileSize is used when no RFBCACHE_TILE_SIZE override is set.
const DefaultTileSize = 128

// DefaultMinRectTiles is the minimum-area threshold (in tiles) used when
// callers don't have a more specific configuration value.
const DefaultMinRectTiles = 4

// envTileSizeOverride is the environment variable §6 reserves for
// overriding the tile edge length, in pixels. Must be a positive integer;
// any other value (unset, non-numeric, <= 0) means "use the default".
const envTileSizeOverride = "RFBCACHE_TILE_SIZE"

// envDebugTiling is the environment variable §6 reserves for enabling
// log-only tiling analysis.
const envDebugTiling = "RFBCACHE_TILE_DEBUG"

// TileSizeOverride reads [envTileSizeOverride] and returns the configured
// tile edge in pixels, or (0, false) if unset or invalid. Callers combine
// this with [DefaultTileSize]; BuildTilingGrid itself takes tileSize as a
// plain parameter and never consults the environment.
func TileSizeOverride() (int, bool) {
	raw, ok := os.LookupEnv(envTileSizeOverride)
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}

	return n, true
}

// DebugTilingEnabled reports whether §6's debug flag is set, gating a
// log-only tiling analysis path. Any non-empty value enables it.
func DebugTilingEnabled() bool {
	return os.Getenv(envDebugTiling) != ""
}

// BuildTilingGrid returns a row-major grid of tiles covering bounds,
// each of edge tileSize pixels (boundary tiles are clipped to bounds'
// bottom-right corner), classified via query.ClassifyTile.
//
// The grid is aligned to bounds' top-left corner, not an absolute
// framebuffer origin, so the classifier stays entirely local to the
// current update region (§4.B design decision).
//
// If pb is nil, bounds is empty, or tileSize <= 0, the result is an empty
// grid (tilesX = tilesY = 0) and query is never called.
func BuildTilingGrid(
	bounds pixel.Rect, tileSize int, pb pixel.Buffer, query Query,
) (tiles []Info, tilesX, tilesY int) {
	if pb == nil || bounds.Empty() || tileSize <= 0 {
		return nil, 0, 0
	}

	width, height := int(bounds.Width()), int(bounds.Height())
	tilesX = ceilDiv(width, tileSize)
	tilesY = ceilDiv(height, tileSize)

	tiles = make([]Info, tilesX*tilesY)

	for ty := 0; ty < tilesY; ty++ {
		y1 := bounds.Y1 + int32(ty*tileSize)
		y2 := min32(y1+int32(tileSize), bounds.Y2)

		for tx := 0; tx < tilesX; tx++ {
			x1 := bounds.X1 + int32(tx*tileSize)
			x2 := min32(x1+int32(tileSize), bounds.X2)

			rect := pixel.NewRect(x1, y1, x2, y2)
			tiles[ty*tilesX+tx] = Info{
				Rect:  rect,
				State: query.ClassifyTile(rect, pb),
			}
		}
	}

	return tiles, tilesX, tilesY
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}

	return b
}
