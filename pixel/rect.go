// Package pixel holds the small, immutable value types cache components
// pass between each other: rectangles, pixel formats, and content hashes.
//
// Nothing in this package talks to the network, the filesystem, or the
// framebuffer; it exists so that tiling, wire framing, and the coordinator
// share one vocabulary for "what is this rectangle" and "what does its
// content hash to".
package pixel

import "encoding/binary"

// Rect is an axis-aligned rectangle in framebuffer coordinates.
//
// The top-left corner (X1, Y1) is inclusive; the bottom-right corner
// (X2, Y2) is exclusive. Identity is the tuple (X1, Y1, X2, Y2). A Rect is
// immutable once constructed — methods never mutate the receiver.
type Rect struct {
	X1, Y1, X2, Y2 int32
}

// NewRect constructs a Rect from inclusive top-left and exclusive
// bottom-right corners.
func NewRect(x1, y1, x2, y2 int32) Rect {
	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// RectFromSize constructs a Rect from a top-left corner and dimensions.
func RectFromSize(x, y, width, height int32) Rect {
	return Rect{X1: x, Y1: y, X2: x + width, Y2: y + height}
}

// Width returns X2-X1. Negative if the rectangle is degenerate.
func (r Rect) Width() int32 { return r.X2 - r.X1 }

// Height returns Y2-Y1. Negative if the rectangle is degenerate.
func (r Rect) Height() int32 { return r.Y2 - r.Y1 }

// Area returns Width*Height as an int64 to avoid overflow on large
// rectangles. Empty or degenerate rectangles have area zero.
func (r Rect) Area() int64 {
	if r.Empty() {
		return 0
	}

	return int64(r.Width()) * int64(r.Height())
}

// Empty reports whether the rectangle has zero or negative width or height.
func (r Rect) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// TopLeft returns (X1, Y1).
func (r Rect) TopLeft() (int32, int32) { return r.X1, r.Y1 }

// BottomRight returns (X2, Y2).
func (r Rect) BottomRight() (int32, int32) { return r.X2, r.Y2 }

// Contains reports whether other lies entirely within r.
func (r Rect) Contains(other Rect) bool {
	return other.X1 >= r.X1 && other.Y1 >= r.Y1 && other.X2 <= r.X2 && other.Y2 <= r.Y2
}

// Intersect returns the overlapping region of r and other. The result is
// empty (per [Rect.Empty]) if the rectangles do not overlap.
func (r Rect) Intersect(other Rect) Rect {
	x1, y1 := max(r.X1, other.X1), max(r.Y1, other.Y1)
	x2, y2 := min(r.X2, other.X2), min(r.Y2, other.Y2)

	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Translate returns r shifted by (dx, dy).
func (r Rect) Translate(dx, dy int32) Rect {
	return Rect{X1: r.X1 + dx, Y1: r.Y1 + dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

// Format describes a pixel's bits-per-pixel and channel layout.
//
// Format is used only to compute baseline byte estimates for the bandwidth
// accountant; it is never stored in a cache entry, and cache identity never
// depends on it.
type Format struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColor    bool
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
}

// BytesPerPixel returns BitsPerPixel/8, rounded down (RFB pixel formats are
// always a whole number of bytes per pixel: 8, 16, or 32 bits).
func (f Format) BytesPerPixel() int {
	return int(f.BitsPerPixel) / 8
}

// Hash is an opaque 16-byte digest of a rectangle's pixel content under a
// fixed canonicalisation. Collisions are assumed cryptographically
// negligible; same geometry plus same content always yields the same Hash.
//
// Hashing itself is out of scope for this package (§1 treats it as an
// external collaborator) — Hash is just the result type callers compare and
// truncate.
type Hash [16]byte

// IsZero reports whether h is the degenerate all-zero hash, which
// classifies as NotCacheable everywhere a Hash is consulted.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// CacheID is the compact wire identifier for a cache entry: the first 8
// bytes of its [Hash], big-endian.
type CacheID uint64

// CacheID truncates h to its wire-compact 64-bit identifier.
func (h Hash) CacheID() CacheID {
	return CacheID(binary.BigEndian.Uint64(h[:8]))
}

// Buffer is the minimal read-only view of pixel data a [Hasher] needs: the
// pixels backing a rectangular region of the framebuffer, in row-major
// order. Ownership stays with the caller — a Hasher must not retain the
// returned bytes past the call that provided them.
type Buffer interface {
	// Pixels returns the raw bytes for rect, row-major, using the buffer's
	// native pixel format and stride. Returns nil if rect lies outside the
	// buffer's bounds.
	Pixels(rect Rect) []byte
}

// Hasher computes the content hash of a rectangle's pixels. Production
// code plugs in a cryptographic implementation (out of scope, per §1);
// tests supply a deterministic fake.
type Hasher interface {
	Hash(rect Rect, pb Buffer) Hash
}
