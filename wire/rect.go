// Package wire frames the four cache-aware rectangle variants (session and
// persistent, reference and init) onto an RFB rectangle stream, and
// provides a generic batching helper for messages that aggregate entries.
//
// Every cache-aware rectangle begins with the standard 12-byte RFB
// rectangle header (x, y, width, height, encoding-code), followed by a
// variant-specific body. All multi-byte integers are big-endian, matching
// RFB's own network-byte-order convention.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/vncbridge/rfbcache/pixel"
)

// Pseudo-encoding codes for the four cache rectangle variants.
//
// RFB reserves negative and very-large encoding numbers for pseudo-encodings
// that never carry ordinary pixel data (compare Tight=7, ZRLE=16); these
// four are implementation-assigned, chosen here and fixed for this wire
// format.
const (
	EncodingSessionCacheRef     int32 = -24601
	EncodingSessionCacheInit    int32 = -24602
	EncodingPersistentCacheRef  int32 = -24603
	EncodingPersistentCacheInit int32 = -24604
)

// rectHeaderSize is the fixed size of the RFB rectangle header shared by
// every encoding: x(2) + y(2) + width(2) + height(2) + encoding-type(4).
const rectHeaderSize = 12

// RectHeader is the standard RFB rectangle header every encoded rectangle
// (cache-aware or not) begins with.
type RectHeader struct {
	X, Y          uint16
	Width, Height uint16
	EncodingType  int32
}

// Encode appends h's wire representation to buf and returns the result.
func (h RectHeader) Encode(buf []byte) []byte {
	var tmp [rectHeaderSize]byte

	binary.BigEndian.PutUint16(tmp[0:], h.X)
	binary.BigEndian.PutUint16(tmp[2:], h.Y)
	binary.BigEndian.PutUint16(tmp[4:], h.Width)
	binary.BigEndian.PutUint16(tmp[6:], h.Height)
	binary.BigEndian.PutUint32(tmp[8:], uint32(h.EncodingType))

	return append(buf, tmp[:]...)
}

// DecodeRectHeader reads a RectHeader from the front of buf.
func DecodeRectHeader(buf []byte) (RectHeader, int, error) {
	if len(buf) < rectHeaderSize {
		return RectHeader{}, 0, fmt.Errorf("wire: short rect header (%d bytes)", len(buf))
	}

	h := RectHeader{
		X:            binary.BigEndian.Uint16(buf[0:]),
		Y:            binary.BigEndian.Uint16(buf[2:]),
		Width:        binary.BigEndian.Uint16(buf[4:]),
		Height:       binary.BigEndian.Uint16(buf[6:]),
		EncodingType: int32(binary.BigEndian.Uint32(buf[8:])),
	}

	return h, rectHeaderSize, nil
}

// RectHeaderFor builds a RectHeader from a pixel rectangle and encoding
// type. Callers are responsible for ensuring rect fits in uint16 bounds
// (RFB's wire rectangles are always screen-sized).
func RectHeaderFor(rect pixel.Rect, encodingType int32) RectHeader {
	return RectHeader{
		X:            uint16(rect.X1),
		Y:            uint16(rect.Y1),
		Width:        uint16(rect.Width()),
		Height:       uint16(rect.Height()),
		EncodingType: encodingType,
	}
}

// Encoding is the capability every cache-aware rectangle body implements:
// a stable wire type code and a way to marshal the body that follows the
// RectHeader. Modelled on the Encoding/Marshaler split used by RFB client
// libraries in the wild.
type Encoding interface {
	// Type returns the RFB encoding-type code this body is carried under.
	Type() int32
	// Marshal returns the body bytes that follow the RectHeader.
	Marshal() ([]byte, error)
}

const refBodySize = 8

// SessionRef is a session-cache reference: 8 bytes, a CacheID, nothing
// else. 20 bytes total on the wire once the RectHeader is included.
type SessionRef struct {
	CacheID pixel.CacheID
}

func (SessionRef) Type() int32 { return EncodingSessionCacheRef }

func (r SessionRef) Marshal() ([]byte, error) {
	return encodeCacheID(r.CacheID), nil
}

// DecodeSessionRef parses a session-cache reference body.
func DecodeSessionRef(buf []byte) (SessionRef, error) {
	id, err := decodeCacheID(buf)
	if err != nil {
		return SessionRef{}, err
	}

	return SessionRef{CacheID: id}, nil
}

// PersistentRef is a persistent-cache reference. Identical wire shape to
// [SessionRef]; the persistent and session protocols share the 64-bit id
// space on the wire despite differing server-side semantics.
type PersistentRef struct {
	CacheID pixel.CacheID
}

func (PersistentRef) Type() int32 { return EncodingPersistentCacheRef }

func (r PersistentRef) Marshal() ([]byte, error) {
	return encodeCacheID(r.CacheID), nil
}

// DecodePersistentRef parses a persistent-cache reference body.
func DecodePersistentRef(buf []byte) (PersistentRef, error) {
	id, err := decodeCacheID(buf)
	if err != nil {
		return PersistentRef{}, err
	}

	return PersistentRef{CacheID: id}, nil
}

// SessionInit is a session-cache init: 8-byte CacheID + 4-byte inner
// encoding discriminator + the encoded payload produced by that inner
// encoder. 24+len(Payload) bytes total on the wire once the RectHeader is
// included.
type SessionInit struct {
	CacheID       pixel.CacheID
	InnerEncoding int32
	Payload       []byte
}

func (SessionInit) Type() int32 { return EncodingSessionCacheInit }

func (i SessionInit) Marshal() ([]byte, error) {
	return encodeCacheInit(i.CacheID, i.InnerEncoding, i.Payload), nil
}

// DecodeSessionInit parses a session-cache init body.
func DecodeSessionInit(buf []byte) (SessionInit, error) {
	id, inner, payload, err := decodeCacheInit(buf)
	if err != nil {
		return SessionInit{}, err
	}

	return SessionInit{CacheID: id, InnerEncoding: inner, Payload: payload}, nil
}

// PersistentInit is a persistent-cache init. Identical wire shape to
// [SessionInit].
type PersistentInit struct {
	CacheID       pixel.CacheID
	InnerEncoding int32
	Payload       []byte
}

func (PersistentInit) Type() int32 { return EncodingPersistentCacheInit }

func (i PersistentInit) Marshal() ([]byte, error) {
	return encodeCacheInit(i.CacheID, i.InnerEncoding, i.Payload), nil
}

// DecodePersistentInit parses a persistent-cache init body.
func DecodePersistentInit(buf []byte) (PersistentInit, error) {
	id, inner, payload, err := decodeCacheInit(buf)
	if err != nil {
		return PersistentInit{}, err
	}

	return PersistentInit{CacheID: id, InnerEncoding: inner, Payload: payload}, nil
}

func encodeCacheID(id pixel.CacheID) []byte {
	buf := make([]byte, refBodySize)
	binary.BigEndian.PutUint64(buf, uint64(id))

	return buf
}

func decodeCacheID(buf []byte) (pixel.CacheID, error) {
	if len(buf) != refBodySize {
		return 0, fmt.Errorf("wire: reference body is %d bytes, want %d", len(buf), refBodySize)
	}

	return pixel.CacheID(binary.BigEndian.Uint64(buf)), nil
}

func encodeCacheInit(id pixel.CacheID, innerEncoding int32, payload []byte) []byte {
	buf := make([]byte, 12, 12+len(payload))
	binary.BigEndian.PutUint64(buf[0:], uint64(id))
	binary.BigEndian.PutUint32(buf[8:], uint32(innerEncoding))

	return append(buf, payload...)
}

func decodeCacheInit(buf []byte) (id pixel.CacheID, innerEncoding int32, payload []byte, err error) {
	if len(buf) < 12 {
		return 0, 0, nil, fmt.Errorf("wire: init body is %d bytes, want at least 12", len(buf))
	}

	id = pixel.CacheID(binary.BigEndian.Uint64(buf[0:]))
	innerEncoding = int32(binary.BigEndian.Uint32(buf[8:]))
	payload = append([]byte(nil), buf[12:]...)

	return id, innerEncoding, payload, nil
}

// BatchEntries splits items into chunks of at most size elements each
// (default 100 when size <= 0), preserving order. Used by callers
// aggregating entries into messages (e.g. INDEX_UPDATE broadcasts) that
// want conservative batch sizes rather than one unbounded message.
func BatchEntries[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 100
	}

	if len(items) == 0 {
		return nil
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}

	return batches
}
