// Package coordproto implements the length-prefixed, typed message protocol
// the cache coordinator speaks between a master and its slaves over a local
// Unix domain socket.
//
// Byte order is big-endian throughout, fixed here as part of
// [ProtocolVersion] 1. Every multi-byte integer on the wire, in every
// message defined by this package, uses [binary.BigEndian].
package coordproto

import "encoding/binary"

// ProtocolVersion is the coordinator wire protocol version this package
// implements. Carried in HELLO and WELCOME so mismatched builds can refuse
// to talk to each other rather than misparse.
const ProtocolVersion = 1

// wireIndexEntrySize is the fixed, on-wire size of a [WireIndexEntry] in
// bytes: CacheID(8) + ShardID(4) + Offset(8) + Length(4) + Width(4) +
// Height(4) + Encoding(4) + pad(4).
const wireIndexEntrySize = 40

// Field offsets within an encoded WireIndexEntry, named per the teacher's
// slotcache format.go convention rather than left as bare arithmetic.
const (
	offEntryCacheID = 0x00 // uint64
	offEntryShardID = 0x08 // uint32
	offEntryOffset  = 0x0C // uint64
	offEntryLength  = 0x14 // uint32
	offEntryWidth   = 0x18 // uint32
	offEntryHeight  = 0x1C // uint32
	offEntryEncode  = 0x20 // int32
	offEntryPad     = 0x24 // uint32, reserved
)

// WireIndexEntry describes one persistent cache entry: where its payload
// lives (shard id + byte offset + length), the pixel geometry it covers,
// and the inner encoding discriminator it was stored under. Comparable by
// CacheID.
type WireIndexEntry struct {
	CacheID  uint64
	ShardID  uint32
	Offset   uint64
	Length   uint32
	Width    uint32
	Height   uint32
	Encoding int32
}

// Size returns the fixed on-wire size of a WireIndexEntry, in bytes.
func (WireIndexEntry) Size() int { return wireIndexEntrySize }

// Encode appends e's wire representation to buf and returns the result.
func (e WireIndexEntry) Encode(buf []byte) []byte {
	var tmp [wireIndexEntrySize]byte

	binary.BigEndian.PutUint64(tmp[offEntryCacheID:], e.CacheID)
	binary.BigEndian.PutUint32(tmp[offEntryShardID:], e.ShardID)
	binary.BigEndian.PutUint64(tmp[offEntryOffset:], e.Offset)
	binary.BigEndian.PutUint32(tmp[offEntryLength:], e.Length)
	binary.BigEndian.PutUint32(tmp[offEntryWidth:], e.Width)
	binary.BigEndian.PutUint32(tmp[offEntryHeight:], e.Height)
	binary.BigEndian.PutUint32(tmp[offEntryEncode:], uint32(e.Encoding))
	// offEntryPad left zero.

	return append(buf, tmp[:]...)
}

// DecodeWireIndexEntry reads one WireIndexEntry from the front of buf,
// returning it along with the number of bytes consumed. buf must be at
// least [WireIndexEntry.Size] bytes long.
func DecodeWireIndexEntry(buf []byte) (WireIndexEntry, int, error) {
	if len(buf) < wireIndexEntrySize {
		return WireIndexEntry{}, 0, ErrShortBuffer
	}

	e := WireIndexEntry{
		CacheID:  binary.BigEndian.Uint64(buf[offEntryCacheID:]),
		ShardID:  binary.BigEndian.Uint32(buf[offEntryShardID:]),
		Offset:   binary.BigEndian.Uint64(buf[offEntryOffset:]),
		Length:   binary.BigEndian.Uint32(buf[offEntryLength:]),
		Width:    binary.BigEndian.Uint32(buf[offEntryWidth:]),
		Height:   binary.BigEndian.Uint32(buf[offEntryHeight:]),
		Encoding: int32(binary.BigEndian.Uint32(buf[offEntryEncode:])),
	}

	return e, wireIndexEntrySize, nil
}

// encodeEntries appends the wire representation of every entry to buf.
func encodeEntries(buf []byte, entries []WireIndexEntry) []byte {
	for _, e := range entries {
		buf = e.Encode(buf)
	}

	return buf
}

// decodeEntries reads count WireIndexEntry records from the front of buf.
// count comes straight off the wire, so it's bounded against buf before
// being used as an allocation size: a hostile or corrupt count near 2^32
// must not force a multi-gigabyte allocation.
func decodeEntries(buf []byte, count uint32) ([]WireIndexEntry, int, error) {
	if count > uint32(len(buf)/wireIndexEntrySize) {
		return nil, 0, ErrShortBuffer
	}

	entries := make([]WireIndexEntry, 0, count)
	total := 0

	for i := uint32(0); i < count; i++ {
		e, n, err := DecodeWireIndexEntry(buf[total:])
		if err != nil {
			return nil, 0, err
		}

		entries = append(entries, e)
		total += n
	}

	return entries, total, nil
}
