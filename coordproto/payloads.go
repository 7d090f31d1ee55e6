package coordproto

import (
	"encoding/binary"
	"fmt"
)

// HelloPayload is HELLO's payload: a slave announcing itself to the master.
type HelloPayload struct {
	ProtocolVersion uint32
	SlavePID        uint32
}

// Encode returns p's wire representation.
func (p HelloPayload) Encode() []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:], p.ProtocolVersion)
	binary.BigEndian.PutUint32(buf[4:], p.SlavePID)
	// bytes [8:12] are reserved, left zero.

	return buf
}

// DecodeHelloPayload parses a HELLO payload.
func DecodeHelloPayload(buf []byte) (HelloPayload, error) {
	if len(buf) < 12 {
		return HelloPayload{}, ErrShortBuffer
	}

	return HelloPayload{
		ProtocolVersion: binary.BigEndian.Uint32(buf[0:]),
		SlavePID:        binary.BigEndian.Uint32(buf[4:]),
	}, nil
}

// WelcomePayload is WELCOME's payload: the master handing a newly
// connected slave a snapshot of the persistent index.
type WelcomePayload struct {
	ProtocolVersion uint32
	MasterPID       uint32
	ShardID         uint32
	Entries         []WireIndexEntry
}

// Encode returns p's wire representation.
func (p WelcomePayload) Encode() []byte {
	buf := make([]byte, 0, 16+len(p.Entries)*wireIndexEntrySize)

	var head [16]byte
	binary.BigEndian.PutUint32(head[0:], p.ProtocolVersion)
	binary.BigEndian.PutUint32(head[4:], p.MasterPID)
	binary.BigEndian.PutUint32(head[8:], uint32(len(p.Entries)))
	binary.BigEndian.PutUint32(head[12:], p.ShardID)
	buf = append(buf, head[:]...)

	return encodeEntries(buf, p.Entries)
}

// DecodeWelcomePayload parses a WELCOME payload.
func DecodeWelcomePayload(buf []byte) (WelcomePayload, error) {
	if len(buf) < 16 {
		return WelcomePayload{}, ErrShortBuffer
	}

	p := WelcomePayload{
		ProtocolVersion: binary.BigEndian.Uint32(buf[0:]),
		MasterPID:       binary.BigEndian.Uint32(buf[4:]),
		ShardID:         binary.BigEndian.Uint32(buf[12:]),
	}

	count := binary.BigEndian.Uint32(buf[8:])

	entries, n, err := decodeEntries(buf[16:], count)
	if err != nil {
		return WelcomePayload{}, err
	}
	if 16+n != len(buf) {
		return WelcomePayload{}, fmt.Errorf("coordproto: WELCOME payload has %d trailing bytes", len(buf)-16-n)
	}

	p.Entries = entries

	return p, nil
}

// WriteReqPayload is WRITE_REQ's payload: a slave asking the master to
// persist one cache entry. Entry's ShardID and Offset are meaningless
// (conventionally zero) until the master fills them in on success.
type WriteReqPayload struct {
	Entry   WireIndexEntry
	Payload []byte
}

// Encode returns p's wire representation.
func (p WriteReqPayload) Encode() []byte {
	buf := p.Entry.Encode(make([]byte, 0, wireIndexEntrySize+4+len(p.Payload)))

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(p.Payload)))
	buf = append(buf, length[:]...)
	buf = append(buf, p.Payload...)

	return buf
}

// DecodeWriteReqPayload parses a WRITE_REQ payload.
func DecodeWriteReqPayload(buf []byte) (WriteReqPayload, error) {
	entry, n, err := DecodeWireIndexEntry(buf)
	if err != nil {
		return WriteReqPayload{}, err
	}

	rest := buf[n:]
	if len(rest) < 4 {
		return WriteReqPayload{}, ErrShortBuffer
	}

	payloadLen := binary.BigEndian.Uint32(rest[0:])
	rest = rest[4:]

	if uint32(len(rest)) != payloadLen {
		return WriteReqPayload{}, fmt.Errorf("coordproto: WRITE_REQ declares %d payload bytes, has %d", payloadLen, len(rest))
	}

	return WriteReqPayload{Entry: entry, Payload: append([]byte(nil), rest...)}, nil
}

// WriteAckPayload is WRITE_ACK's payload: the completed entry (shard and
// offset now filled in) plus a correlation id matching it to the request.
type WriteAckPayload struct {
	Entry         WireIndexEntry
	CorrelationID uint32
}

// Encode returns p's wire representation.
func (p WriteAckPayload) Encode() []byte {
	buf := p.Entry.Encode(make([]byte, 0, wireIndexEntrySize+4))

	var corr [4]byte
	binary.BigEndian.PutUint32(corr[:], p.CorrelationID)

	return append(buf, corr[:]...)
}

// DecodeWriteAckPayload parses a WRITE_ACK payload.
func DecodeWriteAckPayload(buf []byte) (WriteAckPayload, error) {
	entry, n, err := DecodeWireIndexEntry(buf)
	if err != nil {
		return WriteAckPayload{}, err
	}

	rest := buf[n:]
	if len(rest) < 4 {
		return WriteAckPayload{}, ErrShortBuffer
	}

	return WriteAckPayload{
		Entry:         entry,
		CorrelationID: binary.BigEndian.Uint32(rest[0:]),
	}, nil
}

// IndexUpdatePayload is INDEX_UPDATE's payload: a broadcast of newly
// persisted entries plus a sequence number (reserved for future
// monotonicity checks per §4.G; not currently enforced by either side).
type IndexUpdatePayload struct {
	SequenceNum uint32
	Entries     []WireIndexEntry
}

// Encode returns p's wire representation.
func (p IndexUpdatePayload) Encode() []byte {
	var head [8]byte
	binary.BigEndian.PutUint32(head[0:], uint32(len(p.Entries)))
	binary.BigEndian.PutUint32(head[4:], p.SequenceNum)

	buf := append([]byte(nil), head[:]...)

	return encodeEntries(buf, p.Entries)
}

// DecodeIndexUpdatePayload parses an INDEX_UPDATE payload.
func DecodeIndexUpdatePayload(buf []byte) (IndexUpdatePayload, error) {
	if len(buf) < 8 {
		return IndexUpdatePayload{}, ErrShortBuffer
	}

	count := binary.BigEndian.Uint32(buf[0:])
	seq := binary.BigEndian.Uint32(buf[4:])

	entries, n, err := decodeEntries(buf[8:], count)
	if err != nil {
		return IndexUpdatePayload{}, err
	}
	if 8+n != len(buf) {
		return IndexUpdatePayload{}, fmt.Errorf("coordproto: INDEX_UPDATE payload has %d trailing bytes", len(buf)-8-n)
	}

	return IndexUpdatePayload{SequenceNum: seq, Entries: entries}, nil
}

// QueryIndexPayload is QUERY_INDEX's payload: an optional probe asking the
// master whether an entry already exists for a given content hash and
// geometry.
type QueryIndexPayload struct {
	Hash   [16]byte
	Width  uint32
	Height uint32
}

// Encode returns p's wire representation.
func (p QueryIndexPayload) Encode() []byte {
	buf := make([]byte, 24)
	copy(buf[0:16], p.Hash[:])
	binary.BigEndian.PutUint32(buf[16:], p.Width)
	binary.BigEndian.PutUint32(buf[20:], p.Height)

	return buf
}

// DecodeQueryIndexPayload parses a QUERY_INDEX payload.
func DecodeQueryIndexPayload(buf []byte) (QueryIndexPayload, error) {
	if len(buf) < 24 {
		return QueryIndexPayload{}, ErrShortBuffer
	}

	var p QueryIndexPayload
	copy(p.Hash[:], buf[0:16])
	p.Width = binary.BigEndian.Uint32(buf[16:])
	p.Height = binary.BigEndian.Uint32(buf[20:])

	return p, nil
}

// QueryRespPayload is QUERY_RESP's payload: whether a matching entry was
// found, and the entry itself if so.
type QueryRespPayload struct {
	Found bool
	Entry WireIndexEntry
}

// Encode returns p's wire representation.
func (p QueryRespPayload) Encode() []byte {
	buf := make([]byte, 0, 1+wireIndexEntrySize)

	if p.Found {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	return p.Entry.Encode(buf)
}

// DecodeQueryRespPayload parses a QUERY_RESP payload.
func DecodeQueryRespPayload(buf []byte) (QueryRespPayload, error) {
	if len(buf) < 1 {
		return QueryRespPayload{}, ErrShortBuffer
	}

	found := buf[0] != 0

	if !found {
		return QueryRespPayload{Found: false}, nil
	}

	entry, _, err := DecodeWireIndexEntry(buf[1:])
	if err != nil {
		return QueryRespPayload{}, err
	}

	return QueryRespPayload{Found: true, Entry: entry}, nil
}
