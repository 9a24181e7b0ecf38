package keyval

import (
	"encoding/binary"
)

// Handle is the opaque object identifier addressing a dataspace object;
// keyval entries hang off a handle the way PVFS2's trove-keyval.h
// attaches arbitrary attributes to an object's handle. Kept as a plain
// uint64 per the data model (handles are opaque, not struct-typed), but
// encoded as a fixed 16-byte field on disk so the on-disk key record
// layout has room to grow (e.g. a future collection-local vs global
// handle split) without a format bump.
type Handle uint64

// Flags control how Put behaves.
type Flags uint8

const (
	// NoOverwrite fails Put with perr.Exists if the key already has a
	// value instead of overwriting it.
	NoOverwrite Flags = 1 << iota
	// Sync forces the write to be durable before Put returns.
	Sync
	// BinaryKey permits arbitrary key bytes instead of requiring
	// NUL-free keys (dbpf-keyval.h's default constraint).
	BinaryKey
)

// encodeKey builds the on-disk key: handle(16B) || type_byte(1B) ||
// len(key)(4B BE) || key. The fixed-width length field ahead of the key
// bytes makes plain byte-lexicographic order (what pebble/bbolt compare
// on) equal the required (handle, type-byte, length, bytes) order: two
// keys under the same handle/type first differ in the 4-byte length
// field if their lengths differ, and only compare bytes-for-bytes once
// lengths match.
func encodeKey(h Handle, typeByte byte, key []byte) []byte {
	buf := make([]byte, 16+1+4+len(key))
	binary.BigEndian.PutUint64(buf[8:16], uint64(h))
	buf[16] = typeByte
	binary.BigEndian.PutUint32(buf[17:21], uint32(len(key)))
	copy(buf[21:], key)
	return buf
}

// handlePrefix returns the encodeKey prefix shared by every entry under
// (h, typeByte), for range scans.
func handlePrefix(h Handle, typeByte byte) []byte {
	buf := make([]byte, 17)
	binary.BigEndian.PutUint64(buf[8:16], uint64(h))
	buf[16] = typeByte
	return buf
}

// decodeKey extracts the original key bytes from an encoded on-disk key.
func decodeKey(encoded []byte) (h Handle, typeByte byte, key []byte, ok bool) {
	if len(encoded) < 21 {
		return 0, 0, nil, false
	}
	h = Handle(binary.BigEndian.Uint64(encoded[8:16]))
	typeByte = encoded[16]
	n := binary.BigEndian.Uint32(encoded[17:21])
	if uint32(len(encoded)-21) != n {
		return 0, 0, nil, false
	}
	return h, typeByte, encoded[21:], true
}
