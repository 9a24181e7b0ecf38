// Package keyval implements the Keyval component: a (handle, type-byte,
// key-blob) -> value store with total order (handle, type-byte, length,
// bytes), NOOVERWRITE/SYNC/BINARY_KEY flags, atomic list-write, and
// position-cache cursors for resumable iteration. Grounded on the
// original source's dbpf-keyval.h/dbpf-keyval-db-cache.c for semantics;
// backed by the teacher's storage engine, github.com/cockroachdb/pebble,
// whose LSM byte-lexicographic iteration order is the natural fit for
// the required ordering once keys are encoded per key.go.
package keyval

import (
	"github.com/cockroachdb/pebble"

	"parafs/pkg/perr"
)

// Store is a single collection's keyval table, one pebble database per
// collection per spec.md §6's on-disk layout.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) the pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, perr.Wrap("keyval", perr.IO, "open pebble db", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return perr.Wrap("keyval", perr.IO, "close pebble db", err)
	}
	return nil
}

// Put stores value under (h, typeByte, key). With NoOverwrite set, an
// existing value causes perr.Exists instead of a silent overwrite. With
// Sync set, the write is fsync'd before Put returns.
func (s *Store) Put(h Handle, typeByte byte, key, value []byte, flags Flags) error {
	if !BinaryKeyAllowed(key, flags) {
		return perr.New("keyval", perr.InvalidArg, "key contains NUL byte without BinaryKey flag")
	}
	ek := encodeKey(h, typeByte, key)
	if flags&NoOverwrite != 0 {
		_, closer, err := s.db.Get(ek)
		if err == nil {
			closer.Close()
			return perr.New("keyval", perr.Exists, "key already present")
		}
		if err != pebble.ErrNotFound {
			return perr.Wrap("keyval", perr.IO, "get for NoOverwrite check", err)
		}
	}
	opts := pebble.NoSync
	if flags&Sync != 0 {
		opts = pebble.Sync
	}
	if err := s.db.Set(ek, value, opts); err != nil {
		return perr.Wrap("keyval", perr.IO, "set", err)
	}
	return nil
}

// Get reads the value stored under (h, typeByte, key).
func (s *Store) Get(h Handle, typeByte byte, key []byte) ([]byte, error) {
	ek := encodeKey(h, typeByte, key)
	v, closer, err := s.db.Get(ek)
	if err == pebble.ErrNotFound {
		return nil, perr.New("keyval", perr.NotFound, "key not found")
	}
	if err != nil {
		return nil, perr.Wrap("keyval", perr.IO, "get", err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	closer.Close()
	return out, nil
}

// Delete removes the value stored under (h, typeByte, key).
func (s *Store) Delete(h Handle, typeByte byte, key []byte, flags Flags) error {
	ek := encodeKey(h, typeByte, key)
	opts := pebble.NoSync
	if flags&Sync != 0 {
		opts = pebble.Sync
	}
	if err := s.db.Delete(ek, opts); err != nil {
		return perr.Wrap("keyval", perr.IO, "delete", err)
	}
	return nil
}

// Entry is one (key, value) pair returned by iteration.
type Entry struct {
	Key   []byte
	Value []byte
}

// Cursor is a resumable position within one (handle, type-byte)'s keys,
// the position-cache the original source keeps so a paused readdir-style
// iteration can resume without rescanning from the start.
type Cursor struct {
	lastKey []byte
	done    bool
}

// List returns up to limit entries under (h, typeByte) starting after
// cur's position (or from the beginning if cur is the zero value),
// advancing cur in place.
func (s *Store) List(h Handle, typeByte byte, cur *Cursor, limit int) ([]Entry, error) {
	if cur.done {
		return nil, nil
	}
	prefix := handlePrefix(h, typeByte)
	iterOpts := &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	}
	it, err := s.db.NewIter(iterOpts)
	if err != nil {
		return nil, perr.Wrap("keyval", perr.IO, "new iter", err)
	}
	defer it.Close()

	var valid bool
	if cur.lastKey != nil {
		valid = it.SeekGE(cur.lastKey)
		if valid && string(it.Key()) == string(cur.lastKey) {
			valid = it.Next()
		}
	} else {
		valid = it.First()
	}

	var out []Entry
	for ; valid && (limit <= 0 || len(out) < limit); valid = it.Next() {
		_, _, key, ok := decodeKey(it.Key())
		if !ok {
			continue
		}
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		out = append(out, Entry{Key: append([]byte(nil), key...), Value: v})
		cur.lastKey = append([]byte(nil), it.Key()...)
	}
	if !valid {
		cur.done = true
	}
	return out, nil
}

// PutList atomically writes multiple entries under a single handle/type
// in one batch, the atomic-list-write semantic from dbpf-keyval.h: all
// entries become visible together or not at all.
func (s *Store) PutList(h Handle, typeByte byte, entries []Entry, flags Flags) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, e := range entries {
		if !BinaryKeyAllowed(e.Key, flags) {
			return perr.New("keyval", perr.InvalidArg, "key contains NUL byte without BinaryKey flag")
		}
		ek := encodeKey(h, typeByte, e.Key)
		if err := b.Set(ek, e.Value, nil); err != nil {
			return perr.Wrap("keyval", perr.IO, "batch set", err)
		}
	}
	opts := pebble.NoSync
	if flags&Sync != 0 {
		opts = pebble.Sync
	}
	if err := b.Commit(opts); err != nil {
		return perr.Wrap("keyval", perr.IO, "batch commit", err)
	}
	return nil
}

// All calls fn for every (handle, typeByte, key, value) quadruple in the
// store, in on-disk key order, stopping early if fn returns false. Used by
// format-version migration tooling that needs to copy an entire
// collection's keyval table rather than one handle/type at a time.
func (s *Store) All(fn func(h Handle, typeByte byte, key, value []byte) bool) error {
	it, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return perr.Wrap("keyval", perr.IO, "new iter", err)
	}
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		h, typeByte, key, ok := decodeKey(it.Key())
		if !ok {
			continue
		}
		if !fn(h, typeByte, key, it.Value()) {
			break
		}
	}
	return nil
}

// BinaryKeyAllowed reports whether key is acceptable given flags: keys
// containing a NUL byte require the BinaryKey flag.
func BinaryKeyAllowed(key []byte, flags Flags) bool {
	if flags&BinaryKey != 0 {
		return true
	}
	for _, b := range key {
		if b == 0 {
			return false
		}
	}
	return true
}

// prefixUpperBound returns the smallest key that is strictly greater
// than every key starting with prefix, for bounding a pebble iterator.
func prefixUpperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] != 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}
