// Package dataspace implements the Dataspace component: handle-addressed
// objects with an atomically-updated attribute record, typed as
// directory, metafile, datafile, dirdata, symlink or internal. Grounded
// on the original source's dbpf-dspace.h/dbpf-dspace-db-cache.c for the
// attribute-record shape; backed by go.etcd.io/bbolt (adopted from
// cuemby-warren's go.mod), one bucket per collection, since bbolt's
// single-writer transactions give exactly the atomic-read-modify-write
// semantics an attribute record update needs without keyval's
// multi-type key-sharing complexity.
package dataspace

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"go.etcd.io/bbolt"

	"parafs/pkg/perr"
)

// Handle is the opaque object identifier, shared in spirit (though not
// package-coupled) with keyval.Handle: both address the same underlying
// object, in two physically separate on-disk tables per spec.md §6.
type Handle uint64

// Type classifies what kind of filesystem object a handle names.
type Type uint8

const (
	TypeDirectory Type = iota + 1
	TypeMetafile
	TypeDatafile
	TypeDirdata
	TypeSymlink
	TypeInternal
)

// Attributes is the atomic record stored per handle. UID/GID/Mode follow
// POSIX-ish conventions the way dbpf-dspace.h's attribute struct does;
// DFileCount/DistName are metafile-specific and zero for other types.
type Attributes struct {
	Type       Type
	UID        uint32
	GID        uint32
	Mode       uint32
	CTime      time.Time
	MTime      time.Time
	Size       int64
	DFileCount uint32
	DistName   string
}

var bucketName = []byte("dataspace_attributes")

// Store is a single collection's dataspace attribute table.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt database at path and ensures
// its attribute bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, perr.Wrap("dataspace", perr.IO, "open bbolt db", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, perr.Wrap("dataspace", perr.IO, "create attribute bucket", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return perr.Wrap("dataspace", perr.IO, "close bbolt db", err)
	}
	return nil
}

func handleKey(h Handle) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(h))
	return buf
}

// Create inserts a new object with the given attributes under h. Fails
// with perr.Exists if h is already in use.
func (s *Store) Create(h Handle, attrs Attributes) error {
	if attrs.CTime.IsZero() {
		attrs.CTime = timeNow()
	}
	attrs.MTime = attrs.CTime
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		k := handleKey(h)
		if b.Get(k) != nil {
			return perr.New("dataspace", perr.Exists, "handle already in use")
		}
		enc, err := encodeAttrs(attrs)
		if err != nil {
			return perr.Wrap("dataspace", perr.Internal, "encode attrs", err)
		}
		return b.Put(k, enc)
	})
}

// GetAttr reads the current attribute record for h.
func (s *Store) GetAttr(h Handle) (Attributes, error) {
	var out Attributes
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get(handleKey(h))
		if v == nil {
			return perr.New("dataspace", perr.NotFound, "handle not found")
		}
		attrs, err := decodeAttrs(v)
		if err != nil {
			return perr.Wrap("dataspace", perr.Internal, "decode attrs", err)
		}
		out = attrs
		return nil
	})
	return out, err
}

// SetAttr performs an atomic read-modify-write of h's attribute record:
// mutate is called with the current attributes and must return the new
// ones. The whole operation is one bbolt transaction.
func (s *Store) SetAttr(h Handle, mutate func(Attributes) Attributes) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		k := handleKey(h)
		v := b.Get(k)
		if v == nil {
			return perr.New("dataspace", perr.NotFound, "handle not found")
		}
		cur, err := decodeAttrs(v)
		if err != nil {
			return perr.Wrap("dataspace", perr.Internal, "decode attrs", err)
		}
		next := mutate(cur)
		next.MTime = timeNow()
		enc, err := encodeAttrs(next)
		if err != nil {
			return perr.Wrap("dataspace", perr.Internal, "encode attrs", err)
		}
		return b.Put(k, enc)
	})
}

// Remove deletes h's attribute record. Does not touch any bytestream or
// keyval data hanging off h; callers (pkg/collection) are responsible for
// tearing those down first or moving h into purgatory.
func (s *Store) Remove(h Handle) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		k := handleKey(h)
		if b.Get(k) == nil {
			return perr.New("dataspace", perr.NotFound, "handle not found")
		}
		return b.Delete(k)
	})
}

// Iterate calls fn for every (handle, attrs) pair in ascending handle
// order, stopping early if fn returns false.
func (s *Store) Iterate(fn func(Handle, Attributes) bool) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			attrs, err := decodeAttrs(v)
			if err != nil {
				return perr.Wrap("dataspace", perr.Internal, "decode attrs", err)
			}
			h := Handle(binary.BigEndian.Uint64(k))
			if !fn(h, attrs) {
				break
			}
		}
		return nil
	})
}

func encodeAttrs(a Attributes) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAttrs(b []byte) (Attributes, error) {
	var a Attributes
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&a); err != nil {
		return a, err
	}
	return a, nil
}

// timeNow is a seam so tests can pin timestamps if needed; production
// code always calls time.Now.
var timeNow = time.Now
