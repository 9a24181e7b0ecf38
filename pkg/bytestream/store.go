package bytestream

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"parafs/pkg/perr"
)

const bucketCount = 64

// Store owns one collection's bstreams/ directory, sharded into
// bucketCount hash buckets per spec.md §6 (grounded on dbpf-collection.c),
// plus the pluggable Backend used to service reads and writes.
type Store struct {
	root    string
	backend Backend
}

// Open creates the bucket subdirectories under root/bstreams if absent
// and binds backend for subsequent transfers.
func Open(root string, backend Backend) (*Store, error) {
	for i := 0; i < bucketCount; i++ {
		dir := filepath.Join(root, "bstreams", fmt.Sprintf("%02x", i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, perr.Wrap("bytestream", perr.IO, "create bucket dir", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "stranded-bstreams"), 0o755); err != nil {
		return nil, perr.Wrap("bytestream", perr.IO, "create stranded-bstreams dir", err)
	}
	return &Store{root: root, backend: backend}, nil
}

func bucketOf(handle uint64) int {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(handle >> (8 * i))
	}
	h.Write(buf[:])
	return int(h.Sum32() % bucketCount)
}

func (s *Store) pathFor(handle uint64) string {
	b := bucketOf(handle)
	return filepath.Join(s.root, "bstreams", fmt.Sprintf("%02x", b), fmt.Sprintf("%016x.bstream", handle))
}

// Create creates an empty bytestream file for handle. Fails with
// perr.Exists if one already exists.
func (s *Store) Create(handle uint64) error {
	path := s.pathFor(handle)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return perr.New("bytestream", perr.Exists, "bytestream already exists")
		}
		return perr.Wrap("bytestream", perr.IO, "create bytestream file", err)
	}
	return f.Close()
}

// Submit opens handle's file and submits an SGList transfer through the
// bound backend, returning a token Poll/Cancel results can be matched
// against.
func (s *Store) Submit(handle uint64, kind OpKind, sg SGList) (int64, error) {
	flag := os.O_RDONLY
	if kind == OpWrite {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(s.pathFor(handle), flag, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, perr.New("bytestream", perr.NotFound, "bytestream not found")
		}
		return 0, perr.Wrap("bytestream", perr.IO, "open bytestream file", err)
	}
	token, err := s.backend.Submit(&Request{Kind: kind, File: f, SG: sg})
	if err != nil {
		f.Close()
		return 0, err
	}
	return token, nil
}

// Poll drains completions from the bound backend.
func (s *Store) Poll() []Completion { return s.backend.Poll() }

// Cancel requests early termination of an in-flight transfer.
func (s *Store) Cancel(token int64) error { return s.backend.Cancel(token) }

// Suspend waits for the backend to quiesce (used before migration/shutdown).
func (s *Store) Suspend() error { return s.backend.Suspend() }

// Remove deletes handle's underlying file. Used by
// storageops.Client.RemoveObject when an object is removed, before its
// handle enters purgatory.
func (s *Store) Remove(handle uint64) error {
	if err := os.Remove(s.pathFor(handle)); err != nil {
		if os.IsNotExist(err) {
			return perr.New("bytestream", perr.NotFound, "bytestream not found")
		}
		return perr.Wrap("bytestream", perr.IO, "remove bytestream file", err)
	}
	return nil
}

// Strand moves handle's file into stranded-bstreams/ instead of deleting
// it outright — used when a dataspace removal races with an in-flight
// transfer and the file cannot yet be safely unlinked, mirroring the
// on-disk layout's stranded-bstreams/ directory.
func (s *Store) Strand(handle uint64) error {
	src := s.pathFor(handle)
	dst := filepath.Join(s.root, "stranded-bstreams", fmt.Sprintf("%016x.bstream", handle))
	if err := os.Rename(src, dst); err != nil {
		return perr.Wrap("bytestream", perr.IO, "strand bytestream file", err)
	}
	return nil
}

// Close releases the backend's resources.
func (s *Store) Close() error { return s.backend.Close() }

// StrandedDir returns the directory holding files moved aside by Strand,
// for the retention sweeper to reap once they age out.
func (s *Store) StrandedDir() string { return filepath.Join(s.root, "stranded-bstreams") }
