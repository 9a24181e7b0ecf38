package collection

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"parafs/pkg/bytestream"
	"parafs/pkg/dataspace"
	"parafs/pkg/keyval"
	"parafs/pkg/perr"
)

// Collection bundles one named collection's on-disk tables and
// bookkeeping: dataspace attributes (bbolt), keyval entries (pebble),
// bytestream files (sharded directory), and a handle ledger. This is the
// per-collection subtree described in spec.md §6's on-disk layout.
type Collection struct {
	Name      string
	Dataspace *dataspace.Store
	Keyval    *keyval.Store
	Bytestream *bytestream.Store
	Ledger    *HandleLedger

	refs int32
}

// Config controls how a Collection is opened.
type Config struct {
	HandleSpaceStart uint64
	HandleSpaceEnd   uint64
	PurgatoryBucket  time.Duration
	AsyncBackend     bytestream.Backend
}

// openCollection creates the per-collection subtree under root/name if
// absent and opens its three backing stores.
func openCollection(root, name string, cfg Config) (*Collection, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrap("collection", perr.IO, "create collection dir", err)
	}

	ds, err := dataspace.Open(filepath.Join(dir, "collection_attributes"))
	if err != nil {
		return nil, err
	}
	kv, err := keyval.Open(filepath.Join(dir, "keyval"))
	if err != nil {
		ds.Close()
		return nil, err
	}
	bs, err := bytestream.Open(dir, cfg.AsyncBackend)
	if err != nil {
		ds.Close()
		kv.Close()
		return nil, err
	}

	ledger := NewHandleLedger(cfg.HandleSpaceStart, cfg.HandleSpaceEnd, cfg.PurgatoryBucket)

	return &Collection{
		Name:       name,
		Dataspace:  ds,
		Keyval:     kv,
		Bytestream: bs,
		Ledger:     ledger,
		refs:       1,
	}, nil
}

func (c *Collection) close() error {
	var firstErr error
	if err := c.Dataspace.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Keyval.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Bytestream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Registry is the process-wide table of open collections, refcounted so
// multiple callers (e.g. several op-manager workers) can share one
// Collection's open file handles.
type Registry struct {
	mu          sync.Mutex
	root        string
	open        map[string]*Collection
	defaultCfg  Config
}

// NewRegistry creates a Registry rooted at root, using defaultCfg for
// any collection opened without an explicit Config.
func NewRegistry(root string, defaultCfg Config) *Registry {
	return &Registry{root: root, open: make(map[string]*Collection), defaultCfg: defaultCfg}
}

// Open returns the named collection, opening it from disk and setting
// its refcount to 1 if this is the first caller, or incrementing the
// refcount if already open.
func (r *Registry) Open(name string) (*Collection, error) {
	return r.OpenWithConfig(name, r.defaultCfg)
}

// OpenWithConfig is like Open but lets the first caller to open a
// collection choose its handle-space/backend configuration.
func (r *Registry) OpenWithConfig(name string, cfg Config) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.open[name]; ok {
		c.refs++
		return c, nil
	}
	c, err := openCollection(r.root, name, cfg)
	if err != nil {
		return nil, err
	}
	r.open[name] = c
	return c, nil
}

// Release decrements name's refcount, closing and evicting it from the
// registry once the last reference is released.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.open[name]
	if !ok {
		return perr.New("collection", perr.NotFound, "collection not open")
	}
	c.refs--
	if c.refs > 0 {
		return nil
	}
	delete(r.open, name)
	return c.close()
}

// Destroy permanently removes a collection's on-disk subtree. Fails with
// perr.Busy if the collection is still open with outstanding references.
func (r *Registry) Destroy(name string) error {
	r.mu.Lock()
	if _, open := r.open[name]; open {
		r.mu.Unlock()
		return perr.New("collection", perr.Busy, "collection still open")
	}
	r.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(r.root, name)); err != nil {
		return perr.Wrap("collection", perr.IO, "remove collection dir", err)
	}
	return nil
}

// RefCount reports name's current open refcount, 0 if not open.
func (r *Registry) RefCount(name string) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.open[name]; ok {
		return c.refs
	}
	return 0
}

// WithEach runs fn against every currently open collection, holding the
// registry lock only long enough to snapshot the name list.
func (r *Registry) WithEach(fn func(name string, c *Collection)) {
	r.mu.Lock()
	snapshot := make(map[string]*Collection, len(r.open))
	for name, c := range r.open {
		snapshot[name] = c
	}
	r.mu.Unlock()
	for name, c := range snapshot {
		fn(name, c)
	}
}
