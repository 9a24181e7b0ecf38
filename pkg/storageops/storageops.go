// Package storageops is the bridge between the storage engine
// (dataspace/bytestream/keyval, G-H-I) and the op-management core
// (opmgr/worker, D-E): it wraps each storage-touching request as an
// op.Op whose Service callout performs the actual collection call, posts
// it through a bound opmgr.Manager, and blocks the caller on a private
// opctx.Context until the bound worker reports it done. Nothing in the
// storage packages themselves depends on opmgr — this package is the
// client that exercises the end-to-end "Manager routes a request to a
// Worker which calls into dataspace/bytestream/keyval" path, the way the
// teacher's pkg/ingest callers post through its queue/engine rather than
// writing to pebble directly.
package storageops

import (
	"context"
	"time"

	"parafs/pkg/bytestream"
	"parafs/pkg/collection"
	"parafs/pkg/dataspace"
	"parafs/pkg/keyval"
	"parafs/pkg/op"
	"parafs/pkg/opctx"
	"parafs/pkg/opmgr"
	"parafs/pkg/perr"
)

// Client posts object-lifecycle and I/O requests for one Collection
// through a shared Manager, instead of calling the collection's stores
// directly.
type Client struct {
	Mgr *opmgr.Manager
	Col *collection.Collection
}

// New builds a Client bound to mgr and col. mgr must already have at
// least one worker bound and started (opmgr.Manager.Bind/StartAll).
func New(mgr *opmgr.Manager, col *collection.Collection) *Client {
	return &Client{Mgr: mgr, Col: col}
}

// run posts a single-shot op built from fn, waits for it to complete on
// a private context, and returns fn's error (or a cancellation error if
// ctx expires first).
func (c *Client) run(ctx context.Context, fn func() error) error {
	var callErr error
	o := op.New(func(o *op.Op) (bool, error) {
		callErr = fn()
		return true, nil
	}, nil, nil)

	opCtx := opctx.New()
	if err := c.Mgr.CtxPost(opCtx, o); err != nil {
		return err
	}
	if _, ok := c.Mgr.Wait(ctx, opCtx); !ok {
		return perr.New("storageops", perr.Canceled, "request canceled before worker completed it")
	}
	return callErr
}

// CreateObject allocates a fresh handle from the collection's ledger and
// creates its dataspace attribute record, routed through the bound
// Manager/Worker. Returns the allocated handle.
func (c *Client) CreateObject(ctx context.Context, attrs dataspace.Attributes) (dataspace.Handle, error) {
	raw, ok := c.Col.Ledger.Allocate()
	if !ok {
		return 0, perr.New("storageops", perr.NoMem, "handle space exhausted")
	}
	h := dataspace.Handle(raw)
	err := c.run(ctx, func() error {
		if err := c.Col.Dataspace.Create(h, attrs); err != nil {
			return err
		}
		return c.Col.Bytestream.Create(raw)
	})
	if err != nil {
		c.Col.Ledger.Free(raw, time.Now())
		return 0, err
	}
	return h, nil
}

// GetAttr reads h's attribute record, routed through the bound
// Manager/Worker.
func (c *Client) GetAttr(ctx context.Context, h dataspace.Handle) (dataspace.Attributes, error) {
	var out dataspace.Attributes
	err := c.run(ctx, func() error {
		a, err := c.Col.Dataspace.GetAttr(h)
		out = a
		return err
	})
	return out, err
}

// SetAttr applies mutate to h's attribute record, routed through the
// bound Manager/Worker.
func (c *Client) SetAttr(ctx context.Context, h dataspace.Handle, mutate func(dataspace.Attributes) dataspace.Attributes) error {
	return c.run(ctx, func() error {
		return c.Col.Dataspace.SetAttr(h, mutate)
	})
}

// RemoveObject deletes h's attribute record and bytestream, strands the
// file instead if unlinking it fails, and returns the handle to the
// ledger's purgatory.
func (c *Client) RemoveObject(ctx context.Context, h dataspace.Handle) error {
	return c.run(ctx, func() error {
		if err := c.Col.Dataspace.Remove(h); err != nil {
			return err
		}
		raw := uint64(h)
		if err := c.Col.Bytestream.Remove(raw); err != nil {
			if err := c.Col.Bytestream.Strand(raw); err != nil {
				return err
			}
		}
		c.Col.Ledger.Free(raw, time.Now())
		return nil
	})
}

// WriteBytes submits a write_list transfer at offset and blocks until the
// bound backend reports it complete, routed through the Manager/Worker.
func (c *Client) WriteBytes(ctx context.Context, h dataspace.Handle, offset int64, data []byte) (int64, error) {
	return c.transfer(ctx, h, bytestream.OpWrite, offset, data)
}

// ReadBytes submits a read_list transfer at offset into buf and blocks
// until the bound backend reports it complete, routed through the
// Manager/Worker.
func (c *Client) ReadBytes(ctx context.Context, h dataspace.Handle, offset int64, buf []byte) (int64, error) {
	return c.transfer(ctx, h, bytestream.OpRead, offset, buf)
}

func (c *Client) transfer(ctx context.Context, h dataspace.Handle, kind bytestream.OpKind, offset int64, buf []byte) (int64, error) {
	sg := bytestream.SGList{
		Mem:    []bytestream.MemSegment{{Buf: buf}},
		Stream: []bytestream.StreamSegment{{Offset: offset, Length: int64(len(buf))}},
	}

	var result bytestream.Completion
	var token int64
	var submitted bool
	o := op.New(func(o *op.Op) (bool, error) {
		if !submitted {
			tok, err := c.Col.Bytestream.Submit(uint64(h), kind, sg)
			if err != nil {
				return false, err
			}
			token = tok
			submitted = true
			return false, nil
		}
		for _, comp := range c.Col.Bytestream.Poll() {
			if comp.Token == token {
				result = comp
				return true, nil
			}
		}
		return false, nil
	}, func(o *op.Op) error {
		if submitted {
			return c.Col.Bytestream.Cancel(token)
		}
		return nil
	}, nil)

	opCtx := opctx.New()
	if err := c.Mgr.CtxPost(opCtx, o); err != nil {
		return 0, err
	}
	if _, ok := c.Mgr.Wait(ctx, opCtx); !ok {
		return 0, perr.New("storageops", perr.Canceled, "transfer canceled before worker completed it")
	}
	if result.Err != nil {
		return result.Bytes, result.Err
	}
	return result.Bytes, nil
}

// PutKeyval stores value under (h, typeByte, key), routed through the
// bound Manager/Worker.
func (c *Client) PutKeyval(ctx context.Context, h keyval.Handle, typeByte byte, key, value []byte, flags keyval.Flags) error {
	return c.run(ctx, func() error {
		return c.Col.Keyval.Put(h, typeByte, key, value, flags)
	})
}

// GetKeyval reads the value stored under (h, typeByte, key), routed
// through the bound Manager/Worker.
func (c *Client) GetKeyval(ctx context.Context, h keyval.Handle, typeByte byte, key []byte) ([]byte, error) {
	var out []byte
	err := c.run(ctx, func() error {
		v, err := c.Col.Keyval.Get(h, typeByte, key)
		out = v
		return err
	})
	return out, err
}
