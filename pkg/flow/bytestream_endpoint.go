package flow

import (
	"context"
	"io"

	"parafs/pkg/bytestream"
	"parafs/pkg/op"
	"parafs/pkg/opctx"
	"parafs/pkg/opmgr"
	"parafs/pkg/perr"
)

// BytestreamEndpoint adapts a bytestream.Store handle into a Flow
// Endpoint that drives its storage I/O through the op-management core
// instead of calling the store directly. Each Fill/Drain posts a
// read/write op to Mgr under a private opctx.Context and blocks on that
// context until the bound worker reports completion — the flow engine
// "itself behaves as a worker client," per §2, posting storage I/O
// rather than performing it inline. Mirrors flowproto-bmi-trove.c's use
// of a trove (storage) endpoint alongside a BMI (network) endpoint, with
// H (bytestream) standing in for trove here.
type BytestreamEndpoint struct {
	Mgr    *opmgr.Manager
	Store  *bytestream.Store
	Handle uint64

	offset int64
}

// NewBytestreamEndpoint builds an Endpoint that reads/writes handle's
// bytestream sequentially, starting at offset 0, by posting each
// Fill/Drain as an op.Op through mgr.
func NewBytestreamEndpoint(mgr *opmgr.Manager, store *bytestream.Store, handle uint64) *BytestreamEndpoint {
	return &BytestreamEndpoint{Mgr: mgr, Store: store, Handle: handle}
}

// Fill reads up to len(buf) bytes starting at the endpoint's current
// offset, advancing it by the number of bytes actually read. Returns
// io.EOF once a transfer completes with zero bytes.
func (e *BytestreamEndpoint) Fill(ctx context.Context, buf []byte) (int, error) {
	n, err := e.transfer(ctx, bytestream.OpRead, buf)
	if err == nil && n == 0 {
		return 0, io.EOF
	}
	return n, err
}

// Drain writes buf at the endpoint's current offset, advancing it by the
// number of bytes actually written.
func (e *BytestreamEndpoint) Drain(ctx context.Context, buf []byte) (int, error) {
	return e.transfer(ctx, bytestream.OpWrite, buf)
}

// transfer posts one read_list/write_list op covering buf at the current
// offset, then waits on a private context for the op manager to report
// it done. The op's Service callout submits once through Store.Submit
// and polls Store.Poll on each subsequent invocation — non-blocking, so
// whatever worker variant the caller bound this op type to keeps
// servicing other ops while the backend transfer is in flight.
func (e *BytestreamEndpoint) transfer(ctx context.Context, kind bytestream.OpKind, buf []byte) (int, error) {
	sg := bytestream.SGList{
		Mem:    []bytestream.MemSegment{{Buf: buf}},
		Stream: []bytestream.StreamSegment{{Offset: e.offset, Length: int64(len(buf))}},
	}

	var result bytestream.Completion
	var submitted bool
	var token int64
	o := op.New(func(o *op.Op) (bool, error) {
		if !submitted {
			tok, err := e.Store.Submit(e.Handle, kind, sg)
			if err != nil {
				return false, err
			}
			token = tok
			submitted = true
			return false, nil
		}
		for _, c := range e.Store.Poll() {
			if c.Token == token {
				result = c
				return true, nil
			}
		}
		return false, nil
	}, nil, nil)

	opCtx := opctx.New()
	if err := e.Mgr.CtxPost(opCtx, o); err != nil {
		return 0, err
	}
	if _, ok := opCtx.Wait(ctx); !ok {
		return 0, perr.New("flow", perr.Canceled, "bytestream endpoint transfer canceled")
	}
	if result.Err != nil {
		return int(result.Bytes), result.Err
	}
	e.offset += result.Bytes
	return int(result.Bytes), nil
}
