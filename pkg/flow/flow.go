// Package flow implements the Flow engine: a dual-endpoint, double-
// buffered streaming state machine moving data between a source and a
// destination Endpoint (network, memory, or storage) one buffer at a
// time while the other buffer is concurrently filled/drained, grounded
// on the original source's flowproto-bmi-trove.c double-buffer algorithm.
// The fill/drain pair that keeps both buffers busy is expressed with
// golang.org/x/sync/errgroup, the fan-out-then-join idiom used for
// exactly this shape elsewhere in the example pack.
package flow

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"parafs/pkg/perr"
)

// BufferState is one double-buffer slot's position in the fill/drain
// cycle.
type BufferState int

const (
	ReadyToFill BufferState = iota
	Filling
	ReadyToSwap
	ReadyToDrain
	Draining
	Done
)

// Endpoint is one side of a flow: a source that can Fill a buffer, or a
// destination that can Drain one. Network, memory and storage endpoints
// all implement the same two methods; which one is meaningful depends on
// which side of the Flow the endpoint is bound to.
type Endpoint interface {
	// Fill reads up to len(buf) bytes into buf, like io.Reader.
	Fill(ctx context.Context, buf []byte) (n int, err error)
	// Drain writes buf to the endpoint, like io.Writer.
	Drain(ctx context.Context, buf []byte) (n int, err error)
}

// ReaderEndpoint adapts an io.Reader into a source-only Endpoint.
type ReaderEndpoint struct{ R io.Reader }

func (e ReaderEndpoint) Fill(ctx context.Context, buf []byte) (int, error) { return e.R.Read(buf) }
func (e ReaderEndpoint) Drain(ctx context.Context, buf []byte) (int, error) {
	return 0, perr.New("flow", perr.InvalidArg, "ReaderEndpoint cannot drain")
}

// WriterEndpoint adapts an io.Writer into a destination-only Endpoint.
type WriterEndpoint struct{ W io.Writer }

func (e WriterEndpoint) Fill(ctx context.Context, buf []byte) (int, error) {
	return 0, perr.New("flow", perr.InvalidArg, "WriterEndpoint cannot fill")
}
func (e WriterEndpoint) Drain(ctx context.Context, buf []byte) (int, error) { return e.W.Write(buf) }

type doubleBuffer struct {
	data  []byte
	state BufferState
	n     int
}

// Flow moves bytes from Source to Destination using two alternating
// buffers of BufferSize each, so filling the next buffer overlaps with
// draining the current one instead of serializing the two.
type Flow struct {
	Source      Endpoint
	Destination Endpoint
	BufferSize  int

	bytesMoved int64
}

// New constructs a Flow. bufferSize must be > 0.
func New(source, destination Endpoint, bufferSize int) (*Flow, error) {
	if bufferSize <= 0 {
		return nil, perr.New("flow", perr.InvalidArg, "buffer size must be positive")
	}
	return &Flow{Source: source, Destination: destination, BufferSize: bufferSize}, nil
}

// Run drives the flow to completion (source exhausted, io.EOF) or until
// ctx is canceled. It returns the total number of bytes moved.
func (f *Flow) Run(ctx context.Context) (int64, error) {
	buffers := [2]doubleBuffer{
		{data: make([]byte, f.BufferSize), state: ReadyToFill},
		{data: make([]byte, f.BufferSize), state: ReadyToFill},
	}

	sourceDone := false
	for i := 0; !sourceDone || buffers[0].state != Done || buffers[1].state != Done; i = (i + 1) % 2 {
		fillIdx, drainIdx := i, (i+1)%2

		g, gctx := errgroup.WithContext(ctx)
		if !sourceDone && buffers[fillIdx].state == ReadyToFill {
			buffers[fillIdx].state = Filling
			g.Go(func() error {
				n, err := f.Source.Fill(gctx, buffers[fillIdx].data)
				buffers[fillIdx].n = n
				if err == io.EOF {
					sourceDone = true
					if n == 0 {
						buffers[fillIdx].state = Done
						return nil
					}
				} else if err != nil {
					return perr.Wrap("flow", perr.IO, "fill source", err)
				}
				buffers[fillIdx].state = ReadyToSwap
				return nil
			})
		}
		if buffers[drainIdx].state == ReadyToDrain {
			buffers[drainIdx].state = Draining
			g.Go(func() error {
				n, err := f.Destination.Drain(gctx, buffers[drainIdx].data[:buffers[drainIdx].n])
				if err != nil {
					return perr.Wrap("flow", perr.IO, "drain destination", err)
				}
				f.bytesMoved += int64(n)
				buffers[drainIdx].state = Done
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return f.bytesMoved, err
		}

		if buffers[fillIdx].state == ReadyToSwap {
			buffers[fillIdx].state = ReadyToDrain
		}
		if buffers[drainIdx].state == Done && !sourceDone {
			buffers[drainIdx].state = ReadyToFill
		}
		if sourceDone && buffers[fillIdx].state != Done && buffers[fillIdx].state != ReadyToDrain {
			buffers[fillIdx].state = Done
		}
	}
	return f.bytesMoved, nil
}

// BytesMoved returns the running total of bytes successfully drained.
func (f *Flow) BytesMoved() int64 { return f.bytesMoved }
