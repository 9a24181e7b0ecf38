package worker

import (
	"context"
	"sync"

	"parafs/pkg/op"
)

// PerOp spawns one goroutine per posted op, the thread-per-op strategy of
// pint-worker-per-op.c. Good for low-volume, high-latency ops (e.g. a
// bytestream flush) where pooling a worker would just add bookkeeping.
type PerOp struct {
	wg sync.WaitGroup
}

func NewPerOp() *PerOp { return &PerOp{} }

func (p *PerOp) Post(o *op.Op, complete func(*op.Op)) error {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		serviceOnce(o)
		for o.State == op.StateQueued {
			serviceOnce(o)
		}
		complete(o)
	}()
	return nil
}

func (p *PerOp) Start(ctx context.Context) {}
func (p *PerOp) Stop()                     { p.wg.Wait() }

// Cancel always reports false: the op's goroutine is already running by
// the time Post returns, so there is no queue to rewrite it out of.
func (p *PerOp) Cancel(o *op.Op) bool { return false }
