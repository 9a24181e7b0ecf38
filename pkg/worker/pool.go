package worker

import (
	"context"
	"sync"

	"parafs/pkg/op"
	"parafs/pkg/opqueue"
)

// Pool runs N goroutines draining a single shared queue — the
// reserved-threads, one-queue strategy of pint-worker-pool.c. Unlike
// ThreadedQueues (one queue per thread, round-robin dispatch), every
// idle thread in a Pool competes for the same queue's head, so load
// balances itself without a dispatcher.
type Pool struct {
	q      *opqueue.Queue
	n      int
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{q: opqueue.New(opqueue.Triggers{}), n: n}
}

func (p *Pool) Post(o *op.Op, complete func(*op.Op)) error {
	o.Opaque = completionWrapper{orig: o.Opaque, complete: complete}
	return p.q.Post(o)
}

func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				o, ok := p.q.Wait(runCtx)
				if !ok {
					return
				}
				serviceOnce(o)
				cw := o.Opaque.(completionWrapper)
				o.Opaque = cw.orig
				if o.State == op.StateQueued {
					o.Opaque = completionWrapper{orig: cw.orig, complete: cw.complete}
					_ = p.q.PushFront(o)
					continue
				}
				cw.complete(o)
			}
		}()
	}
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	drainAndCancel(p.q)
	_ = p.q.Close()
}

// Cancel searches the shared queue for o and rewrites it out before a
// pool thread can pick it up.
func (p *Pool) Cancel(o *op.Op) bool {
	return cancelFromQueues([]*opqueue.Queue{p.q}, o)
}
