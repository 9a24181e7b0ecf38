package worker

import (
	"context"
	"sync"

	"parafs/pkg/op"
	"parafs/pkg/opqueue"
)

// ThreadedQueues runs a fixed pool of goroutines, each pinned to its own
// opqueue.Queue; when a thread's queue runs dry it blocks on that queue
// until an op is posted to it. A thread never takes work from another
// thread's queue. Grounded on pint-worker-threaded-queues.c's thread-pool-with-queue-
// reattachment design, which trades per-op goroutine cost (PerOp) for a
// fixed number of OS threads servicing many logically independent queues.
type ThreadedQueues struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queues   []*opqueue.Queue
	next     int
	threads  int
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewThreadedQueues creates a pool of `threads` goroutines over
// `threads` queues, one queue per goroutine. Post spreads ops
// round-robin across the queues; queues are not detached from or
// reattached to other threads.
func NewThreadedQueues(threads int) *ThreadedQueues {
	if threads < 1 {
		threads = 1
	}
	tq := &ThreadedQueues{threads: threads}
	tq.cond = sync.NewCond(&tq.mu)
	for i := 0; i < threads; i++ {
		tq.queues = append(tq.queues, opqueue.New(opqueue.Triggers{
			OnPost: func(o *op.Op) { tq.cond.Broadcast() },
		}))
	}
	return tq
}

func (tq *ThreadedQueues) Post(o *op.Op, complete func(*op.Op)) error {
	tq.mu.Lock()
	idx := tq.next
	tq.next = (tq.next + 1) % len(tq.queues)
	q := tq.queues[idx]
	tq.mu.Unlock()

	o.Opaque = completionWrapper{orig: o.Opaque, complete: complete}
	return q.Post(o)
}

func (tq *ThreadedQueues) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	tq.cancel = cancel
	for i := 0; i < tq.threads; i++ {
		q := tq.queues[i]
		tq.wg.Add(1)
		go func() {
			defer tq.wg.Done()
			for {
				o, ok := q.Wait(runCtx)
				if !ok {
					return
				}
				serviceOnce(o)
				cw := o.Opaque.(completionWrapper)
				o.Opaque = cw.orig
				if o.State == op.StateQueued {
					o.Opaque = completionWrapper{orig: cw.orig, complete: cw.complete}
					_ = q.PushFront(o)
					continue
				}
				cw.complete(o)
			}
		}()
	}
}

func (tq *ThreadedQueues) Stop() {
	if tq.cancel != nil {
		tq.cancel()
	}
	tq.wg.Wait()
	for _, q := range tq.queues {
		drainAndCancel(q)
		_ = q.Close()
	}
}

// Cancel searches every per-thread queue for o and rewrites it out
// before its thread can dequeue it — the queue-rewrite cancel semantics
// of pint-worker-threaded-queues.c.
func (tq *ThreadedQueues) Cancel(o *op.Op) bool {
	tq.mu.Lock()
	qs := append([]*opqueue.Queue(nil), tq.queues...)
	tq.mu.Unlock()
	return cancelFromQueues(qs, o)
}
