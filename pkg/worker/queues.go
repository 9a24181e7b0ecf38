package worker

import (
	"context"
	"sync"
	"time"

	"parafs/pkg/op"
	"parafs/pkg/opqueue"
)

// Queues holds an ordered, caller-managed list of owned queues and
// services them by cooperative, round-robin do_work callouts — the
// pint-worker-queues.c contract. Unlike ThreadedQueues/Pool, it owns no
// thread of its own: DoWork must be invoked repeatedly, with a time
// budget, by an external driver (another worker's loop, a dedicated
// goroutine, anything with its own thread of control). Each DoWork call
// cycles round-robin over the queues until its budget elapses, popping a
// queue's head op, running its Service callout once, and pushing it back
// to the front of its queue if it returns done=false.
type Queues struct {
	mu     sync.Mutex
	queues []*opqueue.Queue
	next   int

	// driverCancel/driverDone back the convenience self-driven mode Start
	// enables, for standalone use (e.g. bound directly into opmgr with no
	// other loop available to call DoWork).
	driverCancel context.CancelFunc
	driverDone   chan struct{}
}

// NewQueues constructs a Queues worker with one default owned queue, so
// it is immediately usable as a Worker via Post without an explicit
// QueueAdd.
func NewQueues() *Queues {
	return &Queues{queues: []*opqueue.Queue{opqueue.New(opqueue.Triggers{})}}
}

// QueueAdd registers q as one of the queues this worker round-robins
// over in DoWork.
func (w *Queues) QueueAdd(q *opqueue.Queue) {
	w.mu.Lock()
	w.queues = append(w.queues, q)
	w.mu.Unlock()
}

// QueueRemove unregisters q; a no-op if q is not currently owned.
func (w *Queues) QueueRemove(q *opqueue.Queue) {
	w.mu.Lock()
	for i, existing := range w.queues {
		if existing == q {
			w.queues = append(w.queues[:i], w.queues[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
}

func (w *Queues) Post(o *op.Op, complete func(*op.Op)) error {
	w.mu.Lock()
	q := w.queues[0]
	w.mu.Unlock()
	o.Opaque = completionWrapper{orig: o.Opaque, complete: complete}
	return q.Post(o)
}

// DoWork visits the owned queues round-robin, pass after pass, until the
// given budget elapses (it keeps cycling even when every queue is empty):
// for each queue visited, it pops the head op, runs one
// non-blocking Service callout, and either completes it or pushes it
// back to the front to retry next round. DoWork does not spawn or own
// any goroutine; the caller supplies the thread of control.
func (w *Queues) DoWork(budget time.Duration) {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		if len(w.queues) == 0 {
			w.mu.Unlock()
			return
		}
		idx := w.next % len(w.queues)
		w.next++
		q := w.queues[idx]
		w.mu.Unlock()

		o, ok := q.Pop()
		if !ok {
			continue
		}
		serviceOnce(o)
		cw := o.Opaque.(completionWrapper)
		if o.State == op.StateQueued {
			o.Opaque = cw.orig
			_ = q.PushFront(o)
			o.Opaque = completionWrapper{orig: cw.orig, complete: cw.complete}
			continue
		}
		o.Opaque = cw.orig
		cw.complete(o)
	}
}

// Cancel searches every owned queue for o and rewrites it out before it
// is serviced.
func (w *Queues) Cancel(o *op.Op) bool {
	w.mu.Lock()
	qs := append([]*opqueue.Queue(nil), w.queues...)
	w.mu.Unlock()
	return cancelFromQueues(qs, o)
}

// Start spins a single goroutine that repeatedly calls DoWork, acting as
// a driver of convenience so Queues remains directly usable as a Worker
// (e.g. bound into opmgr.Manager with nothing else driving it). A caller
// that drives DoWork itself from its own loop should not call Start.
func (w *Queues) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.driverCancel = cancel
	w.driverDone = make(chan struct{})
	go func() {
		defer close(w.driverDone)
		for runCtx.Err() == nil {
			w.DoWork(10 * time.Millisecond)
			select {
			case <-runCtx.Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()
}

// Stop halts the self-driven goroutine started by Start, if any. It does
// not close any owned queue: Queues does not assume it is the sole owner
// of every queue in its list (QueueAdd may register a queue another
// component still manages).
func (w *Queues) Stop() {
	if w.driverCancel != nil {
		w.driverCancel()
		<-w.driverDone
	}
}
