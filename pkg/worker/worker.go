// Package worker implements the six worker variants the op manager can
// bind an op type to: Blocking, PerOp, Queues, ThreadedQueues, External
// and Pool. Each is grounded on the matching original-source file
// (pint-worker-{blocking,per-op,queues,threaded-queues,external,pool}.c);
// the Go concurrency shape for the queue-draining variants follows the
// teacher's RunBatchWorker/WAL batchFlusher goroutine pattern.
package worker

import (
	"context"

	"parafs/pkg/op"
	"parafs/pkg/opqueue"
)

// Worker services posted ops. Implementations choose how and when
// op.Service is invoked; all of them eventually call complete with the
// finished op so the manager/context can observe completion.
type Worker interface {
	// Post hands o to the worker for service. complete is invoked exactly
	// once per accepted op, possibly from a different goroutine.
	Post(o *op.Op, complete func(*op.Op)) error
	// Start begins any background goroutines the variant needs; it
	// returns immediately. Stop halts them and waits for drain.
	Start(ctx context.Context)
	Stop()
	// Cancel attempts to rewrite o out of whatever queue this worker
	// owns before it is serviced, reporting true and running o's
	// completion itself if it succeeds. Variants with no internal queue
	// (o is already dispatched to a goroutine the instant Post returns)
	// always return false, leaving cancellation to o's own CancelFunc.
	Cancel(o *op.Op) bool
}

// completionWrapper stashes the real completion callback in o.Opaque
// while an op sits in a worker-owned opqueue.Queue, so the original
// caller-supplied Opaque survives the round trip through the queue.
type completionWrapper struct {
	orig     any
	complete func(*op.Op)
}

// cancelFromQueues is the shared queue-rewrite half of Cancel for every
// variant that owns one or more opqueue.Queue: it searches each queue in
// turn for o, removes it if found, and runs its completion as Canceled —
// the op never reaches Service.
func cancelFromQueues(qs []*opqueue.Queue, o *op.Op) bool {
	for _, q := range qs {
		removed, ok := q.Remove(func(x *op.Op) bool { return x == o })
		if !ok {
			continue
		}
		cw := removed.Opaque.(completionWrapper)
		removed.Opaque = cw.orig
		removed.State = op.StateCanceled
		cw.complete(removed)
		return true
	}
	return false
}

// drainAndCancel empties q, marking every remaining op Canceled and
// running its completion, so a queue-owning worker's Stop never leaves a
// still-tracked op's context/manager waiting on a completion that will
// never come.
func drainAndCancel(q *opqueue.Queue) {
	for {
		o, ok := q.Pop()
		if !ok {
			return
		}
		o.State = op.StateCanceled
		if cw, wrapped := o.Opaque.(completionWrapper); wrapped {
			o.Opaque = cw.orig
			cw.complete(o)
		}
	}
}

func serviceOnce(o *op.Op) {
	if o.Service == nil {
		o.State = op.StateCompleted
		return
	}
	done, err := o.Service(o)
	if err != nil {
		o.Err = err
		o.State = op.StateErrored
		return
	}
	if done {
		o.State = op.StateCompleted
	} else {
		o.State = op.StateQueued
	}
}
