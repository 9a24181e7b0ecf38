package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"parafs/pkg/op"
	"parafs/pkg/perr"
)

// SubmitFunc hands an op off to a non-local system (e.g. an HTTP
// endpoint) and returns once the remote side has accepted it. External
// treats that return as the op's completion: a nil error completes the
// op, a non-nil error marks it errored.
type SubmitFunc func(ctx context.Context, o *op.Op) error

// External delegates posting to a caller-provided SubmitFunc, pacing
// submissions with a token bucket (rate/burst) and capping how many ops
// may be in flight at the external sink at once at max_posts — the
// External worker's backpressure contract in pint-worker-external.c.
// A Post beyond max_posts fails with perr.Busy; it is not queued.
type External struct {
	submit   SubmitFunc
	limiter  *rate.Limiter
	sem      chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewExternal builds an External worker. ratePerSec/burst configure the
// token bucket pacing submissions; maxPosts bounds concurrent in-flight
// submissions regardless of pacing.
func NewExternal(submit SubmitFunc, ratePerSec float64, burst, maxPosts int) *External {
	if maxPosts < 1 {
		maxPosts = 1
	}
	return &External{
		submit:  submit,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		sem:     make(chan struct{}, maxPosts),
	}
}

func (e *External) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
}

func (e *External) Post(o *op.Op, complete func(*op.Op)) error {
	if e.ctx == nil {
		return perr.New("worker.external", perr.Internal, "Start not called")
	}
	select {
	case e.sem <- struct{}{}:
	default:
		return perr.New("worker.external", perr.Busy, "max_posts exceeded")
	}
	if err := e.limiter.Wait(e.ctx); err != nil {
		<-e.sem
		return perr.Wrap("worker.external", perr.Canceled, "rate wait canceled", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() { <-e.sem }()
		if err := e.submit(e.ctx, o); err != nil {
			o.Err = err
			o.State = op.StateErrored
		} else {
			o.State = op.StateCompleted
		}
		complete(o)
	}()
	return nil
}

func (e *External) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Cancel always reports false: a post dispatches straight to the
// submit goroutine with no intermediate queue to rewrite. Canceling an
// in-flight external submission is the op's own CancelFunc's job.
func (e *External) Cancel(o *op.Op) bool { return false }
